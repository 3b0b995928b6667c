package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"catalog_ingest/config"
	"catalog_ingest/internal/auth"
	"catalog_ingest/internal/catalog/clients"
	"catalog_ingest/internal/catalog/ingest"
	"catalog_ingest/internal/catalog/parse"
	"catalog_ingest/internal/catalog/source"
	"catalog_ingest/internal/catalog/storage"
	"catalog_ingest/metrics"
	"catalog_ingest/migrations/infrastructure"
	"catalog_ingest/pkg/dbconnect"
	"catalog_ingest/pkg/dbconnect/migration"
)

const sampleSize = 5

// IngestServer wires one ingest run: database, schema, source, client and
// coordinator. It owns the database handle for the duration of Run.
type IngestServer struct {
	dbconnect.Database
	cfg *config.AppConfig
	log *zap.Logger

	transport http.RoundTripper
}

func NewIngestServer(cfg *config.AppConfig, db dbconnect.Database, log *zap.Logger) *IngestServer {
	return &IngestServer{
		Database: db,
		cfg:      cfg,
		log:      log,
	}
}

func (s *IngestServer) Run(ctx context.Context) (ingest.Result, error) {
	db, err := s.Connect()
	if err != nil {
		return ingest.Result{State: ingest.StateAborted}, &ingest.SetupError{Stage: "store", Err: err}
	}
	defer func() {
		if err := s.Close(); err != nil {
			s.log.Warn("failed to close database", zap.Error(err))
		}
	}()

	err = migration.Apply(db,
		&infrastructure.MigrationsRegistry{},
		&infrastructure.ProductsTable{Log: s.log},
		&infrastructure.ProductsEAN{Log: s.log},
	)
	if err != nil {
		return ingest.Result{State: ingest.StateAborted}, &ingest.SetupError{Stage: "migrations", Err: err}
	}
	s.log.Info("catalog migrations applied")

	if s.cfg.Metrics.Listen != "" {
		stop := s.serveMetrics(s.cfg.Metrics.Listen)
		defer stop()
	}

	crawler := s.cfg.Crawler
	client, err := clients.NewProductClient(clients.Options{
		BaseURL:        crawler.BaseURL,
		UserAgent:      crawler.UserAgent,
		AcceptLanguage: crawler.AcceptLanguage,
		Concurrency:    crawler.Concurrency,
		MinInterval:    crawler.MinRequestInterval(),
		RequestTimeout: crawler.RequestTimeout(),
		RetryAttempts:  crawler.RetryAttempts,
		RetryBackoff:   crawler.RetryBackoff(),
		Transport:      s.transport,
	}, s.log)
	if err != nil {
		return ingest.Result{State: ingest.StateAborted}, &ingest.SetupError{Stage: "client", Err: err}
	}

	src, err := s.buildSource()
	if err != nil {
		return ingest.Result{State: ingest.StateAborted}, &ingest.SetupError{Stage: "source", Err: err}
	}

	if rs, ok := src.(*source.RangeSource); ok {
		s.log.Info("identifier range", zap.Int("identifiers", rs.Len()))
	}

	repo := storage.NewProductRepository(db, s.log)
	coordinator := ingest.NewCoordinator(src, client, parse.NewNormalizer(crawler.BaseURL), repo, ingest.Config{
		Workers:            crawler.Concurrency,
		TargetSuccessCount: crawler.TargetSuccessCount,
	}, s.log)

	s.log.Info("starting catalog ingest",
		zap.String("base_url", crawler.BaseURL),
		zap.String("mode", crawler.Mode),
		zap.Bool("sitemap", crawler.UseSitemap),
		zap.Int("concurrency", crawler.Concurrency),
		zap.Duration("min_request_interval", crawler.MinRequestInterval()))

	res, err := coordinator.Run(ctx)
	if err != nil {
		return res, err
	}

	if sm, ok := src.(*source.SitemapSource); ok {
		s.log.Info("sitemap urls skipped", zap.Int("skipped", sm.Skipped()))
	}
	s.log.Info("peak concurrent requests", zap.Int("max_in_flight", client.MaxInFlight()))
	s.report(repo)
	return res, nil
}

func (s *IngestServer) buildSource() (source.Source, error) {
	crawler := s.cfg.Crawler
	if crawler.UseSitemap {
		lister := clients.NewSitemapClient(crawler.BaseURL, crawler.UserAgent, 2*crawler.RequestTimeout(), s.transport, s.log)
		return source.NewSitemapSource(lister, s.log), nil
	}
	if crawler.IdentifierRange == nil {
		return nil, errors.New("no identifier source configured")
	}
	return source.NewRangeSource(crawler.IdentifierRange.Start, crawler.IdentifierRange.End)
}

// report logs the stored total and a few recent rows. It runs after the
// coordinator finished, so it must not depend on the run's context.
func (s *IngestServer) report(repo *storage.ProductRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	total, err := repo.Count(ctx)
	if err != nil {
		s.log.Warn("failed to count products", zap.Error(err))
		return
	}
	s.log.Info("products stored", zap.Int("total", total))

	sample, err := repo.Sample(ctx, sampleSize)
	if err != nil {
		s.log.Warn("failed to sample products", zap.Error(err))
		return
	}
	for _, p := range sample {
		s.log.Info("stored product",
			zap.String("product_id", p.ProductID),
			zap.String("name", p.Name),
			zap.Float64("price", p.Price),
			zap.String("category", p.Category))
	}
}

func (s *IngestServer) serveMetrics(addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", auth.Protect(metrics.MetricsHandler(), s.cfg.Metrics.JWTSecret, auth.RoleScraper))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.log.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			s.log.Warn("metrics server shutdown", zap.Error(fmt.Errorf("shutdown %s: %w", addr, err)))
		}
	}
}
