package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"catalog_ingest/config"
	"catalog_ingest/internal/catalog/app"
	"catalog_ingest/pkg/dbconnect/postgres"
	"catalog_ingest/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("failed to load config: %v", err)
		return 2
	}

	logg, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Development: cfg.Logger.Development,
	})
	if err != nil {
		log.Printf("failed to build logger: %v", err)
		return 2
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := postgres.NewPgConnector(&cfg.Postgres, logg)
	db.MaxOpenConns = cfg.Postgres.MaxOpenConns

	res, err := app.NewIngestServer(cfg, db, logg).Run(ctx)
	if err != nil {
		logg.Error("ingest aborted", zap.Error(err))
		return 1
	}

	logg.Info("ingest finished",
		zap.String("run_id", res.RunID),
		zap.String("state", res.State.String()),
		zap.String("stop_reason", res.StopReason),
		zap.Int64("success", res.Success),
		zap.Int64("inserted", res.Inserted),
		zap.Int64("updated", res.Updated),
		zap.Int64("not_found", res.NotFound),
		zap.Int64("errors", res.ErrorTotal),
		zap.Any("errors_by_kind", res.Errors),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("products_per_second", res.Throughput))
	return 0
}
