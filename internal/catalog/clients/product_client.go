package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"catalog_ingest/internal/catalog/models"
	"catalog_ingest/metrics"
	"catalog_ingest/pkg/middleware"
)

const (
	productEndpoint = "/api/v1_1/products/"
	maxBodyBytes    = 10 << 20
	maxRetryAfter   = time.Minute
	maxBackoff      = time.Minute
)

type Options struct {
	BaseURL        string
	UserAgent      string
	AcceptLanguage string

	// Concurrency caps requests awaiting a response across all callers.
	Concurrency int
	// MinInterval is the politeness delay between consecutive requests.
	MinInterval    time.Duration
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration

	// Transport is the base transport; nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// ProductClient calls the per-product JSON API under a concurrency cap and a
// minimum spacing between requests.
type ProductClient struct {
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	limiter  *rate.Limiter
	gate     chan struct{}
	attempts int
	backoff  time.Duration
	log      *zap.Logger

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	sleep func(ctx context.Context, d time.Duration) error
}

func NewProductClient(opts Options, log *zap.Logger) (*ProductClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	return &ProductClient{
		baseURL: base,
		client: &http.Client{
			Transport: middleware.Chain(opts.Transport,
				middleware.StaticHeaders(DefaultHeaders(opts.UserAgent, opts.AcceptLanguage)),
				middleware.Prometheus(productEndpoint+"{id}"),
			),
		},
		timeout:  opts.RequestTimeout,
		limiter:  rate.NewLimiter(limit, 1),
		gate:     make(chan struct{}, opts.Concurrency),
		attempts: opts.RetryAttempts,
		backoff:  opts.RetryBackoff,
		log:      log.Named("product_client"),
		sleep:    sleepContext,
	}, nil
}

// DefaultHeaders is the fixed header set sent with every storefront request.
func DefaultHeaders(userAgent, acceptLanguage string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	if acceptLanguage != "" {
		h.Set("Accept-Language", acceptLanguage)
	}
	return h
}

func (c *ProductClient) ProductURL(id models.ProductIdentifier) string {
	return c.baseURL + productEndpoint + url.PathEscape(string(id))
}

// InFlight is the number of requests currently awaiting a response.
func (c *ProductClient) InFlight() int { return int(c.inFlight.Load()) }

// MaxInFlight is the highest InFlight value observed since construction.
func (c *ProductClient) MaxInFlight() int { return int(c.maxInFlight.Load()) }

// Fetch returns the body of a 200 response. Failures are *FetchError: a 404 is
// KindNotFound, transient faults are retried with exponential backoff and come
// back as KindRetryable once attempts run out, anything else is KindFatal.
func (c *ProductClient) Fetch(ctx context.Context, id models.ProductIdentifier) (models.RawResponse, error) {
	endpoint := c.ProductURL(id)

	for attempt := 1; ; attempt++ {
		res := c.attempt(ctx, endpoint)

		kind := classify(res)
		if kind == 0 {
			return models.RawResponse{
				ID:         id,
				StatusCode: res.status,
				Body:       res.body,
				FetchedAt:  time.Now(),
			}, nil
		}

		fetchErr := &FetchError{ID: id, Kind: kind, StatusCode: res.status, Attempts: attempt, Err: res.err}
		if kind != KindRetryable || attempt >= c.attempts || ctx.Err() != nil {
			return models.RawResponse{}, fetchErr
		}

		wait := backoffFor(c.backoff, attempt)
		if res.retryAfter > wait {
			wait = res.retryAfter
		}
		c.log.Debug("retrying product fetch",
			zap.String("product_id", string(id)),
			zap.Int("attempt", attempt),
			zap.Int("status", res.status),
			zap.Duration("wait", wait),
			zap.Error(res.err))

		if err := c.sleep(ctx, wait); err != nil {
			fetchErr.Err = err
			return models.RawResponse{}, fetchErr
		}
	}
}

type attemptResult struct {
	body       []byte
	status     int
	retryAfter time.Duration
	err        error
}

func (c *ProductClient) attempt(ctx context.Context, endpoint string) attemptResult {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return attemptResult{err: ctx.Err()}
	}
	defer func() { <-c.gate }()

	if err := c.limiter.Wait(ctx); err != nil {
		return attemptResult{err: fmt.Errorf("rate limiter: %w", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return attemptResult{err: fmt.Errorf("failed to create request: %w", err)}
	}

	c.enter()
	defer c.leave()

	resp, err := c.client.Do(req)
	if err != nil {
		return attemptResult{err: fmt.Errorf("failed to execute request: %w", err)}
	}
	defer resp.Body.Close()

	res := attemptResult{status: resp.StatusCode}
	if resp.StatusCode != http.StatusOK {
		res.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return res
	}

	res.body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		res.err = fmt.Errorf("failed to read response body: %w", err)
	}
	return res
}

func (c *ProductClient) enter() {
	n := c.inFlight.Add(1)
	for {
		peak := c.maxInFlight.Load()
		if n <= peak || c.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	metrics.SetInFlight(int(n))
}

func (c *ProductClient) leave() {
	metrics.SetInFlight(int(c.inFlight.Add(-1)))
}

// classify returns 0 for a usable response.
func classify(res attemptResult) FetchKind {
	if res.err != nil {
		// Timeouts, refused connections and truncated bodies are transient.
		return KindRetryable
	}
	switch {
	case res.status == http.StatusOK:
		return 0
	case res.status == http.StatusNotFound:
		return KindNotFound
	case res.status == http.StatusTooManyRequests,
		res.status == http.StatusRequestTimeout,
		res.status >= 500 && res.status < 600:
		return KindRetryable
	}
	return KindFatal
}

// backoffFor doubles base per attempt and clamps the result at maxBackoff.
func backoffFor(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	wait := base
	for i := 1; i < attempt && wait < maxBackoff; i++ {
		wait *= 2
	}
	if wait > maxBackoff {
		return maxBackoff
	}
	return wait
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = time.Until(at)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
