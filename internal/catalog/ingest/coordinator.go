package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"catalog_ingest/internal/catalog/clients"
	"catalog_ingest/internal/catalog/models"
	"catalog_ingest/internal/catalog/parse"
	"catalog_ingest/internal/catalog/source"
	"catalog_ingest/internal/catalog/storage"
	"catalog_ingest/metrics"
)

type Fetcher interface {
	Fetch(ctx context.Context, id models.ProductIdentifier) (models.RawResponse, error)
}

type Normalizer interface {
	Normalize(raw models.RawResponse) (*models.Product, error)
}

// Store is the write side the coordinator needs. The caller owns the
// underlying connection and closes it after Run returns.
type Store interface {
	Ping(ctx context.Context) error
	Upsert(ctx context.Context, p *models.Product) (storage.Outcome, error)
}

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

const (
	StopSourceExhausted = "source_exhausted"
	StopTargetReached   = "target_reached"
	StopCancelled       = "cancelled"
	StopSetupFailed     = "setup_failed"
)

type Config struct {
	// Workers is the number of units of work processed at once. It should
	// match the fetch client's concurrency cap.
	Workers int
	// TargetSuccessCount stops admission once reached; 0 means unbounded.
	TargetSuccessCount int
	ProgressEvery      int
	MilestoneEvery     int
}

type Result struct {
	RunID      string
	State      State
	Attempted  int64
	Success    int64
	Inserted   int64
	Updated    int64
	NotFound   int64
	Errors     map[ErrorKind]int64
	ErrorTotal int64
	Elapsed    time.Duration
	Throughput float64
	StopReason string
}

// Coordinator drives one ingest run: it pulls identifiers from the source and
// takes each through fetch, normalize and upsert on a bounded worker pool.
type Coordinator struct {
	src        source.Source
	fetcher    Fetcher
	normalizer Normalizer
	store      Store
	cfg        Config
	log        *zap.Logger

	state atomic.Int32
	tally metrics.IngestMetrics
	srcMu sync.Mutex
	start time.Time
}

func NewCoordinator(src source.Source, fetcher Fetcher, normalizer Normalizer, store Store, cfg Config, log *zap.Logger) *Coordinator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.TargetSuccessCount < 0 {
		cfg.TargetSuccessCount = 0
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	if cfg.MilestoneEvery <= 0 {
		cfg.MilestoneEvery = 50
	}
	return &Coordinator{
		src:        src,
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		cfg:        cfg,
		log:        log.Named("coordinator"),
	}
}

func (c *Coordinator) State() State { return State(c.state.Load()) }

// Run processes identifiers until the source is exhausted, the target success
// count is reached or ctx is cancelled. Any of these stops admission only;
// units already dispatched finish on a context that ignores the cancellation.
// A tally is returned even when the run aborts.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Result{}, ErrAlreadyRun
	}

	runID := uuid.New().String()
	log := c.log.With(zap.String("run_id", runID))
	c.start = time.Now()

	if err := c.setup(ctx); err != nil {
		c.state.Store(int32(StateAborted))
		log.Error("ingest run aborted", zap.Error(err))
		return c.result(runID, StopSetupFailed), err
	}

	log.Info("ingest run started",
		zap.Int("workers", c.cfg.Workers),
		zap.Int("target_success_count", c.cfg.TargetSuccessCount))

	admit, stopAdmission := context.WithCancel(ctx)
	defer stopAdmission()
	work := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(admit, work, stopAdmission, log)
		}()
	}
	wg.Wait()

	reason := StopSourceExhausted
	switch {
	case c.targetReached():
		reason = StopTargetReached
	case ctx.Err() != nil:
		reason = StopCancelled
	}

	c.state.Store(int32(StateCompleted))
	res := c.result(runID, reason)
	log.Info("ingest run completed",
		zap.String("stop_reason", res.StopReason),
		zap.Int64("attempted", res.Attempted),
		zap.Int64("success", res.Success),
		zap.Int64("not_found", res.NotFound),
		zap.Int64("errors", res.ErrorTotal),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("throughput", res.Throughput))
	return res, nil
}

func (c *Coordinator) setup(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return &SetupError{Stage: "store", Err: err}
	}
	if p, ok := c.src.(source.Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return &SetupError{Stage: "source", Err: err}
		}
	}
	return nil
}

func (c *Coordinator) worker(admit, work context.Context, stopAdmission context.CancelFunc, log *zap.Logger) {
	for {
		if admit.Err() != nil || c.targetReached() {
			return
		}
		id, ok := c.next()
		if !ok {
			return
		}
		c.process(work, id, log)
		if c.targetReached() {
			stopAdmission()
		}
	}
}

func (c *Coordinator) next() (models.ProductIdentifier, bool) {
	c.srcMu.Lock()
	defer c.srcMu.Unlock()
	return c.src.Next()
}

func (c *Coordinator) targetReached() bool {
	return c.cfg.TargetSuccessCount > 0 && c.tally.Success.Load() >= int64(c.cfg.TargetSuccessCount)
}

// process runs one unit of work. Every call lands in exactly one of success,
// not found or an error kind.
func (c *Coordinator) process(ctx context.Context, id models.ProductIdentifier, log *zap.Logger) {
	c.tally.Attempted.Add(1)

	raw, err := c.fetcher.Fetch(ctx, id)
	if err != nil {
		switch clients.KindOf(err) {
		case clients.KindNotFound:
			c.tally.NotFound.Add(1)
			metrics.RecordOutcome("not_found")
		case clients.KindFatal:
			c.fail(log, id, ErrorFatalStatus, err)
		default:
			c.fail(log, id, ErrorRetryExhausted, err)
		}
		return
	}

	p, err := c.normalizer.Normalize(raw)
	if err != nil {
		if errors.Is(err, parse.ErrMissingName) {
			c.fail(log, id, ErrorMissingName, err)
		} else {
			c.fail(log, id, ErrorMalformedPayload, err)
		}
		return
	}

	outcome, err := c.store.Upsert(ctx, p)
	if err != nil {
		c.fail(log, id, ErrorStore, err)
		return
	}

	switch outcome {
	case storage.OutcomeInserted:
		c.tally.Inserted.Add(1)
	case storage.OutcomeUpdated:
		c.tally.Updated.Add(1)
	}
	success := c.tally.Success.Add(1)
	metrics.RecordOutcome("success")

	log.Debug("product ingested",
		zap.String("product_id", p.ProductID),
		zap.String("name", p.Name),
		zap.Stringer("outcome", outcome))

	if success%int64(c.cfg.MilestoneEvery) == 0 {
		log.Info("ingest milestone", c.progressFields(success)...)
	} else if success%int64(c.cfg.ProgressEvery) == 0 {
		log.Info("ingest progress", c.progressFields(success)...)
	}
}

func (c *Coordinator) fail(log *zap.Logger, id models.ProductIdentifier, kind ErrorKind, err error) {
	switch kind {
	case ErrorRetryExhausted:
		c.tally.RetryExhausted.Add(1)
	case ErrorFatalStatus:
		c.tally.FatalStatus.Add(1)
	case ErrorMalformedPayload:
		c.tally.MalformedPayload.Add(1)
	case ErrorMissingName:
		c.tally.MissingName.Add(1)
	case ErrorStore:
		c.tally.StoreFailed.Add(1)
	}
	metrics.RecordOutcome(string(kind))
	log.Warn("product failed",
		zap.String("product_id", string(id)),
		zap.String("kind", string(kind)),
		zap.Error(err))
}

func (c *Coordinator) progressFields(success int64) []zap.Field {
	elapsed := time.Since(c.start)
	return []zap.Field{
		zap.Int64("success", success),
		zap.Int64("not_found", c.tally.NotFound.Load()),
		zap.Int64("errors", c.tally.ErrorTotal()),
		zap.Duration("elapsed", elapsed),
		zap.Float64("throughput", throughput(success, elapsed)),
	}
}

func (c *Coordinator) result(runID, reason string) Result {
	elapsed := time.Since(c.start)
	res := Result{
		RunID:     runID,
		State:     c.State(),
		Attempted: c.tally.Attempted.Load(),
		Success:   c.tally.Success.Load(),
		Inserted:  c.tally.Inserted.Load(),
		Updated:   c.tally.Updated.Load(),
		NotFound:  c.tally.NotFound.Load(),
		Errors: map[ErrorKind]int64{
			ErrorRetryExhausted:   c.tally.RetryExhausted.Load(),
			ErrorFatalStatus:      c.tally.FatalStatus.Load(),
			ErrorMalformedPayload: c.tally.MalformedPayload.Load(),
			ErrorMissingName:      c.tally.MissingName.Load(),
			ErrorStore:            c.tally.StoreFailed.Load(),
		},
		ErrorTotal: c.tally.ErrorTotal(),
		Elapsed:    elapsed,
		StopReason: reason,
	}
	res.Throughput = throughput(res.Success, elapsed)
	return res
}

// throughput is successes per second of wall-clock time.
func throughput(success int64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(success) / elapsed.Seconds()
}
