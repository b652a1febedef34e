package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/metrics"
	"github.com/didinska21/wallet-hunter/internal/oracle"
	"github.com/didinska21/wallet-hunter/internal/retry"
	"github.com/didinska21/wallet-hunter/internal/store"
	"github.com/didinska21/wallet-hunter/internal/wallet"
)

const (
	defaultWorkers          = 16
	defaultProgressInterval = 5 * time.Second
)

// State is the coordinator lifecycle. A coordinator runs exactly once:
// Idle -> Running -> Completed or Cancelled.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Config bounds one scan run.
type Config struct {
	Target           int
	Workers          int
	Chains           []model.Chain
	RetryPolicy      retry.Policy
	ProgressInterval time.Duration
}

// Coordinator owns the run lifecycle: it resets counters, announces the
// start, fans the target out to the worker pool through an atomic claim
// counter, and reports the closing summary even when the run is cancelled.
type Coordinator struct {
	cfg      Config
	worker   *Worker
	stats    *Aggregator
	notifier Notifier
	logger   *slog.Logger

	state     atomic.Int32
	remaining atomic.Int64
}

func NewCoordinator(
	cfg Config,
	generator wallet.Generator,
	balances oracle.BalanceOracle,
	results store.ResultStore,
	notifier Notifier,
	stats *Aggregator,
	logger *slog.Logger,
) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:      cfg,
		worker:   NewWorker(generator, balances, results, notifier, stats, cfg.Chains, cfg.RetryPolicy, logger),
		stats:    stats,
		notifier: notifier,
		logger:   logger.With("component", "coordinator"),
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Remaining returns unclaimed work units, clamped to zero once workers have
// raced past the end of the target.
func (c *Coordinator) Remaining() int64 {
	if r := c.remaining.Load(); r > 0 {
		return r
	}
	return 0
}

// Run executes the scan and returns the closing summary. Cancellation is an
// orderly outcome, not an error: workers finish their in-flight unit, the
// summary covers whatever was accomplished, and the completion announcement
// still goes out.
func (c *Coordinator) Run(ctx context.Context) (model.ScanSummary, error) {
	if c.cfg.Target <= 0 {
		return model.ScanSummary{}, fmt.Errorf("scan target must be positive, got %d", c.cfg.Target)
	}
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return model.ScanSummary{}, fmt.Errorf("scan already started (state %s)", c.State())
	}

	c.stats.Reset()
	c.remaining.Store(int64(c.cfg.Target))
	metrics.ScanRemainingTarget.Set(float64(c.cfg.Target))

	logger := c.logger.With("run_id", uuid.NewString())
	logger.Info("scan starting",
		"target", c.cfg.Target,
		"workers", c.cfg.Workers,
		"chains", model.ChainNames(c.cfg.Chains),
	)
	c.notifier.AnnounceStart(ctx, c.cfg.Target, c.cfg.Workers)

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		id := i
		g.Go(func() error {
			return c.worker.Run(gCtx, id, &c.remaining)
		})
	}

	// The progress loop lives outside the group: it must stop when the
	// workers drain the target, which never cancels gCtx.
	progressDone := make(chan struct{})
	go c.reportProgress(ctx, progressDone, logger)

	err := g.Wait()
	close(progressDone)

	finalState := StateCompleted
	var runErr error
	if err != nil {
		finalState = StateCancelled
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			runErr = err
		}
	}
	c.state.Store(int32(finalState))

	summary := c.summarize()
	metrics.ScanRunsTotal.WithLabelValues(finalState.String()).Inc()
	metrics.ScanRemainingTarget.Set(float64(c.Remaining()))

	// The completion announcement also fires on cancelled runs, so it must
	// survive the cancelled context.
	c.notifier.AnnounceCompletion(context.WithoutCancel(ctx), summary)

	logger.Info("scan finished",
		"outcome", finalState.String(),
		"generated", summary.Stats.Generated,
		"checked", summary.Stats.Checked,
		"found", summary.Stats.Found,
		"empty", summary.Stats.Empty,
		"check_failures", summary.Stats.CheckFailures,
		"elapsed", summary.Elapsed,
		"rate", summary.Rate,
	)
	return summary, runErr
}

// summarize closes the books: final snapshot, wall-clock elapsed, and the
// checked-per-second rate.
func (c *Coordinator) summarize() model.ScanSummary {
	snap := c.stats.Snapshot()
	elapsed := time.Since(snap.StartedAt)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(snap.Checked) / elapsed.Seconds()
	}
	return model.ScanSummary{Stats: snap, Elapsed: elapsed, Rate: rate}
}

func (c *Coordinator) reportProgress(ctx context.Context, done <-chan struct{}, logger *slog.Logger) {
	ticker := time.NewTicker(c.cfg.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.stats.Snapshot()
			remaining := c.Remaining()
			metrics.ScanRemainingTarget.Set(float64(remaining))
			logger.Info("scan progress",
				"generated", snap.Generated,
				"checked", snap.Checked,
				"found", snap.Found,
				"empty", snap.Empty,
				"remaining", remaining,
			)
		}
	}
}
