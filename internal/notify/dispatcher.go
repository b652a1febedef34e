package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/metrics"
	"github.com/didinska21/wallet-hunter/internal/retry"
)

const defaultBatchInterval = 60 * time.Second

// DispatcherConfig bounds the dispatcher's delivery behavior.
type DispatcherConfig struct {
	BatchInterval time.Duration // empty-batch flush period (default 60s)
	Recipient     string        // destination key for rate limiting
	RetryPolicy   retry.Policy  // found-alert retry budget
}

// Dispatcher routes scan events to the configured transports. Found alerts
// are sent immediately with retries and are never silently lost; empty
// results are batched and flushed on a fixed interval regardless of volume;
// lifecycle announcements go out at most once per run.
type Dispatcher struct {
	transports    []Transport
	limiter       *SendLimiter
	logger        *slog.Logger
	batchInterval time.Duration
	recipient     string
	retryPolicy   retry.Policy
	onUndelivered func(model.WalletRecord)

	mu            sync.Mutex
	pendingEmpty  int
	totalChecked  uint64
	startedSent   bool
	completedSent bool

	// tickerFn is swapped in tests to drive flushes manually.
	tickerFn func(d time.Duration) (<-chan time.Time, func())
}

func NewDispatcher(cfg DispatcherConfig, limiter *SendLimiter, logger *slog.Logger, transports ...Transport) *Dispatcher {
	interval := cfg.BatchInterval
	if interval <= 0 {
		interval = defaultBatchInterval
	}
	policy := cfg.RetryPolicy
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.BackoffInitial <= 0 {
		policy.BackoffInitial = 500 * time.Millisecond
	}
	return &Dispatcher{
		transports:    transports,
		limiter:       limiter,
		logger:        logger.With("component", "notify"),
		batchInterval: interval,
		recipient:     cfg.Recipient,
		retryPolicy:   policy,
		tickerFn: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// OnUndelivered registers the callback invoked when a found alert could not
// be delivered to any transport. Must be set before the dispatcher is used.
func (d *Dispatcher) OnUndelivered(fn func(model.WalletRecord)) {
	d.onUndelivered = fn
}

// Run drives the periodic batch flush until ctx is cancelled, then flushes
// whatever is still pending.
func (d *Dispatcher) Run(ctx context.Context) {
	tick, stop := d.tickerFn(d.batchInterval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			d.FlushPending(context.WithoutCancel(ctx))
			return
		case <-tick:
			d.FlushPending(ctx)
		}
	}
}

// WalletFound delivers the found alert. Each transport gets the full retry
// budget; only when every transport exhausts it is the record handed to the
// undelivered callback so it survives on disk.
func (d *Dispatcher) WalletFound(ctx context.Context, rec model.WalletRecord) {
	if len(d.transports) == 0 {
		return
	}
	msg := Message{Kind: KindWalletFound, Text: FormatWalletFound(rec), Payload: rec}
	if d.sendReliable(ctx, msg) {
		return
	}
	metrics.NotifyUndelivered.Inc()
	d.logger.Error("found alert undelivered on every transport", "address", rec.Address)
	if d.onUndelivered != nil {
		d.onUndelivered(rec)
	}
}

// RecordEmpty adds one empty result to the pending batch.
func (d *Dispatcher) RecordEmpty(totalChecked uint64) {
	d.mu.Lock()
	d.pendingEmpty++
	d.totalChecked = totalChecked
	d.mu.Unlock()
}

// FlushPending sends the empty-wallet digest if anything accumulated since
// the last flush. The pending counter is drained under the lock, so
// concurrent flushes carry each batch at most once and a zero batch sends
// nothing.
func (d *Dispatcher) FlushPending(ctx context.Context) {
	d.mu.Lock()
	count := d.pendingEmpty
	total := d.totalChecked
	d.pendingEmpty = 0
	d.mu.Unlock()

	if count == 0 {
		return
	}
	metrics.NotifyBatchFlushSize.Observe(float64(count))
	if len(d.transports) == 0 {
		return
	}
	msg := Message{
		Kind:    KindEmptyBatch,
		Text:    FormatEmptyBatch(count, total, time.Now()),
		Payload: map[string]any{"empty": count, "total_checked": total},
	}
	d.sendOnce(ctx, msg)
}

// AnnounceStart sends the run announcement at most once.
func (d *Dispatcher) AnnounceStart(ctx context.Context, target, workers int) {
	d.mu.Lock()
	already := d.startedSent
	d.startedSent = true
	d.mu.Unlock()
	if already || len(d.transports) == 0 {
		return
	}
	msg := Message{
		Kind:    KindScanStarted,
		Text:    FormatScanStarted(target, workers, time.Now()),
		Payload: map[string]any{"target": target, "workers": workers},
	}
	d.sendOnce(ctx, msg)
}

// AnnounceCompletion sends the end-of-run summary at most once. It also
// fires on cancelled runs, carrying whatever was accomplished.
func (d *Dispatcher) AnnounceCompletion(ctx context.Context, summary model.ScanSummary) {
	d.mu.Lock()
	already := d.completedSent
	d.completedSent = true
	d.mu.Unlock()
	if already || len(d.transports) == 0 {
		return
	}
	msg := Message{
		Kind:    KindScanCompleted,
		Text:    FormatScanCompleted(summary),
		Payload: summary,
	}
	d.sendOnce(ctx, msg)
}

// sendReliable pushes msg through every transport under the retry policy.
// Returns true when at least one transport accepted it.
func (d *Dispatcher) sendReliable(ctx context.Context, msg Message) bool {
	delivered := false
	for _, t := range d.transports {
		transport := t
		err := retry.Do(ctx, "notify_"+transport.Name(), d.retryPolicy, func(ctx context.Context) error {
			if !d.acquire(transport) {
				return retry.Transient(errors.New("send budget exhausted"))
			}
			return transport.Send(ctx, msg)
		})
		if err != nil {
			metrics.NotifyFailuresTotal.WithLabelValues(string(msg.Kind), transport.Name()).Inc()
			d.logger.Warn("notification undeliverable on transport",
				"kind", msg.Kind, "transport", transport.Name(), "error", err)
			continue
		}
		delivered = true
		metrics.NotifySentTotal.WithLabelValues(string(msg.Kind), transport.Name()).Inc()
	}
	return delivered
}

// sendOnce pushes msg through every transport with a single attempt each.
func (d *Dispatcher) sendOnce(ctx context.Context, msg Message) {
	for _, t := range d.transports {
		if !d.acquire(t) {
			d.logger.Debug("send dropped by rate limiter", "kind", msg.Kind, "transport", t.Name())
			continue
		}
		if err := t.Send(ctx, msg); err != nil {
			metrics.NotifyFailuresTotal.WithLabelValues(string(msg.Kind), t.Name()).Inc()
			d.logger.Warn("notification send failed",
				"kind", msg.Kind, "transport", t.Name(), "error", err)
			continue
		}
		metrics.NotifySentTotal.WithLabelValues(string(msg.Kind), t.Name()).Inc()
	}
}

type recipientKeyer interface {
	Recipient() string
}

func (d *Dispatcher) acquire(t Transport) bool {
	if d.limiter == nil {
		return true
	}
	key := d.recipient
	if rk, ok := t.(recipientKeyer); ok && rk.Recipient() != "" {
		key = rk.Recipient()
	}
	return d.limiter.TryAcquire(t.Name() + ":" + key)
}
