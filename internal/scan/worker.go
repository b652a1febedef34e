package scan

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/metrics"
	"github.com/didinska21/wallet-hunter/internal/oracle"
	"github.com/didinska21/wallet-hunter/internal/retry"
	"github.com/didinska21/wallet-hunter/internal/store"
	"github.com/didinska21/wallet-hunter/internal/tracing"
	"github.com/didinska21/wallet-hunter/internal/wallet"
)

// Notifier is the slice of the dispatcher the scan engine drives.
type Notifier interface {
	AnnounceStart(ctx context.Context, target, workers int)
	AnnounceCompletion(ctx context.Context, summary model.ScanSummary)
	WalletFound(ctx context.Context, rec model.WalletRecord)
	RecordEmpty(totalChecked uint64)
}

// Worker claims work units one at a time and drives each through generate,
// check, classify, persist, notify. A claimed unit always runs to completion:
// cancellation is honored between units, never inside one.
type Worker struct {
	generator   wallet.Generator
	oracle      oracle.BalanceOracle
	results     store.ResultStore
	notifier    Notifier
	stats       *Aggregator
	chains      []model.Chain
	retryPolicy retry.Policy
	logger      *slog.Logger
}

func NewWorker(
	generator wallet.Generator,
	balances oracle.BalanceOracle,
	results store.ResultStore,
	notifier Notifier,
	stats *Aggregator,
	chains []model.Chain,
	retryPolicy retry.Policy,
	logger *slog.Logger,
) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		generator:   generator,
		oracle:      balances,
		results:     results,
		notifier:    notifier,
		stats:       stats,
		chains:      chains,
		retryPolicy: retryPolicy,
		logger:      logger.With("component", "scan"),
	}
}

// Run claims units by decrementing remaining until it goes negative or ctx
// is cancelled. Returns ctx.Err() on cancellation, nil when work ran out.
func (w *Worker) Run(ctx context.Context, id int, remaining *atomic.Int64) error {
	log := w.logger.With("worker", id)
	metrics.ScanActiveWorkers.Inc()
	defer metrics.ScanActiveWorkers.Dec()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if remaining.Add(-1) < 0 {
			return nil
		}
		// The claimed unit is detached from cancellation so an in-flight
		// check always lands in exactly one log.
		w.processUnit(context.WithoutCancel(ctx), log)
	}
}

func (w *Worker) processUnit(ctx context.Context, log *slog.Logger) {
	cand, err := w.generator.Generate(ctx)
	if err != nil {
		metrics.ScanGenerationErrors.Inc()
		log.Warn("candidate generation failed, unit skipped", "error", err)
		return
	}
	w.stats.IncrementGenerated()

	ctx, span := tracing.Tracer("scan").Start(ctx, "scan.checkWallet",
		otelTrace.WithAttributes(attribute.String("address", cand.Address)),
	)
	defer span.End()

	start := time.Now()
	var result *oracle.CheckResult
	err = retry.Do(ctx, "oracle_check", w.retryPolicy, func(ctx context.Context) error {
		res, checkErr := w.oracle.Check(ctx, cand.Address, w.chains)
		if checkErr != nil {
			return checkErr
		}
		result = res
		return nil
	})
	metrics.ScanCheckLatency.Observe(time.Since(start).Seconds())

	now := time.Now().UTC()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.recordFailedCheck(ctx, log, cand, now, err)
		return
	}

	rec := model.WalletRecord{
		Address:       cand.Address,
		PrivateKey:    cand.PrivateKey,
		Phrase:        cand.Phrase,
		BalanceUSD:    result.BalanceUSD,
		Coins:         result.Coins,
		ChainsChecked: model.ChainNames(result.ChainsChecked),
		Nonce:         result.Nonce,
		DiscoveredAt:  now,
	}

	if rec.Found() {
		w.stats.IncrementChecked(true)
		span.SetAttributes(attribute.Bool("found", true))
		log.Info("wallet with value found",
			"address", rec.Address,
			"balance_usd", rec.BalanceUSD.StringFixed(2),
			"nonce", rec.Nonce,
		)
		if saveErr := w.results.SaveFound(ctx, rec); saveErr != nil {
			w.stats.RecordStoreFailure()
			log.Error("found record append failed", "address", rec.Address, "error", saveErr)
		}
		w.notifier.WalletFound(ctx, rec)
		return
	}

	total := w.stats.IncrementChecked(false)
	if saveErr := w.results.SaveEmpty(ctx, rec.Redacted()); saveErr != nil {
		w.stats.RecordStoreFailure()
		log.Error("empty record append failed", "address", rec.Address, "error", saveErr)
	}
	w.notifier.RecordEmpty(total)
}

// recordFailedCheck lands a wallet whose check exhausted its retries in the
// empty log with the failure marker, counted as checked exactly once.
func (w *Worker) recordFailedCheck(ctx context.Context, log *slog.Logger, cand *model.Candidate, now time.Time, checkErr error) {
	total := w.stats.RecordFailedCheck()
	rec := model.EmptyRecord{
		Address:       cand.Address,
		ChainsChecked: model.ChainNames(w.chains),
		CheckedAt:     now,
		CheckFailed:   true,
	}
	if saveErr := w.results.SaveEmpty(ctx, rec); saveErr != nil {
		w.stats.RecordStoreFailure()
		log.Error("empty record append failed", "address", rec.Address, "error", saveErr)
	}
	w.notifier.RecordEmpty(total)
	log.Warn("balance check failed after retries", "address", cand.Address, "error", checkErr)
}
