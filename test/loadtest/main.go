// Package main implements a load test harness for the wallet-hunter scan
// engine. It drives the full coordinator/worker path -- real BIP-39 mnemonic
// generation and key derivation -- against a synthetic balance source with
// configurable latency and error injection, measuring throughput, per-check
// latency, and result-log accounting.
//
// The run is target-bound, like a real scan: it ends when the requested
// number of wallets has been claimed. -timeout caps wall time as a safety
// net for misconfigured runs.
//
// Usage:
//
//	go run ./test/loadtest \
//	  -target 20000 \
//	  -workers 16 \
//	  -chains eth,bsc \
//	  -check-latency 5ms \
//	  -check-jitter 10ms \
//	  -error-rate 0.01 \
//	  -found-rate 0.001 \
//	  -verify
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/notify"
	"github.com/didinska21/wallet-hunter/internal/oracle"
	"github.com/didinska21/wallet-hunter/internal/reconciliation"
	"github.com/didinska21/wallet-hunter/internal/retry"
	"github.com/didinska21/wallet-hunter/internal/scan"
	"github.com/didinska21/wallet-hunter/internal/store"
	"github.com/didinska21/wallet-hunter/internal/store/jsonl"
	"github.com/didinska21/wallet-hunter/internal/store/postgres"
	"github.com/didinska21/wallet-hunter/internal/wallet"
)

func main() {
	var (
		target       = flag.Int("target", 10000, "Number of wallets to scan")
		workers      = flag.Int("workers", 16, "Number of parallel scan workers")
		chainsFlag   = flag.String("chains", "eth", "Comma-separated chains to report checks for (eth, bsc, polygon, arbitrum, optimism, base)")
		checkLatency = flag.Duration("check-latency", 5*time.Millisecond, "Base latency of a synthetic balance check")
		checkJitter  = flag.Duration("check-jitter", 5*time.Millisecond, "Random extra latency added per check")
		errorRate    = flag.Float64("error-rate", 0, "Fraction of checks that fail with a transient error (exercises the retry path)")
		foundRate    = flag.Float64("found-rate", 0.001, "Fraction of wallets the synthetic source reports as funded")
		outDir       = flag.String("out-dir", "", "Directory for the result logs (default: a fresh temp directory)")
		dbURL        = flag.String("db-url", "", "Optional PostgreSQL connection string; when set, results also fan out to the database")
		migrate      = flag.Bool("migrate", false, "Run DB migrations before starting the load test")
		timeout      = flag.Duration("timeout", 10*time.Minute, "Hard deadline for the whole run")
		verify       = flag.Bool("verify", false, "Run post-load-test result accounting verification")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	chains, err := parseChains(*chainsFlag)
	if err != nil {
		logger.Error("invalid -chains value", "error", err)
		os.Exit(1)
	}

	dir := *outDir
	if dir == "" {
		dir, err = os.MkdirTemp("", "hunter-loadtest-")
		if err != nil {
			logger.Error("failed to create result directory", "error", err)
			os.Exit(1)
		}
	}
	foundPath := filepath.Join(dir, "hasil.json")
	emptyPath := filepath.Join(dir, "empty_wallets.json")

	logger.Info("load test configuration",
		"target", *target,
		"workers", *workers,
		"chains", model.ChainNames(chains),
		"check_latency", *checkLatency,
		"check_jitter", *checkJitter,
		"error_rate", *errorRate,
		"found_rate", *foundRate,
		"found_log", foundPath,
		"empty_log", emptyPath,
		"db_url", maskPassword(*dbURL),
	)

	jsonlStore := jsonl.New(foundPath, emptyPath, logger)
	var results store.ResultStore = jsonlStore

	// Optionally fan results out to PostgreSQL so the database write path is
	// part of the measured run.
	var walletRepo *postgres.WalletRepo
	if *dbURL != "" {
		db, err := postgres.New(postgres.Config{
			URL:             *dbURL,
			MaxOpenConns:    *workers + 4,
			MaxIdleConns:    *workers + 2,
			ConnMaxLifetime: 5 * time.Minute,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if *migrate {
			logger.Info("running database migrations")
			if err := db.RunMigrations("internal/store/postgres/migrations"); err != nil {
				logger.Error("migrations failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations completed")
		}

		walletRepo = postgres.NewWalletRepo(db)
		results = store.NewFanout(logger, jsonlStore, walletRepo)
	}

	// Set up context with signal handling.
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Latency collection. The synthetic source records every check attempt,
	// including retried ones, with its simulated delay included.
	var (
		latenciesMu sync.Mutex
		latenciesNs []int64
	)
	recordLatency := func(d time.Duration) {
		latenciesMu.Lock()
		latenciesNs = append(latenciesNs, d.Nanoseconds())
		latenciesMu.Unlock()
	}

	synth := &syntheticOracle{
		latency:   *checkLatency,
		jitter:    *checkJitter,
		errRate:   *errorRate,
		foundRate: *foundRate,
		record:    recordLatency,
	}

	stats := scan.NewAggregator()
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{BatchInterval: 10 * time.Second}, nil, logger, notify.NoopTransport{})

	coordinator := scan.NewCoordinator(
		scan.Config{
			Target:  *target,
			Workers: *workers,
			Chains:  chains,
			// Compressed backoff: injected errors should exercise the retry
			// path without dominating wall time.
			RetryPolicy:      retry.Policy{MaxAttempts: 3, BackoffInitial: 50 * time.Millisecond, BackoffMax: 250 * time.Millisecond},
			ProgressInterval: 5 * time.Second,
		},
		wallet.NewMnemonic(wallet.Options{}),
		synth,
		results,
		dispatcher,
		stats,
		logger,
	)

	dispCtx, dispCancel := context.WithCancel(ctx)
	dispDone := make(chan struct{})
	go func() {
		dispatcher.Run(dispCtx)
		close(dispDone)
	}()

	logger.Info("starting load test", "workers", *workers, "target", *target)
	testStart := time.Now()

	summary, err := coordinator.Run(ctx)
	testDuration := time.Since(testStart)

	// Stop the dispatcher and let it flush whatever is still batched.
	dispCancel()
	<-dispDone

	if err != nil {
		logger.Error("scan run failed", "error", err)
		os.Exit(1)
	}

	// Compute statistics.
	snap := summary.Stats

	latenciesMu.Lock()
	allLatencies := make([]int64, len(latenciesNs))
	copy(allLatencies, latenciesNs)
	latenciesMu.Unlock()

	sort.Slice(allLatencies, func(i, j int) bool { return allLatencies[i] < allLatencies[j] })

	p50 := percentile(allLatencies, 50)
	p95 := percentile(allLatencies, 95)
	p99 := percentile(allLatencies, 99)

	generatedPerSec := float64(snap.Generated) / testDuration.Seconds()
	checkedPerSec := float64(snap.Checked) / testDuration.Seconds()
	failureRate := float64(0)
	if snap.Checked > 0 {
		failureRate = float64(snap.CheckFailures) / float64(snap.Checked) * 100
	}

	// Print report.
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("       LOAD TEST RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Duration:       %s\n", testDuration.Round(time.Millisecond))
	fmt.Printf("Outcome:        %s\n", coordinator.State())
	fmt.Printf("Workers:        %d\n", *workers)
	fmt.Printf("Target:         %d wallets\n", *target)
	fmt.Printf("Chains:         %s\n", strings.Join(model.ChainNames(chains), ","))
	fmt.Println("----------------------------------------")
	fmt.Println("Throughput:")
	fmt.Printf("  Generated:      %d\n", snap.Generated)
	fmt.Printf("  Checked:        %d\n", snap.Checked)
	fmt.Printf("  Generated/sec:  %.2f\n", generatedPerSec)
	fmt.Printf("  Checked/sec:    %.2f\n", checkedPerSec)
	fmt.Println("----------------------------------------")
	fmt.Println("Latency (per check attempt):")
	fmt.Printf("  p50:          %s\n", formatNanos(p50))
	fmt.Printf("  p95:          %s\n", formatNanos(p95))
	fmt.Printf("  p99:          %s\n", formatNanos(p99))
	fmt.Println("----------------------------------------")
	fmt.Println("Results:")
	fmt.Printf("  Found:           %d\n", snap.Found)
	fmt.Printf("  Empty:           %d\n", snap.Empty)
	fmt.Printf("  Check failures:  %d (%.2f%%)\n", snap.CheckFailures, failureRate)
	fmt.Printf("  Injected errors: %d\n", synth.injected.Load())
	fmt.Printf("  Store failures:  %d\n", snap.StoreFailures)
	fmt.Println("========================================")

	// Run post-load-test result accounting verification if requested.
	verifyFailed := false
	if *verify {
		verifyFailed = verifyAccounting(stats, jsonlStore, walletRepo, logger)
	}

	if verifyFailed {
		os.Exit(1)
	}
}

// verifyAccounting runs the result audit against everything the run wrote:
// snapshot invariants plus durable log counts per sink. It returns true if
// any check failed.
func verifyAccounting(
	stats *scan.Aggregator,
	jsonlStore *jsonl.Store,
	walletRepo *postgres.WalletRepo,
	logger *slog.Logger,
) bool {
	logger.Info("starting result accounting verification")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	auditor := reconciliation.NewService(stats, nil, logger)
	auditor.RegisterCounter("jsonl", jsonlStore)
	if walletRepo != nil {
		auditor.RegisterCounter("postgres", walletRepo)
	}

	audit, err := auditor.Audit(ctx)
	if err != nil {
		logger.Error("audit failed", "error", err)
		return true
	}

	// Print verification report.
	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("   RESULT ACCOUNTING VERIFICATION")
	fmt.Println("========================================")

	for _, check := range audit.Checks {
		status := "PASS"
		if !check.IsMatch {
			status = "FAIL"
		}
		fmt.Printf("  [%s] %s\n", status, check.Check)
		detail := fmt.Sprintf("expected %d, got %d", check.Expected, check.Actual)
		if check.Detail != "" {
			detail += " (" + check.Detail + ")"
		}
		fmt.Printf("         %s\n", detail)
	}
	if audit.Errors > 0 {
		fmt.Printf("  [FAIL] %d count quer(ies) errored, see log\n", audit.Errors)
	}

	anyFailed := audit.Mismatched > 0 || audit.Errors > 0

	fmt.Println("----------------------------------------")
	if anyFailed {
		fmt.Println("  Result: SOME CHECKS FAILED")
	} else {
		fmt.Println("  Result: ALL CHECKS PASSED")
	}
	fmt.Println("========================================")

	return anyFailed
}

// syntheticOracle simulates a portfolio source: a configurable delay per
// check, a transient failure rate, and a small fraction of wallets reported
// as funded. Safe for concurrent use.
type syntheticOracle struct {
	latency   time.Duration
	jitter    time.Duration
	errRate   float64
	foundRate float64
	record    func(time.Duration)

	injected atomic.Int64
}

func (o *syntheticOracle) Check(ctx context.Context, address string, chains []model.Chain) (*oracle.CheckResult, error) {
	start := time.Now()

	delay := o.latency
	if o.jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(o.jitter)))
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if o.record != nil {
		o.record(time.Since(start))
	}

	if o.errRate > 0 && rand.Float64() < o.errRate {
		o.injected.Add(1)
		return nil, fmt.Errorf("synthetic source overloaded (injected, address %s)", address)
	}

	result := oracle.NewCheckResult()
	result.ChainsChecked = chains
	if o.foundRate > 0 && rand.Float64() < o.foundRate {
		result.BalanceUSD = decimal.NewFromInt(1 + rand.Int64N(2500))
		result.Nonce = uint64(1 + rand.Int64N(50))
		if len(chains) > 0 {
			result.Coins[chains[0].NativeSymbol()] = decimal.NewFromFloat(0.42)
		}
	}
	return result, nil
}

// parseChains converts the comma-separated -chains flag value.
func parseChains(raw string) ([]model.Chain, error) {
	parts := strings.Split(raw, ",")
	chains := make([]model.Chain, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chain, err := model.ParseChain(part)
		if err != nil {
			return nil, err
		}
		chains = append(chains, chain)
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("no chains given")
	}
	return chains, nil
}

// percentile returns the value at the given percentile from a sorted slice.
func percentile(sorted []int64, pct float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// formatNanos formats nanoseconds as a human-readable duration string.
func formatNanos(ns int64) string {
	d := time.Duration(ns)
	if d < time.Millisecond {
		return fmt.Sprintf("%.1fus", float64(d.Microseconds()))
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// maskPassword masks the password in a PostgreSQL connection string for log
// output. Best-effort for logging safety.
func maskPassword(url string) string {
	result := []byte(url)
	inPassword := false
	colonCount := 0
	for i := 0; i < len(result); i++ {
		if result[i] == ':' {
			colonCount++
			if colonCount == 2 {
				inPassword = true
				continue
			}
		}
		if inPassword && result[i] == '@' {
			inPassword = false
			continue
		}
		if inPassword {
			result[i] = '*'
		}
	}
	return string(result)
}
