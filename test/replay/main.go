// Package main implements a found-log replay verifier for wallet-hunter.
// It re-derives every record in the found log through the same BIP-39 /
// BIP-44 path as the live scanner and compares the derived key material
// against what was stored, catching log tampering and derivation drift.
// With balance sources configured it also re-checks each address and
// reports which finds still hold value.
//
// Usage:
//
//	go run ./test/replay \
//	  -found-log hasil.json \
//	  -chains eth,bsc \
//	  -debank-key $DEBANK_ACCESS_KEY \
//	  -rpc-urls https://eth.example.com,https://bsc.example.com \
//	  -output text
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/oracle"
	"github.com/didinska21/wallet-hunter/internal/oracle/debank"
	"github.com/didinska21/wallet-hunter/internal/oracle/evm"
	"github.com/didinska21/wallet-hunter/internal/oracle/multi"
	"github.com/didinska21/wallet-hunter/internal/store/jsonl"
	"github.com/didinska21/wallet-hunter/internal/wallet"
)

const (
	exitMatch    = 0
	exitMismatch = 1
	exitFatal    = 2
)

func main() {
	var (
		foundLog     = flag.String("found-log", "hasil.json", "Path to the found log to verify")
		chainsFlag   = flag.String("chains", "eth", "Comma-separated chains for the balance re-check")
		accountIndex = flag.Uint("account-index", 0, "BIP-44 account index the log was scanned with")
		debankKey    = flag.String("debank-key", "", "DeBank access key (enables the portfolio re-check source)")
		debankURL    = flag.String("debank-url", "https://pro-openapi.debank.com", "DeBank-compatible API base URL")
		rpcURLs      = flag.String("rpc-urls", "", "Comma-separated EVM RPC endpoints (enables the RPC re-check source)")
		outputFlag   = flag.String("output", "text", "Output format (text / json)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *foundLog == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: -found-log")
		flag.Usage()
		os.Exit(exitFatal)
	}
	chains, err := parseChains(*chainsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -chains value: %v\n", err)
		os.Exit(exitFatal)
	}
	recheck := *debankKey != "" || *rpcURLs != ""

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("replay verifier starting",
		"found_log", *foundLog,
		"chains", model.ChainNames(chains),
		"account_index", *accountIndex,
		"recheck", recheck,
	)

	// 1. Read the found log. Only the found side is wired; the empty path
	// is unused here.
	logStore := jsonl.New(*foundLog, "", logger)
	records, err := logStore.ReadFound(ctx)
	if err != nil {
		logger.Error("failed to read found log", "error", err)
		os.Exit(exitFatal)
	}
	logger.Info("found log loaded", "records", len(records))

	// 2. Replay the derivation path for every record.
	generator := wallet.NewMnemonic(wallet.Options{AccountIndex: uint32(*accountIndex)})
	result := verifyRecords(records, generator)

	// 3. Optionally re-check live balances for the unique addresses.
	if recheck {
		balances, cleanup, err := buildBalances(ctx, *debankKey, *debankURL, *rpcURLs, logger)
		if err != nil {
			logger.Error("failed to build balance sources", "error", err)
			os.Exit(exitFatal)
		}
		defer cleanup()

		if err := recheckBalances(ctx, records, balances, chains, &result); err != nil {
			logger.Error("balance re-check aborted", "error", err)
			os.Exit(exitFatal)
		}
	}

	// 4. Report.
	switch *outputFlag {
	case "json":
		if err := printJSONReport(os.Stdout, *foundLog, len(records), recheck, result); err != nil {
			logger.Error("json report failed", "error", err)
			os.Exit(exitFatal)
		}
	default:
		printTextReport(os.Stdout, *foundLog, len(records), recheck, result)
	}

	if result.HasMismatch() {
		os.Exit(exitMismatch)
	}
	os.Exit(exitMatch)
}

// buildBalances assembles the same composite oracle the scanner runs with,
// from whichever sources the flags enable.
func buildBalances(ctx context.Context, debankKey, debankURL, rpcURLs string, logger *slog.Logger) (*multi.Oracle, func(), error) {
	cleanup := func() {}

	sources := make([]multi.Source, 0, 2)
	if debankKey != "" {
		sources = append(sources, multi.Source{Name: "debank", Oracle: debank.New(debank.Config{
			BaseURL:   debankURL,
			AccessKey: debankKey,
		}, logger)})
	}
	if rpcURLs != "" {
		urls := strings.Split(rpcURLs, ",")
		for i := range urls {
			urls[i] = strings.TrimSpace(urls[i])
		}
		evmClient, err := evm.New(ctx, evm.Config{
			RPCURLs:     urls,
			CallTimeout: 10 * time.Second,
		}, logger)
		if err != nil {
			return nil, cleanup, fmt.Errorf("rpc source: %w", err)
		}
		cleanup = evmClient.Close
		sources = append(sources, multi.Source{Name: "evm", Oracle: evmClient})
	}

	balances, err := multi.New(multi.Config{}, logger, sources...)
	if err != nil {
		return nil, cleanup, err
	}
	return balances, cleanup, nil
}

// recheckBalances queries current balances for every unique address and
// classifies each as still funded or drained. Source failures for single
// addresses are collected; an interrupted run aborts.
func recheckBalances(
	ctx context.Context,
	records []model.WalletRecord,
	balances oracle.BalanceOracle,
	chains []model.Chain,
	result *VerifyResult,
) error {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.Address]; dup {
			continue
		}
		seen[rec.Address] = struct{}{}

		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := balances.Check(ctx, rec.Address, chains)
		if err != nil {
			result.CheckErrors = append(result.CheckErrors, FailedRecord{
				Address: rec.Address,
				Error:   err.Error(),
			})
			continue
		}
		if res.HasValue() {
			result.StillFunded = append(result.StillFunded, rec.Address)
		} else {
			result.Drained = append(result.Drained, rec.Address)
		}
	}
	sortResult(result)
	return nil
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
