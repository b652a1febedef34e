package main

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/didinska21/wallet-hunter/internal/admin"
	"github.com/didinska21/wallet-hunter/internal/alert"
	"github.com/didinska21/wallet-hunter/internal/config"
	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/notify"
	"github.com/didinska21/wallet-hunter/internal/oracle/debank"
	"github.com/didinska21/wallet-hunter/internal/oracle/evm"
	"github.com/didinska21/wallet-hunter/internal/oracle/multi"
	"github.com/didinska21/wallet-hunter/internal/reconciliation"
	"github.com/didinska21/wallet-hunter/internal/retry"
	"github.com/didinska21/wallet-hunter/internal/scan"
	"github.com/didinska21/wallet-hunter/internal/store"
	"github.com/didinska21/wallet-hunter/internal/store/jsonl"
	"github.com/didinska21/wallet-hunter/internal/store/postgres"
	redispkg "github.com/didinska21/wallet-hunter/internal/store/redis"
	"github.com/didinska21/wallet-hunter/internal/tracing"
	"github.com/didinska21/wallet-hunter/internal/wallet"
)

// Exit codes: a finished or cancelled run is a success, broken wiring at
// runtime is 1, rejected configuration is 2.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

var newStreamFn = redispkg.NewStream

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(exitConfig)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("hunter exited with error", "error", err)
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting wallet-hunter",
		"target", cfg.Scan.Target,
		"workers", cfg.Scan.Workers,
		"chains", len(cfg.Oracle.Chains),
		"debank_enabled", cfg.Oracle.DebankAccessKey != "",
		"rpc_endpoints", len(cfg.Oracle.RPCURLs),
		"telegram_enabled", cfg.Telegram.Enabled(),
		"db_url", maskCredentials(cfg.DB.URL),
		"redis_url", maskCredentials(cfg.Redis.URL),
		"found_log", cfg.Store.FoundPath,
		"empty_log", cfg.Store.EmptyPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, "wallet-hunter", cfg.Tracing.Endpoint, cfg.Tracing.Insecure, cfg.Tracing.SampleRatio)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Endpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	alerter := buildAlerter(cfg, logger)

	// Balance sources in check order: portfolio API first, direct RPC second.
	sources := make([]multi.Source, 0, 2)
	if cfg.Oracle.DebankAccessKey != "" {
		sources = append(sources, multi.Source{Name: "debank", Oracle: debank.New(debank.Config{
			BaseURL:        cfg.Oracle.DebankAPIURL,
			AccessKey:      cfg.Oracle.DebankAccessKey,
			Timeout:        cfg.Oracle.DebankTimeout,
			RequestsPerSec: cfg.Oracle.RequestsPerSec,
			Burst:          cfg.Oracle.Burst,
		}, logger)})
	}
	if len(cfg.Oracle.RPCURLs) > 0 {
		evmClient, err := evm.New(ctx, evm.Config{
			RPCURLs:        cfg.Oracle.RPCURLs,
			CallTimeout:    cfg.Oracle.CallTimeout,
			RequestsPerSec: cfg.Oracle.RequestsPerSec,
			Burst:          cfg.Oracle.Burst,
		}, logger)
		if err != nil {
			return fmt.Errorf("initialize rpc balance source: %w", err)
		}
		defer evmClient.Close()
		sources = append(sources, multi.Source{Name: "evm", Oracle: evmClient})
	}
	balances, err := multi.New(multi.Config{Alerter: alerter}, logger, sources...)
	if err != nil {
		return fmt.Errorf("initialize balance oracle: %w", err)
	}
	logger.Info("balance sources ready", "sources", strings.Join(balances.Sources(), ","))

	// Result sinks: the JSON-line logs always, postgres alongside when configured.
	jsonlStore := jsonl.New(cfg.Store.FoundPath, cfg.Store.EmptyPath, logger)
	var results store.ResultStore = jsonlStore
	var walletRepo *postgres.WalletRepo
	var db *postgres.DB
	if cfg.DB.URL != "" {
		db, err = postgres.New(postgres.Config{
			URL:             cfg.DB.URL,
			MaxOpenConns:    cfg.DB.MaxOpenConns,
			MaxIdleConns:    cfg.DB.MaxIdleConns,
			ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		if cfg.DB.MigrationsDir != "" {
			if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		walletRepo = postgres.NewWalletRepo(db)
		results = store.NewFanout(logger, jsonlStore, walletRepo)
		logger.Info("connected to database", "url", maskCredentials(cfg.DB.URL))
	}

	var stream *redispkg.Stream
	if cfg.Redis.URL != "" {
		stream, err = newStreamFn(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer stream.Close()
		logger.Info("notification stream enabled", "url", maskCredentials(cfg.Redis.URL), "stream", cfg.Redis.Stream)
	}

	limiter := notify.NewSendLimiter(cfg.Notify.GlobalPerSecond, cfg.Notify.RecipientPerMinute)
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		BatchInterval: cfg.Notify.BatchInterval,
		Recipient:     cfg.Telegram.ChatID,
		RetryPolicy: retry.Policy{
			MaxAttempts:    cfg.Notify.RetryMaxAttempts,
			BackoffInitial: cfg.Notify.RetryBackoffInitial,
		},
	}, limiter, logger, buildTransports(cfg, stream, logger)...)

	stats := scan.NewAggregator()

	// A found wallet whose alert exhausted every transport is re-appended to
	// the found log with the undelivered marker, so no discovery is lost.
	persistCtx := context.WithoutCancel(ctx)
	dispatcher.OnUndelivered(func(rec model.WalletRecord) {
		rec.Undelivered = true
		if err := results.SaveFound(persistCtx, rec); err != nil {
			logger.Error("undelivered marker write failed", "address", rec.Address, "error", err)
		}
		stats.RecordUndelivered()
	})

	coordinator := scan.NewCoordinator(scan.Config{
		Target:  cfg.Scan.Target,
		Workers: cfg.Scan.Workers,
		Chains:  cfg.Oracle.Chains,
		RetryPolicy: retry.Policy{
			MaxAttempts:    cfg.Oracle.RetryMaxAttempts,
			BackoffInitial: cfg.Oracle.BackoffInitial,
			BackoffMax:     cfg.Oracle.BackoffMax,
		},
	}, wallet.NewMnemonic(wallet.Options{}), balances, results, dispatcher, stats, logger)

	auditor := reconciliation.NewService(stats, alerter, logger)
	auditor.RegisterCounter("jsonl", jsonlStore)
	if walletRepo != nil {
		auditor.RegisterCounter("postgres", walletRepo)
	}

	// Admin API rides on the operational listener. The found endpoint serves
	// sanitized summaries; the postgres archive is preferred when present.
	var foundLister admin.FoundLister = jsonlStore
	if walletRepo != nil {
		foundLister = walletRepo
	}
	adminSrv := admin.NewServer(coordinator, stats, logger,
		admin.WithSourceHealth(balances),
		admin.WithAuditRunner(auditor),
		admin.WithFoundLister(foundLister),
	)
	adminLimiter := admin.NewRateLimitMiddleware(logger)
	defer adminLimiter.Stop()
	adminHandler := adminLimiter.Wrap(admin.AuditMiddleware(logger, adminSrv.Handler()))
	if cfg.Server.MetricsUsername != "" && cfg.Server.MetricsPassword != "" {
		adminHandler = basicAuthMiddleware(cfg.Server.MetricsUsername, cfg.Server.MetricsPassword, adminHandler)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	status := &scanStatus{coordinator: coordinator, stats: stats, balances: balances}
	var ready func(context.Context) error
	if db != nil {
		checker := &healthChecker{db: db.DB}
		ready = checker.check
	}
	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server, status.handler(), ready, adminHandler, logger)
	})

	g.Go(func() error {
		dispatcher.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		if err := auditor.RunPeriodic(gCtx, cfg.Audit.Interval); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	summary, err := coordinator.Run(gCtx)
	if err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("scan run: %w", err)
	}

	logger.Info("run finished",
		"state", coordinator.State().String(),
		"generated", summary.Stats.Generated,
		"checked", summary.Stats.Checked,
		"found", summary.Stats.Found,
		"empty", summary.Stats.Empty,
		"check_failures", summary.Stats.CheckFailures,
		"elapsed", summary.Elapsed.String(),
		"rate_per_sec", fmt.Sprintf("%.2f", summary.Rate),
	)

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("hunter shut down gracefully")
	return nil
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	channels := make([]alert.Alerter, 0, 2)
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

func buildTransports(cfg *config.Config, stream *redispkg.Stream, logger *slog.Logger) []notify.Transport {
	transports := make([]notify.Transport, 0, 3)
	if cfg.Telegram.Enabled() {
		transports = append(transports, notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	if cfg.Notify.WebhookURL != "" {
		transports = append(transports, notify.NewWebhook(cfg.Notify.WebhookURL))
	}
	if stream != nil {
		transports = append(transports, notify.NewStream(stream.Publisher(cfg.Redis.Stream)))
	}
	if len(transports) == 0 {
		logger.Warn("no notification channels configured, findings only reach the result logs")
	}
	return transports
}

// maskCredentials hides the userinfo part of a connection URL so it can be
// logged.
func maskCredentials(raw string) string {
	if raw == "" {
		return raw
	}
	schemeIdx := strings.Index(raw, "://")
	if schemeIdx < 0 {
		return raw
	}
	at := strings.LastIndex(raw, "@")
	if at < schemeIdx {
		return raw
	}
	return raw[:schemeIdx+3] + "***@" + raw[at+1:]
}

func basicAuthMiddleware(username, password string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthChecker struct {
	db *sql.DB
}

func (h *healthChecker) check(ctx context.Context) error {
	if h.db == nil {
		return errors.New("database not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// scanStatus feeds the /statusz endpoint.
type scanStatus struct {
	coordinator *scan.Coordinator
	stats       *scan.Aggregator
	balances    *multi.Oracle
}

func (s *scanStatus) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"state":     s.coordinator.State().String(),
			"remaining": s.coordinator.Remaining(),
			"stats":     s.stats.Snapshot(),
			"sources":   s.balances.HealthSnapshots(),
			"breakers":  s.balances.BreakerStates(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Warn("failed to write status response", "error", err)
		}
	}
}

func runHealthServer(ctx context.Context, cfg config.ServerConfig, status http.HandlerFunc, ready func(context.Context) error, adminAPI http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			logger.Warn("failed to write ready response", "error", err)
		}
	})
	mux.HandleFunc("/statusz", status)
	if adminAPI != nil {
		mux.Handle("/admin/", adminAPI)
	}

	var metricsHandler http.Handler = promhttp.Handler()
	if cfg.MetricsUsername != "" && cfg.MetricsPassword != "" {
		metricsHandler = basicAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, metricsHandler)
	}
	mux.Handle("/metrics", metricsHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HealthPort),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", cfg.HealthPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
