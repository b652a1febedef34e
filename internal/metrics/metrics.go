package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan engine counters and histograms, partitioned by oracle source or
// notification kind where it matters.

var (
	// Scan
	ScanWalletsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "scan",
		Name:      "wallets_generated_total",
		Help:      "Total candidate wallets generated",
	})

	ScanWalletsChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "scan",
		Name:      "wallets_checked_total",
		Help:      "Total wallets checked, by classification",
	}, []string{"result"})

	ScanCheckFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "scan",
		Name:      "check_failures_total",
		Help:      "Total balance checks recorded as failed after retry exhaustion",
	})

	ScanGenerationErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "scan",
		Name:      "generation_errors_total",
		Help:      "Total candidate generations that failed and were skipped",
	})

	ScanCheckLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hunter",
		Subsystem: "scan",
		Name:      "check_duration_seconds",
		Help:      "Wall time of a full per-wallet check including retries",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	ScanActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hunter",
		Subsystem: "scan",
		Name:      "active_workers",
		Help:      "Workers currently running",
	})

	ScanRemainingTarget = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hunter",
		Subsystem: "scan",
		Name:      "remaining_target",
		Help:      "Work units not yet claimed",
	})

	ScanRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "scan",
		Name:      "runs_total",
		Help:      "Completed scan runs, by outcome",
	}, []string{"outcome"})

	// Oracle
	OracleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "oracle",
		Name:      "requests_total",
		Help:      "Total balance source requests, by source and classified status",
	}, []string{"source", "status"})

	OracleRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hunter",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Balance source request duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"source"})

	OracleRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "oracle",
		Name:      "retries_total",
		Help:      "Total transient retries against a balance source",
	}, []string{"source"})

	OracleRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "oracle",
		Name:      "rate_limit_waits_total",
		Help:      "Outbound calls delayed by the client-side throttle",
	}, []string{"source"})

	OracleBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hunter",
		Subsystem: "oracle",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
	}, []string{"source"})

	OracleBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "oracle",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions per source",
	}, []string{"source", "state"})

	// Notify
	NotifySentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "notify",
		Name:      "sent_total",
		Help:      "Notifications delivered, by kind and transport",
	}, []string{"kind", "transport"})

	NotifyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Notification transport failures, by kind and transport",
	}, []string{"kind", "transport"})

	NotifyRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "notify",
		Name:      "rate_limited_total",
		Help:      "Sends rejected by the rate limiter, by exhausted budget",
	}, []string{"scope"})

	NotifyUndelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "notify",
		Name:      "undelivered_total",
		Help:      "Found alerts persisted with an undelivered marker after retry exhaustion",
	})

	NotifyBatchFlushSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hunter",
		Subsystem: "notify",
		Name:      "batch_flush_size",
		Help:      "Empty-wallet count carried by each batch flush",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	// Store
	StoreAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "store",
		Name:      "appends_total",
		Help:      "Records appended, by log and sink",
	}, []string{"log", "sink"})

	StoreAppendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "store",
		Name:      "append_failures_total",
		Help:      "Append failures, by log and sink",
	}, []string{"log", "sink"})

	StoreAppendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hunter",
		Subsystem: "store",
		Name:      "append_duration_seconds",
		Help:      "Record append duration",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"log", "sink"})

	// Alert
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Operational alerts delivered, by channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by the cooldown window, by channel and type",
	}, []string{"channel", "type"})

	// Audit
	AuditRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "audit",
		Name:      "runs_total",
		Help:      "Total result audit passes",
	})

	AuditMismatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hunter",
		Subsystem: "audit",
		Name:      "mismatches_total",
		Help:      "Audit checks that found counters and durable logs disagreeing",
	}, []string{"check"})
)
