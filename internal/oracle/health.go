package oracle

import (
	"sync"
	"time"
)

// HealthStatus represents the health state of a balance source.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// DefaultUnhealthyThreshold is the number of consecutive failures
	// before a source is considered unhealthy.
	DefaultUnhealthyThreshold = 5

	// DefaultDegradedLatencyThreshold is the P95 latency threshold
	// before a source is considered degraded.
	DefaultDegradedLatencyThreshold = 5 * time.Second

	// latencyWindowSize is the number of recent latencies tracked.
	latencyWindowSize = 10
)

// SourceHealth tracks the health state of a single balance source.
type SourceHealth struct {
	mu                       sync.RWMutex
	source                   string
	status                   HealthStatus
	consecutiveFailures      int
	lastSuccessAt            *time.Time
	lastFailureAt            *time.Time
	unhealthyThreshold       int
	recentLatencies          []time.Duration
	degradedLatencyThreshold time.Duration
}

// NewSourceHealth creates a health tracker for the named source.
func NewSourceHealth(source string) *SourceHealth {
	return &SourceHealth{
		source:                   source,
		status:                   HealthStatusUnknown,
		unhealthyThreshold:       DefaultUnhealthyThreshold,
		recentLatencies:          make([]time.Duration, 0, latencyWindowSize),
		degradedLatencyThreshold: DefaultDegradedLatencyThreshold,
	}
}

// RecordSuccess records a successful check against the source.
func (h *SourceHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	if h.isLatencyDegraded() {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
}

// RecordSuccessWithRecovery records a success and returns true if it
// represents a recovery from an unhealthy state.
func (h *SourceHealth) RecordSuccessWithRecovery() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	wasUnhealthy := h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = &now
	if h.isLatencyDegraded() {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
	return wasUnhealthy
}

// RecordLatency records a request latency and updates degraded state.
func (h *SourceHealth) RecordLatency(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.recentLatencies) >= latencyWindowSize {
		h.recentLatencies = h.recentLatencies[1:]
	}
	h.recentLatencies = append(h.recentLatencies, d)

	if h.status == HealthStatusHealthy || h.status == HealthStatusDegraded {
		if h.isLatencyDegraded() {
			h.status = HealthStatusDegraded
		} else if h.status == HealthStatusDegraded && h.consecutiveFailures == 0 {
			h.status = HealthStatusHealthy
		}
	}
}

// RecordFailure records a failed check. Returns true if the source
// transitioned to unhealthy on this call.
func (h *SourceHealth) RecordFailure() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	h.consecutiveFailures++
	h.lastFailureAt = &now
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	return false
}

// isLatencyDegraded returns true if the P95 latency exceeds the threshold.
// Must be called with mu held.
func (h *SourceHealth) isLatencyDegraded() bool {
	if len(h.recentLatencies) < 2 {
		return false
	}
	p95 := h.percentileLatency(95)
	return p95 > h.degradedLatencyThreshold
}

// percentileLatency computes the given percentile from recent latencies.
// Must be called with mu held.
func (h *SourceHealth) percentileLatency(pct int) time.Duration {
	n := len(h.recentLatencies)
	if n == 0 {
		return 0
	}
	sorted := make([]time.Duration, n)
	copy(sorted, h.recentLatencies)
	sortDurations(sorted)
	idx := (pct*n - 1) / 100
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}

// sortDurations sorts a slice of durations in ascending order.
func sortDurations(d []time.Duration) {
	for i := 1; i < len(d); i++ {
		key := d[i]
		j := i - 1
		for j >= 0 && d[j] > key {
			d[j+1] = d[j]
			j--
		}
		d[j+1] = key
	}
}

// Snapshot returns the current health state.
func (h *SourceHealth) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthSnapshot{
		Source:              h.source,
		Status:              string(h.status),
		ConsecutiveFailures: h.consecutiveFailures,
		P95LatencyMS:        h.percentileLatency(95).Milliseconds(),
		LastSuccessAt:       h.lastSuccessAt,
		LastFailureAt:       h.lastFailureAt,
	}
}

// HealthSnapshot is a point-in-time view of source health (JSON-safe).
type HealthSnapshot struct {
	Source              string     `json:"source"`
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	P95LatencyMS        int64      `json:"p95_latency_ms"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
}
