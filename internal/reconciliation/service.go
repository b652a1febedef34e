// Package reconciliation audits scan accounting: the in-memory counters
// against the durable result logs. Appends are non-fatal during a run, so
// the audit is what surfaces a silently degraded store.
package reconciliation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/didinska21/wallet-hunter/internal/alert"
	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/metrics"
)

const defaultAuditInterval = 5 * time.Minute

// CheckResult holds the result of a single accounting check.
type CheckResult struct {
	Check     string    `json:"check"`
	Expected  int64     `json:"expected"`
	Actual    int64     `json:"actual"`
	IsMatch   bool      `json:"is_match"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// RunResult aggregates a full audit pass. AuditID correlates the admin
// response, the log lines, and any mismatch alert raised by the same pass.
type RunResult struct {
	AuditID    string        `json:"audit_id"`
	Total      int           `json:"total"`
	Matched    int           `json:"matched"`
	Mismatched int           `json:"mismatched"`
	Errors     int           `json:"errors"`
	Checks     []CheckResult `json:"checks"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// StatsSource yields the counters being audited.
type StatsSource interface {
	Snapshot() model.StatsSnapshot
}

// ResultCounter reports durable record counts from one sink.
type ResultCounter interface {
	CountFound(ctx context.Context) (int64, error)
	CountEmpty(ctx context.Context) (int64, error)
}

// Service cross-checks the stats snapshot invariants and compares counters
// against every registered durable sink.
type Service struct {
	stats   StatsSource
	alerter alert.Alerter
	logger  *slog.Logger

	mu       sync.RWMutex
	counters map[string]ResultCounter // keyed by sink name
}

func NewService(stats StatsSource, alerter alert.Alerter, logger *slog.Logger) *Service {
	return &Service{
		stats:    stats,
		alerter:  alerter,
		counters: make(map[string]ResultCounter),
		logger:   logger.With("component", "audit"),
	}
}

// RegisterCounter adds a durable sink to the audit set.
func (s *Service) RegisterCounter(name string, counter ResultCounter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] = counter
}

// HasCounter reports whether a sink is registered under name.
func (s *Service) HasCounter(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.counters[name]
	return ok
}

// Audit runs one full pass: snapshot invariants first, then every sink's
// log counts against the snapshot.
func (s *Service) Audit(ctx context.Context) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := s.stats.Snapshot()
	result := &RunResult{AuditID: uuid.NewString(), StartedAt: time.Now()}

	s.appendCheck(result, CheckResult{
		Check:    "checked_equals_found_plus_empty",
		Expected: int64(snap.Found + snap.Empty),
		Actual:   int64(snap.Checked),
		IsMatch:  snap.Checked == snap.Found+snap.Empty,
	})
	s.appendCheck(result, CheckResult{
		Check:    "generated_covers_checked",
		Expected: int64(snap.Checked),
		Actual:   int64(snap.Generated),
		IsMatch:  snap.Generated >= snap.Checked,
		Detail:   "every checked wallet must have been generated first",
	})

	for _, name := range s.counterNames() {
		s.auditSink(ctx, result, name, snap)
	}

	result.FinishedAt = time.Now()

	metrics.AuditRunsTotal.Inc()
	for _, check := range result.Checks {
		if !check.IsMatch {
			metrics.AuditMismatches.WithLabelValues(check.Check).Inc()
		}
	}

	if result.Mismatched > 0 && s.alerter != nil {
		_ = s.alerter.Send(ctx, alert.Alert{
			Type:    alert.TypeAuditMismatch,
			Source:  "audit",
			Title:   "Result accounting mismatch detected",
			Message: fmt.Sprintf("%d/%d checks disagree with the run counters", result.Mismatched, result.Total),
			Fields: map[string]string{
				"audit_id":       result.AuditID,
				"matched":        fmt.Sprintf("%d", result.Matched),
				"mismatched":     fmt.Sprintf("%d", result.Mismatched),
				"errors":         fmt.Sprintf("%d", result.Errors),
				"store_failures": fmt.Sprintf("%d", snap.StoreFailures),
			},
		})
	}

	s.logger.Info("result audit completed",
		"audit_id", result.AuditID,
		"total", result.Total, "matched", result.Matched,
		"mismatched", result.Mismatched, "errors", result.Errors,
	)

	return result, nil
}

// auditSink compares one sink's durable counts against the snapshot. The
// found log carries one extra line per undelivered marker, so the expected
// count includes them.
func (s *Service) auditSink(ctx context.Context, result *RunResult, name string, snap model.StatsSnapshot) {
	s.mu.RLock()
	counter := s.counters[name]
	s.mu.RUnlock()
	if counter == nil {
		return
	}

	detail := ""
	if snap.StoreFailures > 0 {
		detail = fmt.Sprintf("%d append failures recorded this run", snap.StoreFailures)
	}

	foundLines, err := counter.CountFound(ctx)
	if err != nil {
		s.logger.Warn("found log count failed", "sink", name, "error", err)
		result.Errors++
	} else {
		expected := int64(snap.Found + snap.Undelivered)
		s.appendCheck(result, CheckResult{
			Check:    name + "_found_log",
			Expected: expected,
			Actual:   foundLines,
			IsMatch:  foundLines == expected,
			Detail:   detail,
		})
	}

	emptyLines, err := counter.CountEmpty(ctx)
	if err != nil {
		s.logger.Warn("empty log count failed", "sink", name, "error", err)
		result.Errors++
		return
	}
	s.appendCheck(result, CheckResult{
		Check:    name + "_empty_log",
		Expected: int64(snap.Empty),
		Actual:   emptyLines,
		IsMatch:  emptyLines == int64(snap.Empty),
		Detail:   detail,
	})
}

func (s *Service) appendCheck(result *RunResult, check CheckResult) {
	check.CheckedAt = time.Now()
	result.Checks = append(result.Checks, check)
	result.Total++
	if check.IsMatch {
		result.Matched++
	} else {
		result.Mismatched++
	}
}

func (s *Service) counterNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.counters))
	for name := range s.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuditAny wraps Audit to return any, satisfying the admin surface.
func (s *Service) AuditAny(ctx context.Context) (any, error) {
	return s.Audit(ctx)
}

// RunPeriodic audits on a fixed interval until the context is cancelled,
// then runs one closing pass so the final accounting is verified after the
// scan stops writing.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultAuditInterval
	}

	s.logger.Info("periodic result audit started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic result audit stopping")
			if _, err := s.Audit(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("closing audit failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Audit(ctx); err != nil {
				s.logger.Warn("result audit failed", "error", err)
			}
		}
	}
}
