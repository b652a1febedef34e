package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/didinska21/wallet-hunter/internal/alert"
	"github.com/didinska21/wallet-hunter/internal/domain/model"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// stubStats implements StatsSource with a fixed snapshot.
type stubStats struct {
	snap model.StatsSnapshot
}

func (s *stubStats) Snapshot() model.StatsSnapshot { return s.snap }

// stubCounter implements ResultCounter.
type stubCounter struct {
	found int64
	empty int64
	err   error
	calls atomic.Int32
}

func (c *stubCounter) CountFound(_ context.Context) (int64, error) {
	c.calls.Add(1)
	return c.found, c.err
}

func (c *stubCounter) CountEmpty(_ context.Context) (int64, error) {
	c.calls.Add(1)
	return c.empty, c.err
}

// mockAlerter implements alert.Alerter.
type mockAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (m *mockAlerter) Send(_ context.Context, a alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return m.err
}

func (m *mockAlerter) getAlerts() []alert.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]alert.Alert, len(m.alerts))
	copy(cp, m.alerts)
	return cp
}

// ---------------------------------------------------------------------------
// Helper
// ---------------------------------------------------------------------------

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func consistentStats() *stubStats {
	return &stubStats{snap: model.StatsSnapshot{
		Generated: 10,
		Checked:   10,
		Found:     2,
		Empty:     8,
	}}
}

func findCheck(t *testing.T, result *RunResult, name string) CheckResult {
	t.Helper()
	for _, check := range result.Checks {
		if check.Check == name {
			return check
		}
	}
	t.Fatalf("check %q not present in result", name)
	return CheckResult{}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAudit_AllMatch(t *testing.T) {
	alerter := &mockAlerter{}
	svc := NewService(consistentStats(), alerter, testLogger())
	svc.RegisterCounter("jsonl", &stubCounter{found: 2, empty: 8})

	result, err := svc.Audit(context.Background())

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, result.Matched)
	assert.Equal(t, 0, result.Mismatched)
	assert.Equal(t, 0, result.Errors)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))

	// No alert should be sent when everything matches.
	assert.Empty(t, alerter.getAlerts())
}

func TestAudit_FoundLogShortTriggersAlert(t *testing.T) {
	alerter := &mockAlerter{}
	svc := NewService(consistentStats(), alerter, testLogger())
	// One found record never made it to disk.
	svc.RegisterCounter("jsonl", &stubCounter{found: 1, empty: 8})

	result, err := svc.Audit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Mismatched)

	check := findCheck(t, result, "jsonl_found_log")
	assert.False(t, check.IsMatch)
	assert.Equal(t, int64(2), check.Expected)
	assert.Equal(t, int64(1), check.Actual)

	alerts := alerter.getAlerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.TypeAuditMismatch, alerts[0].Type)
	assert.Equal(t, "audit", alerts[0].Source)
	assert.Contains(t, alerts[0].Message, "disagree")
}

func TestAudit_UndeliveredMarkersCountedInFoundLog(t *testing.T) {
	// An undelivered alert re-appends the found record with a marker, so
	// the found log holds one extra line per undelivered record.
	stats := &stubStats{snap: model.StatsSnapshot{
		Generated:   5,
		Checked:     5,
		Found:       2,
		Empty:       3,
		Undelivered: 1,
	}}

	alerter := &mockAlerter{}
	svc := NewService(stats, alerter, testLogger())
	svc.RegisterCounter("jsonl", &stubCounter{found: 3, empty: 3})

	result, err := svc.Audit(context.Background())

	require.NoError(t, err)
	assert.Zero(t, result.Mismatched)
	check := findCheck(t, result, "jsonl_found_log")
	assert.Equal(t, int64(3), check.Expected)
	assert.True(t, check.IsMatch)
	assert.Empty(t, alerter.getAlerts())
}

func TestAudit_BrokenSnapshotInvariant(t *testing.T) {
	stats := &stubStats{snap: model.StatsSnapshot{
		Generated: 5,
		Checked:   5,
		Found:     1,
		Empty:     3, // found+empty != checked
	}}

	alerter := &mockAlerter{}
	svc := NewService(stats, alerter, testLogger())

	result, err := svc.Audit(context.Background())

	require.NoError(t, err)
	check := findCheck(t, result, "checked_equals_found_plus_empty")
	assert.False(t, check.IsMatch)
	assert.Equal(t, int64(4), check.Expected)
	assert.Equal(t, int64(5), check.Actual)
	require.Len(t, alerter.getAlerts(), 1)
}

func TestAudit_CounterErrorCountsAsError(t *testing.T) {
	alerter := &mockAlerter{}
	svc := NewService(consistentStats(), alerter, testLogger())
	svc.RegisterCounter("postgres", &stubCounter{err: errors.New("database connection failed")})

	result, err := svc.Audit(context.Background())

	require.NoError(t, err, "Audit should not fail when a sink cannot be counted")
	require.NotNil(t, result)
	// Only the two invariant checks ran; both counts errored out.
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Errors)
	assert.Zero(t, result.Mismatched)
	assert.Empty(t, alerter.getAlerts())
}

func TestAudit_NoCountersStillChecksInvariants(t *testing.T) {
	svc := NewService(consistentStats(), nil, testLogger())

	result, err := svc.Audit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Matched)
}

func TestAudit_MultipleSinksCheckedIndependently(t *testing.T) {
	alerter := &mockAlerter{}
	svc := NewService(consistentStats(), alerter, testLogger())
	svc.RegisterCounter("jsonl", &stubCounter{found: 2, empty: 8})
	svc.RegisterCounter("postgres", &stubCounter{found: 2, empty: 7})

	result, err := svc.Audit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 6, result.Total)
	assert.Equal(t, 1, result.Mismatched)
	assert.True(t, findCheck(t, result, "jsonl_empty_log").IsMatch)
	assert.False(t, findCheck(t, result, "postgres_empty_log").IsMatch)
	require.Len(t, alerter.getAlerts(), 1)
}

func TestAudit_StoreFailureDetailOnMismatch(t *testing.T) {
	stats := &stubStats{snap: model.StatsSnapshot{
		Generated:     4,
		Checked:       4,
		Found:         1,
		Empty:         3,
		StoreFailures: 2,
	}}

	svc := NewService(stats, nil, testLogger())
	svc.RegisterCounter("jsonl", &stubCounter{found: 1, empty: 1})

	result, err := svc.Audit(context.Background())

	require.NoError(t, err)
	check := findCheck(t, result, "jsonl_empty_log")
	assert.False(t, check.IsMatch)
	assert.Contains(t, check.Detail, "append failures")
}

func TestHasCounter(t *testing.T) {
	svc := NewService(consistentStats(), nil, testLogger())

	assert.False(t, svc.HasCounter("jsonl"))

	svc.RegisterCounter("jsonl", &stubCounter{})

	assert.True(t, svc.HasCounter("jsonl"))
	assert.False(t, svc.HasCounter("postgres"))
}

func TestRunPeriodic_ClosingAuditOnStop(t *testing.T) {
	counter := &stubCounter{found: 2, empty: 8}
	svc := NewService(consistentStats(), nil, testLogger())
	svc.RegisterCounter("jsonl", counter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.RunPeriodic(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)

	// The shutdown path runs one closing audit.
	assert.GreaterOrEqual(t, counter.calls.Load(), int32(2))
}
