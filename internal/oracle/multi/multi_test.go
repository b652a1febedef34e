package multi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/didinska21/wallet-hunter/internal/alert"
	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/oracle"
	"github.com/didinska21/wallet-hunter/internal/retry"
)

type stubOracle struct {
	result *oracle.CheckResult
	err    error
	calls  int
}

func (s *stubOracle) Check(ctx context.Context, address string, chains []model.Chain) (*oracle.CheckResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (r *recordingAlerter) Send(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerter) getAlerts() []alert.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alert.Alert(nil), r.alerts...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMulti(t *testing.T, cfg Config, sources ...Source) *Oracle {
	t.Helper()
	o, err := New(cfg, testLogger(), sources...)
	require.NoError(t, err)
	return o
}

func TestNew_RequiresSources(t *testing.T) {
	_, err := New(Config{}, testLogger())
	require.Error(t, err)
}

func TestCheck_MergesSources(t *testing.T) {
	portfolio := &stubOracle{result: &oracle.CheckResult{
		BalanceUSD:    decimal.NewFromInt(10),
		Coins:         map[string]decimal.Decimal{"USDC": decimal.NewFromInt(10)},
		ChainsChecked: []model.Chain{model.ChainEthereum},
	}}
	rpc := &stubOracle{result: &oracle.CheckResult{
		Coins:         map[string]decimal.Decimal{},
		ChainsChecked: []model.Chain{model.ChainEthereum, model.ChainBSC},
		Nonce:         3,
	}}

	o := newMulti(t, Config{},
		Source{Name: "debank", Oracle: portfolio},
		Source{Name: "evm", Oracle: rpc},
	)

	result, err := o.Check(context.Background(), "0xabc", model.AllChains)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(result.BalanceUSD))
	assert.Equal(t, uint64(3), result.Nonce)
	assert.Equal(t, []model.Chain{model.ChainEthereum, model.ChainBSC}, result.ChainsChecked)
	assert.True(t, result.HasValue())
	assert.Equal(t, []string{"debank", "evm"}, o.Sources())
}

func TestCheck_OneSourceFailingStillAnswers(t *testing.T) {
	failing := &stubOracle{err: errors.New("http status 503")}
	healthy := &stubOracle{result: &oracle.CheckResult{
		Coins: map[string]decimal.Decimal{},
		Nonce: 1,
	}}

	o := newMulti(t, Config{},
		Source{Name: "debank", Oracle: failing},
		Source{Name: "evm", Oracle: healthy},
	)

	result, err := o.Check(context.Background(), "0xabc", model.AllChains)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Nonce)
}

func TestCheck_AllSourcesFailed(t *testing.T) {
	o := newMulti(t, Config{},
		Source{Name: "debank", Oracle: &stubOracle{err: errors.New("http status 503")}},
		Source{Name: "evm", Oracle: &stubOracle{err: errors.New("connection refused")}},
	)

	_, err := o.Check(context.Background(), "0xabc", model.AllChains)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all balance sources failed")
	assert.True(t, retry.Classify(err).IsTransient())
}

func TestCheck_BreakerSkipsDeadSource(t *testing.T) {
	failing := &stubOracle{err: errors.New("http status 500")}
	healthy := &stubOracle{result: &oracle.CheckResult{Coins: map[string]decimal.Decimal{}}}

	o := newMulti(t, Config{
		BreakerFailureThreshold: 2,
		BreakerOpenTimeout:      time.Hour,
	},
		Source{Name: "debank", Oracle: failing},
		Source{Name: "evm", Oracle: healthy},
	)

	for i := 0; i < 3; i++ {
		_, err := o.Check(context.Background(), "0xabc", model.AllChains)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, failing.calls, "open breaker must stop calling the dead source")
	assert.Equal(t, 3, healthy.calls)
	assert.Equal(t, "open", o.BreakerStates()["debank"])
	assert.Equal(t, "closed", o.BreakerStates()["evm"])
}

func TestCheck_ContextCancelled(t *testing.T) {
	stub := &stubOracle{result: &oracle.CheckResult{Coins: map[string]decimal.Decimal{}}}
	o := newMulti(t, Config{}, Source{Name: "debank", Oracle: stub})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Check(ctx, "0xabc", model.AllChains)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stub.calls)
}

func TestCheck_AlertsOnHealthTransitions(t *testing.T) {
	alerter := &recordingAlerter{}
	flaky := &stubOracle{err: errors.New("http status 503")}

	o := newMulti(t, Config{
		BreakerFailureThreshold: 100,
		BreakerOpenTimeout:      time.Hour,
		Alerter:                 alerter,
	}, Source{Name: "debank", Oracle: flaky})

	// Drive the source past the unhealthy threshold and a bit beyond.
	for i := 0; i < oracle.DefaultUnhealthyThreshold+2; i++ {
		_, _ = o.Check(context.Background(), "0xabc", model.AllChains)
	}

	alerts := alerter.getAlerts()
	require.Len(t, alerts, 1, "only the transition should alert, not every failure")
	assert.Equal(t, alert.TypeSourceUnhealthy, alerts[0].Type)
	assert.Equal(t, "debank", alerts[0].Source)
	assert.Contains(t, alerts[0].Fields["error"], "503")

	// Source comes back.
	flaky.err = nil
	flaky.result = &oracle.CheckResult{Coins: map[string]decimal.Decimal{}}
	_, err := o.Check(context.Background(), "0xabc", model.AllChains)
	require.NoError(t, err)

	alerts = alerter.getAlerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, alert.TypeSourceRecovered, alerts[1].Type)
	assert.Equal(t, "debank", alerts[1].Source)
}

func TestHealthSnapshots_TrackFailures(t *testing.T) {
	failing := &stubOracle{err: errors.New("http status 503")}
	healthy := &stubOracle{result: &oracle.CheckResult{Coins: map[string]decimal.Decimal{}}}

	o := newMulti(t, Config{
		BreakerFailureThreshold: 10,
		BreakerOpenTimeout:      time.Hour,
	},
		Source{Name: "debank", Oracle: failing},
		Source{Name: "evm", Oracle: healthy},
	)

	for i := 0; i < oracle.DefaultUnhealthyThreshold; i++ {
		_, _ = o.Check(context.Background(), "0xabc", model.AllChains)
	}

	snaps := o.HealthSnapshots()
	require.Len(t, snaps, 2)
	byName := map[string]oracle.HealthSnapshot{}
	for _, s := range snaps {
		byName[s.Source] = s
	}
	assert.Equal(t, string(oracle.HealthStatusUnhealthy), byName["debank"].Status)
	assert.Equal(t, oracle.DefaultUnhealthyThreshold, byName["debank"].ConsecutiveFailures)
	assert.Equal(t, string(oracle.HealthStatusHealthy), byName["evm"].Status)
}
