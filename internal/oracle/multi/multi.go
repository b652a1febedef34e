// Package multi fans a balance check out to every configured source and
// merges the answers. Each source sits behind its own circuit breaker and
// health tracker so a dead source degrades the scan instead of stopping it.
package multi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/didinska21/wallet-hunter/internal/alert"
	"github.com/didinska21/wallet-hunter/internal/circuitbreaker"
	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/metrics"
	"github.com/didinska21/wallet-hunter/internal/oracle"
)

// Source pairs a named balance source with its oracle.
type Source struct {
	Name   string
	Oracle oracle.BalanceOracle
}

type sourceState struct {
	name    string
	oracle  oracle.BalanceOracle
	breaker *circuitbreaker.Breaker
	health  *oracle.SourceHealth
}

// Oracle is the composite over all configured balance sources. A check
// succeeds when at least one source answers.
type Oracle struct {
	sources []*sourceState
	alerter alert.Alerter
	logger  *slog.Logger
}

type Config struct {
	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerOpenTimeout      time.Duration

	// Alerter receives source health transitions. Optional.
	Alerter alert.Alerter
}

func New(cfg Config, logger *slog.Logger, sources ...Source) (*Oracle, error) {
	if len(sources) == 0 {
		return nil, errors.New("no balance sources configured")
	}
	log := logger.With("component", "oracle.multi")
	o := &Oracle{alerter: cfg.Alerter, logger: log}
	for _, src := range sources {
		breaker := circuitbreaker.New(circuitbreaker.Config{
			Name:             src.Name,
			FailureThreshold: cfg.BreakerFailureThreshold,
			SuccessThreshold: cfg.BreakerSuccessThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				metrics.OracleBreakerState.WithLabelValues(name).Set(to.GaugeValue())
				metrics.OracleBreakerTransitions.WithLabelValues(name, to.String()).Inc()
				log.Warn("breaker state changed", "source", name, "from", from.String(), "to", to.String())
			},
		})
		o.sources = append(o.sources, &sourceState{
			name:    src.Name,
			oracle:  src.Oracle,
			breaker: breaker,
			health:  oracle.NewSourceHealth(src.Name),
		})
	}
	return o, nil
}

// Sources lists the configured source names in check order.
func (o *Oracle) Sources() []string {
	names := make([]string, 0, len(o.sources))
	for _, src := range o.sources {
		names = append(names, src.name)
	}
	return names
}

func (o *Oracle) Check(ctx context.Context, address string, chains []model.Chain) (*oracle.CheckResult, error) {
	merged := oracle.NewCheckResult()
	answered := 0
	var errs []error

	for _, src := range o.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		var result *oracle.CheckResult
		err := src.breaker.Do(func() error {
			var checkErr error
			result, checkErr = src.oracle.Check(ctx, address, chains)
			return checkErr
		})
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			// No call happened, so the health tracker stays untouched.
			errs = append(errs, err)
			continue
		}

		elapsed := time.Since(start)
		src.health.RecordLatency(elapsed)
		if err != nil {
			if src.health.RecordFailure() {
				o.logger.Warn("source unhealthy", "source", src.name, "error", err)
				o.sendAlert(ctx, alert.Alert{
					Type:    alert.TypeSourceUnhealthy,
					Source:  src.name,
					Title:   "Balance source unhealthy",
					Message: fmt.Sprintf("source %s crossed the consecutive failure threshold", src.name),
					Fields:  map[string]string{"error": err.Error()},
				})
			}
			errs = append(errs, fmt.Errorf("%s: %w", src.name, err))
			continue
		}
		if src.health.RecordSuccessWithRecovery() {
			o.logger.Info("source recovered", "source", src.name)
			o.sendAlert(ctx, alert.Alert{
				Type:    alert.TypeSourceRecovered,
				Source:  src.name,
				Title:   "Balance source recovered",
				Message: fmt.Sprintf("source %s is answering again", src.name),
			})
		}
		merged.Merge(result)
		answered++
	}

	if answered == 0 {
		return nil, fmt.Errorf("all balance sources failed: %w", errors.Join(errs...))
	}
	return merged, nil
}

func (o *Oracle) sendAlert(ctx context.Context, a alert.Alert) {
	if o.alerter == nil {
		return
	}
	if err := o.alerter.Send(ctx, a); err != nil {
		o.logger.Warn("alert send failed", "type", a.Type, "source", a.Source, "error", err)
	}
}

// HealthSnapshots reports per-source health for the status endpoint.
func (o *Oracle) HealthSnapshots() []oracle.HealthSnapshot {
	snaps := make([]oracle.HealthSnapshot, 0, len(o.sources))
	for _, src := range o.sources {
		snaps = append(snaps, src.health.Snapshot())
	}
	return snaps
}

// BreakerStates reports the current breaker state per source.
func (o *Oracle) BreakerStates() map[string]string {
	states := make(map[string]string, len(o.sources))
	for _, src := range o.sources {
		states[src.name] = src.breaker.GetState().String()
	}
	return states
}
