package scan

import (
	"sync"
	"time"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/metrics"
)

// Aggregator is the single source of truth for run counters. All mutations
// happen under one lock, so every snapshot satisfies Checked == Found+Empty
// and Generated >= Checked.
type Aggregator struct {
	mu            sync.Mutex
	generated     uint64
	checked       uint64
	found         uint64
	empty         uint64
	checkFailures uint64
	storeFailures uint64
	undelivered   uint64
	startedAt     time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{startedAt: time.Now().UTC()}
}

// Reset zeroes every counter and restamps the run start time.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generated = 0
	a.checked = 0
	a.found = 0
	a.empty = 0
	a.checkFailures = 0
	a.storeFailures = 0
	a.undelivered = 0
	a.startedAt = time.Now().UTC()
}

// IncrementGenerated counts one successfully derived candidate.
func (a *Aggregator) IncrementGenerated() {
	a.mu.Lock()
	a.generated++
	a.mu.Unlock()
	metrics.ScanWalletsGenerated.Inc()
}

// IncrementChecked counts one completed check and classifies it in the same
// step. Returns the new checked total.
func (a *Aggregator) IncrementChecked(found bool) uint64 {
	a.mu.Lock()
	a.checked++
	if found {
		a.found++
	} else {
		a.empty++
	}
	total := a.checked
	a.mu.Unlock()

	result := "empty"
	if found {
		result = "found"
	}
	metrics.ScanWalletsChecked.WithLabelValues(result).Inc()
	return total
}

// RecordFailedCheck counts a check whose retries were exhausted. The wallet
// still counts as checked, classified empty, in the same step as the failure
// marker so no snapshot can observe one without the other. Returns the new
// checked total.
func (a *Aggregator) RecordFailedCheck() uint64 {
	a.mu.Lock()
	a.checked++
	a.empty++
	a.checkFailures++
	total := a.checked
	a.mu.Unlock()

	metrics.ScanWalletsChecked.WithLabelValues("empty").Inc()
	metrics.ScanCheckFailures.Inc()
	return total
}

// RecordStoreFailure counts a persistence failure. Appends are non-fatal;
// the counter surfaces the degradation.
func (a *Aggregator) RecordStoreFailure() {
	a.mu.Lock()
	a.storeFailures++
	a.mu.Unlock()
}

// RecordUndelivered counts a found alert that exhausted every transport.
func (a *Aggregator) RecordUndelivered() {
	a.mu.Lock()
	a.undelivered++
	a.mu.Unlock()
}

// Snapshot returns a consistent point-in-time copy of all counters.
func (a *Aggregator) Snapshot() model.StatsSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return model.StatsSnapshot{
		Generated:     a.generated,
		Checked:       a.checked,
		Found:         a.found,
		Empty:         a.empty,
		CheckFailures: a.checkFailures,
		StoreFailures: a.storeFailures,
		Undelivered:   a.undelivered,
		StartedAt:     a.startedAt,
	}
}
