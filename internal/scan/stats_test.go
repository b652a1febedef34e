package scan

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_CountsClassifications(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.IncrementGenerated()
	agg.IncrementGenerated()
	agg.IncrementGenerated()

	total := agg.IncrementChecked(true)
	assert.Equal(t, uint64(1), total)
	total = agg.IncrementChecked(false)
	assert.Equal(t, uint64(2), total)
	total = agg.RecordFailedCheck()
	assert.Equal(t, uint64(3), total)

	snap := agg.Snapshot()
	assert.Equal(t, uint64(3), snap.Generated)
	assert.Equal(t, uint64(3), snap.Checked)
	assert.Equal(t, uint64(1), snap.Found)
	assert.Equal(t, uint64(2), snap.Empty)
	assert.Equal(t, uint64(1), snap.CheckFailures)
}

func TestAggregator_SnapshotInvariantUnderConcurrency(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()

	const writers = 8
	const perWriter = 200

	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Readers assert the invariant on every snapshot they take while
	// writers are mutating.
	var readerWg sync.WaitGroup
	for i := 0; i < 4; i++ {
		readerWg.Add(1)
		go func() {
			defer readerWg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := agg.Snapshot()
				assert.Equal(t, snap.Checked, snap.Found+snap.Empty)
				assert.GreaterOrEqual(t, snap.Generated, snap.Checked)
			}
		}()
	}

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				agg.IncrementGenerated()
				switch j % 3 {
				case 0:
					agg.IncrementChecked(true)
				case 1:
					agg.IncrementChecked(false)
				case 2:
					agg.RecordFailedCheck()
				}
			}
		}(i)
	}

	wg.Wait()
	close(stop)
	readerWg.Wait()

	snap := agg.Snapshot()
	assert.Equal(t, uint64(writers*perWriter), snap.Generated)
	assert.Equal(t, uint64(writers*perWriter), snap.Checked)
	assert.Equal(t, snap.Checked, snap.Found+snap.Empty)
}

func TestAggregator_ResetClearsCounters(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.IncrementGenerated()
	agg.IncrementChecked(true)
	agg.RecordStoreFailure()
	agg.RecordUndelivered()

	before := agg.Snapshot()
	require.Equal(t, uint64(1), before.Checked)
	require.Equal(t, uint64(1), before.StoreFailures)
	require.Equal(t, uint64(1), before.Undelivered)

	time.Sleep(5 * time.Millisecond)
	agg.Reset()

	after := agg.Snapshot()
	assert.Zero(t, after.Generated)
	assert.Zero(t, after.Checked)
	assert.Zero(t, after.Found)
	assert.Zero(t, after.Empty)
	assert.Zero(t, after.CheckFailures)
	assert.Zero(t, after.StoreFailures)
	assert.Zero(t, after.Undelivered)
	assert.True(t, after.StartedAt.After(before.StartedAt))
}

func TestAggregator_FailedCheckCountsAsEmpty(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.IncrementGenerated()
	agg.RecordFailedCheck()

	snap := agg.Snapshot()
	assert.Equal(t, uint64(1), snap.Checked)
	assert.Equal(t, uint64(1), snap.Empty)
	assert.Equal(t, uint64(1), snap.CheckFailures)
	assert.Zero(t, snap.Found)
}
