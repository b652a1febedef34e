package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// manualLimiter builds a limiter with a pinned clock and no sweep goroutine.
func manualLimiter(global, perRecipient int) (*SendLimiter, func(time.Duration)) {
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := &SendLimiter{
		nowFn:          func() time.Time { return current },
		globalLimit:    global,
		recipientLimit: perRecipient,
		recipients:     make(map[string]*recipientWindow),
		recipientTTL:   recipientIdleTTL,
		stopCh:         make(chan struct{}),
	}
	advance := func(d time.Duration) { current = current.Add(d) }
	return l, advance
}

func TestTryAcquire_GlobalWindow(t *testing.T) {
	l, advance := manualLimiter(3, 100)

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryAcquire("a"), "send %d should fit the window", i)
	}
	assert.False(t, l.TryAcquire("a"), "fourth send must be rejected")
	assert.False(t, l.TryAcquire("b"), "global budget is shared across recipients")

	advance(time.Second)
	assert.True(t, l.TryAcquire("a"), "window rollover resets the budget")
}

func TestTryAcquire_RecipientWindow(t *testing.T) {
	l, advance := manualLimiter(100, 2)

	assert.True(t, l.TryAcquire("a"))
	assert.True(t, l.TryAcquire("a"))
	assert.False(t, l.TryAcquire("a"), "recipient budget exhausted")
	assert.True(t, l.TryAcquire("b"), "other recipients keep their own budget")

	advance(time.Minute)
	assert.True(t, l.TryAcquire("a"), "minute rollover resets the recipient budget")
}

func TestTryAcquire_RejectionLeavesNoPartialSpend(t *testing.T) {
	l, _ := manualLimiter(2, 1)

	assert.True(t, l.TryAcquire("a"))
	assert.False(t, l.TryAcquire("a"), "recipient budget rejects")
	// Had the rejected call consumed a global token, this would fail.
	assert.True(t, l.TryAcquire("b"))
	assert.False(t, l.TryAcquire("c"), "global budget now exhausted")
}

func TestEvictIdle(t *testing.T) {
	l, advance := manualLimiter(100, 10)

	l.TryAcquire("a")
	l.TryAcquire("b")
	assert.Equal(t, 2, l.trackedRecipients())

	advance(5 * time.Minute)
	l.TryAcquire("b")

	advance(6 * time.Minute)
	l.evictIdle(l.nowFn())
	assert.Equal(t, 1, l.trackedRecipients(), "only the recently active recipient survives")
}

func TestNewSendLimiter_Defaults(t *testing.T) {
	l := NewSendLimiter(0, 0)
	defer l.Stop()

	assert.Equal(t, defaultGlobalPerSecond, l.globalLimit)
	assert.Equal(t, defaultRecipientPerMinute, l.recipientLimit)
	assert.True(t, l.TryAcquire("a"))
}

func TestStop_Idempotent(t *testing.T) {
	l := NewSendLimiter(1, 1)
	l.Stop()
	l.Stop()
}
