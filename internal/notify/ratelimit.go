package notify

import (
	"sync"
	"time"

	"github.com/didinska21/wallet-hunter/internal/metrics"
)

const (
	defaultGlobalPerSecond    = 30
	defaultRecipientPerMinute = 20

	// recipientIdleTTL is how long an idle recipient window is kept
	// before the sweep evicts it.
	recipientIdleTTL = 10 * time.Minute
	sweepInterval    = time.Minute
)

// SendLimiter enforces the chat API send budgets with two fixed windows: a
// global per-second window across all recipients and a per-recipient
// per-minute window. TryAcquire never blocks; a send that does not fit the
// current window is simply rejected and the caller decides whether to retry.
type SendLimiter struct {
	nowFn func() time.Time

	mu              sync.Mutex
	globalLimit     int
	recipientLimit  int
	globalWindow    time.Time
	globalCount     int
	recipients      map[string]*recipientWindow
	recipientTTL    time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

type recipientWindow struct {
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

func NewSendLimiter(globalPerSecond, recipientPerMinute int) *SendLimiter {
	if globalPerSecond <= 0 {
		globalPerSecond = defaultGlobalPerSecond
	}
	if recipientPerMinute <= 0 {
		recipientPerMinute = defaultRecipientPerMinute
	}
	l := &SendLimiter{
		nowFn:          time.Now,
		globalLimit:    globalPerSecond,
		recipientLimit: recipientPerMinute,
		recipients:     make(map[string]*recipientWindow),
		recipientTTL:   recipientIdleTTL,
		stopCh:         make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// TryAcquire takes one send token for recipient. Both budgets are checked
// before either is consumed, so a rejected call leaves no partial spend.
func (l *SendLimiter) TryAcquire(recipient string) bool {
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()

	second := now.Truncate(time.Second)
	if !second.Equal(l.globalWindow) {
		l.globalWindow = second
		l.globalCount = 0
	}
	if l.globalCount >= l.globalLimit {
		metrics.NotifyRateLimited.WithLabelValues("global").Inc()
		return false
	}

	minute := now.Truncate(time.Minute)
	rw, ok := l.recipients[recipient]
	if !ok {
		rw = &recipientWindow{windowStart: minute}
		l.recipients[recipient] = rw
	}
	if !minute.Equal(rw.windowStart) {
		rw.windowStart = minute
		rw.count = 0
	}
	if rw.count >= l.recipientLimit {
		metrics.NotifyRateLimited.WithLabelValues("recipient").Inc()
		return false
	}

	l.globalCount++
	rw.count++
	rw.lastSeen = now
	return true
}

// Stop terminates the eviction sweep.
func (l *SendLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *SendLimiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evictIdle(l.nowFn())
		}
	}
}

// evictIdle drops recipient windows that have not sent within the TTL.
func (l *SendLimiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for recipient, rw := range l.recipients {
		if now.Sub(rw.lastSeen) > l.recipientTTL {
			delete(l.recipients, recipient)
		}
	}
}

// trackedRecipients reports how many recipient windows are live.
func (l *SendLimiter) trackedRecipients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recipients)
}
