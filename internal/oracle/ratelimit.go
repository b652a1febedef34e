package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/didinska21/wallet-hunter/internal/metrics"
)

// Limiter wraps a token-bucket rate limiter for outbound balance source
// calls. This is the client-side throttle protecting the upstream APIs; the
// notification limiter in internal/notify is a separate fixed-window budget.
type Limiter struct {
	limiter *rate.Limiter
	source  string
}

// NewLimiter creates a rate limiter that allows rps requests per second
// with a burst capacity of burst tokens. rps <= 0 disables throttling.
func NewLimiter(rps float64, burst int, source string) *Limiter {
	if rps <= 0 {
		return &Limiter{source: source}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		source:  source,
	}
}

// Wait blocks until the limiter allows one event, or ctx is done.
// Uses Reserve() to guarantee exactly one token is consumed per call.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return ctx.Err()
	}
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate: cannot reserve token")
	}
	delay := r.Delay()
	if delay > 0 {
		metrics.OracleRateLimitWaits.WithLabelValues(l.source).Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}

// RecordCall records one balance source request with status classification
// and latency.
func RecordCall(source string, err error, elapsed time.Duration) {
	status := ClassifyCallError(err)
	metrics.OracleRequestsTotal.WithLabelValues(source, status).Inc()
	metrics.OracleRequestLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

// ClassifyCallError classifies a balance source error into a category.
func ClassifyCallError(err error) string {
	if err == nil {
		return "ok"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return "rate_limited"
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503") || strings.Contains(lower, "internal server error"):
		return "server_error"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "network is unreachable") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "broken pipe") || strings.Contains(lower, "eof"):
		return "network_error"
	default:
		return "client_error"
	}
}
