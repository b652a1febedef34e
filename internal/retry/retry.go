package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

type Class string

const (
	ClassTerminal  Class = "terminal"
	ClassTransient Class = "transient"
)

type Decision struct {
	Class  Class
	Reason string
}

func (d Decision) IsTransient() bool {
	return d.Class == ClassTransient
}

type classifiedError struct {
	err    error
	class  Class
	reason string
}

func (e *classifiedError) Error() string {
	return e.err.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.err
}

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{
		err:    err,
		class:  ClassTransient,
		reason: "explicit_transient",
	}
}

func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{
		err:    err,
		class:  ClassTerminal,
		reason: "explicit_terminal",
	}
}

func Classify(err error) Decision {
	if err == nil {
		return Decision{Class: ClassTerminal, Reason: "nil_error"}
	}

	var marked *classifiedError
	if errors.As(err, &marked) {
		return Decision{Class: marked.class, Reason: marked.reason}
	}

	if errors.Is(err, context.Canceled) {
		return Decision{Class: ClassTerminal, Reason: "context_canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Decision{Class: ClassTransient, Reason: "context_deadline_exceeded"}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Decision{Class: ClassTransient, Reason: "net_timeout"}
		}
	}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return classifyJSONRPCCode(rpcErr.ErrorCode())
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, terminalMessageTokens) {
		return Decision{Class: ClassTerminal, Reason: "message_terminal"}
	}
	if containsAny(lower, transientMessageTokens) {
		return Decision{Class: ClassTransient, Reason: "message_transient"}
	}

	return Decision{Class: ClassTerminal, Reason: "unknown_terminal_default"}
}

func classifyJSONRPCCode(code int) Decision {
	if code == -32603 || code == -32005 {
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_transient"}
	}
	if code <= -32000 && code >= -32099 {
		return Decision{Class: ClassTransient, Reason: "jsonrpc_server_range"}
	}
	return Decision{Class: ClassTerminal, Reason: "jsonrpc_terminal"}
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var transientMessageTokens = []string{
	"timeout",
	"timed out",
	"temporar",
	"temporary",
	"unavailable",
	"connection reset",
	"connection refused",
	"broken pipe",
	"econnreset",
	"econnrefused",
	"too many requests",
	"rate limit",
	"circuit breaker is open",
	"http status 429",
	"http status 500",
	"http status 502",
	"http status 503",
	"http status 504",
	"server closed idle connection",
}

var terminalMessageTokens = []string{
	"invalid argument",
	"invalid params",
	"invalid address",
	"invalid access key",
	"unauthorized",
	"forbidden",
	"method not found",
	"parse error",
	"execution reverted",
	"not found",
}

const (
	defaultMaxAttempts    = 3
	defaultBackoffInitial = 250 * time.Millisecond
	defaultBackoffMax     = 5 * time.Second
)

// Policy bounds a retry loop. Zero fields fall back to package defaults.
type Policy struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (p Policy) effectiveMaxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return defaultMaxAttempts
}

func (p Policy) effectiveBackoffInitial() time.Duration {
	if p.BackoffInitial > 0 {
		return p.BackoffInitial
	}
	return defaultBackoffInitial
}

func (p Policy) effectiveBackoffMax() time.Duration {
	if p.BackoffMax > 0 {
		return p.BackoffMax
	}
	return defaultBackoffMax
}

// sleepFn is swapped in tests to avoid real backoff waits.
var sleepFn = sleep

// Do runs fn under policy: transient errors consume attempts with exponential
// backoff, terminal errors abort immediately. The returned error wraps the
// last failure with stage and attempt accounting.
func Do(ctx context.Context, stage string, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.effectiveMaxAttempts()

	var lastErr error
	var lastDecision Decision
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err
		lastDecision = Classify(err)
		if !lastDecision.IsTransient() {
			return fmt.Errorf("terminal_failure stage=%s attempt=%d reason=%s: %w", stage, attempt, lastDecision.Reason, err)
		}
		if attempt < attempts {
			delay := retryDelay(attempt, policy.effectiveBackoffInitial(), policy.effectiveBackoffMax())
			if sleepErr := sleepFn(ctx, delay); sleepErr != nil {
				return sleepErr
			}
		}
	}
	return fmt.Errorf("transient_recovery_exhausted stage=%s attempts=%d reason=%s: %w", stage, attempts, lastDecision.Reason, lastErr)
}

func retryDelay(attempt int, initial, max time.Duration) time.Duration {
	delay := initial
	for i := 1; i < attempt; i++ {
		if delay >= max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
