// Package resilience guards outbound chain-RPC calls. Archive nodes drop
// connections and rate-limit under load, so every call runs under bounded
// retry with exponential backoff, behind a per-method circuit breaker that
// sheds load while the node recovers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrorClassification tells the executor how to treat one failure. A
// transport timeout is Retryable; a definitive RPC error reply is not, and a
// caller can keep it out of the breaker counts by clearing RecordFailure.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

// ErrorClassifier maps a call error to its classification. The chain client
// supplies one per call site.
type ErrorClassifier func(err error) ErrorClassification

// Executor runs chain-RPC calls under the retry and breaker policy. One
// breaker per RPC method, so a broken eth_getLogs cannot trip eth_call.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

// Execute runs fn under the policy. method names the RPC method being
// called and keys the breaker.
func (e *Executor) Execute(
	ctx context.Context,
	method string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: call is nil")
	}
	name := strings.TrimSpace(method)
	if name == "" {
		name = "unknown"
	}
	if classifier == nil {
		classifier = conservativeClassifier
	}

	if !e.cfg.BreakerEnabled {
		return e.callWithRetry(ctx, name, fn, classifier)
	}

	breaker := e.breakerFor(name, classifier)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.callWithRetry(ctx, name, fn, classifier)
	})
	return err
}

func (e *Executor) callWithRetry(
	ctx context.Context,
	method string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	backoff := e.cfg.RetryInitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		class := classifier(err)
		if !class.Retryable || attempt == e.cfg.RetryMaxAttempts {
			return err
		}

		wait := backoff
		if wait > e.cfg.RetryMaxBackoff {
			wait = e.cfg.RetryMaxBackoff
		}
		slog.Warn("chain_rpc_retry",
			"method", method,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff", wait.String(),
			"error", err,
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}

		backoff = time.Duration(float64(backoff) * e.cfg.RetryMultiplier)
		if backoff > e.cfg.RetryMaxBackoff {
			backoff = e.cfg.RetryMaxBackoff
		}
	}
}

func (e *Executor) breakerFor(method string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[method]; ok {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        method,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("chain_rpc_breaker_state", "method", name, "from", from.String(), "to", to.String())
		},
	}

	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[method] = breaker
	return breaker
}

// IsCircuitOpen reports whether the error came from the breaker shedding the
// call rather than from the node itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// conservativeClassifier treats every failure as final and counts it against
// the breaker. Callers without a classifier get no retries.
func conservativeClassifier(error) ErrorClassification {
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
