// Package toolapi defines the ToolAdapter boundary (§4.7 step 5/6) and the
// reliability wrapper every adapter call goes through.
//
// Grounded on the teacher's internal/engine/reliability.go ReliabilityWrapper
// (gobreaker + avast/retry-go) and internal/connectors/mock.go's simulated
// latency/capID-switch adapter shape. The teacher also wraps calls in a
// golang.org/x/time/rate limiter; that is dropped here — rate limiting is an
// explicit spec Non-goal and nothing in SPEC_FULL.md exercises it.
package toolapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/aegis-gateway/aegis/internal/telemetry"
)

// ThrottleError lets an adapter signal a server-provided retry delay,
// mirroring the teacher's connectors.ThrottleError.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// Result is what a successful adapter call returns.
type Result struct {
	Body map[string]interface{}
}

// Adapter is the boundary the Dispatch Orchestrator invokes on Allow and on
// approval release. One Adapter instance is registered per tool name.
type Adapter interface {
	Invoke(ctx context.Context, action string, params map[string]interface{}) (Result, error)
}

// ErrTimeout is returned (wrapped) when the per-request deadline elapses
// during invocation (§5 "Cancellation and timeouts").
var ErrTimeout = errors.New("adapter timeout")

// Reliable wraps an Adapter with a circuit breaker and bounded retry, the
// same two layers the teacher's ReliabilityWrapper applies before calling
// the underlying connector.
type Reliable struct {
	name   string
	next   Adapter
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewReliable wraps next with a per-tool circuit breaker. metrics may be nil
// (tests that don't care about the gauge); when set, the breaker's state
// transitions drive aegis_circuit_breaker_state for this tool.
func NewReliable(name string, next Adapter, logger *zap.Logger, metrics *telemetry.Metrics) *Reliable {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	if metrics != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(circuitStateValue(to))
		}
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	return &Reliable{name: name, next: next, cb: cb, logger: logger.Named("toolapi").With(zap.String("tool", name))}
}

// circuitStateValue maps gobreaker's three-state machine onto the gauge's
// 0=closed/1=open contract; half-open still restricts traffic, so it reads
// as 1 rather than introducing a third gauge value.
func circuitStateValue(state gobreaker.State) float64 {
	if state == gobreaker.StateClosed {
		return 0
	}
	return 1
}

// Invoke runs next.Invoke through the circuit breaker with bounded retry.
// A deadline on ctx that elapses mid-call surfaces as ErrTimeout.
func (r *Reliable) Invoke(ctx context.Context, action string, params map[string]interface{}) (Result, error) {
	cbResult, err := r.cb.Execute(func() (interface{}, error) {
		var result Result

		rt := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := rt.Do(func() error {
			callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var callErr error
			result, callErr = r.next.Invoke(callCtx, action, params)
			if callErr != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return ErrTimeout
			}
			return callErr
		})

		return result, retryErr
	})

	if err != nil {
		r.logger.Warn("adapter invocation failed", zap.String("action", action), zap.Error(err))
		return Result{}, err
	}
	return cbResult.(Result), nil
}
