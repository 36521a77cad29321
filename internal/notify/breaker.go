package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrEmitterUnavailable is returned while the breaker is open.
var ErrEmitterUnavailable = errors.New("notification emitter unavailable")

// BreakerConfig tunes the circuit breaker around notification emission.
type BreakerConfig struct {
	// CallTimeout bounds a single emit so a hung broker cannot stall a sweep.
	CallTimeout time.Duration

	// MaxRequests allowed through in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// FailureThreshold is the consecutive-failure count that trips the breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns a sensible default configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		CallTimeout:      5 * time.Second,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerEmitter wraps an Emitter with a circuit breaker and per-call
// timeout.
type BreakerEmitter struct {
	next    Emitter
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
}

// NewBreakerEmitter wraps the given emitter.
func NewBreakerEmitter(next Emitter, config BreakerConfig, logger *slog.Logger) *BreakerEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 5 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "notify",
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerEmitter{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		timeout: config.CallTimeout,
	}
}

// Emit forwards the notification through the breaker with a bounded timeout.
func (e *BreakerEmitter) Emit(ctx context.Context, n Notification) error {
	_, err := e.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return nil, e.next.Emit(callCtx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrEmitterUnavailable
	}
	return err
}

// Close closes the wrapped emitter.
func (e *BreakerEmitter) Close() error {
	return e.next.Close()
}
