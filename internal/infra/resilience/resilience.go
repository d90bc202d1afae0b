// Package resilience wraps outbound calls in circuit breakers.
// Calls are never retried: a failed call fails the request.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/letschat/chat-api/internal/domain"
	"github.com/sony/gobreaker"
)

// NewCircuitBreaker creates a circuit breaker with sensible defaults.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: IsDependencyHealthy,
	})
}

// clientFault is implemented by errors caused by the request itself
// (unknown model, malformed id, denied row) rather than by the dependency.
type clientFault interface {
	ClientFault() bool
}

type clientFaultError struct {
	err error
}

func (e *clientFaultError) Error() string     { return e.err.Error() }
func (e *clientFaultError) Unwrap() error     { return e.err }
func (e *clientFaultError) ClientFault() bool { return true }

// ClientFault marks err as caused by the request. The breaker does not
// count it; errors.Is and errors.As still see the wrapped error.
func ClientFault(err error) error {
	if err == nil {
		return nil
	}
	return &clientFaultError{err: err}
}

// IsDependencyHealthy reports whether err leaves the dependency's health
// untouched: no error, a rejected credential, a cancelled caller or a
// client fault.
func IsDependencyHealthy(err error) bool {
	if err == nil {
		return true
	}
	var unauth *domain.ErrUnauthorized
	if errors.As(err, &unauth) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var cf clientFault
	return errors.As(err, &cf) && cf.ClientFault()
}

// Execute runs fn through cb and translates breaker rejections into
// *domain.ErrCircuitOpen. A failure after ctx is done belongs to the
// caller (disconnect or request deadline) and is marked as a client fault.
func Execute[T any](ctx context.Context, cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(func() (any, error) {
		v, err := fn()
		if err != nil && ctx.Err() != nil {
			return v, ClientFault(err)
		}
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &domain.ErrCircuitOpen{Service: cb.Name()}
		}
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}
