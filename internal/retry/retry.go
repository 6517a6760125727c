// Package retry provides a reusable, exponential-backoff-with-jitter
// helper and a circuit breaker. No other package in this module imports
// it.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Config controls backoff behavior.
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// DefaultConfig returns sane retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// Executor runs operations with retry, classifying retryability via a
// caller-supplied predicate so this package stays independent of any one
// component's error taxonomy.
type Executor struct {
	config      Config
	logger      *slog.Logger
	shouldRetry func(error) bool
}

// NewExecutor creates a retry executor. shouldRetry classifies whether an
// error returned by the operation is worth retrying; if nil, every
// non-nil error is treated as retryable.
func NewExecutor(config Config, logger *slog.Logger, shouldRetry func(error) bool) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if shouldRetry == nil {
		shouldRetry = func(error) bool { return true }
	}

	return &Executor{config: config, logger: logger, shouldRetry: shouldRetry}
}

// Execute runs operation, retrying on retryable errors up to MaxRetries.
func (e *Executor) Execute(ctx context.Context, operation func() error) error {
	var lastErr error
	delay := e.config.InitialDelay

	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 0 {
				e.logger.Info("operation succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}

		lastErr = err

		if attempt < e.config.MaxRetries && e.shouldRetry(err) {
			e.logger.Warn("operation failed, retrying",
				"attempt", attempt+1, "max_retries", e.config.MaxRetries, "delay", delay, "error", err)

			if !e.wait(ctx, delay) {
				return ctx.Err()
			}
			delay = e.nextDelay(delay)
			continue
		}

		break
	}

	e.logger.Error("operation failed after all retries", "max_retries", e.config.MaxRetries, "error", lastErr)
	return lastErr
}

func (e *Executor) wait(ctx context.Context, delay time.Duration) bool {
	select {
	case <-time.After(delay):
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Executor) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * e.config.BackoffFactor)
	if next > e.config.MaxDelay {
		next = e.config.MaxDelay
	}
	if e.config.JitterFactor > 0 {
		jitter := time.Duration(float64(next) * e.config.JitterFactor * rand.Float64())
		next += jitter
	}
	return next
}

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker implements the closed/open/half-open pattern,
// independently of the database pool's own breaker.
type CircuitBreaker struct {
	state        CircuitBreakerState
	failureCount int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
}

// NewCircuitBreaker creates a circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{state: StateClosed, maxFailures: maxFailures, resetTimeout: resetTimeout}
}

// ErrCircuitOpen is returned by Call when the breaker is open.
var ErrCircuitOpen = errCircuitOpen{}

type errCircuitOpen struct{}

func (errCircuitOpen) Error() string { return "circuit breaker is open" }

// Call runs operation through the breaker.
func (cb *CircuitBreaker) Call(operation func() error) error {
	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = StateHalfOpen
		} else {
			return ErrCircuitOpen
		}
	}

	if err := operation(); err != nil {
		cb.failureCount++
		cb.lastFailure = time.Now()
		if cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
		return err
	}

	cb.failureCount = 0
	cb.state = StateClosed
	return nil
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitBreakerState { return cb.state }

// IsOpen reports whether the breaker is currently open.
func (cb *CircuitBreaker) IsOpen() bool { return cb.state == StateOpen }

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.lastFailure = time.Time{}
}
