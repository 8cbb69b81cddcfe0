package sdk

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryStrategy defines how the transport retries failed round trips.
// The default is NoRetryStrategy: every operation is exactly one request and
// failures surface unchanged. Retries are a transport-level opt-in.
//
// You can also implement custom strategies:
//
//	type CustomStrategy struct{}
//
//	func (s *CustomStrategy) NextInterval(attempt int) time.Duration {
//	    return time.Duration(attempt*attempt) * 100 * time.Millisecond
//	}
//
//	func (s *CustomStrategy) ShouldRetry(err error, attempt int) bool {
//	    return sdk.IsRetryable(err) && attempt <= 3
//	}
type RetryStrategy interface {
	// NextInterval returns the delay before the given retry attempt.
	// The attempt parameter starts at 1 for the first retry.
	NextInterval(attempt int) time.Duration

	// ShouldRetry determines if err warrants the given retry attempt.
	ShouldRetry(err error, attempt int) bool
}

// NoRetryStrategy never retries.
type NoRetryStrategy struct{}

// NextInterval always returns 0
func (s *NoRetryStrategy) NextInterval(attempt int) time.Duration { return 0 }

// ShouldRetry always returns false
func (s *NoRetryStrategy) ShouldRetry(err error, attempt int) bool { return false }

// ExponentialBackoffStrategy implements exponential backoff with jitter.
//
// The delay for attempt n is InitialInterval * Multiplier^(n-1), capped at
// MaxInterval, then spread by ±Jitter.
//
// Example:
//
//	strategy := &sdk.ExponentialBackoffStrategy{
//	    InitialInterval: 100 * time.Millisecond,
//	    MaxInterval:     5 * time.Second,
//	    Multiplier:      2.0,
//	    Jitter:          0.2,
//	    MaxRetries:      3,
//	}
type ExponentialBackoffStrategy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Jitter is a fraction in [0, 1] applied around the computed delay.
	Jitter float64
	// MaxRetries bounds the number of retries after the first attempt.
	MaxRetries int
}

// DefaultExponentialBackoff returns 3 retries starting at 100ms, doubling up
// to 5s with 30% jitter.
func DefaultExponentialBackoff() *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.3,
		MaxRetries:      3,
	}
}

// NextInterval calculates the delay before the given retry attempt
func (s *ExponentialBackoffStrategy) NextInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(s.InitialInterval) * math.Pow(s.Multiplier, float64(attempt-1))
	if s.MaxInterval > 0 && delay > float64(s.MaxInterval) {
		delay = float64(s.MaxInterval)
	}
	if s.Jitter > 0 {
		spread := delay * s.Jitter
		delay += spread * (2*rand.Float64() - 1)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// ShouldRetry retries retryable errors until MaxRetries is reached
func (s *ExponentialBackoffStrategy) ShouldRetry(err error, attempt int) bool {
	return attempt <= s.MaxRetries && IsRetryable(err)
}

// ConstantBackoffStrategy waits the same interval before every retry.
type ConstantBackoffStrategy struct {
	Interval   time.Duration
	MaxRetries int
}

// NextInterval returns the fixed interval
func (s *ConstantBackoffStrategy) NextInterval(attempt int) time.Duration {
	return s.Interval
}

// ShouldRetry retries retryable errors until MaxRetries is reached
func (s *ConstantBackoffStrategy) ShouldRetry(err error, attempt int) bool {
	return attempt <= s.MaxRetries && IsRetryable(err)
}

// retryExecutor runs a round trip under a RetryStrategy.
type retryExecutor struct {
	strategy RetryStrategy
	observer Observer
}

func newRetryExecutor(strategy RetryStrategy, observer Observer) *retryExecutor {
	if strategy == nil {
		strategy = &NoRetryStrategy{}
	}
	return &retryExecutor{strategy: strategy, observer: observer}
}

// Execute calls fn until it succeeds, the strategy gives up or ctx is done.
func (re *retryExecutor) Execute(ctx context.Context, method, path string, fn func() error) error {
	err := fn()
	for attempt := 1; err != nil && re.strategy.ShouldRetry(err, attempt); attempt++ {
		delay := re.strategy.NextInterval(attempt)
		re.observer.OnRetryAttempt(method, path, attempt, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &TransportError{Op: method + " " + path, Err: ctx.Err()}
		case <-timer.C:
		}

		err = fn()
	}
	return err
}
