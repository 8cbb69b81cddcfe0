package sdk

import (
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
//
// State transitions:
//   - Closed -> Open: when FailureThreshold consecutive failures are seen
//   - Open -> Half-Open: after Timeout has elapsed
//   - Half-Open -> Closed: after SuccessThreshold successes
//   - Half-Open -> Open: on any failure
type CircuitState int

const (
	// CircuitClosed lets every request through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests with ErrCircuitOpen.
	CircuitOpen
	// CircuitHalfOpen admits a limited number of probe requests.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the optional transport circuit breaker.
// Only transport failures and 5xx responses count as failures; a 404 or a
// validation error says nothing about backend health.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	// Default: 5
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again.
	// Default: 2
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing.
	// Default: 30s
	Timeout time.Duration
	// HalfOpenRequests caps concurrent probes while half-open.
	// Default: 3
	HalfOpenRequests int
}

// DefaultCircuitBreakerConfig returns the defaults listed on CircuitBreakerConfig.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	cfg := CircuitBreakerConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *CircuitBreakerConfig) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenRequests <= 0 {
		c.HalfOpenRequests = 3
	}
}

// circuitBreaker is the transport's breaker. A nil *circuitBreaker lets
// everything through.
type circuitBreaker struct {
	config   CircuitBreakerConfig
	observer Observer
	now      func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

func newCircuitBreaker(config CircuitBreakerConfig, observer Observer) *circuitBreaker {
	config.applyDefaults()
	return &circuitBreaker{
		config:   config,
		observer: observer,
		now:      time.Now,
	}
}

// State returns the current state, moving Open to Half-Open once the
// timeout has elapsed.
func (cb *circuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// Execute runs fn if the circuit admits it and records the outcome.
func (cb *circuitBreaker) Execute(fn func() error) error {
	if cb == nil {
		return fn()
	}

	cb.mu.Lock()
	cb.advance()
	switch cb.state {
	case CircuitOpen:
		cb.mu.Unlock()
		return ErrCircuitOpen
	case CircuitHalfOpen:
		if cb.probes >= cb.config.HalfOpenRequests {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probes++
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if countsAsFailure(err) {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	return err
}

func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*TransportError); ok {
		return true
	}
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.IsServerError()
	}
	return false
}

// advance must be called with mu held.
func (cb *circuitBreaker) advance() {
	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.config.Timeout {
		cb.transitionTo(CircuitHalfOpen)
	}
}

func (cb *circuitBreaker) onSuccess() {
	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

func (cb *circuitBreaker) onFailure() {
	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *circuitBreaker) transitionTo(next CircuitState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	if next == CircuitOpen {
		cb.openedAt = cb.now()
	}
	if cb.observer != nil {
		cb.observer.OnCircuitBreakerStateChange("transport", prev, next)
	}
}
