package sdk

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Observer provides hooks for monitoring SDK operations.
// Implement this interface to track performance metrics, debug issues,
// or integrate with your observability stack.
//
// Observer methods should be fast and non-blocking; they run on the goroutine
// issuing the request. Paths never include the query string.
//
// Example implementation:
//
//	type SlowRequestObserver struct {
//	    sdk.NoopObserver
//	}
//
//	func (o *SlowRequestObserver) OnRequestEnd(method, path string, status int, d time.Duration, err error) {
//	    if d > time.Second {
//	        log.Printf("slow %s %s: %v", method, path, d)
//	    }
//	}
type Observer interface {
	// OnRequestStart is called before a request is sent.
	OnRequestStart(method, path string)

	// OnRequestEnd is called when a request completes. status is 0 when no
	// response was received.
	OnRequestEnd(method, path string, status int, duration time.Duration, err error)

	// OnRetryAttempt is called before each transport-level retry.
	OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error)

	// OnCircuitBreakerStateChange is called when the circuit breaker changes state.
	OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState)

	// OnSessionChange is called after the Authorization header switched
	// between the API key and a user session.
	OnSessionChange(signedIn bool)
}

// NoopObserver is a no-op implementation of Observer that does nothing.
// This is the default observer used when none is configured.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, path string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
}

// OnRetryAttempt does nothing
func (n *NoopObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
}

// OnCircuitBreakerStateChange does nothing
func (n *NoopObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
}

// OnSessionChange does nothing
func (n *NoopObserver) OnSessionChange(signedIn bool) {}

// MetricsCollector is a simple in-memory metrics implementation, mostly
// useful in tests and for debugging. For production export use the
// Prometheus observer in the sdk/metrics package.
//
// Example:
//
//	collector := sdk.NewMetricsCollector()
//	client, _ := sdk.NewClient(config.WithObserver(collector))
//	// ...
//	snap := collector.Snapshot()
//	fmt.Println(snap.Requests["GET /api/database/records/todos"])
type MetricsCollector struct {
	mu             sync.RWMutex
	requests       map[string]int64
	errors         map[string]int64
	statuses       map[int]int64
	latencies      map[string][]time.Duration
	retries        map[string]int64
	circuitChanges map[string]int64
	sessionChanges int64
}

// MetricsSnapshot is a point-in-time copy of a MetricsCollector.
type MetricsSnapshot struct {
	Requests       map[string]int64
	Errors         map[string]int64
	Statuses       map[int]int64
	Latencies      map[string][]time.Duration
	Retries        map[string]int64
	CircuitChanges map[string]int64
	SessionChanges int64
}

// NewMetricsCollector creates a new metrics collector. It is safe for
// concurrent use.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requests:       make(map[string]int64),
		errors:         make(map[string]int64),
		statuses:       make(map[int]int64),
		latencies:      make(map[string][]time.Duration),
		retries:        make(map[string]int64),
		circuitChanges: make(map[string]int64),
	}
}

// OnRequestStart increments request count
func (m *MetricsCollector) OnRequestStart(method, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[method+" "+path]++
}

// OnRequestEnd records request duration, status and errors
func (m *MetricsCollector) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + path
	m.latencies[key] = append(m.latencies[key], duration)
	m.statuses[status]++
	if err != nil {
		m.errors[key]++
	}
}

// OnRetryAttempt increments retry count
func (m *MetricsCollector) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries[method+" "+path]++
}

// OnCircuitBreakerStateChange tracks state changes
func (m *MetricsCollector) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.circuitChanges[endpoint]++
}

// OnSessionChange counts session switches
func (m *MetricsCollector) OnSessionChange(signedIn bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionChanges++
}

// Snapshot returns a copy of the collected metrics.
func (m *MetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		Requests:       copyCounts(m.requests),
		Errors:         copyCounts(m.errors),
		Statuses:       make(map[int]int64, len(m.statuses)),
		Latencies:      make(map[string][]time.Duration, len(m.latencies)),
		Retries:        copyCounts(m.retries),
		CircuitChanges: copyCounts(m.circuitChanges),
		SessionChanges: m.sessionChanges,
	}
	for k, v := range m.statuses {
		snap.Statuses[k] = v
	}
	for k, v := range m.latencies {
		snap.Latencies[k] = append([]time.Duration(nil), v...)
	}
	return snap
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// LogObserver writes request traces to a logrus logger at debug level and
// circuit/session transitions at info level.
type LogObserver struct {
	logger logrus.FieldLogger
}

// NewLogObserver creates an observer logging through logger.
//
// Example:
//
//	logger := logrus.New()
//	logger.SetLevel(logrus.DebugLevel)
//	config := sdk.DefaultConfig().WithObserver(sdk.NewLogObserver(logger))
func NewLogObserver(logger logrus.FieldLogger) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnRequestStart logs the outgoing request
func (o *LogObserver) OnRequestStart(method, path string) {
	o.logger.WithFields(logrus.Fields{"method": method, "path": path}).Debug("request started")
}

// OnRequestEnd logs status and latency
func (o *LogObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	entry := o.logger.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Debug("request failed")
		return
	}
	entry.Debug("request finished")
}

// OnRetryAttempt logs the retry
func (o *LogObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	o.logger.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	}).WithError(err).Debug("retrying request")
}

// OnCircuitBreakerStateChange logs the transition
func (o *LogObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
	o.logger.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"from":     oldState.String(),
		"to":       newState.String(),
	}).Info("circuit breaker state changed")
}

// OnSessionChange logs the switch
func (o *LogObserver) OnSessionChange(signedIn bool) {
	o.logger.WithField("signed_in", signedIn).Info("session changed")
}

// CompositeObserver fans out to several observers in order. A panicking
// observer is isolated so it cannot affect the others or the request.
//
// Example:
//
//	observer := sdk.NewCompositeObserver(
//	    sdk.NewLogObserver(logger),
//	    sdk.NewMetricsCollector(),
//	)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to multiple observers.
func NewCompositeObserver(observers ...Observer) *CompositeObserver {
	return &CompositeObserver{observers: observers}
}

func (c *CompositeObserver) each(fn func(Observer)) {
	for _, obs := range c.observers {
		func() {
			defer func() {
				_ = recover()
			}()
			fn(obs)
		}()
	}
}

// OnRequestStart notifies all observers
func (c *CompositeObserver) OnRequestStart(method, path string) {
	c.each(func(o Observer) { o.OnRequestStart(method, path) })
}

// OnRequestEnd notifies all observers
func (c *CompositeObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	c.each(func(o Observer) { o.OnRequestEnd(method, path, status, duration, err) })
}

// OnRetryAttempt notifies all observers
func (c *CompositeObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	c.each(func(o Observer) { o.OnRetryAttempt(method, path, attempt, delay, err) })
}

// OnCircuitBreakerStateChange notifies all observers
func (c *CompositeObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState CircuitState) {
	c.each(func(o Observer) { o.OnCircuitBreakerStateChange(endpoint, oldState, newState) })
}

// OnSessionChange notifies all observers
func (c *CompositeObserver) OnSessionChange(signedIn bool) {
	c.each(func(o Observer) { o.OnSessionChange(signedIn) })
}
