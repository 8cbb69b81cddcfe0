// Package metrics exports roost SDK observer events as Prometheus metrics.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/birbparty/roost/sdk"
)

// PrometheusObserver implements sdk.Observer on top of Prometheus
// collectors. Object keys are collapsed out of the route label to keep its
// cardinality bounded.
type PrometheusObserver struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
	retriesTotal    *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
	signedIn        prometheus.Gauge
}

// NewPrometheusObserver registers the SDK collectors on reg under namespace.
// It panics if the collectors are already registered on reg, like promauto.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roost_client",
			Name:      "requests_total",
			Help:      "Total number of requests sent to the backend",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "roost_client",
			Name:      "request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "roost_client",
			Name:      "requests_in_flight",
			Help:      "Requests currently waiting for a response",
		}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "roost_client",
			Name:      "retries_total",
			Help:      "Total number of transport retries",
		}, []string{"method", "route"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "roost_client",
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"endpoint"}),
		signedIn: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "roost_client",
			Name:      "signed_in",
			Help:      "1 while requests carry a user session, 0 while they carry the API key",
		}),
	}
}

// OnRequestStart tracks the in-flight request
func (p *PrometheusObserver) OnRequestStart(method, path string) {
	p.inFlight.Inc()
}

// OnRequestEnd records the outcome and latency
func (p *PrometheusObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	p.inFlight.Dec()
	route := Route(path)
	statusLabel := strconv.Itoa(status)
	if status == 0 {
		statusLabel = "error"
	}
	p.requestsTotal.WithLabelValues(method, route, statusLabel).Inc()
	p.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// OnRetryAttempt counts the retry
func (p *PrometheusObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	p.retriesTotal.WithLabelValues(method, Route(path)).Inc()
}

// OnCircuitBreakerStateChange exposes the new state
func (p *PrometheusObserver) OnCircuitBreakerStateChange(endpoint string, oldState, newState sdk.CircuitState) {
	p.circuitState.WithLabelValues(endpoint).Set(float64(newState))
}

// OnSessionChange exposes whether a user is signed in
func (p *PrometheusObserver) OnSessionChange(signedIn bool) {
	if signedIn {
		p.signedIn.Set(1)
		return
	}
	p.signedIn.Set(0)
}

// Route reduces a request path to a low-cardinality label: storage object
// keys become {key} and realtime channel names become {channel}.
//
// Example:
//
//	Route("/api/storage/buckets/avatars/objects/u1%2Fa.png")
//	// "/api/storage/buckets/avatars/objects/{key}"
func Route(path string) string {
	const objects = "/objects/"
	if strings.HasPrefix(path, "/api/storage/buckets/") {
		if i := strings.Index(path, objects); i >= 0 {
			return path[:i+len(objects)] + "{key}"
		}
		return path
	}
	const channels = "/api/realtime/channels/"
	if strings.HasPrefix(path, channels) {
		rest := path[len(channels):]
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return channels + "{channel}" + rest[i:]
		}
		return channels + "{channel}"
	}
	return path
}
