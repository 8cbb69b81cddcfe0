package mockbase

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/birbparty/roost/internal/mockbase"

// Metrics holds the Prometheus collectors of one server. Each server has its
// own registry so several can run in one test binary.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	recordOps       *prometheus.CounterVec
	authEvents      *prometheus.CounterVec

	// otelRequests reports through the global meter provider
	otelRequests metric.Int64Counter
}

// NewMetrics creates the collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roost_mockbase_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"method", "route", "status"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roost_mockbase_requests_total",
			Help: "Total number of requests",
		}, []string{"method", "route", "status"}),
		recordOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roost_mockbase_record_operations_total",
			Help: "Rows read or written, by table and operation",
		}, []string{"table", "operation"}),
		authEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "roost_mockbase_auth_events_total",
			Help: "Authentication events by type and result",
		}, []string{"event", "result"}),
	}

	counter, err := otel.Meter(meterName).Int64Counter("mockbase.requests",
		metric.WithDescription("Requests served by the mock backend"),
		metric.WithUnit("{request}"))
	if err != nil {
		otel.Handle(err)
	}
	m.otelRequests = counter
	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records duration and count of every request by route pattern
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		statusText := strconv.Itoa(status)

		m.requestDuration.WithLabelValues(c.Method(), route, statusText).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(c.Method(), route, statusText).Inc()
		if m.otelRequests != nil {
			m.otelRequests.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("http.request.method", c.Method()),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", status),
			))
		}
		return err
	}
}

// RecordOperation counts rows touched by a table operation
func (m *Metrics) RecordOperation(table, operation string, rows int) {
	m.recordOps.WithLabelValues(table, operation).Add(float64(rows))
}

// RecordAuthEvent counts a sign-up, sign-in, refresh or logout
func (m *Metrics) RecordAuthEvent(event string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.authEvents.WithLabelValues(event, result).Inc()
}
