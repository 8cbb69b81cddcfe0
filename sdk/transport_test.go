package sdk

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestTransport_Headers(t *testing.T) {
	client, server := newTestClient(t, func(c *Config) {
		c.WithHeader("X-Tenant-ID", "t1").WithHeader("Authorization", "Bearer evil")
	})
	server.WithJSONResponse("GET /api/database/records/todos", http.StatusOK, []interface{}{})

	var rows []map[string]interface{}
	require.NoError(t, client.From("todos").Execute(context.Background(), &rows))
	require.NoError(t, client.From("todos").Execute(context.Background(), &rows))

	reqs := server.GetRequests()
	require.Len(t, reqs, 2)
	h := reqs[0].Headers
	assert.Equal(t, "Bearer "+testAPIKey, h.Get("Authorization"), "custom headers cannot replace credentials")
	assert.Equal(t, "t1", h.Get("X-Tenant-ID"))
	assert.Equal(t, "application/json", h.Get("Accept"))
	assert.Equal(t, "roost-go-sdk/"+Version, h.Get("User-Agent"))
	assert.Empty(t, h.Get("Content-Type"), "no body, no content type")

	_, err := uuid.Parse(h.Get("X-Request-ID"))
	assert.NoError(t, err)
	assert.NotEqual(t, h.Get("X-Request-ID"), reqs[1].Headers.Get("X-Request-ID"))
}

func TestTransport_TokenOverride(t *testing.T) {
	client, server := newTestClient(t)
	server.WithJSONResponse("GET /override", http.StatusOK, map[string]string{})

	err := client.transport.call(context.Background(), request{
		Method: http.MethodGet,
		Path:   "/override",
		Token:  "one-off",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer one-off", server.LastRequest().Headers.Get("Authorization"))
	assert.Equal(t, "Bearer "+testAPIKey, client.Headers()["Authorization"], "shared credentials untouched")
}

func TestTransport_NonSuccessIsAResponse(t *testing.T) {
	client, server := newTestClient(t)
	server.WithErrorResponse("GET /broken", http.StatusServiceUnavailable, "UNAVAILABLE", "try later")

	resp, err := client.transport.do(context.Background(), request{Method: http.MethodGet, Path: "/broken"})
	require.NoError(t, err, "any received response is returned as a response")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 503, StatusCode(resp.Err()))
}

func TestTransport_InvalidURL(t *testing.T) {
	client, server := newTestClient(t)

	_, err := client.transport.do(context.Background(), request{Method: http.MethodGet, Path: "/%zz"})
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Equal(t, 0, server.GetRequestCount())
}

func TestTransport_ConnectionRefused(t *testing.T) {
	client, server := newTestClient(t)
	server.Close()

	var rows []map[string]interface{}
	err := client.From("todos").Execute(context.Background(), &rows)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)

	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "GET /api/database/records/todos", tErr.Op)
	assert.True(t, IsRetryable(err))
}

func TestTransport_Timeout(t *testing.T) {
	client, server := newTestClient(t, func(c *Config) { c.WithTimeout(50 * time.Millisecond) })
	server.WithDelayedResponse("GET /slow", time.Second, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]string{}
	})

	_, err := client.transport.do(context.Background(), request{Method: http.MethodGet, Path: "/slow"})
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.True(t, tErr.Timeout())
}

func TestTransport_ContextCancelled(t *testing.T) {
	client, server := newTestClient(t)
	server.WithDelayedResponse("GET /slow", time.Second, func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		return http.StatusOK, map[string]string{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.transport.do(ctx, request{Method: http.MethodGet, Path: "/slow"})
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
}

func TestTransport_ObserverSeesEveryRequest(t *testing.T) {
	collector := NewMetricsCollector()
	client, server := newTestClient(t, func(c *Config) { c.WithObserver(collector) })
	server.WithJSONResponse("GET /api/database/records/todos", http.StatusOK, []interface{}{})
	server.WithErrorResponse("DELETE /api/database/records/todos", http.StatusForbidden, "FORBIDDEN", "no")

	var rows []map[string]interface{}
	require.NoError(t, client.From("todos").Execute(context.Background(), &rows))
	_ = client.From("todos").Eq("id", 1).Delete(context.Background())

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.Requests["GET /api/database/records/todos"])
	assert.Equal(t, int64(1), snap.Requests["DELETE /api/database/records/todos"])
	assert.Equal(t, int64(1), snap.Errors["DELETE /api/database/records/todos"])
	assert.Zero(t, snap.Errors["GET /api/database/records/todos"])
	assert.Equal(t, int64(1), snap.Statuses[http.StatusForbidden])
}

func TestTransport_RetriesIdempotentRequests(t *testing.T) {
	collector := NewMetricsCollector()
	client, server := newTestClient(t, func(c *Config) {
		c.WithObserver(collector).
			WithRetryStrategy(&ConstantBackoffStrategy{Interval: time.Millisecond, MaxRetries: 3})
	})
	server.WithRetryResponse("GET /api/database/records/todos", 2, http.StatusServiceUnavailable,
		[]map[string]int{{"id": 1}})

	rows, err := Select[map[string]int](context.Background(), client.From("todos"))
	require.NoError(t, err)
	assert.Equal(t, []map[string]int{{"id": 1}}, rows)
	assert.Equal(t, 3, server.GetRequestCount())
	assert.Equal(t, int64(2), collector.Snapshot().Retries["GET /api/database/records/todos"])
	assert.Equal(t, int64(1), collector.Snapshot().Requests["GET /api/database/records/todos"],
		"retries are one logical request")
}

func TestTransport_DoesNotRetryMutationsByDefault(t *testing.T) {
	client, server := newTestClient(t, func(c *Config) {
		c.WithRetryStrategy(&ConstantBackoffStrategy{Interval: time.Millisecond, MaxRetries: 3})
	})
	server.WithRetryResponse("PATCH /api/database/records/todos", 1, http.StatusBadGateway, []interface{}{})

	err := client.From("todos").Eq("id", 1).Update(context.Background(), map[string]bool{"done": true}, nil)
	assert.Equal(t, http.StatusBadGateway, StatusCode(err))
	assert.Equal(t, 1, server.GetRequestCount())
}

func TestTransport_RetryMutationsOptIn(t *testing.T) {
	client, server := newTestClient(t, func(c *Config) {
		c.WithRetryStrategy(&ConstantBackoffStrategy{Interval: time.Millisecond, MaxRetries: 3})
		c.RetryMutations = true
	})
	server.WithRetryResponse("PATCH /api/database/records/todos", 1, http.StatusBadGateway, []interface{}{})

	err := client.From("todos").Eq("id", 1).Update(context.Background(), map[string]bool{"done": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, server.GetRequestCount())
	reqs := server.GetRequests()
	assert.Equal(t, reqs[0].Body, reqs[1].Body, "the body is resent intact")
}

func TestTransport_CircuitBreaker(t *testing.T) {
	collector := NewMetricsCollector()
	client, server := newTestClient(t, func(c *Config) {
		c.WithObserver(collector).WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 2,
			Timeout:          time.Hour,
		})
	})
	server.WithErrorResponse("GET /api/database/records/todos", http.StatusInternalServerError, "INTERNAL", "down")

	var rows []map[string]interface{}
	for i := 0; i < 2; i++ {
		err := client.From("todos").Execute(context.Background(), &rows)
		assert.Equal(t, 500, StatusCode(err))
	}
	assert.Equal(t, CircuitOpen, client.CircuitState())

	err := client.From("todos").Execute(context.Background(), &rows)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, server.GetRequestCount(), "an open circuit sends nothing")
	assert.Equal(t, int64(1), collector.Snapshot().CircuitChanges["transport"])
}

func TestTransport_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	client, server := newTestClient(t)
	server.WithJSONResponse("GET /api/database/records/todos", http.StatusOK, []interface{}{})
	server.WithErrorResponse("GET /api/database/records/missing", http.StatusNotFound, "NOT_FOUND", "no table")

	var rows []map[string]interface{}
	require.NoError(t, client.From("todos").Execute(context.Background(), &rows))
	_ = client.From("missing").Execute(context.Background(), &rows)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "HTTP GET", ok.Name())
	assert.Equal(t, trace.SpanKindClient, ok.SpanKind())
	assert.Contains(t, ok.Attributes(), attribute.String("url.path", "/api/database/records/todos"))
	assert.Contains(t, ok.Attributes(), attribute.Int("http.response.status_code", 200))
	assert.Contains(t, ok.Attributes(),
		attribute.String("http.request.id", server.GetRequests()[0].Headers.Get("X-Request-ID")))
	assert.NotEqual(t, codes.Error, ok.Status().Code)

	assert.Equal(t, codes.Error, spans[1].Status().Code)

	traceparent := server.GetRequests()[0].Headers.Get("traceparent")
	require.NotEmpty(t, traceparent)
	assert.Contains(t, traceparent, ok.SpanContext().TraceID().String())
}

func TestEscapePath(t *testing.T) {
	assert.Equal(t, "/api/storage/buckets/avatars/objects/u%201%2Fa.png",
		escapePath("/api/storage/buckets", "avatars", "objects", "u 1/a.png"))
	assert.Equal(t, "/functions/hello", escapePath("/functions", "hello"))
}
