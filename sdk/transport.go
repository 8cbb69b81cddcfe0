package sdk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/birbparty/roost/sdk"

// request describes one round trip. Path is already escaped; Query is an
// encoded query string without the leading '?'.
type request struct {
	Method      string
	Path        string
	Query       string
	Body        []byte
	ContentType string
	Header      map[string]string
	// Token replaces the shared Authorization credential when set.
	Token string
}

// httpTransport executes requests against the backend. It performs no payload
// interpretation: any received response is returned as *Response whatever
// its status, and only failures to get a response are errors.
type httpTransport struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	headers     map[string]string
	credentials *credentialState
	observer    Observer
	retry       *retryExecutor
	retryAll    bool
	breaker     *circuitBreaker
	tracer      trace.Tracer
	propagator  propagation.TextMapPropagator
	closed      atomic.Bool
}

func newHTTPTransport(config *Config, credentials *credentialState) *httpTransport {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        config.TransportConfig.MaxIdleConns,
				MaxConnsPerHost:     config.TransportConfig.MaxConnsPerHost,
				IdleConnTimeout:     config.TransportConfig.IdleConnTimeout,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: config.Timeout,
		}
	}

	t := &httpTransport{
		client:      client,
		baseURL:     config.BaseURL,
		apiKey:      config.APIKey,
		headers:     config.Headers,
		credentials: credentials,
		observer:    config.Observer,
		retry:       newRetryExecutor(config.RetryStrategy, config.Observer),
		retryAll:    config.RetryMutations,
		tracer:      otel.Tracer(tracerName, trace.WithInstrumentationVersion(Version)),
		propagator:  otel.GetTextMapPropagator(),
	}
	if config.CircuitBreakerConfig != nil {
		t.breaker = newCircuitBreaker(*config.CircuitBreakerConfig, config.Observer)
	}
	return t
}

// buildURL joins the base URL, an escaped path and a raw query.
func (t *httpTransport) buildURL(path, rawQuery string) (string, error) {
	full := t.baseURL + path
	if rawQuery != "" {
		full += "?" + rawQuery
	}
	u, err := url.Parse(full)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no scheme or host", ErrInvalidURL, full)
	}
	return full, nil
}

// do runs req and returns the response. Errors are *TransportError,
// ErrInvalidURL, ErrCircuitOpen or ErrClientClosed.
func (t *httpTransport) do(ctx context.Context, req request) (*Response, error) {
	if t.closed.Load() {
		return nil, ErrClientClosed
	}
	target, err := t.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	t.observer.OnRequestStart(req.Method, req.Path)
	start := time.Now()

	var resp *Response
	attempt := func() error {
		r, err := t.roundTrip(ctx, req, target)
		if err != nil {
			return err
		}
		resp = r
		// Server errors feed the retry strategy and the breaker; the
		// response itself is still handed back to the caller below.
		if r.StatusCode >= 500 {
			return r.Err()
		}
		return nil
	}

	err = t.breaker.Execute(func() error {
		if t.retryable(req.Method) {
			return t.retry.Execute(ctx, req.Method, req.Path, attempt)
		}
		return attempt()
	})
	if _, isHTTP := err.(*HTTPError); isHTTP && resp != nil {
		err = nil
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	endErr := err
	if endErr == nil && resp != nil {
		endErr = resp.Err()
	}
	t.observer.OnRequestEnd(req.Method, req.Path, status, time.Since(start), endErr)

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *httpTransport) retryable(method string) bool {
	return t.retryAll || method == http.MethodGet || method == http.MethodHead
}

// roundTrip performs a single HTTP exchange inside a client span.
func (t *httpTransport) roundTrip(ctx context.Context, req request, target string) (*Response, error) {
	op := req.Method + " " + req.Path

	ctx, span := t.tracer.Start(ctx, "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
			attribute.String("url.full", target),
		),
	)
	defer span.End()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	t.setHeaders(httpReq, req)
	span.SetAttributes(attribute.String("http.request.id", httpReq.Header.Get(headerRequestID)))
	t.propagator.Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, &TransportError{Op: op, Err: unwrapURLError(err)}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reading response body")
		return nil, &TransportError{Op: op, Err: err}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", httpResp.StatusCode))
	if httpResp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(httpResp.StatusCode))
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       data,
		Header:     httpResp.Header,
	}, nil
}

func (t *httpTransport) setHeaders(httpReq *http.Request, req request) {
	h := httpReq.Header
	h.Set("Accept", "application/json")
	h.Set("User-Agent", "roost-go-sdk/"+Version)
	h.Set(headerRequestID, uuid.NewString())
	if req.Body != nil {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		h.Set("Content-Type", contentType)
	}

	for k, v := range t.headers {
		h.Set(k, v)
	}
	for k, v := range req.Header {
		h.Set(k, v)
	}

	// Credentials go last so nothing above can override them.
	for k, v := range t.credentials.snapshot() {
		h.Set(k, v)
	}
	if req.Token != "" {
		h.Set(headerAuthorization, "Bearer "+req.Token)
	}
}

// unwrapURLError strips the *url.Error wrapper so messages read
// "dial tcp: connection refused" rather than repeating the URL. Timeout
// and context errors stay reachable through errors.Is.
func unwrapURLError(err error) error {
	if urlErr, ok := err.(*url.Error); ok {
		return urlErr.Err
	}
	return err
}

// close releases idle connections. Later requests fail with ErrClientClosed.
func (t *httpTransport) close() {
	if t.closed.CompareAndSwap(false, true) {
		t.client.CloseIdleConnections()
	}
}

// escapePath escapes each argument as a single path segment and joins them
// onto prefix.
//
// Example:
//
//	escapePath("/api/storage/buckets", "avatars", "objects", "u 1/a.png")
//	// "/api/storage/buckets/avatars/objects/u%201%2Fa.png"
func escapePath(prefix string, segments ...string) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// call runs req, classifies non-2xx statuses as *HTTPError and decodes a
// successful body into dest when dest is non-nil.
func (t *httpTransport) call(ctx context.Context, req request, dest interface{}) error {
	resp, err := t.do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	return resp.Decode(dest)
}
