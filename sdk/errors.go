package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the SDK. These can be used with errors.Is()
// to check for specific error conditions.
//
// Example:
//
//	err := db.From("todos").Eq("id", 7).Execute(ctx, &todos)
//	switch {
//	case errors.Is(err, sdk.ErrTransport):
//	    // network problem, caller may retry
//	case errors.Is(err, sdk.ErrHTTP):
//	    // backend rejected the request, inspect *sdk.HTTPError
//	case errors.Is(err, sdk.ErrDecodingFailed):
//	    // contract mismatch between client types and backend rows
//	}
var (
	// ErrInvalidConfig is returned when the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidURL is returned when a request URL cannot be constructed
	ErrInvalidURL = errors.New("invalid request url")

	// ErrTransport is matched by every *TransportError
	ErrTransport = errors.New("transport failure")

	// ErrHTTP is matched by every *HTTPError
	ErrHTTP = errors.New("http error")

	// ErrDecodingFailed is matched by every *DecodingError
	ErrDecodingFailed = errors.New("decoding failed")

	// ErrEmptyResult is returned when a single-row insert returns no rows
	ErrEmptyResult = errors.New("empty result")

	// ErrInvalidRange is returned for Range(from, to) with to < from or negative bounds
	ErrInvalidRange = errors.New("invalid range")

	// ErrInvalidFilter is returned for malformed filters such as an empty in-list
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrInvalidInput is returned when an argument has the wrong shape
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnfilteredMutation is returned by Update/Delete without filters when
	// Config.RefuseUnfilteredMutations is set
	ErrUnfilteredMutation = errors.New("update or delete without filters")

	// ErrClientClosed is returned when a closed client is used
	ErrClientClosed = errors.New("client is closed")

	// ErrNotSignedIn is returned by auth operations that need a session
	ErrNotSignedIn = errors.New("not signed in")

	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// HTTPError is returned when the backend answers with a non-2xx status.
// Callers branch on StatusCode or Code; Message is meant for humans and logs.
//
// Example:
//
//	var httpErr *sdk.HTTPError
//	if errors.As(err, &httpErr) {
//	    switch {
//	    case httpErr.StatusCode == http.StatusUnauthorized:
//	        // re-authenticate
//	    case httpErr.Code == "DATABASE_DUPLICATE":
//	        // conflict
//	    }
//	}
type HTTPError struct {
	// StatusCode is the HTTP status code from the response
	StatusCode int `json:"statusCode"`
	// Code is the optional machine-readable error kind
	Code string `json:"error,omitempty"`
	// Message is the human-readable error description
	Message string `json:"message"`
	// NextActions is an optional remediation hint
	NextActions string `json:"nextActions,omitempty"`
	// RequestID echoes the X-Request-ID of the failed request
	RequestID string `json:"-"`
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http error (status %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http error (status %d): %s", e.StatusCode, e.Message)
}

// Is implements errors.Is
func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTP
}

// IsNotFound returns true for 404 responses
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsServerError returns true for 5xx responses
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsClientError returns true for 4xx responses
func (e *HTTPError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsRetryable returns true for statuses a caller may reasonably retry
func (e *HTTPError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return true
	}
	return e.IsServerError()
}

// TransportError represents a network-related failure such as connection
// refused, DNS resolution failure, a timeout or a cancelled context.
// No HTTP response was received.
//
// Example:
//
//	var tErr *sdk.TransportError
//	if errors.As(err, &tErr) && tErr.Timeout() {
//	    log.Printf("request timed out during %s", tErr.Op)
//	}
type TransportError struct {
	// Op is the operation that failed (e.g., "GET /api/database/records/todos")
	Op string
	// Err is the underlying network error
	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Timeout reports whether the failure was a deadline or client timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	if errors.As(e.Err, &t) {
		return t.Timeout()
	}
	return false
}

// DecodingError is returned when a response body does not match the
// expected shape. Body holds the raw response for diagnosis.
type DecodingError struct {
	// Err is the underlying parser error
	Err error
	// Body is the response body that failed to decode
	Body []byte
}

// Error implements the error interface
func (e *DecodingError) Error() string {
	return fmt.Sprintf("decoding failed: %v (body: %s)", e.Err, truncateBody(e.Body, 256))
}

// Unwrap returns the parser error
func (e *DecodingError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DecodingError) Is(target error) bool {
	return target == ErrDecodingFailed
}

func truncateBody(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not
// an *HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsNotFound checks if the error represents a 404 response.
//
// Example:
//
//	if sdk.IsNotFound(err) {
//	    // bucket or object does not exist
//	}
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized checks for 401 responses, which usually mean the session
// must be refreshed or the user must sign in again.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsForbidden checks for 403 responses
func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}

// IsConflict checks for 409 responses
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsRetryable checks if an error is worth retrying by the caller.
// Retryable errors include:
//   - Transport errors (connection issues, timeouts)
//   - Server errors (5xx status codes)
//   - Rate limiting (429) and request timeouts (408, 504)
//
// Non-retryable errors include validation failures, decoding failures,
// other 4xx responses, cancelled contexts and an open circuit breaker.
// The SDK itself never retries unless a RetryStrategy is configured.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var tErr *TransportError
	if errors.As(err, &tErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}

	return false
}
