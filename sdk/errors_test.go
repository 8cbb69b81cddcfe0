package sdk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *HTTPError
		want string
	}{
		{
			name: "with code",
			err:  &HTTPError{StatusCode: 409, Code: "DATABASE_DUPLICATE", Message: "duplicate key"},
			want: "http error (status 409, DATABASE_DUPLICATE): duplicate key",
		},
		{
			name: "without code",
			err:  &HTTPError{StatusCode: 502, Message: "502 Bad Gateway"},
			want: "http error (status 502): 502 Bad Gateway",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestHTTPError_Classification(t *testing.T) {
	tests := []struct {
		status      int
		notFound    bool
		clientError bool
		serverError bool
		retryable   bool
	}{
		{http.StatusBadRequest, false, true, false, false},
		{http.StatusNotFound, true, true, false, false},
		{http.StatusRequestTimeout, false, true, false, true},
		{http.StatusTooManyRequests, false, true, false, true},
		{http.StatusInternalServerError, false, false, true, true},
		{http.StatusBadGateway, false, false, true, true},
		{http.StatusGatewayTimeout, false, false, true, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &HTTPError{StatusCode: tt.status}
			assert.Equal(t, tt.notFound, err.IsNotFound())
			assert.Equal(t, tt.clientError, err.IsClientError())
			assert.Equal(t, tt.serverError, err.IsServerError())
			assert.Equal(t, tt.retryable, err.IsRetryable())
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestErrorKinds_MatchSentinels(t *testing.T) {
	httpErr := fmt.Errorf("loading todos: %w", &HTTPError{StatusCode: 404, Message: "gone"})
	transportErr := &TransportError{Op: "GET /x", Err: errors.New("connection refused")}
	decodingErr := &DecodingError{Err: errors.New("bad"), Body: []byte("{")}

	assert.ErrorIs(t, httpErr, ErrHTTP)
	assert.NotErrorIs(t, httpErr, ErrTransport)
	assert.ErrorIs(t, transportErr, ErrTransport)
	assert.NotErrorIs(t, transportErr, ErrHTTP)
	assert.ErrorIs(t, decodingErr, ErrDecodingFailed)
	assert.NotErrorIs(t, decodingErr, ErrHTTP)

	assert.Equal(t, 404, StatusCode(httpErr))
	assert.Equal(t, 0, StatusCode(transportErr))
	assert.True(t, IsNotFound(httpErr))
	assert.False(t, IsNotFound(transportErr))
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, IsUnauthorized(&HTTPError{StatusCode: 401}))
	assert.True(t, IsForbidden(&HTTPError{StatusCode: 403}))
	assert.True(t, IsConflict(&HTTPError{StatusCode: 409}))
	assert.False(t, IsConflict(&HTTPError{StatusCode: 400}))
	assert.False(t, IsUnauthorized(nil))
}

func TestTransportError(t *testing.T) {
	cause := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	err := &TransportError{Op: "GET /api/database/records/todos", Err: cause}

	assert.Equal(t, "transport error during GET /api/database/records/todos: "+cause.Error(), err.Error())
	assert.True(t, errors.Is(err, ErrTransport))
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr))
	assert.False(t, err.Timeout())
	assert.True(t, IsRetryable(err))

	deadline := &TransportError{Op: "GET /x", Err: context.DeadlineExceeded}
	assert.True(t, deadline.Timeout())

	canceled := &TransportError{Op: "GET /x", Err: context.Canceled}
	assert.False(t, IsRetryable(canceled), "a cancelled call is never retried")
}

func TestDecodingError_TruncatesBody(t *testing.T) {
	body := []byte(strings.Repeat("x", 300))
	err := &DecodingError{Err: errors.New("unexpected token"), Body: body}

	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "decoding failed: unexpected token (body: "))
	assert.Contains(t, msg, strings.Repeat("x", 256)+"...")
	assert.NotContains(t, msg, strings.Repeat("x", 257))
	assert.Equal(t, "unexpected token", errors.Unwrap(err).Error())
}

func TestIsRetryable_PlainErrors(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.False(t, IsRetryable(ErrInvalidRange))
	assert.False(t, IsRetryable(&DecodingError{Err: errors.New("x")}))
}
