package sdk

import (
	"fmt"
	"net/http"
)

// Response is the raw result of a single round trip: status code, body and
// headers. It is created by the transport, consumed once by the caller and
// never cached.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// OK reports whether the status is in [200, 300).
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// errorBody is the error payload shape of the backend.
type errorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	NextActions string `json:"nextActions"`
}

// Err classifies the response. It returns nil for 2xx statuses and an
// *HTTPError otherwise. An unparseable error body never yields a decoding
// failure; the message is synthesized from the status code instead.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}

	httpErr := &HTTPError{StatusCode: r.StatusCode}
	if r.Header != nil {
		httpErr.RequestID = r.Header.Get(headerRequestID)
	}

	var body errorBody
	if len(r.Body) > 0 && codec.Unmarshal(r.Body, &body) == nil && body.Message != "" {
		httpErr.Code = body.Error
		httpErr.Message = body.Message
		httpErr.NextActions = body.NextActions
		return httpErr
	}

	httpErr.Message = synthesizeMessage(r.StatusCode)
	return httpErr
}

func synthesizeMessage(status int) string {
	text := http.StatusText(status)
	if text == "" {
		text = "unexpected status"
	}
	return fmt.Sprintf("%d %s", status, text)
}

// Decode unmarshals the JSON body into dest. Timestamps may be RFC 3339
// with or without fractional seconds, or bare dates. Failures are returned
// as *DecodingError carrying the original body. An empty body leaves dest
// untouched.
func (r *Response) Decode(dest interface{}) error {
	if dest == nil || len(r.Body) == 0 {
		return nil
	}
	return unmarshalJSON(r.Body, dest)
}

// DecodeAs decodes the response body into a new value of type T.
//
// Example:
//
//	rows, err := sdk.DecodeAs[[]Todo](resp)
func DecodeAs[T any](r *Response) (T, error) {
	var out T
	err := r.Decode(&out)
	return out, err
}
