package sdk

import (
	"context"
	"fmt"
	"net/http"
)

const functionsPath = "/functions"

// Functions invokes deployed serverless functions.
type Functions struct {
	transport *httpTransport
}

// InvokeOptions controls a function invocation.
type InvokeOptions struct {
	// Method defaults to POST.
	Method string
	// Headers are sent in addition to the client headers.
	Headers map[string]string
	// Body is marshaled as JSON. A nil Body sends no payload.
	Body interface{}
}

// Invoke calls the function slug with a JSON body and decodes the JSON
// reply into dest. Either body or dest may be nil.
//
// Example:
//
//	var out struct{ Greeting string `json:"greeting"` }
//	err := client.Functions().Invoke(ctx, "hello", map[string]string{"name": "ada"}, &out)
func (f *Functions) Invoke(ctx context.Context, slug string, body interface{}, dest interface{}) error {
	return f.InvokeWithOptions(ctx, slug, InvokeOptions{Body: body}, dest)
}

// InvokeValue calls the function slug with an arbitrary JSON value and
// returns the reply as a Value. An empty reply is null.
func (f *Functions) InvokeValue(ctx context.Context, slug string, body Value) (Value, error) {
	var out Value
	if err := f.InvokeWithOptions(ctx, slug, InvokeOptions{Body: body}, &out); err != nil {
		return Value{}, err
	}
	return out, nil
}

// InvokeWithOptions calls the function slug with an explicit method and
// extra headers.
func (f *Functions) InvokeWithOptions(ctx context.Context, slug string, opts InvokeOptions, dest interface{}) error {
	if slug == "" {
		return fmt.Errorf("%w: empty function slug", ErrInvalidInput)
	}
	method := opts.Method
	if method == "" {
		method = http.MethodPost
	}

	req := request{
		Method: method,
		Path:   escapePath(functionsPath, slug),
		Header: opts.Headers,
	}
	if opts.Body != nil {
		body, err := marshalJSON(opts.Body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		req.Body = body
	}
	return f.transport.call(ctx, req, dest)
}
