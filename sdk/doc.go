// Package sdk is the Go client for a roost backend: a hosted Postgres
// database exposed over a PostgREST-style HTTP API, plus storage buckets,
// serverless functions, an AI gateway and realtime channels.
//
// # Features
//
// The SDK provides:
//   - A fluent, immutable query builder compiled to a deterministic query string
//   - Typed results through generics (Select, InsertRow, Table[T])
//   - One shared credential state: signing in or out switches the
//     Authorization header of every service client at once
//   - Context support for cancellation and timeouts on every call
//   - Typed errors: *HTTPError, *TransportError and *DecodingError
//   - Opt-in retries and circuit breaking at the transport level
//   - Observer hooks, logrus logging and OpenTelemetry client spans
//
// # Basic Usage
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/birbparty/roost/sdk"
//	)
//
//	type Todo struct {
//	    ID    string `json:"id,omitempty"`
//	    Title string `json:"title"`
//	    Done  bool   `json:"done"`
//	}
//
//	func main() {
//	    client, err := sdk.NewClient(sdk.DefaultConfig().
//	        WithBaseURL("https://myapp.example.app").
//	        WithAPIKey(os.Getenv("ROOST_API_KEY")))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    ctx := context.Background()
//
//	    created, err := sdk.InsertRow(ctx, client.From("todos"), Todo{Title: "ship it"})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    open, err := sdk.Select[Todo](ctx, client.From("todos").
//	        Eq("done", false).
//	        Order("created_at", false).
//	        Limit(10))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Printf("created %s, %d open", created.ID, len(open))
//	}
//
// # Query Strings
//
// Queries compile to select, then each filter in insertion order, then
// order, offset and limit:
//
//	client.From("todos").
//	    Select("id", "title").
//	    Eq("done", false).
//	    In("tag", "a", "b c").
//	    Order("id", true).
//	    Range(5, 14)
//	// select=id,title&done=eq.false&tag=in.(a,"b c")&order=id.asc&offset=5&limit=10
//
// Update and Delete send only the filters. A mutation without filters
// targets every row; the client logs a warning, or refuses with
// ErrUnfilteredMutation when Config.RefuseUnfilteredMutations is set.
//
// # Sessions
//
// The Client starts out sending "Authorization: Bearer <API key>". Signing in
// through Client.Auth() switches every request to the user's access token;
// signing out switches back. A session persisted by the configured
// SessionStore is restored before NewClient returns:
//
//	store := sessionstore.NewFileStore(filepath.Join(home, ".roost", "session.json"))
//	client, err := sdk.NewClient(config.WithSessionStore(store))
//
// # Error Handling
//
//	var httpErr *sdk.HTTPError
//	switch {
//	case errors.As(err, &httpErr):
//	    log.Printf("backend said %d %s: %s", httpErr.StatusCode, httpErr.Code, httpErr.Message)
//	case errors.Is(err, sdk.ErrTransport):
//	    // no response; sdk.IsRetryable(err) is true
//	case errors.Is(err, sdk.ErrDecodingFailed):
//	    // the rows did not match the destination type
//	}
//
// # Resilience
//
// Every operation is exactly one round trip unless retries are enabled:
//
//	config := sdk.DefaultConfig().
//	    WithRetries(3).
//	    WithCircuitBreaker(sdk.DefaultCircuitBreakerConfig())
//
// Only GET and HEAD are retried unless Config.RetryMutations is set.
//
// # Observability
//
// Observers receive request, retry, circuit and session events:
//
//	config := sdk.DefaultConfig().WithObserver(sdk.NewCompositeObserver(
//	    sdk.NewLogObserver(logger),
//	    metrics.NewPrometheusObserver(prometheus.DefaultRegisterer, "myapp"),
//	))
//
// Each round trip runs in an OpenTelemetry client span taken from the
// global tracer provider, and the global propagator injects trace headers.
package sdk
