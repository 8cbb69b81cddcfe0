package sdk

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/roost/sdk/sdktest"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:   "valid config",
			config: DefaultConfig().WithBaseURL("http://localhost:7130").WithAPIKey("k").WithLogger(discardLogger()),
		},
		{
			name:    "missing API key",
			config:  DefaultConfig().WithBaseURL("http://localhost:7130"),
			wantErr: true,
		},
		{
			name:    "relative base URL",
			config:  DefaultConfig().WithBaseURL("/api").WithAPIKey("k"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, client)
			_ = client.Close()
		})
	}
}

func TestClient_ConfigIsCopied(t *testing.T) {
	config := DefaultConfig().WithBaseURL("http://localhost:7130").WithAPIKey("k").WithLogger(discardLogger())
	client, err := NewClient(config)
	require.NoError(t, err)
	defer client.Close()

	config.WithHeader("X-Late", "1")
	config.APIKey = "changed"
	assert.NotContains(t, client.transport.headers, "X-Late")
	assert.Equal(t, "Bearer k", client.Headers()["Authorization"])
}

func TestClient_ServiceClientsAreSingletons(t *testing.T) {
	client, _ := newTestClient(t)

	assert.Same(t, client.Database(), client.Database())
	assert.Same(t, client.Storage(), client.Storage())
	assert.Same(t, client.Functions(), client.Functions())
	assert.Same(t, client.AI(), client.AI())
	assert.Same(t, client.Realtime(), client.Realtime())
	assert.NotNil(t, client.Auth())

	var wg sync.WaitGroup
	dbs := make([]*Database, 20)
	for i := range dbs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dbs[i] = client.Database()
		}(i)
	}
	wg.Wait()
	for _, db := range dbs {
		assert.Same(t, dbs[0], db)
	}
}

func TestClient_SessionSwitchesEveryService(t *testing.T) {
	collector := NewMetricsCollector()
	client, server := newTestClient(t, func(c *Config) { c.WithObserver(collector) })
	server.WithJSONResponse("GET /api/database/records/todos", http.StatusOK, []interface{}{})
	server.WithJSONResponse("POST /functions/hello", http.StatusOK, map[string]string{})
	server.WithJSONResponse("POST /api/auth/sessions", http.StatusOK, sessionBody("T", "R"))
	server.WithJSONResponse("POST /api/auth/logout", http.StatusNoContent, nil)

	ctx := context.Background()
	var rows []map[string]interface{}
	authHeaderOfNextCalls := func() []string {
		require.NoError(t, client.From("todos").Execute(ctx, &rows))
		require.NoError(t, client.Functions().Invoke(ctx, "hello", nil, nil))
		reqs := server.GetRequests()
		return []string{
			reqs[len(reqs)-2].Headers.Get("Authorization"),
			reqs[len(reqs)-1].Headers.Get("Authorization"),
		}
	}

	assert.Equal(t, []string{"Bearer " + testAPIKey, "Bearer " + testAPIKey}, authHeaderOfNextCalls())

	_, err := client.Auth().SignInWithPassword(ctx, "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer T", "Bearer T"}, authHeaderOfNextCalls())

	require.NoError(t, client.Auth().SignOut(ctx))
	assert.Equal(t, []string{"Bearer " + testAPIKey, "Bearer " + testAPIKey}, authHeaderOfNextCalls())

	assert.Equal(t, int64(2), collector.Snapshot().SessionChanges)
}

func TestClient_RestoresStoredSession(t *testing.T) {
	store := NewMemorySessionStore()
	access := mintToken(t, "u1", time.Now().Add(time.Hour))
	require.NoError(t, store.Save(context.Background(), &Session{AccessToken: access, RefreshToken: "r"}))

	client, server := newTestClient(t, func(c *Config) { c.WithSessionStore(store) })

	assert.Equal(t, "Bearer "+access, client.Headers()["Authorization"])
	require.NotNil(t, client.Auth().CurrentSession())
	assert.Equal(t, 0, server.GetRequestCount(), "a valid session is restored without a round trip")
}

func TestClient_RefreshesExpiredStoredSession(t *testing.T) {
	server := sdktest.NewMockServer()
	defer server.Close()
	fresh := mintToken(t, "u1", time.Now().Add(time.Hour))
	server.WithJSONResponse("POST /api/auth/refresh", http.StatusOK, sessionBody(fresh, "r2"))

	store := NewMemorySessionStore()
	stale := mintToken(t, "u1", time.Now().Add(-time.Hour))
	require.NoError(t, store.Save(context.Background(), &Session{AccessToken: stale, RefreshToken: "r1"}))

	client, err := NewClient(DefaultConfig().
		WithBaseURL(server.URL).
		WithAPIKey(testAPIKey).
		WithLogger(discardLogger()).
		WithSessionStore(store))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "Bearer "+fresh, client.Headers()["Authorization"])
	assert.JSONEq(t, `{"refreshToken":"r1"}`, string(server.LastRequest().Body))

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, stored.AccessToken)
	assert.Equal(t, "r2", stored.RefreshToken)
}

func TestClient_DropsUnrefreshableStoredSession(t *testing.T) {
	server := sdktest.NewMockServer()
	defer server.Close()
	server.WithErrorResponse("POST /api/auth/refresh", http.StatusUnauthorized, "INVALID_TOKEN", "refresh token revoked")

	store := NewMemorySessionStore()
	stale := mintToken(t, "u1", time.Now().Add(-time.Hour))
	require.NoError(t, store.Save(context.Background(), &Session{AccessToken: stale, RefreshToken: "r1"}))

	client, err := NewClient(DefaultConfig().
		WithBaseURL(server.URL).
		WithAPIKey(testAPIKey).
		WithLogger(discardLogger()).
		WithSessionStore(store))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "Bearer "+testAPIKey, client.Headers()["Authorization"])
	assert.Nil(t, client.Auth().CurrentSession())
	stored, _ := store.Load(context.Background())
	assert.Nil(t, stored)

	// Without a refresh token nothing is sent at all.
	server.Reset()
	require.NoError(t, store.Save(context.Background(), &Session{AccessToken: stale}))
	client2, err := NewClient(DefaultConfig().
		WithBaseURL(server.URL).
		WithAPIKey(testAPIKey).
		WithLogger(discardLogger()).
		WithSessionStore(store))
	require.NoError(t, err)
	defer client2.Close()
	assert.Equal(t, 0, server.GetRequestCount())
	assert.Equal(t, "Bearer "+testAPIKey, client2.Headers()["Authorization"])
}

// stubProvider is an AuthProvider driven by the test.
type stubProvider struct {
	mu        sync.Mutex
	session   *Session
	listeners []func(*Session)
	restore   *Session
	restored  error
}

func (p *stubProvider) CurrentSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *stubProvider) OnSessionChange(fn func(*Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
	idx := len(p.listeners) - 1
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.listeners[idx] = nil
	}
}

func (p *stubProvider) RestoreSession(ctx context.Context) (*Session, error) {
	return p.restore, p.restored
}

func (p *stubProvider) emit(s *Session) {
	p.mu.Lock()
	p.session = s
	listeners := append(([]func(*Session))(nil), p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(s)
		}
	}
}

func TestClient_FollowsCustomAuthProvider(t *testing.T) {
	provider := &stubProvider{restore: &Session{AccessToken: "restored"}}
	client, _ := newTestClient(t, func(c *Config) { c.WithAuthProvider(provider) })

	assert.Equal(t, "Bearer restored", client.Headers()["Authorization"])

	provider.emit(&Session{AccessToken: "external"})
	assert.Equal(t, "Bearer external", client.Headers()["Authorization"])

	provider.emit(nil)
	assert.Equal(t, "Bearer "+testAPIKey, client.Headers()["Authorization"])

	provider.emit(&Session{AccessToken: ""})
	assert.Equal(t, "Bearer "+testAPIKey, client.Headers()["Authorization"], "an empty token falls back to the API key")

	require.NoError(t, client.Close())
	provider.emit(&Session{AccessToken: "after-close"})
	assert.Equal(t, "Bearer "+testAPIKey, client.Headers()["Authorization"], "closed clients stop following")
}

func TestClient_RestoreErrorFallsBackToAPIKey(t *testing.T) {
	provider := &stubProvider{restored: errors.New("keychain locked")}
	client, _ := newTestClient(t, func(c *Config) { c.WithAuthProvider(provider) })
	assert.Equal(t, "Bearer "+testAPIKey, client.Headers()["Authorization"])
}

func TestClient_ConcurrentSignInAndQueries(t *testing.T) {
	client, server := newTestClient(t)
	server.WithJSONResponse("GET /api/database/records/todos", http.StatusOK, []interface{}{})
	server.WithJSONResponse("POST /api/auth/sessions", http.StatusOK, sessionBody("T", "R"))
	server.WithJSONResponse("POST /api/auth/logout", http.StatusNoContent, nil)

	ctx := context.Background()
	helper := sdktest.NewConcurrentTestHelper(t)
	helper.Run(20, func(id int) error {
		var rows []map[string]interface{}
		return client.From("todos").Execute(ctx, &rows)
	})
	helper.Run(4, func(id int) error {
		if id%2 == 0 {
			_, err := client.Auth().SignInWithPassword(ctx, "ada@example.com", "pw")
			return err
		}
		return client.Auth().SignOut(ctx)
	})
	helper.Wait()

	for _, req := range server.GetRequests() {
		if !strings.HasPrefix(req.Path, "/api/database/records/") {
			continue
		}
		auth := req.Headers.Get("Authorization")
		assert.Contains(t, []string{"Bearer " + testAPIKey, "Bearer T"}, auth)
	}
}

func TestClient_Close(t *testing.T) {
	client, server := newTestClient(t)
	server.WithJSONResponse("GET /api/database/records/todos", http.StatusOK, []interface{}{})

	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "Close is idempotent")

	var rows []map[string]interface{}
	err := client.From("todos").Execute(context.Background(), &rows)
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = client.Storage().From("b").Download(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.Equal(t, 0, server.GetRequestCount())

	client.auth.mu.RLock()
	assert.Empty(t, client.auth.listeners)
	client.auth.mu.RUnlock()
}

func TestClient_CircuitStateWithoutBreaker(t *testing.T) {
	client, _ := newTestClient(t)
	assert.Equal(t, CircuitClosed, client.CircuitState())
}
