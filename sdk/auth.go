package sdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const authPath = "/api/auth"

// User is the account behind a session.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Session is an authenticated user session.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is expired at now. ExpiresAt is
// used when set, otherwise the token's exp claim. Tokens without either
// never expire client-side.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return true
	}
	expiry := s.ExpiresAt
	if expiry.IsZero() {
		var ok bool
		if expiry, ok = TokenExpiry(s.AccessToken); !ok {
			return false
		}
	}
	return !now.Before(expiry)
}

// TokenExpiry reads the exp claim of a JWT without verifying its signature.
// The backend remains the authority on validity; this only avoids sending a
// token that is known to be stale.
func TokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// AuthProvider is the source of session changes the Client follows.
// Implementations must be safe for concurrent use.
type AuthProvider interface {
	// CurrentSession returns the active session or nil.
	CurrentSession() *Session
	// OnSessionChange registers fn, called after every sign-in, refresh and
	// sign-out with the new session (nil after sign-out).
	OnSessionChange(fn func(*Session)) (unsubscribe func())
	// RestoreSession loads a persisted session, if any.
	RestoreSession(ctx context.Context) (*Session, error)
}

// SessionStore persists a session between process runs. Load returns
// (nil, nil) when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}

// MemorySessionStore keeps the session in process memory.
type MemorySessionStore struct {
	mu      sync.Mutex
	session *Session
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

// Load returns a copy of the stored session
func (m *MemorySessionStore) Load(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

// Save stores a copy of session
func (m *MemorySessionStore) Save(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session == nil {
		m.session = nil
		return nil
	}
	s := *session
	m.session = &s
	return nil
}

// Clear removes the stored session
func (m *MemorySessionStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// AuthClient is the built-in password authentication client. It keeps the
// current session, persists it through a SessionStore and notifies
// listeners so the Client can switch its Authorization header.
type AuthClient struct {
	transport *httpTransport
	store     SessionStore
	logger    logrus.FieldLogger
	now       func() time.Time

	mu        sync.RWMutex
	session   *Session
	listeners []listener
	nextID    int

	// changeMu orders whole session changes: swap, persist and notify
	changeMu sync.Mutex
}

type listener struct {
	id int
	fn func(*Session)
}

type authResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         User      `json:"user"`
}

func (r authResponse) session() *Session {
	s := &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		User:         r.User,
	}
	if s.ExpiresAt.IsZero() {
		if exp, ok := TokenExpiry(s.AccessToken); ok {
			s.ExpiresAt = exp
		}
	}
	return s
}

func newAuthClient(t *httpTransport, store SessionStore, logger logrus.FieldLogger) *AuthClient {
	return &AuthClient{
		transport: t,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// SignUp creates an account and signs it in.
func (a *AuthClient) SignUp(ctx context.Context, email, password, name string) (*Session, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	body := map[string]string{"email": email, "password": password, "name": name}
	return a.authenticate(ctx, authPath+"/users", body)
}

// SignInWithPassword signs in with email and password.
//
// Example:
//
//	if _, err := client.Auth().SignInWithPassword(ctx, "ada@example.com", pw); err != nil {
//	    return err
//	}
//	// every client request now carries the user's token
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	body := map[string]string{"email": email, "password": password}
	return a.authenticate(ctx, authPath+"/sessions", body)
}

func (a *AuthClient) authenticate(ctx context.Context, p string, body interface{}) (*Session, error) {
	data, err := marshalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	var resp authResponse
	err = a.transport.call(ctx, request{
		Method: http.MethodPost,
		Path:   p,
		Body:   data,
		Token:  a.transport.apiKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &DecodingError{Err: fmt.Errorf("auth response has no access token")}
	}
	session := resp.session()
	a.setSession(ctx, session)
	return session, nil
}

// Refresh exchanges the refresh token for a new session.
func (a *AuthClient) Refresh(ctx context.Context) (*Session, error) {
	current := a.CurrentSession()
	if current == nil || current.RefreshToken == "" {
		return nil, ErrNotSignedIn
	}
	session, err := a.refresh(ctx, current.RefreshToken)
	if err != nil {
		return nil, err
	}
	a.setSession(ctx, session)
	return session, nil
}

func (a *AuthClient) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	data, err := marshalJSON(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, err
	}
	var resp authResponse
	err = a.transport.call(ctx, request{
		Method: http.MethodPost,
		Path:   authPath + "/refresh",
		Body:   data,
		Token:  a.transport.apiKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &DecodingError{Err: fmt.Errorf("refresh response has no access token")}
	}
	session := resp.session()
	if session.RefreshToken == "" {
		session.RefreshToken = refreshToken
	}
	return session, nil
}

// SignOut ends the session on the backend and locally. The local session
// is cleared even when the backend call fails; that error is returned.
func (a *AuthClient) SignOut(ctx context.Context) error {
	current := a.CurrentSession()
	if current == nil {
		return nil
	}
	err := a.transport.call(ctx, request{
		Method: http.MethodPost,
		Path:   authPath + "/logout",
		Token:  current.AccessToken,
	}, nil)
	a.setSession(ctx, nil)
	return err
}

// CurrentUser fetches the signed-in user from the backend.
func (a *AuthClient) CurrentUser(ctx context.Context) (*User, error) {
	current := a.CurrentSession()
	if current == nil {
		return nil, ErrNotSignedIn
	}
	var resp struct {
		User User `json:"user"`
	}
	err := a.transport.call(ctx, request{
		Method: http.MethodGet,
		Path:   authPath + "/sessions/current",
		Token:  current.AccessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// CurrentSession returns a copy of the active session or nil.
func (a *AuthClient) CurrentSession() *Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil
	}
	s := *a.session
	return &s
}

// OnSessionChange registers fn. Listeners run synchronously in registration
// order after the session changed, outside any lock.
func (a *AuthClient) OnSessionChange(fn func(*Session)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners = append(a.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			for i, l := range a.listeners {
				if l.id == id {
					a.listeners = append(a.listeners[:i:i], a.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// RestoreSession loads the persisted session and makes it current. An
// expired session is refreshed once; when that fails the store is cleared
// and nil is returned. Listeners are not notified.
func (a *AuthClient) RestoreSession(ctx context.Context) (*Session, error) {
	session, err := a.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if session.Expired(a.now()) {
		var refreshed *Session
		var err error = ErrNotSignedIn
		if session.RefreshToken != "" {
			refreshed, err = a.refresh(ctx, session.RefreshToken)
		}
		if err != nil {
			a.logger.WithError(err).Warn("stored session expired and could not be refreshed")
			if clearErr := a.store.Clear(ctx); clearErr != nil {
				a.logger.WithError(clearErr).Warn("clearing session store failed")
			}
			return nil, nil
		}
		session = refreshed
		if err := a.store.Save(ctx, session); err != nil {
			a.logger.WithError(err).Warn("saving refreshed session failed")
		}
	}

	a.changeMu.Lock()
	a.mu.Lock()
	s := *session
	a.session = &s
	a.mu.Unlock()
	a.changeMu.Unlock()
	return session, nil
}

// setSession applies one session change. Changes never interleave, so the
// store and the listeners always end on the latest one. Listeners must not
// change the session themselves.
func (a *AuthClient) setSession(ctx context.Context, session *Session) {
	a.changeMu.Lock()
	defer a.changeMu.Unlock()

	a.mu.Lock()
	if session == nil {
		a.session = nil
	} else {
		s := *session
		a.session = &s
	}
	listeners := append([]listener(nil), a.listeners...)
	a.mu.Unlock()

	var err error
	if session == nil {
		err = a.store.Clear(ctx)
	} else {
		err = a.store.Save(ctx, session)
	}
	if err != nil {
		a.logger.WithError(err).Warn("persisting session failed")
	}

	for _, l := range listeners {
		var arg *Session
		if session != nil {
			s := *session
			arg = &s
		}
		l.fn(arg)
	}
}
