package mockbase

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const tokenIssuer = "roost-mockbase"

// tokenClaims are the claims of an access token
type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type account struct {
	user         UserResponse
	passwordHash []byte
}

// authStore keeps accounts, refresh tokens and revoked access tokens
type authStore struct {
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time

	mu      sync.RWMutex
	byEmail map[string]*account
	byID    map[string]*account
	refresh map[string]string
	revoked map[string]time.Time
}

func newAuthStore(cfg *Config, now func() time.Time) *authStore {
	return &authStore{
		secret:  []byte(cfg.JWTSecret),
		ttl:     cfg.TokenTTL,
		cost:    cfg.PasswordCost,
		now:     now,
		byEmail: make(map[string]*account),
		byID:    make(map[string]*account),
		refresh: make(map[string]string),
		revoked: make(map[string]time.Time),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *authStore) createUser(email, password, name string) (UserResponse, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return UserResponse{}, fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return UserResponse{}, fmt.Errorf("hashing password: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.byEmail[email]; ok {
		return UserResponse{}, ErrEmailTaken
	}
	now := a.now().UTC()
	acct := &account{
		user: UserResponse{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		passwordHash: hash,
	}
	a.byEmail[email] = acct
	a.byID[acct.user.ID] = acct
	return acct.user, nil
}

func (a *authStore) signIn(email, password string) (SessionResponse, error) {
	a.mu.RLock()
	acct, ok := a.byEmail[normalizeEmail(email)]
	a.mu.RUnlock()
	if !ok {
		return SessionResponse{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)); err != nil {
		return SessionResponse{}, ErrInvalidCredentials
	}
	return a.issue(acct.user)
}

// exchange rotates a refresh token into a new session
func (a *authStore) exchange(refreshToken string) (SessionResponse, error) {
	a.mu.Lock()
	userID, ok := a.refresh[refreshToken]
	if ok {
		delete(a.refresh, refreshToken)
	}
	acct := a.byID[userID]
	a.mu.Unlock()
	if !ok || acct == nil {
		return SessionResponse{}, ErrInvalidToken
	}
	return a.issue(acct.user)
}

func (a *authStore) issue(user UserResponse) (SessionResponse, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)
	claims := tokenClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("signing token: %w", err)
	}

	refreshToken := uuid.NewString()
	a.mu.Lock()
	a.refresh[refreshToken] = user.ID
	a.mu.Unlock()

	return SessionResponse{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.ExpiresAt.Time.UTC(),
		User:         user,
	}, nil
}

// verify validates an access token and returns its claims
func (a *authStore) verify(token string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, revoked := a.revoked[claims.ID]; revoked {
		return nil, ErrInvalidToken
	}
	if _, ok := a.byID[claims.Subject]; !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// revoke invalidates the access token and every refresh token of its user
func (a *authStore) revoke(claims *tokenClaims) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[claims.ID] = claims.ExpiresAt.Time
	for token, userID := range a.refresh {
		if userID == claims.Subject {
			delete(a.refresh, token)
		}
	}
	now := a.now()
	for id, exp := range a.revoked {
		if now.After(exp) {
			delete(a.revoked, id)
		}
	}
}

func (a *authStore) user(id string) (UserResponse, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acct, ok := a.byID[id]
	if !ok {
		return UserResponse{}, false
	}
	return acct.user, true
}
