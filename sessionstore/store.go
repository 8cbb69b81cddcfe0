// Package sessionstore persists roost sessions outside process memory. Every
// store implements sdk.SessionStore; pick one with sdk.Config.WithSessionStore.
package sessionstore

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/birbparty/roost/sdk"
)

// DefaultNamespace is used when a store is created without a namespace
const DefaultNamespace = "default"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrCorrupt is returned when a stored session cannot be decoded
	ErrCorrupt = errors.New("stored session is corrupt")
	// ErrStoreClosed is returned by operations on a closed store
	ErrStoreClosed = NewStoreError("session store is closed", false)
)

// StoreError is a backend failure with a retry hint
type StoreError struct {
	Message    string
	Retryable  bool
	Underlying error
}

// NewStoreError creates a store error
func NewStoreError(message string, retryable bool) *StoreError {
	return &StoreError{Message: message, Retryable: retryable}
}

func (e *StoreError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Underlying
}

// WithError returns a copy of e wrapping err
func (e *StoreError) WithError(err error) *StoreError {
	return &StoreError{Message: e.Message, Retryable: e.Retryable, Underlying: err}
}

// IsRetryable reports whether err is a StoreError marked retryable
func IsRetryable(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.Retryable
}

func encode(session *sdk.Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*sdk.Session, error) {
	var session sdk.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrCorrupt)
	}
	return &session, nil
}

// ttl is the time left until session expires; zero means no expiry
func ttl(session *sdk.Session, now time.Time) time.Duration {
	expiry := session.ExpiresAt
	if expiry.IsZero() {
		var ok bool
		if expiry, ok = sdk.TokenExpiry(session.AccessToken); !ok {
			return 0
		}
	}
	left := expiry.Sub(now)
	if left <= 0 {
		// keep expired sessions briefly so a refresh can still be attempted
		return time.Minute
	}
	return left
}

func namespaceOrDefault(namespace string) string {
	if namespace == "" {
		return DefaultNamespace
	}
	return namespace
}
