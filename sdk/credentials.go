package sdk

import "sync"

const (
	headerAuthorization = "Authorization"
	headerRequestID     = "X-Request-ID"
	headerPrefer        = "Prefer"

	preferRepresentation = "return=representation"
)

// credentialState holds the outgoing auth headers shared by every resource
// client. Reads return a copy so a request never sees a half-applied update.
type credentialState struct {
	mu      sync.RWMutex
	headers map[string]string
}

func newCredentialState(apiKey string) *credentialState {
	cs := &credentialState{headers: make(map[string]string)}
	cs.setAuthorization(apiKey)
	return cs
}

// snapshot returns a copy of the current headers.
func (cs *credentialState) snapshot() map[string]string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	out := make(map[string]string, len(cs.headers))
	for k, v := range cs.headers {
		out[k] = v
	}
	return out
}

// setAuthorization is the single write path for the Authorization header.
func (cs *credentialState) setAuthorization(token string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.headers[headerAuthorization] = "Bearer " + token
}

// authorization returns the current Authorization header value.
func (cs *credentialState) authorization() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.headers[headerAuthorization]
}
