package mockbase

import (
	"encoding/json"
	"time"
)

// Error codes returned in the "error" field of error bodies
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInvalidQuery   = "INVALID_QUERY"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeTableNotFound  = "TABLE_NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternalError  = "INTERNAL_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	StatusCode  int    `json:"statusCode"`
	NextActions string `json:"nextActions,omitempty"`
}

// NewErrorResponse creates an error body
func NewErrorResponse(status int, code, message string) ErrorResponse {
	return ErrorResponse{Error: code, Message: message, StatusCode: status}
}

// WithNextActions attaches a remediation hint
func (e ErrorResponse) WithNextActions(hint string) ErrorResponse {
	e.NextActions = hint
	return e
}

// UserResponse is the public view of an account
type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SessionResponse is returned by sign-up, sign-in and refresh
type SessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         UserResponse `json:"user"`
}

// CredentialsRequest is the body of sign-up and sign-in
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// RefreshRequest is the body of a token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ObjectResponse describes a stored object
type ObjectResponse struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
	URL        string    `json:"url,omitempty"`
}

// ObjectListResponse is one page of a bucket listing
type ObjectListResponse struct {
	Objects []ObjectResponse `json:"objects"`
	Total   int              `json:"total"`
}

// ChatMessage is one turn of a chat completion
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a chat completion
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"maxTokens,omitempty"`
}

// Usage counts tokens of a completion
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatResponse is the reply of a chat completion
type ChatResponse struct {
	Model   string      `json:"model"`
	Message ChatMessage `json:"message"`
	Usage   *Usage      `json:"usage,omitempty"`
}

// ImageRequest is the body of an image generation
type ImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	Count  int    `json:"count,omitempty"`
}

// ImageResponse is the reply of an image generation
type ImageResponse struct {
	Model  string           `json:"model"`
	Images []GeneratedImage `json:"images"`
}

// GeneratedImage is one generated image
type GeneratedImage struct {
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// ModelResponse describes an available model
type ModelResponse struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
}

// ChannelResponse describes a realtime channel
type ChannelResponse struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PublishRequest is the body of a channel publish
type PublishRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// MessageResponse is a stored channel message
type MessageResponse struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	SenderID  string          `json:"senderId,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}
