package sdk

import (
	"context"
	"fmt"
	"net/http"
)

const aiPath = "/api/ai"

// AI exposes the platform's model gateway.
type AI struct {
	transport *httpTransport
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest asks a model for a completion.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"maxTokens,omitempty"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatResponse is a completed chat turn.
type ChatResponse struct {
	Model   string      `json:"model"`
	Message ChatMessage `json:"message"`
	Usage   *Usage      `json:"usage,omitempty"`
}

// Text returns the assistant reply.
func (r *ChatResponse) Text() string {
	return r.Message.Content
}

// ImageRequest asks a model to generate images.
type ImageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Size   string `json:"size,omitempty"`
	Count  int    `json:"count,omitempty"`
}

// GeneratedImage is one generated image, either a URL or base64 data.
type GeneratedImage struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64Json,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
}

// ImageResponse holds generated images.
type ImageResponse struct {
	Model  string           `json:"model"`
	Images []GeneratedImage `json:"images"`
}

// Model describes a model the gateway can route to.
type Model struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Kind     string `json:"kind"`
}

// ChatCompletion sends a conversation and returns the model's reply.
//
// Example:
//
//	resp, err := client.AI().ChatCompletion(ctx, sdk.ChatRequest{
//	    Model:    "openai/gpt-4o-mini",
//	    Messages: []sdk.ChatMessage{{Role: "user", Content: "hello"}},
//	})
func (a *AI) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" || len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: chat completion needs a model and at least one message", ErrInvalidInput)
	}
	var out ChatResponse
	if err := a.post(ctx, aiPath+"/chat/completion", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateImage generates images from a prompt.
func (a *AI) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	if req.Model == "" || req.Prompt == "" {
		return nil, fmt.Errorf("%w: image generation needs a model and a prompt", ErrInvalidInput)
	}
	var out ImageResponse
	if err := a.post(ctx, aiPath+"/image/generation", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListModels returns the models available to the project.
func (a *AI) ListModels(ctx context.Context) ([]Model, error) {
	models := []Model{}
	err := a.transport.call(ctx, request{Method: http.MethodGet, Path: aiPath + "/models"}, &models)
	if err != nil {
		return nil, err
	}
	return models, nil
}

func (a *AI) post(ctx context.Context, p string, body, dest interface{}) error {
	data, err := marshalJSON(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return a.transport.call(ctx, request{Method: http.MethodPost, Path: p, Body: data}, dest)
}
