package mockbase

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var models = []ModelResponse{
	{ID: "mock/echo-chat", Provider: "mockbase", Kind: "chat"},
	{ID: "mock/echo-image", Provider: "mockbase", Kind: "image"},
}

// chatCompletion echoes the last user message back as the assistant
func (s *Server) chatCompletion(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body is not a chat request")
	}
	if req.Model == "" || len(req.Messages) == 0 {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "model and messages are required")
	}

	var prompt string
	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(strings.Fields(m.Content))
		if m.Role == "user" {
			prompt = m.Content
		}
	}
	reply := "echo: " + prompt
	if req.MaxTokens > 0 {
		words := strings.Fields(reply)
		if len(words) > req.MaxTokens {
			reply = strings.Join(words[:req.MaxTokens], " ")
		}
	}
	completionTokens := len(strings.Fields(reply))

	return c.JSON(ChatResponse{
		Model:   req.Model,
		Message: ChatMessage{Role: "assistant", Content: reply},
		Usage: &Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
}

// imageGeneration returns placeholder image URLs
func (s *Server) imageGeneration(c *fiber.Ctx) error {
	var req ImageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body is not an image request")
	}
	if req.Model == "" || req.Prompt == "" {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "model and prompt are required")
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}

	images := make([]GeneratedImage, count)
	for i := range images {
		images[i] = GeneratedImage{
			URL:           c.BaseURL() + "/images/" + uuid.NewString() + ".png",
			RevisedPrompt: req.Prompt,
		}
	}
	return c.JSON(ImageResponse{Model: req.Model, Images: images})
}

func (s *Server) listModels(c *fiber.Ctx) error {
	return c.JSON(models)
}
