package mockbase

import (
	"context"
	"net/url"
	"sync"

	"github.com/gofiber/fiber/v2"
)

// FunctionRequest is what a registered function receives
type FunctionRequest struct {
	Method  string
	Headers map[string]string
	Body    []byte
	// UserID is empty when the caller used the API key
	UserID string
}

// FunctionReply is what a registered function returns. A []byte Body is
// written as raw JSON, nil writes no body and anything else is marshaled.
type FunctionReply struct {
	Status int
	Body   interface{}
}

// FunctionHandler implements a serverless function
type FunctionHandler func(ctx context.Context, req FunctionRequest) (FunctionReply, error)

type functionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]FunctionHandler
}

func newFunctionRegistry() *functionRegistry {
	return &functionRegistry{handlers: make(map[string]FunctionHandler)}
}

func (r *functionRegistry) register(slug string, handler FunctionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[slug] = handler
}

func (r *functionRegistry) lookup(slug string) (FunctionHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[slug]
	return h, ok
}

// echoFunction replies with the request body, or null when there is none
func echoFunction(_ context.Context, req FunctionRequest) (FunctionReply, error) {
	if len(req.Body) == 0 {
		return FunctionReply{Status: fiber.StatusOK, Body: []byte("null")}, nil
	}
	return FunctionReply{Status: fiber.StatusOK, Body: req.Body}, nil
}

// invokeFunction handles any method on /functions/:slug
func (s *Server) invokeFunction(c *fiber.Ctx) error {
	slug, err := url.PathUnescape(c.Params("slug"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid function slug")
	}
	handler, ok := s.functions.lookup(slug)
	if !ok {
		return apiError(c, fiber.StatusNotFound, ErrCodeNotFound, "function "+slug+" is not deployed")
	}

	req := FunctionRequest{
		Method:  c.Method(),
		Headers: requestHeaders(c),
		Body:    append([]byte(nil), c.Body()...),
		UserID:  principalOf(c).userID,
	}
	reply, err := handler(c.UserContext(), req)
	if err != nil {
		s.logger.WithError(err).WithField("function", slug).Warn("function failed")
		return apiError(c, fiber.StatusInternalServerError, "FUNCTION_ERROR", err.Error())
	}

	status := reply.Status
	switch body := reply.Body.(type) {
	case nil:
		if status == 0 {
			status = fiber.StatusNoContent
		}
		c.Status(status)
		return nil
	case []byte:
		if status == 0 {
			status = fiber.StatusOK
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Status(status).Send(body)
	default:
		if status == 0 {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(body)
	}
}

func requestHeaders(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})
	return headers
}
