package mockbase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const localsPrincipal = "principal"

// principal is the caller behind a request
type principal struct {
	apiKey bool
	userID string
	claims *tokenClaims
}

func principalOf(c *fiber.Ctx) principal {
	p, _ := c.Locals(localsPrincipal).(principal)
	return p
}

func apiError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(NewErrorResponse(status, code, message))
}

// errorHandler renders errors returned by handlers and fiber itself
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal Server Error"
	errCode := ErrCodeInternalError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		message = fe.Message
	}

	switch status {
	case fiber.StatusNotFound:
		errCode = ErrCodeNotFound
	case fiber.StatusBadRequest, fiber.StatusMethodNotAllowed, fiber.StatusRequestEntityTooLarge:
		errCode = ErrCodeInvalidRequest
	case fiber.StatusRequestTimeout:
		errCode = ErrCodeTimeout
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("request failed")
	}
	return apiError(c, status, errCode, message)
}

// timingMiddleware adds request timing headers
func timingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		c.Set("X-Response-Time", fmt.Sprintf("%d ms", time.Since(start).Milliseconds()))
		return err
	}
}

func (s *Server) requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetRespHeader(fiber.HeaderXRequestID),
		}
		if err != nil {
			s.logger.WithFields(fields).WithError(err).Info("request")
		} else {
			s.logger.WithFields(fields).Debug("request")
		}
		return err
	}
}

func bearerToken(c *fiber.Ctx) string {
	if key := c.Get("X-API-Key"); key != "" {
		return key
	}
	auth := c.Get(fiber.HeaderAuthorization)
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// authenticate accepts the API key or a valid user access token
func (s *Server) authenticate(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(
			NewErrorResponse(fiber.StatusUnauthorized, ErrCodeUnauthorized, "missing bearer token").
				WithNextActions("send Authorization: Bearer <api key or access token>"),
		)
	}
	if token == s.config.APIKey {
		c.Locals(localsPrincipal, principal{apiKey: true})
		return c.Next()
	}

	claims, err := s.auth.verify(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(
			NewErrorResponse(fiber.StatusUnauthorized, ErrCodeUnauthorized, err.Error()).
				WithNextActions("sign in again or refresh the session"),
		)
	}
	c.Locals(localsPrincipal, principal{userID: claims.Subject, claims: claims})
	return c.Next()
}

// requireUser rejects requests made with the API key
func (s *Server) requireUser(c *fiber.Ctx) error {
	if principalOf(c).userID == "" {
		return apiError(c, fiber.StatusUnauthorized, ErrCodeUnauthorized, "a user access token is required")
	}
	return c.Next()
}
