package mockbase

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// signUp handles POST /api/auth/users
func (s *Server) signUp(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body is not a credentials request")
	}
	if req.Email == "" || req.Password == "" {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "email and password are required")
	}

	user, err := s.auth.createUser(req.Email, req.Password, req.Name)
	if errors.Is(err, ErrEmailTaken) {
		s.metrics.RecordAuthEvent("sign_up", false)
		return c.Status(fiber.StatusConflict).JSON(
			NewErrorResponse(fiber.StatusConflict, ErrCodeConflict, err.Error()).
				WithNextActions("sign in with the existing account"),
		)
	}
	if err != nil {
		return err
	}

	session, err := s.auth.issue(user)
	if err != nil {
		return err
	}
	s.metrics.RecordAuthEvent("sign_up", true)
	return c.Status(fiber.StatusCreated).JSON(session)
}

// signIn handles POST /api/auth/sessions
func (s *Server) signIn(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "body is not a credentials request")
	}
	session, err := s.auth.signIn(req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		s.metrics.RecordAuthEvent("sign_in", false)
		return apiError(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", err.Error())
	}
	if err != nil {
		return err
	}
	s.metrics.RecordAuthEvent("sign_in", true)
	return c.JSON(session)
}

// refresh handles POST /api/auth/refresh. Refresh tokens are single use.
func (s *Server) refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return apiError(c, fiber.StatusBadRequest, ErrCodeInvalidRequest, "refreshToken is required")
	}
	session, err := s.auth.exchange(req.RefreshToken)
	if errors.Is(err, ErrInvalidToken) {
		s.metrics.RecordAuthEvent("refresh", false)
		return apiError(c, fiber.StatusUnauthorized, ErrCodeUnauthorized, "refresh token is invalid or already used")
	}
	if err != nil {
		return err
	}
	s.metrics.RecordAuthEvent("refresh", true)
	return c.JSON(session)
}

// logout handles POST /api/auth/logout
func (s *Server) logout(c *fiber.Ctx) error {
	s.auth.revoke(principalOf(c).claims)
	s.metrics.RecordAuthEvent("logout", true)
	c.Status(fiber.StatusNoContent)
	return nil
}

// currentSession handles GET /api/auth/sessions/current
func (s *Server) currentSession(c *fiber.Ctx) error {
	user, ok := s.auth.user(principalOf(c).userID)
	if !ok {
		return apiError(c, fiber.StatusUnauthorized, ErrCodeUnauthorized, "user no longer exists")
	}
	return c.JSON(fiber.Map{"user": user})
}
