package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/fixmyward/ward-service/internal/api/dto"
	"github.com/fixmyward/ward-service/internal/auth"
	"github.com/fixmyward/ward-service/internal/domain"
	"github.com/fixmyward/ward-service/internal/service"
	apperrors "github.com/fixmyward/ward-service/pkg/util/errorutil"
)

// AuthHandler exposes the account endpoints.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.auth.Signup(c.UserContext(), service.SignupInput{
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
		Ward:     req.Ward,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": sessionResponse(result)})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.auth.Login(c.UserContext(), req.Username, req.Password, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": sessionResponse(result)})
}

// ForgotPassword handles POST /auth/forgot. The answer is the same whether
// or not the email belongs to an account.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.auth.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{
		"message": "If an account exists for that email, a reset link has been sent.",
	}})
}

// ResetPassword handles POST /auth/reset.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.auth.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	user := principal.User
	if user == nil {
		var err error
		if user, err = h.auth.CurrentUser(c.UserContext(), principal.UserID); err != nil {
			return err
		}
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

func sessionResponse(result *service.AuthResult) dto.SessionResponse {
	return dto.SessionResponse{
		User: userResponse(result.User),
		Auth: dto.AuthResponse{Token: result.Token, ExpiresAt: result.ExpiresAt},
	}
}

func userResponse(u *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		Ward:      u.Ward,
		CreatedAt: u.CreatedAt,
	}
}
