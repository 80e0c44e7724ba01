package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	authutil "github.com/pastpapers-ai/explainer-api/utils/auth"
	"github.com/pastpapers-ai/explainer-api/utils/response"
	"github.com/pastpapers-ai/explainer-api/utils/validation"
)

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	User         UserResponse `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"` // in seconds
}

// Login handles console login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.BadRequest(c, "Email and password are required")
	}

	ctx := c.Context()
	ip := c.IP()

	user, err := h.accounts.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		log.Errorf("AuthHandler: failed to load account: %v", err)
		return response.InternalServerError(c, "Failed to login")
	}

	if user == nil {
		authutil.BurnPasswordCheck(req.Password)
		_ = h.bruteForceProtection.RecordFailedAttempt(ctx, ip)
		return response.Unauthorized(c, "Invalid email or password")
	}
	if err := authutil.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		_ = h.bruteForceProtection.RecordFailedAttempt(ctx, ip)
		return response.Unauthorized(c, "Invalid email or password")
	}

	_ = h.bruteForceProtection.RecordSuccessfulAttempt(ctx, ip)

	pair, err := h.jwtManager.GenerateTokenPair(principal(user))
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	now := h.now()
	if err := h.accounts.RecordLogin(ctx, user.ID, now); err != nil {
		log.Warnf("AuthHandler: failed to record login for user %d: %v", user.ID, err)
	}
	user.LastLoginAt = &now

	return response.Success(c, LoginResponse{
		User:         userResponse(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(pair.ExpiresAt.Sub(now).Seconds()),
	})
}

