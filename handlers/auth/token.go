package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	authutil "github.com/pastpapers-ai/explainer-api/utils/auth"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
	"github.com/pastpapers-ai/explainer-api/utils/response"
)

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshResponse represents a token refresh response
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshToken rotates a refresh token. The old one is revoked.
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if req.RefreshToken == "" {
		return response.BadRequest(c, "Refresh token is required")
	}

	claims, err := h.jwtManager.ValidateToken(req.RefreshToken, authutil.TokenTypeRefresh)
	if err != nil {
		if errors.Is(err, authutil.ErrWrongTokenType) {
			return response.Unauthorized(c, "Invalid token type")
		}
		return response.Unauthorized(c, "Invalid or expired refresh token")
	}

	ctx := c.Context()
	isRevoked, err := h.blacklist.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to check token status")
	}
	if isRevoked {
		return response.Unauthorized(c, "Token has been revoked")
	}

	user, err := h.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return response.Unauthorized(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to refresh token")
	}
	if user.TokenVersion != claims.TokenVersion {
		return response.Unauthorized(c, "Token has been invalidated")
	}

	pair, err := h.jwtManager.GenerateTokenPair(principal(user))
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	if err := h.blacklist.RevokeToken(ctx, claims.ID, user.ID, claims.ExpiresAtTime(), "token_refresh"); err != nil {
		// the old token still expires on its own
		log.Warnf("AuthHandler: failed to revoke refresh token %s: %v", claims.ID, err)
	}

	return response.Success(c, RefreshResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(pair.ExpiresAt.Sub(h.now()).Seconds()),
	})
}

// LogoutRequest optionally names the refresh token to revoke with the access token
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the access token and, when given, the refresh token
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}
	jti, ok := middleware.GetTokenJTI(c)
	if !ok {
		return response.BadRequest(c, "No token ID found")
	}

	expiresAt := h.now()
	if claims, ok := middleware.GetClaims(c); ok {
		expiresAt = claims.ExpiresAtTime()
	}

	ctx := c.Context()
	if err := h.blacklist.RevokeToken(ctx, jti, user.ID, expiresAt, "logout"); err != nil {
		return response.InternalServerError(c, "Failed to logout")
	}

	var req LogoutRequest
	if len(c.Body()) > 0 && c.BodyParser(&req) == nil && req.RefreshToken != "" {
		refresh, err := h.jwtManager.ValidateToken(req.RefreshToken, authutil.TokenTypeRefresh)
		if err == nil && refresh.UserID == user.ID {
			if err := h.blacklist.RevokeToken(ctx, refresh.ID, user.ID, refresh.ExpiresAtTime(), "logout"); err != nil {
				log.Warnf("AuthHandler: failed to revoke refresh token %s: %v", refresh.ID, err)
			}
		}
	}

	return response.SuccessWithMessage(c, "Successfully logged out", nil)
}
