package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/utils/auth"
	"github.com/pastpapers-ai/explainer-api/utils/response"
	"gorm.io/gorm"
)

// RevocationChecker reports whether a token id was blacklisted
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// UserFinder loads the account behind a token
type UserFinder func(ctx context.Context, id uint) (*model.User, error)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	revoked    RevocationChecker
	findUser   UserFinder
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *auth.JWTManager, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		revoked:    auth.NewBlacklistService(db),
		findUser: func(ctx context.Context, id uint) (*model.User, error) {
			var user model.User
			if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
				return nil, err
			}
			return &user, nil
		},
	}
}

var (
	errMissingToken  = errors.New("missing authorization token")
	errBadFormat     = errors.New("invalid authorization format")
	errTokenRevoked  = errors.New("token has been revoked")
	errTokenReplaced = errors.New("token has been invalidated")
	errNoUser        = errors.New("user not found")
)

// unauthorizedMessages maps authentication failures to client messages
var unauthorizedMessages = []struct {
	err     error
	message string
}{
	{errMissingToken, "Missing authorization token"},
	{errBadFormat, "Invalid authorization format"},
	{auth.ErrExpiredToken, "Token has expired"},
	{auth.ErrWrongTokenType, "Invalid token type"},
	{errTokenRevoked, "Token has been revoked"},
	{errTokenReplaced, "Token has been invalidated"},
	{errNoUser, "User not found"},
}

func unauthorizedMessage(err error) string {
	for _, m := range unauthorizedMessages {
		if errors.Is(err, m.err) {
			return m.message
		}
	}
	return "Invalid token"
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", errMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errBadFormat
	}
	return parts[1], nil
}

// authenticate validates the access token and loads its user. A non-nil
// error with a nil user is a client error; storage failures are returned
// wrapped so callers can tell them apart.
func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*auth.Claims, *model.User, error) {
	tokenString, err := bearerToken(c)
	if err != nil {
		return nil, nil, err
	}

	claims, err := m.jwtManager.ValidateToken(tokenString, auth.TokenTypeAccess)
	if err != nil {
		return nil, nil, err
	}

	isRevoked, err := m.revoked.IsTokenRevoked(c.Context(), claims.ID)
	if err != nil {
		return nil, nil, &storageError{err}
	}
	if isRevoked {
		return nil, nil, errTokenRevoked
	}

	user, err := m.findUser(c.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, errNoUser
		}
		return nil, nil, &storageError{err}
	}

	// password changes and "log out everywhere" bump the version
	if user.TokenVersion != claims.TokenVersion {
		return nil, nil, errTokenReplaced
	}
	return claims, user, nil
}

type storageError struct{ err error }

func (e *storageError) Error() string { return e.err.Error() }
func (e *storageError) Unwrap() error { return e.err }

func setIdentity(c *fiber.Ctx, claims *auth.Claims, user *model.User) {
	c.Locals("user_id", claims.UserID)
	c.Locals("user_email", claims.Email)
	c.Locals("user_role", user.Role)
	c.Locals("claims", claims)
	c.Locals("user", user)
	c.Locals("token_jti", claims.ID)
}

// Required is middleware that requires a valid JWT token
func (m *AuthMiddleware) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, user, err := m.authenticate(c)
		if err != nil {
			var se *storageError
			if errors.As(err, &se) {
				return response.InternalServerError(c, "Failed to verify token")
			}
			return response.Unauthorized(c, unauthorizedMessage(err))
		}

		setIdentity(c, claims, user)
		return c.Next()
	}
}

// Optional is middleware that allows requests with or without a token
func (m *AuthMiddleware) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if claims, user, err := m.authenticate(c); err == nil {
			setIdentity(c, claims, user)
		}
		return c.Next()
	}
}

// RequireAdmin must run after Required. The role is read from the loaded
// user, not the token, so a demotion takes effect immediately.
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := GetUser(c)
		if !ok {
			return response.Unauthorized(c, "Authentication required")
		}
		if !user.IsAdmin() {
			return response.Forbidden(c, "Admin access required")
		}
		return c.Next()
	}
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("user_id").(uint)
	return id, ok
}

// GetUserEmail extracts user email from context
func GetUserEmail(c *fiber.Ctx) (string, bool) {
	e, ok := c.Locals("user_email").(string)
	return e, ok
}

// GetUser extracts full user object from context
func GetUser(c *fiber.Ctx) (*model.User, bool) {
	u, ok := c.Locals("user").(*model.User)
	return u, ok && u != nil
}

// GetClaims extracts full claims from context
func GetClaims(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals("claims").(*auth.Claims)
	return claims, ok
}

// GetTokenJTI extracts the token JTI from context
func GetTokenJTI(c *fiber.Ctx) (string, bool) {
	j, ok := c.Locals("token_jti").(string)
	return j, ok
}
