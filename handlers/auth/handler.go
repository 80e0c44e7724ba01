package auth

import (
	"context"
	"errors"
	"time"

	"github.com/pastpapers-ai/explainer-api/model"
	authutil "github.com/pastpapers-ai/explainer-api/utils/auth"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
	"github.com/pastpapers-ai/explainer-api/utils/validation"
	"gorm.io/gorm"
)

var ErrAccountNotFound = errors.New("account not found")

// Accounts loads and updates console accounts
type Accounts interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	RecordLogin(ctx context.Context, id uint, at time.Time) error
	// UpdatePassword stores a new hash and bumps the token version
	UpdatePassword(ctx context.Context, id uint, hash string) error
}

// Revoker blacklists token ids
type Revoker interface {
	RevokeToken(ctx context.Context, jti string, userID uint, expiresAt time.Time, reason string) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	accounts             Accounts
	jwtManager           *authutil.JWTManager
	blacklist            Revoker
	bruteForceProtection *middleware.BruteForceProtection
	validator            *validation.Validator
	now                  func() time.Time
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(db *gorm.DB, jwtManager *authutil.JWTManager, bruteForceProtection *middleware.BruteForceProtection) *AuthHandler {
	return newAuthHandler(&gormAccounts{db: db}, jwtManager, authutil.NewBlacklistService(db), bruteForceProtection)
}

func newAuthHandler(accounts Accounts, jwtManager *authutil.JWTManager, blacklist Revoker, bfp *middleware.BruteForceProtection) *AuthHandler {
	return &AuthHandler{
		accounts:             accounts,
		jwtManager:           jwtManager,
		blacklist:            blacklist,
		bruteForceProtection: bfp,
		validator:            validation.NewValidator(),
		now:                  time.Now,
	}
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID          uint       `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func userResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func principal(u *model.User) authutil.Principal {
	return authutil.Principal{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		TokenVersion: u.TokenVersion,
	}
}

type gormAccounts struct {
	db *gorm.DB
}

func (a *gormAccounts) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := a.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (a *gormAccounts) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := a.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (a *gormAccounts) RecordLogin(ctx context.Context, id uint, at time.Time) error {
	return a.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("last_login_at", at).Error
}

func (a *gormAccounts) UpdatePassword(ctx context.Context, id uint, hash string) error {
	return a.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"password_hash": hash,
		"token_version": gorm.Expr("token_version + 1"),
	}).Error
}
