package model

import (
	"time"

	"gorm.io/gorm"
)

// Roles a user can hold
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User is an account that can sign in. Students usually browse anonymously
// through a study session; accounts are needed for the admin console.
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"` // Never expose password in JSON
	Name         string         `gorm:"not null" json:"name"`
	Role         string         `gorm:"type:varchar(20);default:'student'" json:"role"` // student, admin
	TokenVersion int            `gorm:"default:0" json:"-"`                             // Increment to invalidate all user tokens
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`

	// Relationships
	AdminAuditLog  []AdminAuditLog     `gorm:"foreignKey:AdminID;constraint:OnDelete:CASCADE" json:"-"`
	TokenBlacklist []JWTTokenBlacklist `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsAdmin reports whether the user may use the admin console
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
