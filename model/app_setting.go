package model

import (
	"time"
)

// Setting keys editable from the admin console
const (
	SettingPlatformName      = "platform_name"
	SettingSupportEmail      = "support_email"
	SettingDefaultDifficulty = "default_difficulty"
)

// AppSetting is a single key/value platform setting
type AppSetting struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Key         string    `gorm:"uniqueIndex;not null" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Description string    `gorm:"type:text" json:"description"`
	IsPublic    bool      `gorm:"default:false" json:"is_public"` // If true, can be read without auth
	UpdatedBy   *uint     `json:"updated_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for AppSetting
func (AppSetting) TableName() string {
	return "app_settings"
}

// DefaultSettings are seeded on first start
func DefaultSettings() []AppSetting {
	return []AppSetting{
		{Key: SettingPlatformName, Value: "A-Level Physics Explainer", Description: "Name shown in the student UI", IsPublic: true},
		{Key: SettingSupportEmail, Value: "support@example.com", Description: "Contact address shown to students", IsPublic: true},
		{Key: SettingDefaultDifficulty, Value: DifficultyMedium, Description: "Difficulty assigned to newly uploaded papers"},
	}
}
