package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/pastpapers-ai/explainer-api/model"
	"gorm.io/gorm"
)

var (
	ErrUnknownSetting = errors.New("unknown setting")
	ErrInvalidSetting = errors.New("invalid setting value")
)

// settingValidators checks values for the editable keys
var settingValidators = map[string]func(string) error{
	model.SettingPlatformName: func(v string) error {
		if v == "" || len(v) > 100 {
			return errors.New("platform name must be 1-100 characters")
		}
		return nil
	},
	model.SettingSupportEmail: func(v string) error {
		if _, err := mail.ParseAddress(v); err != nil {
			return errors.New("support email must be a valid address")
		}
		return nil
	},
	model.SettingDefaultDifficulty: func(v string) error {
		if !IsDifficulty(v) {
			return errors.New("difficulty must be Easy, Medium or Hard")
		}
		return nil
	},
}

// IsDifficulty reports whether v is one of the difficulty levels
func IsDifficulty(v string) bool {
	switch v {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		return true
	}
	return false
}

// SettingsService manages platform settings
type SettingsService struct {
	db *gorm.DB
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// All returns every setting, or only public ones
func (s *SettingsService) All(ctx context.Context, publicOnly bool) ([]model.AppSetting, error) {
	var settings []model.AppSetting
	q := s.db.WithContext(ctx).Order("key ASC")
	if publicOnly {
		q = q.Where("is_public = ?", true)
	}
	if err := q.Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

// Value returns a setting value, or fallback when it is missing
func (s *SettingsService) Value(ctx context.Context, key, fallback string) string {
	var setting model.AppSetting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		return fallback
	}
	return setting.Value
}

// DefaultDifficulty is the difficulty given to new uploads
func (s *SettingsService) DefaultDifficulty(ctx context.Context) string {
	v := s.Value(ctx, model.SettingDefaultDifficulty, model.DifficultyMedium)
	if !IsDifficulty(v) {
		return model.DifficultyMedium
	}
	return v
}

// ValidateSetting checks a key/value pair without saving it
func ValidateSetting(key, value string) error {
	validate, ok := settingValidators[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	if err := validate(value); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	return nil
}

// Update validates and saves a batch of settings atomically, returning the
// previous values of the changed keys.
func (s *SettingsService) Update(ctx context.Context, values map[string]string, adminID uint) (map[string]string, error) {
	for key, value := range values {
		if err := ValidateSetting(key, value); err != nil {
			return nil, err
		}
	}

	previous := make(map[string]string, len(values))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			var setting model.AppSetting
			err := tx.Where("key = ?", key).First(&setting).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				setting = model.AppSetting{Key: key}
			case err != nil:
				return err
			default:
				previous[key] = setting.Value
			}

			setting.Value = value
			setting.UpdatedBy = &adminID
			if err := tx.Save(&setting).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return previous, nil
}
