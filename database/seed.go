package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/utils/auth"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAdminExists is returned when creating an admin whose email is taken
var ErrAdminExists = errors.New("a user with this email already exists")

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedAll creates the bootstrap admin (when credentials are given) and the
// default platform settings.
func (s *Seeder) SeedAll(adminEmail, adminPassword string) error {
	if err := s.SeedAdminUser(adminEmail, adminPassword); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedAppSettings(); err != nil {
		return fmt.Errorf("failed to seed app settings: %w", err)
	}

	return nil
}

// SeedAdminUser creates the first admin account unless one already exists
func (s *Seeder) SeedAdminUser(email, password string) error {
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil
	}

	if email == "" || password == "" {
		log.Warn("Seeder: ADMIN_EMAIL and ADMIN_PASSWORD not set, skipping admin user creation")
		return nil
	}

	admin, err := s.CreateAdmin(email, password, "System Administrator")
	if err != nil {
		return err
	}

	log.Infof("Seeder: created admin user %s", admin.Email)
	return nil
}

// CreateAdmin creates an admin account with the given credentials
func (s *Seeder) CreateAdmin(email, password, name string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var existing int64
	if err := s.db.Model(&model.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrAdminExists
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         model.RoleAdmin,
	}
	if err := s.db.Create(admin).Error; err != nil {
		return nil, err
	}
	return admin, nil
}

// SeedAppSettings inserts missing default settings without touching edited ones
func (s *Seeder) SeedAppSettings() error {
	settings := model.DefaultSettings()
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&settings).Error
}
