package admin

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/database"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
	"github.com/pastpapers-ai/explainer-api/utils/response"
)

// ListSettings retrieves all app settings
// GET /admin/settings
func ListSettings(c *fiber.Ctx, store database.Storage) error {
	settings, err := services.NewSettingsService(store.GetDB()).All(c.Context(), false)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch settings")
	}

	return response.SuccessWithMessage(c, "Settings retrieved successfully", settings)
}

// ListPublicSettings retrieves the settings shown to students
// GET /settings
func ListPublicSettings(c *fiber.Ctx, store database.Storage) error {
	settings, err := services.NewSettingsService(store.GetDB()).All(c.Context(), true)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch settings")
	}

	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
	}
	return response.Success(c, values)
}

// UpdateSettings updates several settings at once
// PUT /admin/settings
func UpdateSettings(c *fiber.Ctx, store database.Storage) error {
	var values map[string]string
	if err := c.BodyParser(&values); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if len(values) == 0 {
		return response.BadRequest(c, "No settings given")
	}

	adminID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	previous, err := services.NewSettingsService(store.GetDB()).Update(c.Context(), values, adminID)
	if err != nil {
		if errors.Is(err, services.ErrUnknownSetting) || errors.Is(err, services.ErrInvalidSetting) {
			return response.BadRequest(c, err.Error())
		}
		return response.InternalServerError(c, "Failed to update settings")
	}
	middleware.SetAuditOldValue(c, previous)

	return response.SuccessWithMessage(c, "Settings updated successfully", values)
}
