package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/database"
	"github.com/pastpapers-ai/explainer-api/utils/response"
)

// HandlePing answers liveness probes
func HandlePing(c *fiber.Ctx, store database.Storage) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleCheckHealth reports whether the database answers
func HandleCheckHealth(c *fiber.Ctx, store database.Storage) error {
	if store == nil {
		return response.ServiceUnavailable(c, "Database not configured")
	}
	if err := store.HealthCheck(); err != nil {
		return response.ServiceUnavailable(c, "Database unavailable")
	}
	return response.Success(c, fiber.Map{"status": "ok", "database": "ok"})
}
