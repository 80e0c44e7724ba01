package utils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/database"
	"github.com/pastpapers-ai/explainer-api/utils/response"
)

// MakeHTTPHandleFunc adapts a handler that needs the store to a fiber
// handler. Errors that escape the handler become a 500 envelope.
func MakeHTTPHandleFunc(handler func(c *fiber.Ctx, store database.Storage) error, store database.Storage) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := handler(c, store); err != nil {
			log.Errorf("%s %s: %v", c.Method(), c.Path(), err)
			return response.InternalServerError(c, "")
		}
		return nil
	}
}
