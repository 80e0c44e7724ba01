package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/services/studysession"
	"github.com/pastpapers-ai/explainer-api/utils/response"
)

// RequireStudySession loads the session named by the X-Study-Session header
func RequireStudySession(manager *studysession.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(studysession.HeaderName)
		if id == "" {
			return response.BadRequest(c, "Missing "+studysession.HeaderName+" header")
		}

		sess, err := manager.Get(c.Context(), id)
		if err != nil {
			if errors.Is(err, studysession.ErrSessionNotFound) {
				return response.NotFound(c, "Study session not found or expired")
			}
			return response.InternalServerError(c, "Failed to load study session")
		}

		c.Locals("study_session", sess)
		return c.Next()
	}
}

// GetStudySession returns the session loaded by RequireStudySession
func GetStudySession(c *fiber.Ctx) (*studysession.Session, bool) {
	s, ok := c.Locals("study_session").(*studysession.Session)
	return s, ok && s != nil
}
