package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/services/studysession"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
	"github.com/pastpapers-ai/explainer-api/utils/response"
	"github.com/pastpapers-ai/explainer-api/utils/validation"
)

// SessionHandler exposes the study session lifecycle
type SessionHandler struct {
	manager   *studysession.Manager
	validator *validation.Validator
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(manager *studysession.Manager) *SessionHandler {
	return &SessionHandler{
		manager:   manager,
		validator: validation.NewValidator(),
	}
}

// SessionResponse is a session plus the free allowance left
type SessionResponse struct {
	*studysession.Session
	FreeLimit     int `json:"free_limit"`
	FreeRemaining int `json:"free_remaining"`
}

func (h *SessionHandler) toResponse(s *studysession.Session) SessionResponse {
	return SessionResponse{
		Session:       s,
		FreeLimit:     h.manager.FreeLimit(),
		FreeRemaining: max(0, h.manager.FreeLimit()-s.SearchCount),
	}
}

// CreateSession starts a new study session
// POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	s, err := h.manager.Start(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to start study session")
	}

	c.Set(studysession.HeaderName, s.ID)
	return response.Created(c, h.toResponse(s))
}

// GetCurrent returns the session named by the header
// GET /api/v1/sessions/current
func (h *SessionHandler) GetCurrent(c *fiber.Ctx) error {
	s, _ := middleware.GetStudySession(c)
	return response.Success(c, h.toResponse(s))
}

type setEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SetEmail attaches an email used for subscription lookups
// PUT /api/v1/sessions/current/email
func (h *SessionHandler) SetEmail(c *fiber.Ctx) error {
	var req setEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validation.FormatValidationErrors(err))
	}

	current, _ := middleware.GetStudySession(c)
	s, err := h.manager.SetEmail(c.Context(), current.ID, req.Email)
	return h.respond(c, s, err)
}

type navigateRequest struct {
	Page string `json:"page" validate:"required"`
}

// Navigate records the page the visitor is on
// PUT /api/v1/sessions/current/page
func (h *SessionHandler) Navigate(c *fiber.Ctx) error {
	var req navigateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validation.FormatValidationErrors(err))
	}

	current, _ := middleware.GetStudySession(c)
	s, err := h.manager.Navigate(c.Context(), current.ID, req.Page)
	return h.respond(c, s, err)
}

// DismissPopup hides the subscription popup. The lock stays.
// POST /api/v1/sessions/current/dismiss-popup
func (h *SessionHandler) DismissPopup(c *fiber.Ctx) error {
	current, _ := middleware.GetStudySession(c)
	s, err := h.manager.DismissPopup(c.Context(), current.ID)
	return h.respond(c, s, err)
}

// EndSession deletes the session
// DELETE /api/v1/sessions/current
func (h *SessionHandler) EndSession(c *fiber.Ctx) error {
	current, _ := middleware.GetStudySession(c)
	if err := h.manager.End(c.Context(), current.ID); err != nil {
		return response.InternalServerError(c, "Failed to end study session")
	}
	return response.NoContent(c)
}

func (h *SessionHandler) respond(c *fiber.Ctx, s *studysession.Session, err error) error {
	switch {
	case err == nil:
		return response.Success(c, h.toResponse(s))
	case errors.Is(err, studysession.ErrUnknownPage):
		return response.BadRequest(c, "Unknown page")
	case errors.Is(err, studysession.ErrSessionNotFound):
		return response.NotFound(c, "Study session not found or expired")
	default:
		return response.InternalServerError(c, "Failed to update study session")
	}
}
