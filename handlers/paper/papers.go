package paper

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/services/paperindex"
	"github.com/pastpapers-ai/explainer-api/utils/response"
	"github.com/pastpapers-ai/explainer-api/utils/validation"
)

// Catalog is the read side of the paper service used by students
type Catalog interface {
	Sessions(ctx context.Context) ([]paperindex.SessionBucket, error)
	FindByFilename(ctx context.Context, filename string) (*model.Paper, error)
	Download(ctx context.Context, filename string) ([]byte, *model.Paper, error)
}

// PaperHandler serves the student facing paper endpoints
type PaperHandler struct {
	catalog Catalog
}

// NewPaperHandler creates a new paper handler
func NewPaperHandler(catalog Catalog) *PaperHandler {
	return &PaperHandler{catalog: catalog}
}

// ListSessions groups the available question papers by exam session
// GET /api/v1/papers/sessions
func (h *PaperHandler) ListSessions(c *fiber.Ctx) error {
	buckets, err := h.catalog.Sessions(c.Context())
	if err != nil {
		return response.InternalServerError(c, "Failed to load sessions")
	}
	return response.Success(c, buckets)
}

// GetPaper returns metadata, page count and size of a paper
// GET /api/v1/papers/:filename
func (h *PaperHandler) GetPaper(c *fiber.Ctx) error {
	filename := c.Params("filename")
	if !validation.IsPaperFilename(filename) {
		return response.BadRequest(c, "Invalid paper filename")
	}

	p, err := h.catalog.FindByFilename(c.Context(), filename)
	if err != nil {
		if errors.Is(err, services.ErrPaperNotFound) {
			return response.NotFound(c, "Paper not found")
		}
		return response.InternalServerError(c, "Failed to load paper")
	}
	return response.Success(c, p.ToResponse())
}

// DownloadPaper streams the PDF for inline display
// GET /api/v1/papers/:filename/download
func (h *PaperHandler) DownloadPaper(c *fiber.Ctx) error {
	filename := c.Params("filename")
	if !validation.IsPaperFilename(filename) {
		return response.BadRequest(c, "Invalid paper filename")
	}

	data, p, err := h.catalog.Download(c.Context(), filename)
	if err != nil {
		if errors.Is(err, services.ErrPaperNotFound) {
			return response.NotFound(c, "Paper not found")
		}
		return response.InternalServerError(c, "Failed to load paper")
	}

	disposition := "inline"
	if c.QueryBool("attachment") {
		disposition = "attachment"
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("%s; filename=%q", disposition, p.Filename))
	return c.Send(data)
}
