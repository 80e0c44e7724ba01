package admin

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/services/paperindex"
	"github.com/pastpapers-ai/explainer-api/services/papercrawler"
	"github.com/pastpapers-ai/explainer-api/services/pdftext"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
	"github.com/pastpapers-ai/explainer-api/utils/query"
	"github.com/pastpapers-ai/explainer-api/utils/response"
	"github.com/pastpapers-ai/explainer-api/utils/validation"
)

// Papers is the catalogue surface the admin console manages
type Papers interface {
	Upload(ctx context.Context, in services.UploadInput) (*model.Paper, error)
	List(ctx context.Context, filter services.PaperFilter, page query.Pagination) ([]model.Paper, int64, error)
	Get(ctx context.Context, id uint) (*model.Paper, error)
	UpdateMetadata(ctx context.Context, id uint, upd services.MetadataUpdate) (*model.Paper, error)
	ToggleModeration(ctx context.Context, id uint) (*model.Paper, error)
	Delete(ctx context.Context, id uint) (*model.Paper, error)
	ImportDir(ctx context.Context, dir string) (*services.ImportReport, error)
	ImportFromCrawler(ctx context.Context, crawler papercrawler.Crawler, uploadedBy *uint) (*services.ImportReport, error)
}

// PaperAdminHandler handles paper management in the admin console
type PaperAdminHandler struct {
	papers    Papers
	crawlers  *papercrawler.Factory
	dataDir   string
	validator *validation.Validator
}

// NewPaperAdminHandler creates a new paper admin handler
func NewPaperAdminHandler(papers Papers, crawlers *papercrawler.Factory, dataDir string) *PaperAdminHandler {
	return &PaperAdminHandler{
		papers:    papers,
		crawlers:  crawlers,
		dataDir:   dataDir,
		validator: validation.NewValidator(),
	}
}

// UploadMetadata are the form fields sent with an upload
type UploadMetadata struct {
	Subject    string `form:"subject" json:"subject" validate:"max=100"`
	Difficulty string `form:"difficulty" json:"difficulty" validate:"omitempty,difficulty"`
	Topics     string `form:"topics" json:"topics" validate:"max=1000"` // comma separated
	Moderated  bool   `form:"moderated" json:"moderated"`
}

// UpdatePaperRequest edits paper metadata; absent fields are unchanged
type UpdatePaperRequest struct {
	Subject    *string  `json:"subject" validate:"omitempty,min=1,max=100"`
	Difficulty *string  `json:"difficulty" validate:"omitempty,difficulty"`
	Topics     []string `json:"topics" validate:"omitempty,max=50,dive,min=1,max=100"`
	ExamBoard  *string  `json:"exam_board" validate:"omitempty,min=1,max=20"`
}

// CrawlRequest names the crawler source to import from
type CrawlRequest struct {
	Source string `json:"source" validate:"required"`
}

func splitTopics(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func paperError(c *fiber.Ctx, err error, action string) error {
	switch {
	case errors.Is(err, services.ErrPaperNotFound):
		return response.NotFound(c, "Paper not found")
	case errors.Is(err, services.ErrInvalidDifficulty),
		errors.Is(err, paperindex.ErrBadFilename):
		return response.BadRequest(c, err.Error())
	case errors.Is(err, pdftext.ErrEmptyPDF),
		errors.Is(err, pdftext.ErrNotPDF),
		errors.Is(err, pdftext.ErrTooLarge),
		errors.Is(err, pdftext.ErrTooManyPages),
		errors.Is(err, pdftext.ErrNoPages):
		return response.UnprocessableEntity(c, err.Error(), "INVALID_PDF", nil)
	default:
		log.Errorf("PaperAdminHandler: failed to %s: %v", action, err)
		return response.InternalServerError(c, "Failed to "+action)
	}
}

func paperID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	return uint(id), err
}

func responses(papers []model.Paper) []model.PaperResponse {
	out := make([]model.PaperResponse, 0, len(papers))
	for i := range papers {
		out = append(out, papers[i].ToResponse())
	}
	return out
}

// UploadPaper stores a PDF from a multipart form field "file"
// POST /api/v1/admin/papers
func (h *PaperAdminHandler) UploadPaper(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.BadRequest(c, "A PDF file is required in the 'file' field")
	}
	if !validation.IsPaperFilename(fileHeader.Filename) {
		return response.BadRequest(c, "Filename must follow <code>_<session>_<qp|ms>_<paper>.pdf")
	}

	var meta UploadMetadata
	if err := c.BodyParser(&meta); err != nil {
		return response.BadRequest(c, "Invalid form fields")
	}
	if err := h.validator.ValidateStruct(meta); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validation.FormatValidationErrors(err))
	}

	f, err := fileHeader.Open()
	if err != nil {
		return response.BadRequest(c, "Failed to read uploaded file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(pdftext.PaperLimits.MaxFileSizeMB)<<20+1))
	if err != nil {
		return response.BadRequest(c, "Failed to read uploaded file")
	}

	var uploadedBy *uint
	if id, ok := middleware.GetUserID(c); ok {
		uploadedBy = &id
	}

	paper, err := h.papers.Upload(c.Context(), services.UploadInput{
		Filename:   fileHeader.Filename,
		Data:       data,
		Subject:    validation.SanitizeString(meta.Subject),
		Difficulty: meta.Difficulty,
		Topics:     splitTopics(meta.Topics),
		Moderated:  meta.Moderated,
		UploadedBy: uploadedBy,
	})
	if err != nil {
		return paperError(c, err, "upload paper")
	}

	return response.Created(c, paper.ToResponse())
}

// ListPapers lists papers with filters and pagination
// GET /api/v1/admin/papers?exam_board=&year=&session=&doc_type=&moderated=&search=
func (h *PaperAdminHandler) ListPapers(c *fiber.Ctx) error {
	filter := services.PaperFilter{
		ExamBoard:   c.Query("exam_board"),
		Year:        c.QueryInt("year", 0),
		SessionCode: c.Query("session"),
		DocType:     c.Query("doc_type"),
		Search:      c.Query("search"),
	}
	if raw := c.Query("moderated"); raw != "" {
		moderated, err := strconv.ParseBool(raw)
		if err != nil {
			return response.BadRequest(c, "moderated must be true or false")
		}
		filter.Moderated = &moderated
	}

	page := query.FromContext(c)
	papers, total, err := h.papers.List(c.Context(), filter, page)
	if err != nil {
		return paperError(c, err, "list papers")
	}

	return response.Paginated(c, responses(papers), response.CalculatePagination(page, total))
}

// UpdatePaper edits paper metadata
// PATCH /api/v1/admin/papers/:id
func (h *PaperAdminHandler) UpdatePaper(c *fiber.Ctx) error {
	id, err := paperID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid paper ID")
	}

	var req UpdatePaperRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validation.FormatValidationErrors(err))
	}

	ctx := c.Context()
	before, err := h.papers.Get(ctx, id)
	if err != nil {
		return paperError(c, err, "update paper")
	}
	middleware.SetAuditOldValue(c, fiber.Map{
		"subject":    before.Subject,
		"difficulty": before.Difficulty,
		"topics":     before.Topics,
		"exam_board": before.ExamBoard,
	})

	paper, err := h.papers.UpdateMetadata(ctx, id, services.MetadataUpdate{
		Subject:    req.Subject,
		Difficulty: req.Difficulty,
		Topics:     req.Topics,
		ExamBoard:  req.ExamBoard,
	})
	if err != nil {
		return paperError(c, err, "update paper")
	}

	return response.Success(c, paper.ToResponse())
}

// ToggleModeration flips whether students can see a paper
// POST /api/v1/admin/papers/:id/moderate
func (h *PaperAdminHandler) ToggleModeration(c *fiber.Ctx) error {
	id, err := paperID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid paper ID")
	}

	paper, err := h.papers.ToggleModeration(c.Context(), id)
	if err != nil {
		return paperError(c, err, "update moderation")
	}
	return response.Success(c, paper.ToResponse())
}

// DeletePaper removes a paper and its PDF
// DELETE /api/v1/admin/papers/:id
func (h *PaperAdminHandler) DeletePaper(c *fiber.Ctx) error {
	id, err := paperID(c)
	if err != nil {
		return response.BadRequest(c, "Invalid paper ID")
	}

	paper, err := h.papers.Delete(c.Context(), id)
	if err != nil {
		return paperError(c, err, "delete paper")
	}
	middleware.SetAuditOldValue(c, paper.ToResponse())

	return response.SuccessWithMessage(c, "Paper deleted", fiber.Map{"id": paper.ID, "filename": paper.Filename})
}

// ImportDirectory uploads every new PDF in the data directory
// POST /api/v1/admin/papers/import
func (h *PaperAdminHandler) ImportDirectory(c *fiber.Ctx) error {
	if h.dataDir == "" {
		return response.BadRequest(c, "DATA_DIR is not configured")
	}

	report, err := h.papers.ImportDir(c.Context(), h.dataDir)
	if err != nil {
		return paperError(c, err, "import papers")
	}
	return response.Success(c, report)
}

// Crawl imports papers from a registered crawler
// POST /api/v1/admin/papers/crawl
func (h *PaperAdminHandler) Crawl(c *fiber.Ctx) error {
	var req CrawlRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", fiber.Map{
			"available": h.sources(),
		})
	}

	if h.crawlers == nil {
		return response.BadRequest(c, "No crawlers are configured")
	}
	crawler, err := h.crawlers.Get(req.Source)
	if err != nil {
		if errors.Is(err, papercrawler.ErrCrawlerNotFound) {
			return response.ErrorWithDetails(c, fiber.StatusNotFound, "Unknown crawler source", "NOT_FOUND", fiber.Map{
				"available": h.sources(),
			})
		}
		return response.InternalServerError(c, "Failed to load crawler")
	}

	var uploadedBy *uint
	if id, ok := middleware.GetUserID(c); ok {
		uploadedBy = &id
	}

	report, err := h.papers.ImportFromCrawler(c.Context(), crawler, uploadedBy)
	if err != nil {
		log.Errorf("PaperAdminHandler: crawl %s failed: %v", req.Source, err)
		return response.BadGateway(c, "Failed to crawl "+req.Source)
	}
	return response.Success(c, report)
}

// ListSources returns the registered crawler names
// GET /api/v1/admin/papers/sources
func (h *PaperAdminHandler) ListSources(c *fiber.Ctx) error {
	return response.Success(c, h.sources())
}

func (h *PaperAdminHandler) sources() []string {
	if h.crawlers == nil {
		return []string{}
	}
	return h.crawlers.Names()
}
