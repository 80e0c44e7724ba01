package explanation

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/services/paperindex"
	"github.com/pastpapers-ai/explainer-api/services/questionblock"
	"github.com/pastpapers-ai/explainer-api/services/studysession"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
	"github.com/pastpapers-ai/explainer-api/utils/response"
	"github.com/pastpapers-ai/explainer-api/utils/validation"
)

// Explainer runs the explanation pipeline
type Explainer interface {
	Explain(ctx context.Context, req services.ExplainRequest) (*services.ExplainResult, error)
}

// Subscriptions checks and charges paid plans
type Subscriptions interface {
	CheckSubscription(ctx context.Context, email string) (services.SubscriptionStatus, error)
	RecordSearch(ctx context.Context, email string) (services.SubscriptionStatus, error)
}

// ExplanationHandler serves explanations behind the free-search gate
type ExplanationHandler struct {
	explainer Explainer
	sessions  *studysession.Manager
	subs      Subscriptions
	validator *validation.Validator
}

// NewExplanationHandler creates a new explanation handler
func NewExplanationHandler(explainer Explainer, sessions *studysession.Manager, subs Subscriptions) *ExplanationHandler {
	return &ExplanationHandler{
		explainer: explainer,
		sessions:  sessions,
		subs:      subs,
		validator: validation.NewValidator(),
	}
}

// ExplainRequest is the body of POST /explanations. The label is passed to
// the extractor as typed; labels that match nothing come back as 422.
type ExplainRequest struct {
	Filename string `json:"filename" validate:"required,paperfile"`
	Label    string `json:"label" validate:"required,max=64"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// ExplainResponse is an explanation plus the caller's remaining allowance
type ExplainResponse struct {
	*services.ExplainResult
	Search       studysession.Decision       `json:"search"`
	Subscription services.SubscriptionStatus `json:"subscription"`
}

// Explain explains one question of a paper
// POST /api/v1/explanations
func (h *ExplanationHandler) Explain(c *fiber.Ctx) error {
	var req ExplainRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = validation.NormalizeEmail(req.Email)
	req.Label = strings.TrimSpace(req.Label)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validation.FormatValidationErrors(err))
	}

	ctx := c.Context()
	sess, ok := middleware.GetStudySession(c)
	if !ok {
		return response.BadRequest(c, "Missing study session")
	}

	email := sess.UserEmail
	if req.Email != "" && req.Email != email {
		if _, err := h.sessions.SetEmail(ctx, sess.ID, req.Email); err != nil {
			return response.InternalServerError(c, "Failed to update study session")
		}
		email = req.Email
	}

	sub, err := h.subs.CheckSubscription(ctx, email)
	if err != nil {
		log.Warnf("Explain: subscription lookup for %s failed: %v", email, err)
		sub = services.SubscriptionStatus{}
	}
	if sub.HasSubscription && sub.Remaining <= 0 {
		return response.ErrorWithDetails(c, fiber.StatusPaymentRequired,
			"Monthly search limit reached for your plan", "PLAN_LIMIT_REACHED", sub)
	}

	decision, err := h.sessions.AuthorizeSearch(ctx, sess.ID, sub.HasSubscription)
	if err != nil {
		return response.InternalServerError(c, "Failed to update study session")
	}
	if !decision.Allowed {
		return response.PaymentRequired(c, "Free searches used up, subscribe to continue", decision)
	}

	result, err := h.explainer.Explain(ctx, services.ExplainRequest{
		Filename:  req.Filename,
		Label:     req.Label,
		SessionID: sess.ID,
		UserEmail: email,
	})
	if err != nil {
		return explainError(c, err)
	}

	if sub.HasSubscription {
		if updated, err := h.subs.RecordSearch(ctx, email); err != nil {
			log.Warnf("Explain: failed to record search for %s: %v", email, err)
		} else {
			sub = updated
		}
	}

	return response.Success(c, ExplainResponse{
		ExplainResult: result,
		Search:        decision,
		Subscription:  sub,
	})
}

func explainError(c *fiber.Ctx, err error) error {
	var notFound *services.BlockNotFoundError
	switch {
	case errors.As(err, &notFound):
		return response.UnprocessableEntity(c, "Question not found in the mark scheme", "BLOCK_NOT_FOUND", fiber.Map{
			"question_status": notFound.QuestionStatus.String(),
			"answer_status":   notFound.AnswerStatus.String(),
			"answer":          questionblock.Result{Status: notFound.AnswerStatus}.String(),
		})
	case errors.Is(err, services.ErrPaperNotFound):
		return response.NotFound(c, "Paper not found")
	case errors.Is(err, services.ErrMarkSchemeNotFound):
		return response.NotFound(c, "Mark scheme not found for this paper")
	case errors.Is(err, services.ErrNotQuestionPaper):
		return response.BadRequest(c, "Explanations are only available for question papers")
	case errors.Is(err, context.DeadlineExceeded):
		return response.Error(c, fiber.StatusGatewayTimeout, "Explanation timed out", "UPSTREAM_TIMEOUT")
	default:
		log.Errorf("Explain: %v", err)
		return response.BadGateway(c, "Failed to generate explanation")
	}
}

// Related suggests neighbouring question numbers
// GET /api/v1/explanations/related?label=
func (h *ExplanationHandler) Related(c *fiber.Ctx) error {
	label := c.Query("label")
	if !questionblock.IsLabel(label) {
		return response.BadRequest(c, "Invalid question label")
	}
	return response.Success(c, fiber.Map{
		"label":   label,
		"related": paperindex.RelatedQuestions(label),
	})
}
