package rating

import (
	"context"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
	"github.com/pastpapers-ai/explainer-api/utils/response"
	"github.com/pastpapers-ai/explainer-api/utils/validation"
)

// Ratings stores and averages explanation ratings
type Ratings interface {
	Rate(ctx context.Context, questionID string, rating int, feedback, sessionID, email string) (*model.ExplanationRating, error)
	Average(ctx context.Context, questionID string) (*services.RatingSummary, error)
}

// RatingHandler handles explanation rating requests
type RatingHandler struct {
	ratings   Ratings
	validator *validation.Validator
}

// NewRatingHandler creates a new rating handler
func NewRatingHandler(ratings Ratings) *RatingHandler {
	return &RatingHandler{
		ratings:   ratings,
		validator: validation.NewValidator(),
	}
}

// RateRequest identifies a question either by question_id or by
// filename and label
type RateRequest struct {
	QuestionID string `json:"question_id" validate:"required_without=Filename,max=300"`
	Filename   string `json:"filename" validate:"omitempty,paperfile"`
	Label      string `json:"label" validate:"omitempty,label"`
	Rating     int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback   string `json:"feedback" validate:"max=2000"`
}

func (r RateRequest) questionID() string {
	if r.QuestionID != "" {
		return r.QuestionID
	}
	return services.QuestionID(r.Filename, r.Label)
}

// Rate stores a 1-5 star rating for an explanation
// POST /api/v1/ratings
func (h *RatingHandler) Rate(c *fiber.Ctx) error {
	var req RateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validation.FormatValidationErrors(err))
	}
	if req.QuestionID == "" && req.Label == "" {
		return response.BadRequest(c, "label is required with filename")
	}

	var sessionID, email string
	if sess, ok := middleware.GetStudySession(c); ok {
		sessionID = sess.ID
		email = sess.UserEmail
	}

	rating, err := h.ratings.Rate(c.Context(), req.questionID(), req.Rating, validation.SanitizeString(req.Feedback), sessionID, email)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRating), errors.Is(err, services.ErrInvalidQuestionID):
			return response.BadRequest(c, err.Error())
		default:
			log.Errorf("RatingHandler: %v", err)
			return response.InternalServerError(c, "Failed to save rating")
		}
	}

	return response.Created(c, rating)
}

// GetAverage returns the average rating of a question. The id travels
// path escaped, so "#" arrives as %23.
// GET /api/v1/ratings/:question_id or /api/v1/ratings?filename=&label=
func (h *RatingHandler) GetAverage(c *fiber.Ctx) error {
	questionID, err := url.PathUnescape(c.Params("question_id"))
	if err != nil {
		return response.BadRequest(c, "Invalid question id")
	}
	if questionID == "" {
		filename, label := c.Query("filename"), c.Query("label")
		if filename == "" || label == "" {
			return response.BadRequest(c, "question_id or filename and label are required")
		}
		questionID = services.QuestionID(filename, label)
	}
	if _, _, err := services.SplitQuestionID(questionID); err != nil {
		return response.BadRequest(c, err.Error())
	}

	summary, err := h.ratings.Average(c.Context(), questionID)
	if err != nil {
		log.Errorf("RatingHandler: %v", err)
		return response.InternalServerError(c, "Failed to load rating")
	}
	return response.Success(c, summary)
}
