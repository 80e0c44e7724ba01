package billing

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
	"github.com/pastpapers-ai/explainer-api/utils/response"
	"github.com/pastpapers-ai/explainer-api/utils/validation"
)

// Billing is the subset of the billing service used over HTTP
type Billing interface {
	Plans() []services.Plan
	CreateCheckout(ctx context.Context, planID, email, returnURL string) (*services.CheckoutResult, error)
	CheckSubscription(ctx context.Context, email string) (services.SubscriptionStatus, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// BillingHandler handles plans, checkout and Stripe webhooks
type BillingHandler struct {
	billing   Billing
	validator *validation.Validator
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billing Billing) *BillingHandler {
	return &BillingHandler{
		billing:   billing,
		validator: validation.NewValidator(),
	}
}

// CheckoutRequest starts a subscription checkout
type CheckoutRequest struct {
	Plan      string `json:"plan" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
}

// ListPlans returns the subscription plans
// GET /api/v1/billing/plans
func (h *BillingHandler) ListPlans(c *fiber.Ctx) error {
	return response.Success(c, h.billing.Plans())
}

// CreateCheckout creates a Stripe checkout session
// POST /api/v1/billing/checkout
func (h *BillingHandler) CreateCheckout(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = validation.NormalizeEmail(req.Email)
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ErrorWithDetails(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validation.FormatValidationErrors(err))
	}

	if req.Email == "" {
		if sess, ok := middleware.GetStudySession(c); ok {
			req.Email = sess.UserEmail
		}
	}
	if req.Email == "" {
		return response.BadRequest(c, "email is required for checkout")
	}

	result, err := h.billing.CreateCheckout(c.Context(), req.Plan, req.Email, req.ReturnURL)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownPlan):
			return response.BadRequest(c, "Unknown plan")
		case errors.Is(err, services.ErrBillingDisabled):
			return response.ServiceUnavailable(c, "Billing is not configured")
		default:
			log.Errorf("BillingHandler: %v", err)
			return response.BadGateway(c, "Failed to create checkout session")
		}
	}
	return response.Created(c, result)
}

// GetSubscription reports the plan of an email
// GET /api/v1/billing/subscription?email=
func (h *BillingHandler) GetSubscription(c *fiber.Ctx) error {
	email := validation.NormalizeEmail(c.Query("email"))
	if email == "" {
		if sess, ok := middleware.GetStudySession(c); ok {
			email = sess.UserEmail
		}
	}
	if email == "" {
		return response.Success(c, services.SubscriptionStatus{})
	}
	if !validation.ValidateEmail(email) {
		return response.BadRequest(c, "Invalid email")
	}

	status, err := h.billing.CheckSubscription(c.Context(), email)
	if err != nil {
		log.Errorf("BillingHandler: %v", err)
		return response.InternalServerError(c, "Failed to check subscription")
	}
	return response.Success(c, status)
}

// Webhook receives Stripe events. The raw body is needed for the signature.
// POST /api/v1/billing/webhook
func (h *BillingHandler) Webhook(c *fiber.Ctx) error {
	signature := c.Get("Stripe-Signature")
	if signature == "" {
		return response.BadRequest(c, "Missing Stripe-Signature header")
	}

	// fiber reuses the body buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	if err := h.billing.HandleWebhook(c.Context(), payload, signature); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			return response.BadRequest(c, "Invalid signature")
		case errors.Is(err, services.ErrBillingDisabled):
			return response.ServiceUnavailable(c, "Billing is not configured")
		default:
			log.Errorf("BillingHandler: webhook failed: %v", err)
			return response.InternalServerError(c, "Failed to process webhook")
		}
	}
	return response.Success(c, fiber.Map{"received": true})
}
