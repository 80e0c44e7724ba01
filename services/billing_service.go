package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pastpapers-ai/explainer-api/config"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnknownPlan          = errors.New("unknown subscription plan")
	ErrBillingDisabled      = errors.New("billing is not configured")
	ErrPlanLimitReached     = errors.New("monthly search limit reached for this plan")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrSubscriptionNotFound = errors.New("no active subscription for this email")
)

// Plan is a monthly subscription tier
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SearchLimit int    `json:"search_limit"`
	PriceCents  int64  `json:"price_cents"`
	PriceID     string `json:"-"`
}

// SubscriptionStatus is what the UI shows about an email's plan
type SubscriptionStatus struct {
	HasSubscription bool   `json:"has_subscription"`
	Plan            string `json:"plan,omitempty"`
	Status          string `json:"status,omitempty"`
	SearchLimit     int    `json:"search_limit"`
	SearchesUsed    int    `json:"searches_used"`
	Remaining       int    `json:"remaining"`
}

// CheckoutResult is a created Stripe checkout session
type CheckoutResult struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// BillingService sells plans through Stripe Checkout and tracks usage
type BillingService struct {
	db            *gorm.DB
	plans         map[string]Plan
	order         []string
	webhookSecret string
	baseURL       string
	enabled       bool

	newCheckout func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	now         func() time.Time
}

// DefaultPlans returns the plan catalogue with price IDs from config
func DefaultPlans(cfg *config.Config) []Plan {
	return []Plan{
		{ID: "basic", Name: "Basic", SearchLimit: 50, PriceCents: 500, PriceID: cfg.BASIC_PRICE_ID},
		{ID: "plus", Name: "Plus", SearchLimit: 200, PriceCents: 2000, PriceID: cfg.PLUS_PRICE_ID},
		{ID: "pro", Name: "Pro", SearchLimit: 1000, PriceCents: 10000, PriceID: cfg.PRO_PRICE_ID},
	}
}

// NewBillingService creates a billing service. Without a Stripe secret key
// checkout and webhooks return ErrBillingDisabled.
func NewBillingService(db *gorm.DB, cfg *config.Config) *BillingService {
	s := &BillingService{
		db:            db,
		plans:         make(map[string]Plan),
		webhookSecret: cfg.STRIPE_WEBHOOK_SECRET,
		baseURL:       cfg.APP_BASE_URL,
		enabled:       cfg.BillingEnabled(),
		now:           time.Now,
	}
	for _, p := range DefaultPlans(cfg) {
		s.plans[p.ID] = p
		s.order = append(s.order, p.ID)
	}

	if s.enabled {
		sc := &client.API{}
		sc.Init(cfg.STRIPE_SECRET_KEY, nil)
		s.newCheckout = sc.CheckoutSessions.New
	} else {
		log.Warn("BillingService: STRIPE_SECRET_KEY not set, checkout disabled")
	}
	return s
}

// Plans lists the plans in display order
func (s *BillingService) Plans() []Plan {
	plans := make([]Plan, 0, len(s.order))
	for _, id := range s.order {
		plans = append(plans, s.plans[id])
	}
	return plans
}

// Plan looks up a plan by id
func (s *BillingService) Plan(id string) (Plan, error) {
	p, ok := s.plans[strings.ToLower(id)]
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	return p, nil
}

func (s *BillingService) checkoutParams(plan Plan, email, returnURL string) *stripe.CheckoutSessionParams {
	if returnURL == "" {
		returnURL = s.baseURL
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(plan.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail:            stripe.String(email),
		SuccessURL:               stripe.String(returnURL + "?success=true&plan=" + url.QueryEscape(plan.ID) + "&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:                stripe.String(returnURL + "?canceled=true"),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
	}
	params.AddMetadata("plan", plan.ID)
	params.AddMetadata("user_email", email)
	return params
}

// CreateCheckout starts a Stripe checkout for a plan
func (s *BillingService) CreateCheckout(ctx context.Context, planID, email, returnURL string) (*CheckoutResult, error) {
	if !s.enabled {
		return nil, ErrBillingDisabled
	}
	plan, err := s.Plan(planID)
	if err != nil {
		return nil, err
	}

	params := s.checkoutParams(plan, strings.ToLower(strings.TrimSpace(email)), returnURL)
	params.Context = ctx

	session, err := s.newCheckout(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	log.Infof("BillingService: checkout %s created for plan %s", session.ID, plan.ID)
	return &CheckoutResult{URL: session.URL, SessionID: session.ID}, nil
}

// VerifyWebhook checks the Stripe-Signature header and decodes the event
func (s *BillingService) VerifyWebhook(payload []byte, signature string) (stripe.Event, error) {
	if !s.enabled || s.webhookSecret == "" {
		return stripe.Event{}, ErrBillingDisabled
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// HandleWebhook verifies and applies a Stripe event. Each event id is
// applied at most once.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.VerifyWebhook(payload, signature)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := model.WebhookEvent{
			EventID:     event.ID,
			Type:        string(event.Type),
			Payload:     datatypes.JSON(payload),
			ProcessedAt: s.now(),
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&record)
		if res.Error != nil {
			return fmt.Errorf("failed to record webhook event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			log.Infof("BillingService: event %s already processed", event.ID)
			return nil
		}

		return s.apply(tx, event)
	})
}

func (s *BillingService) apply(tx *gorm.DB, event stripe.Event) error {
	if event.Data == nil {
		return nil
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("failed to decode checkout session: %w", err)
		}
		return s.activate(tx, &session)

	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("failed to decode invoice: %w", err)
		}
		return s.resetUsage(tx, &invoice)

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to decode subscription: %w", err)
		}
		return s.cancel(tx, &sub)

	default:
		log.Debugf("BillingService: ignoring event type %s", event.Type)
		return nil
	}
}

func checkoutEmail(session *stripe.CheckoutSession) string {
	email := session.Metadata["user_email"]
	if email == "" {
		email = session.CustomerEmail
	}
	if email == "" && session.CustomerDetails != nil {
		email = session.CustomerDetails.Email
	}
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *BillingService) activate(tx *gorm.DB, session *stripe.CheckoutSession) error {
	email := checkoutEmail(session)
	if email == "" {
		return fmt.Errorf("checkout session %s has no customer email", session.ID)
	}
	plan := session.Metadata["plan"]
	if _, err := s.Plan(plan); err != nil {
		return fmt.Errorf("checkout session %s: %w", session.ID, err)
	}

	now := s.now()
	sub := model.Subscription{
		Email:           email,
		Plan:            plan,
		Status:          model.SubscriptionActive,
		StripeSessionID: session.ID,
		SearchesUsed:    0,
		LastReset:       &now,
	}
	if session.Customer != nil {
		sub.StripeCustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		sub.StripeSubscriptionID = session.Subscription.ID
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"plan", "status", "stripe_session_id", "stripe_customer_id",
			"stripe_subscription_id", "searches_used", "last_reset", "updated_at",
		}),
	}).Create(&sub).Error
	if err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	log.Infof("BillingService: %s subscribed to %s", email, plan)
	return nil
}

func (s *BillingService) resetUsage(tx *gorm.DB, invoice *stripe.Invoice) error {
	q := tx.Model(&model.Subscription{})
	switch {
	case invoice.Subscription != nil && invoice.Subscription.ID != "":
		q = q.Where("stripe_subscription_id = ?", invoice.Subscription.ID)
	case invoice.Customer != nil && invoice.Customer.ID != "":
		q = q.Where("stripe_customer_id = ?", invoice.Customer.ID)
	case invoice.CustomerEmail != "":
		q = q.Where("email = ?", strings.ToLower(invoice.CustomerEmail))
	default:
		return nil
	}

	return q.Updates(map[string]interface{}{
		"searches_used": 0,
		"last_reset":    s.now(),
	}).Error
}

func (s *BillingService) cancel(tx *gorm.DB, sub *stripe.Subscription) error {
	q := tx.Model(&model.Subscription{})
	switch {
	case sub.ID != "":
		q = q.Where("stripe_subscription_id = ?", sub.ID)
	case sub.Customer != nil && sub.Customer.ID != "":
		q = q.Where("stripe_customer_id = ?", sub.Customer.ID)
	default:
		return nil
	}

	return q.Updates(map[string]interface{}{
		"status":       model.SubscriptionCancelled,
		"cancelled_at": s.now(),
	}).Error
}

func (s *BillingService) statusOf(sub *model.Subscription) SubscriptionStatus {
	if sub == nil || !sub.IsActive() {
		return SubscriptionStatus{}
	}

	limit := 0
	if p, ok := s.plans[sub.Plan]; ok {
		limit = p.SearchLimit
	}
	return SubscriptionStatus{
		HasSubscription: true,
		Plan:            sub.Plan,
		Status:          sub.Status,
		SearchLimit:     limit,
		SearchesUsed:    sub.SearchesUsed,
		Remaining:       max(0, limit-sub.SearchesUsed),
	}
}

// CheckSubscription reports the plan and remaining searches for an email
func (s *BillingService) CheckSubscription(ctx context.Context, email string) (SubscriptionStatus, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return SubscriptionStatus{}, nil
	}

	var sub model.Subscription
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SubscriptionStatus{}, nil
	}
	if err != nil {
		return SubscriptionStatus{}, fmt.Errorf("failed to load subscription: %w", err)
	}
	return s.statusOf(&sub), nil
}

// RecordSearch counts one search against an active plan
func (s *BillingService) RecordSearch(ctx context.Context, email string) (SubscriptionStatus, error) {
	status, err := s.CheckSubscription(ctx, email)
	if err != nil {
		return status, err
	}
	if !status.HasSubscription {
		return status, ErrSubscriptionNotFound
	}
	if status.Remaining <= 0 {
		return status, ErrPlanLimitReached
	}

	res := s.db.WithContext(ctx).Model(&model.Subscription{}).
		Where("email = ? AND status = ? AND searches_used < ?",
			strings.ToLower(strings.TrimSpace(email)), model.SubscriptionActive, status.SearchLimit).
		Updates(map[string]interface{}{
			"searches_used": gorm.Expr("searches_used + 1"),
			"last_used":     s.now(),
		})
	if res.Error != nil {
		return status, fmt.Errorf("failed to record search: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return status, ErrPlanLimitReached
	}

	status.SearchesUsed++
	status.Remaining--
	return status, nil
}
