package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/services"
)

type fakeBilling struct {
	enabled  bool
	checkout []string
	webhooks [][]byte
	subs     map[string]services.SubscriptionStatus
}

func (f *fakeBilling) Plans() []services.Plan {
	return []services.Plan{
		{ID: "basic", Name: "Basic", SearchLimit: 50, PriceCents: 500, PriceID: "price_secret"},
	}
}

func (f *fakeBilling) CreateCheckout(_ context.Context, planID, email, _ string) (*services.CheckoutResult, error) {
	if !f.enabled {
		return nil, services.ErrBillingDisabled
	}
	if planID != "basic" {
		return nil, services.ErrUnknownPlan
	}
	f.checkout = append(f.checkout, email)
	return &services.CheckoutResult{URL: "https://checkout.stripe.com/c/pay/cs_test_1", SessionID: "cs_test_1"}, nil
}

func (f *fakeBilling) CheckSubscription(_ context.Context, email string) (services.SubscriptionStatus, error) {
	return f.subs[email], nil
}

func (f *fakeBilling) HandleWebhook(_ context.Context, payload []byte, signature string) error {
	if !f.enabled {
		return services.ErrBillingDisabled
	}
	if signature != "good" {
		return fmt.Errorf("%w: bad", services.ErrInvalidSignature)
	}
	f.webhooks = append(f.webhooks, payload)
	return nil
}

func setupApp(enabled bool) (*fiber.App, *fakeBilling) {
	fake := &fakeBilling{enabled: enabled, subs: map[string]services.SubscriptionStatus{}}
	h := NewBillingHandler(fake)

	app := fiber.New()
	app.Get("/billing/plans", h.ListPlans)
	app.Post("/billing/checkout", h.CreateCheckout)
	app.Get("/billing/subscription", h.GetSubscription)
	app.Post("/billing/webhook", h.Webhook)
	return app, fake
}

func send(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestListPlansHidesPriceIDs(t *testing.T) {
	app, _ := setupApp(false)

	resp := send(t, app, http.MethodGet, "/billing/plans", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var env struct {
		Data []map[string]interface{} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if len(env.Data) != 1 || env.Data[0]["id"] != "basic" {
		t.Fatalf("plans = %v", env.Data)
	}
	if _, ok := env.Data[0]["PriceID"]; ok {
		t.Error("price id must not be exposed")
	}
}

func TestCreateCheckout(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		body    string
		want    int
	}{
		{"ok", true, `{"plan":"basic","email":"A@B.com"}`, fiber.StatusCreated},
		{"unknown plan", true, `{"plan":"gold","email":"a@b.com"}`, fiber.StatusBadRequest},
		{"missing email", true, `{"plan":"basic"}`, fiber.StatusBadRequest},
		{"bad email", true, `{"plan":"basic","email":"nope"}`, fiber.StatusBadRequest},
		{"disabled", false, `{"plan":"basic","email":"a@b.com"}`, fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, fake := setupApp(tt.enabled)
			resp := send(t, app, http.MethodPost, "/billing/checkout", tt.body, nil)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == fiber.StatusCreated && (len(fake.checkout) != 1 || fake.checkout[0] != "a@b.com") {
				t.Errorf("checkout emails = %v", fake.checkout)
			}
		})
	}
}

func TestGetSubscription(t *testing.T) {
	app, fake := setupApp(true)
	fake.subs["pro@example.com"] = services.SubscriptionStatus{HasSubscription: true, Plan: "pro", SearchLimit: 1000, Remaining: 990}

	resp := send(t, app, http.MethodGet, "/billing/subscription?email=Pro@Example.com", "", nil)
	var env struct {
		Data services.SubscriptionStatus `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if !env.Data.HasSubscription || env.Data.Remaining != 990 {
		t.Errorf("status = %+v", env.Data)
	}

	resp = send(t, app, http.MethodGet, "/billing/subscription", "", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("anonymous status = %d", resp.StatusCode)
	}
}

func TestWebhook(t *testing.T) {
	app, fake := setupApp(true)
	payload := `{"id":"evt_1","type":"checkout.session.completed"}`

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing signature", nil, fiber.StatusBadRequest},
		{"bad signature", map[string]string{"Stripe-Signature": "bad"}, fiber.StatusBadRequest},
		{"good signature", map[string]string{"Stripe-Signature": "good"}, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := send(t, app, http.MethodPost, "/billing/webhook", payload, tt.headers)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	if len(fake.webhooks) != 1 || string(fake.webhooks[0]) != payload {
		t.Errorf("webhooks = %q", fake.webhooks)
	}
}
