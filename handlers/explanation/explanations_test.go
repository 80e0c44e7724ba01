package explanation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/services/questionblock"
	"github.com/pastpapers-ai/explainer-api/services/studysession"
	"github.com/pastpapers-ai/explainer-api/utils/middleware"
)

type fakeExplainer struct {
	err   error
	text  string // when set, the label is extracted from it like a real paper
	calls []services.ExplainRequest
}

func (f *fakeExplainer) Explain(_ context.Context, req services.ExplainRequest) (*services.ExplainResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.text != "" {
		if r := questionblock.Extract(f.text, req.Label); !r.Found() {
			return nil, &services.BlockNotFoundError{
				Filename:       req.Filename,
				Label:          req.Label,
				QuestionStatus: r.Status,
				AnswerStatus:   r.Status,
			}
		}
	}
	return &services.ExplainResult{
		Filename:    req.Filename,
		Label:       req.Label,
		Kind:        "Question",
		Explanation: "Momentum is mass times velocity.",
	}, nil
}

type fakeSubs struct {
	plans    map[string]services.SubscriptionStatus
	recorded []string
}

func (f *fakeSubs) CheckSubscription(_ context.Context, email string) (services.SubscriptionStatus, error) {
	return f.plans[email], nil
}

func (f *fakeSubs) RecordSearch(_ context.Context, email string) (services.SubscriptionStatus, error) {
	f.recorded = append(f.recorded, email)
	s := f.plans[email]
	s.SearchesUsed++
	s.Remaining--
	f.plans[email] = s
	return s, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type fixture struct {
	app       *fiber.App
	manager   *studysession.Manager
	explainer *fakeExplainer
	subs      *fakeSubs
}

func setup(t *testing.T, freeLimit int) *fixture {
	t.Helper()

	f := &fixture{
		manager:   studysession.NewManager(studysession.NewMemoryStore(time.Hour), freeLimit),
		explainer: &fakeExplainer{},
		subs:      &fakeSubs{plans: map[string]services.SubscriptionStatus{}},
	}
	h := NewExplanationHandler(f.explainer, f.manager, f.subs)

	f.app = fiber.New()
	f.app.Post("/explanations", middleware.RequireStudySession(f.manager), h.Explain)
	f.app.Get("/explanations/related", h.Related)
	return f
}

func (f *fixture) session(t *testing.T) string {
	t.Helper()
	s, err := f.manager.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return s.ID
}

func (f *fixture) post(t *testing.T, sessionID, body string) (int, envelope) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/explanations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(studysession.HeaderName, sessionID)

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return resp.StatusCode, env
}

const validBody = `{"filename":"9702_s23_qp_21.pdf","label":"2(a)"}`

func TestExplainFreeGate(t *testing.T) {
	f := setup(t, 1)
	id := f.session(t)

	status, env := f.post(t, id, validBody)
	if status != fiber.StatusOK {
		t.Fatalf("first search status = %d", status)
	}
	var got ExplainResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Explanation == "" || got.Search.SearchCount != 1 || got.Search.FreeRemaining != 0 {
		t.Errorf("unexpected response %+v", got)
	}

	status, env = f.post(t, id, validBody)
	if status != fiber.StatusPaymentRequired {
		t.Fatalf("second search status = %d, want 402", status)
	}
	if env.Error == nil || env.Error.Code != "PAYMENT_REQUIRED" {
		t.Errorf("error = %+v", env.Error)
	}
	if len(f.explainer.calls) != 1 {
		t.Errorf("explainer called %d times, want 1", len(f.explainer.calls))
	}

	sess, _ := f.manager.Get(context.Background(), id)
	if !sess.Locked || !sess.ShowSubscriptionPopup {
		t.Errorf("session should be locked with popup: %+v", sess)
	}
}

func TestExplainSubscriber(t *testing.T) {
	f := setup(t, 0)
	f.subs.plans["pro@example.com"] = services.SubscriptionStatus{
		HasSubscription: true,
		Plan:            "pro",
		SearchLimit:     1000,
		Remaining:       2,
	}
	id := f.session(t)

	body := `{"filename":"9702_s23_qp_21.pdf","label":"2(a)","email":"Pro@Example.com"}`
	status, env := f.post(t, id, body)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}

	var got ExplainResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Search.Subscribed || got.Subscription.Remaining != 1 {
		t.Errorf("unexpected response %+v", got)
	}
	if len(f.subs.recorded) != 1 || f.subs.recorded[0] != "pro@example.com" {
		t.Errorf("recorded = %v", f.subs.recorded)
	}
	if f.explainer.calls[0].UserEmail != "pro@example.com" {
		t.Errorf("explain email = %q", f.explainer.calls[0].UserEmail)
	}

	sess, _ := f.manager.Get(context.Background(), id)
	if sess.SearchCount != 0 || sess.UserEmail != "pro@example.com" {
		t.Errorf("session = %+v", sess)
	}
}

func TestExplainPlanLimit(t *testing.T) {
	f := setup(t, 3)
	f.subs.plans["basic@example.com"] = services.SubscriptionStatus{
		HasSubscription: true,
		Plan:            "basic",
		SearchLimit:     100,
		SearchesUsed:    100,
	}
	id := f.session(t)

	status, env := f.post(t, id, `{"filename":"9702_s23_qp_21.pdf","label":"1","email":"basic@example.com"}`)
	if status != fiber.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", status)
	}
	if env.Error == nil || env.Error.Code != "PLAN_LIMIT_REACHED" {
		t.Errorf("error = %+v", env.Error)
	}
	if len(f.explainer.calls) != 0 {
		t.Error("explainer should not run past the plan limit")
	}
}

func TestExplainErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name: "answer missing",
			err: &services.BlockNotFoundError{
				Filename:       "9702_s23_qp_21.pdf",
				Label:          "2(a)",
				QuestionStatus: questionblock.Found,
				AnswerStatus:   questionblock.NotFound,
			},
			status: fiber.StatusUnprocessableEntity,
			code:   "BLOCK_NOT_FOUND",
		},
		{"paper missing", services.ErrPaperNotFound, fiber.StatusNotFound, "NOT_FOUND"},
		{"mark scheme missing", services.ErrMarkSchemeNotFound, fiber.StatusNotFound, "NOT_FOUND"},
		{"mark scheme requested", services.ErrNotQuestionPaper, fiber.StatusBadRequest, "BAD_REQUEST"},
		{"model failure", io.ErrUnexpectedEOF, fiber.StatusBadGateway, "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, 3)
			f.explainer.err = tt.err

			status, env := f.post(t, f.session(t), validBody)
			if status != tt.status {
				t.Fatalf("status = %d, want %d", status, tt.status)
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestExplainBlockNotFoundDetails(t *testing.T) {
	f := setup(t, 3)
	f.explainer.err = &services.BlockNotFoundError{
		QuestionStatus: questionblock.NotFound,
		AnswerStatus:   questionblock.EmptyInput,
	}

	_, env := f.post(t, f.session(t), validBody)
	var details map[string]string
	if err := json.Unmarshal(env.Error.Details, &details); err != nil {
		t.Fatal(err)
	}
	if details["question_status"] != "not_found" || details["answer_status"] != "empty_input" {
		t.Errorf("details = %v", details)
	}
	if details["answer"] != "Not found (empty text)." {
		t.Errorf("answer marker = %q", details["answer"])
	}
}

func TestExplainValidation(t *testing.T) {
	f := setup(t, 3)
	id := f.session(t)

	bodies := []string{
		`{"filename":"notes.txt","label":"1"}`,
		`{"filename":"9702_s23_qp_21.pdf","label":"   "}`,
		`{"filename":"9702_s23_qp_21.pdf","label":"` + strings.Repeat("1", 65) + `"}`,
		`{"filename":"9702_s23_qp_21.pdf","label":"1","email":"nope"}`,
		`not json`,
	}
	for _, body := range bodies {
		if status, _ := f.post(t, id, body); status != fiber.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, status)
		}
	}

	sess, _ := f.manager.Get(context.Background(), id)
	if sess.SearchCount != 0 {
		t.Errorf("invalid requests should not count, got %d", sess.SearchCount)
	}
}

func TestExplainFreeFormLabel(t *testing.T) {
	paper := "1 Define force.\n2(a) State Newton's first law.\n3 (a) Spaced label.\n"

	tests := []struct {
		label  string
		status int
	}{
		{"2(a)", fiber.StatusOK},
		{"3 (a)", fiber.StatusOK},
		{"a(1)", fiber.StatusUnprocessableEntity},
		{"2(a)[", fiber.StatusUnprocessableEntity},
		{"Q.*", fiber.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			f := setup(t, 10)
			f.explainer.text = paper

			body, _ := json.Marshal(map[string]string{"filename": "9702_s23_qp_21.pdf", "label": tt.label})
			status, env := f.post(t, f.session(t), string(body))
			if status != tt.status {
				t.Fatalf("status = %d, want %d", status, tt.status)
			}
			if tt.status == fiber.StatusUnprocessableEntity && (env.Error == nil || env.Error.Code != "BLOCK_NOT_FOUND") {
				t.Errorf("error = %+v, want BLOCK_NOT_FOUND", env.Error)
			}
			if len(f.explainer.calls) != 1 || f.explainer.calls[0].Label != tt.label {
				t.Errorf("label should reach the extractor unchanged, calls = %+v", f.explainer.calls)
			}
		})
	}
}

func TestRelated(t *testing.T) {
	f := setup(t, 3)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/explanations/related?label=3(a)", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	var data struct {
		Related []string `json:"related"`
	}
	_ = json.Unmarshal(env.Data, &data)
	if strings.Join(data.Related, ",") != "1,2,4" {
		t.Errorf("related = %v", data.Related)
	}

	resp, _ = f.app.Test(httptest.NewRequest(http.MethodGet, "/explanations/related?label=xyz", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("bad label status = %d", resp.StatusCode)
	}
}
