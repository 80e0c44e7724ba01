package rating

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services"
)

type fakeRatings struct {
	saved []*model.ExplanationRating
}

func (f *fakeRatings) Rate(_ context.Context, questionID string, rating int, feedback, sessionID, email string) (*model.ExplanationRating, error) {
	filename, label, err := services.SplitQuestionID(questionID)
	if err != nil {
		return nil, err
	}
	r := &model.ExplanationRating{
		ID:            uint(len(f.saved) + 1),
		QuestionID:    questionID,
		PaperFilename: filename,
		Label:         label,
		Rating:        rating,
		Feedback:      feedback,
	}
	f.saved = append(f.saved, r)
	return r, nil
}

func (f *fakeRatings) Average(_ context.Context, questionID string) (*services.RatingSummary, error) {
	var sum, n int
	for _, r := range f.saved {
		if r.QuestionID == questionID {
			sum += r.Rating
			n++
		}
	}
	s := &services.RatingSummary{QuestionID: questionID, Count: int64(n)}
	if n > 0 {
		s.Average = services.RoundRating(float64(sum) / float64(n))
	}
	return s, nil
}

func setupApp() (*fiber.App, *fakeRatings) {
	fake := &fakeRatings{}
	h := NewRatingHandler(fake)

	app := fiber.New()
	app.Post("/ratings", h.Rate)
	app.Get("/ratings", h.GetAverage)
	app.Get("/ratings/:question_id", h.GetAverage)
	return app, fake
}

func post(t *testing.T, app *fiber.App, body string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ratings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode
}

func TestRate(t *testing.T) {
	app, fake := setupApp()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"by question id", `{"question_id":"9702_s23_qp_21.pdf#2(a)","rating":5}`, fiber.StatusCreated},
		{"by filename and label", `{"filename":"9702_s23_qp_21.pdf","label":"2(a)","rating":4,"feedback":"clear"}`, fiber.StatusCreated},
		{"rating too high", `{"question_id":"9702_s23_qp_21.pdf#2(a)","rating":6}`, fiber.StatusBadRequest},
		{"rating missing", `{"question_id":"9702_s23_qp_21.pdf#2(a)"}`, fiber.StatusBadRequest},
		{"no question", `{"rating":3}`, fiber.StatusBadRequest},
		{"label without separator", `{"question_id":"9702_s23_qp_21.pdf","rating":3}`, fiber.StatusBadRequest},
		{"filename without label", `{"filename":"9702_s23_qp_21.pdf","rating":3}`, fiber.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := post(t, app, tt.body); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}

	if len(fake.saved) != 2 {
		t.Fatalf("saved %d ratings, want 2", len(fake.saved))
	}
	if fake.saved[1].QuestionID != "9702_s23_qp_21.pdf#2(a)" || fake.saved[1].Feedback != "clear" {
		t.Errorf("second rating = %+v", fake.saved[1])
	}
}

func TestGetAverage(t *testing.T) {
	app, _ := setupApp()
	post(t, app, `{"question_id":"9702_s23_qp_21.pdf#1","rating":5}`)
	post(t, app, `{"question_id":"9702_s23_qp_21.pdf#1","rating":4}`)
	post(t, app, `{"question_id":"9702_s23_qp_21.pdf#1","rating":4}`)

	path := "/ratings/" + url.PathEscape("9702_s23_qp_21.pdf#1")
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var env struct {
		Data services.RatingSummary `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Data.Average != 4.3 || env.Data.Count != 3 {
		t.Errorf("summary = %+v", env.Data)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/ratings?filename=9702_s23_qp_21.pdf&label=9", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("unrated question status = %d", resp.StatusCode)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/ratings", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("missing id status = %d", resp.StatusCode)
	}
}
