package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/services/papercrawler"
	"github.com/pastpapers-ai/explainer-api/services/pdftext"
	"github.com/pastpapers-ai/explainer-api/utils/query"
)

type fakePapers struct {
	papers   map[uint]*model.Paper
	uploads  []services.UploadInput
	imported []string
	crawled  []string
}

func newFakePapers() *fakePapers {
	return &fakePapers{papers: map[uint]*model.Paper{
		1: {ID: 1, Filename: "9702_s23_qp_21.pdf", ExamBoard: "9702", SessionCode: "s23", DocType: "qp", Difficulty: "Medium"},
	}}
}

func (f *fakePapers) Upload(_ context.Context, in services.UploadInput) (*model.Paper, error) {
	if !bytes.HasPrefix(in.Data, []byte("%PDF-")) {
		return nil, pdftext.ErrNotPDF
	}
	f.uploads = append(f.uploads, in)
	p := &model.Paper{ID: uint(len(f.papers) + 1), Filename: in.Filename, Difficulty: in.Difficulty, Topics: in.Topics, Version: 1}
	f.papers[p.ID] = p
	return p, nil
}

func (f *fakePapers) List(_ context.Context, filter services.PaperFilter, page query.Pagination) ([]model.Paper, int64, error) {
	var out []model.Paper
	for _, p := range f.papers {
		if filter.DocType != "" && p.DocType != filter.DocType {
			continue
		}
		out = append(out, *p)
	}
	return out, int64(len(out)), nil
}

func (f *fakePapers) Get(_ context.Context, id uint) (*model.Paper, error) {
	p, ok := f.papers[id]
	if !ok {
		return nil, services.ErrPaperNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakePapers) UpdateMetadata(ctx context.Context, id uint, upd services.MetadataUpdate) (*model.Paper, error) {
	p, ok := f.papers[id]
	if !ok {
		return nil, services.ErrPaperNotFound
	}
	if upd.Difficulty != nil {
		p.Difficulty = *upd.Difficulty
	}
	if upd.Topics != nil {
		p.Topics = upd.Topics
	}
	return f.Get(ctx, id)
}

func (f *fakePapers) ToggleModeration(ctx context.Context, id uint) (*model.Paper, error) {
	p, ok := f.papers[id]
	if !ok {
		return nil, services.ErrPaperNotFound
	}
	p.Moderated = !p.Moderated
	return f.Get(ctx, id)
}

func (f *fakePapers) Delete(_ context.Context, id uint) (*model.Paper, error) {
	p, ok := f.papers[id]
	if !ok {
		return nil, services.ErrPaperNotFound
	}
	delete(f.papers, id)
	return p, nil
}

func (f *fakePapers) ImportDir(_ context.Context, dir string) (*services.ImportReport, error) {
	f.imported = append(f.imported, dir)
	return &services.ImportReport{Source: dir, Found: 2, Imported: 2}, nil
}

func (f *fakePapers) ImportFromCrawler(_ context.Context, crawler papercrawler.Crawler, _ *uint) (*services.ImportReport, error) {
	f.crawled = append(f.crawled, crawler.Name())
	return &services.ImportReport{Source: crawler.Name()}, nil
}

type stubCrawler struct{ name string }

func (s stubCrawler) Name() string { return s.name }
func (s stubCrawler) FetchPapers(context.Context) ([]papercrawler.RemotePaper, error) {
	return nil, nil
}
func (s stubCrawler) DownloadPDF(context.Context, string) ([]byte, error) { return nil, nil }

func setupPaperApp(dataDir string) (*fiber.App, *fakePapers) {
	fake := newFakePapers()
	h := NewPaperAdminHandler(fake, papercrawler.NewFactory(stubCrawler{name: "index"}), dataDir)

	app := fiber.New()
	app.Post("/admin/papers", h.UploadPaper)
	app.Get("/admin/papers", h.ListPapers)
	app.Patch("/admin/papers/:id", h.UpdatePaper)
	app.Post("/admin/papers/:id/moderate", h.ToggleModeration)
	app.Delete("/admin/papers/:id", h.DeletePaper)
	app.Post("/admin/papers/import", h.ImportDirectory)
	app.Post("/admin/papers/crawl", h.Crawl)
	return app, fake
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

func TestUploadPaper(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		fields   map[string]string
		want     int
	}{
		{"ok", "9702_m24_qp_22.pdf", "%PDF-1.4 fake", map[string]string{"difficulty": "Hard", "topics": "Kinematics, Waves ,"}, fiber.StatusCreated},
		{"bad filename", "notes.pdf", "%PDF-1.4 fake", nil, fiber.StatusBadRequest},
		{"bad difficulty", "9702_m24_qp_22.pdf", "%PDF-1.4 fake", map[string]string{"difficulty": "Extreme"}, fiber.StatusBadRequest},
		{"not a pdf", "9702_m24_qp_22.pdf", "hello", nil, fiber.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, fake := setupPaperApp("")
			body, contentType := multipartBody(t, tt.filename, []byte(tt.content), tt.fields)

			req := httptest.NewRequest(http.MethodPost, "/admin/papers", body)
			req.Header.Set("Content-Type", contentType)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want != fiber.StatusCreated {
				return
			}

			in := fake.uploads[0]
			if in.Difficulty != "Hard" || strings.Join(in.Topics, "|") != "Kinematics|Waves" {
				t.Errorf("upload input = %+v", in)
			}
		})
	}
}

func TestPaperAdminActions(t *testing.T) {
	app, fake := setupPaperApp("/srv/papers")

	send := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"update", http.MethodPatch, "/admin/papers/1", `{"difficulty":"Easy","topics":["Forces"]}`, fiber.StatusOK},
		{"update bad difficulty", http.MethodPatch, "/admin/papers/1", `{"difficulty":"Brutal"}`, fiber.StatusBadRequest},
		{"update missing", http.MethodPatch, "/admin/papers/99", `{"difficulty":"Easy"}`, fiber.StatusNotFound},
		{"update bad id", http.MethodPatch, "/admin/papers/abc", `{}`, fiber.StatusBadRequest},
		{"moderate", http.MethodPost, "/admin/papers/1/moderate", "", fiber.StatusOK},
		{"import", http.MethodPost, "/admin/papers/import", "", fiber.StatusOK},
		{"crawl", http.MethodPost, "/admin/papers/crawl", `{"source":"index"}`, fiber.StatusOK},
		{"crawl unknown", http.MethodPost, "/admin/papers/crawl", `{"source":"nope"}`, fiber.StatusNotFound},
		{"crawl missing source", http.MethodPost, "/admin/papers/crawl", `{}`, fiber.StatusBadRequest},
		{"delete", http.MethodDelete, "/admin/papers/1", "", fiber.StatusOK},
		{"delete again", http.MethodDelete, "/admin/papers/1", "", fiber.StatusNotFound},
	}

	for _, tt := range tests {
		if got := send(tt.method, tt.path, tt.body); got != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, got, tt.want)
		}
	}

	if len(fake.imported) != 1 || fake.imported[0] != "/srv/papers" {
		t.Errorf("imported = %v", fake.imported)
	}
	if len(fake.crawled) != 1 || fake.crawled[0] != "index" {
		t.Errorf("crawled = %v", fake.crawled)
	}
	if len(fake.papers) != 0 {
		t.Errorf("papers left = %d", len(fake.papers))
	}
}

func TestListPapers(t *testing.T) {
	app, _ := setupPaperApp("")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin/papers?doc_type=qp&page=1&limit=10", nil))
	if err != nil {
		t.Fatal(err)
	}
	var env struct {
		Data       []model.PaperResponse `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if len(env.Data) != 1 || env.Pagination.Total != 1 || env.Data[0].SessionLabel != "2023-May–June" {
		t.Errorf("list = %+v", env)
	}

	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/admin/papers?moderated=maybe", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("bad moderated status = %d", resp.StatusCode)
	}
}

func TestImportWithoutDataDir(t *testing.T) {
	app, _ := setupPaperApp("")
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/admin/papers/import", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
