package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/model"
	"github.com/pastpapers-ai/explainer-api/services/studysession"
	"github.com/pastpapers-ai/explainer-api/utils/auth"
	"gorm.io/gorm"
)

type fakeRevocations map[string]bool

func (f fakeRevocations) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f[jti], nil
}

func newTestAuth(t *testing.T, users map[uint]*model.User, revoked fakeRevocations) (*AuthMiddleware, *auth.JWTManager) {
	t.Helper()
	jwtManager := auth.NewJWTManager(auth.DefaultJWTConfig("middleware-secret", "test"))
	return &AuthMiddleware{
		jwtManager: jwtManager,
		revoked:    revoked,
		findUser: func(_ context.Context, id uint) (*model.User, error) {
			if u, ok := users[id]; ok {
				return u, nil
			}
			return nil, gorm.ErrRecordNotFound
		},
	}, jwtManager
}

func tokenFor(t *testing.T, m *auth.JWTManager, u *model.User) *auth.TokenPair {
	t.Helper()
	pair, err := m.GenerateTokenPair(auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role, TokenVersion: u.TokenVersion})
	if err != nil {
		t.Fatal(err)
	}
	return pair
}

func TestAuthRequired(t *testing.T) {
	admin := &model.User{ID: 1, Email: "admin@example.com", Role: model.RoleAdmin}
	student := &model.User{ID: 2, Email: "student@example.com", Role: model.RoleStudent}
	bumped := &model.User{ID: 3, Email: "old@example.com", Role: model.RoleAdmin, TokenVersion: 0}

	revoked := fakeRevocations{}
	m, jwtManager := newTestAuth(t, map[uint]*model.User{1: admin, 2: student, 3: bumped}, revoked)

	adminTokens := tokenFor(t, jwtManager, admin)
	studentTokens := tokenFor(t, jwtManager, student)
	bumpedTokens := tokenFor(t, jwtManager, bumped)
	bumped.TokenVersion = 1

	revokedTokens := tokenFor(t, jwtManager, admin)
	revoked[revokedTokens.AccessJTI] = true

	app := fiber.New()
	app.Get("/admin", m.Required(), m.RequireAdmin(), func(c *fiber.Ctx) error {
		email, _ := GetUserEmail(c)
		return c.SendString(email)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", fiber.StatusUnauthorized},
		{"bad format", "Token abc", fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", fiber.StatusUnauthorized},
		{"refresh token", "Bearer " + adminTokens.RefreshToken, fiber.StatusUnauthorized},
		{"revoked", "Bearer " + revokedTokens.AccessToken, fiber.StatusUnauthorized},
		{"old token version", "Bearer " + bumpedTokens.AccessToken, fiber.StatusUnauthorized},
		{"student", "Bearer " + studentTokens.AccessToken, fiber.StatusForbidden},
		{"admin", "Bearer " + adminTokens.AccessToken, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if tt.want == fiber.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != "admin@example.com" {
					t.Errorf("body = %q", body)
				}
			}
		})
	}
}

func TestAuthOptional(t *testing.T) {
	student := &model.User{ID: 2, Email: "student@example.com", Role: model.RoleStudent}
	m, jwtManager := newTestAuth(t, map[uint]*model.User{2: student}, fakeRevocations{})
	tokens := tokenFor(t, jwtManager, student)

	app := fiber.New()
	app.Get("/", m.Optional(), func(c *fiber.Ctx) error {
		if email, ok := GetUserEmail(c); ok {
			return c.SendString(email)
		}
		return c.SendString("anonymous")
	})

	for header, want := range map[string]string{
		"":                              "anonymous",
		"Bearer nope":                   "anonymous",
		"Bearer " + tokens.AccessToken:  "student@example.com",
		"Bearer " + tokens.RefreshToken: "anonymous",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != want {
			t.Errorf("header %q: body = %q, want %q", header, body, want)
		}
	}
}

func TestUnauthorizedMessage(t *testing.T) {
	if got := unauthorizedMessage(auth.ErrExpiredToken); got != "Token has expired" {
		t.Errorf("got %q", got)
	}
	if got := unauthorizedMessage(errors.New("other")); got != "Invalid token" {
		t.Errorf("got %q", got)
	}
}

func TestLockoutFor(t *testing.T) {
	tests := map[int64]time.Duration{
		1:  0,
		4:  0,
		5:  2 * time.Minute,
		9:  2 * time.Minute,
		10: time.Hour,
		25: 24 * time.Hour,
		99: 24 * time.Hour,
	}
	for attempts, want := range tests {
		if got := LockoutFor(attempts); got != want {
			t.Errorf("LockoutFor(%d) = %v, want %v", attempts, got, want)
		}
	}

	var disabled *BruteForceProtection
	if err := disabled.RecordFailedAttempt(context.Background(), "1.2.3.4"); err != nil {
		t.Errorf("nil protection should be a no-op, got %v", err)
	}
}

func TestRequireStudySession(t *testing.T) {
	manager := studysession.NewManager(studysession.NewMemoryStore(time.Hour), 3)
	sess, err := manager.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	app := fiber.New()
	app.Get("/", RequireStudySession(manager), func(c *fiber.Ctx) error {
		s, _ := GetStudySession(c)
		return c.SendString(s.ID)
	})

	tests := []struct {
		id   string
		want int
	}{
		{"", fiber.StatusBadRequest},
		{"missing", fiber.StatusNotFound},
		{sess.ID, fiber.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.id != "" {
			req.Header.Set(studysession.HeaderName, tt.id)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tt.want {
			t.Errorf("id %q: status = %d, want %d", tt.id, resp.StatusCode, tt.want)
		}
	}
}

func TestAdminAuditLog(t *testing.T) {
	recorded := make(chan *model.AdminAuditLog, 1)
	admin := &model.User{ID: 7, Role: model.RoleAdmin}

	app := fiber.New()
	app.Put("/papers/:id", func(c *fiber.Ctx) error {
		c.Locals("user", admin)
		return c.Next()
	}, AdminAuditLog(func(e *model.AdminAuditLog) { recorded <- e }, "paper_update", "papers"), func(c *fiber.Ctx) error {
		SetAuditOldValue(c, map[string]string{"difficulty": "Medium"})
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPut, "/papers/42", strings.NewReader(`{"difficulty":"Hard"}`))
	req.Header.Set("Content-Type", "application/json")
	if _, err := app.Test(req); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-recorded:
		if e.AdminID != 7 || e.Action != "paper_update" || e.ResourceKey != "42" || e.StatusCode != fiber.StatusOK {
			t.Errorf("entry = %+v", e)
		}
		if string(e.NewValue) != `{"difficulty":"Hard"}` || string(e.OldValue) != `{"difficulty":"Medium"}` {
			t.Errorf("values = %s -> %s", e.OldValue, e.NewValue)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audit entry was not recorded")
	}
}
