package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/model"
	authutil "github.com/pastpapers-ai/explainer-api/utils/auth"
	"golang.org/x/crypto/bcrypt"
)

type fakeAccounts struct {
	users map[uint]*model.User
}

func (f *fakeAccounts) FindByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (f *fakeAccounts) FindByID(_ context.Context, id uint) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeAccounts) RecordLogin(_ context.Context, id uint, at time.Time) error {
	f.users[id].LastLoginAt = &at
	return nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id uint, hash string) error {
	f.users[id].PasswordHash = hash
	f.users[id].TokenVersion++
	return nil
}

type fakeRevoker struct {
	revoked map[string]string
}

func (f *fakeRevoker) RevokeToken(_ context.Context, jti string, _ uint, _ time.Time, reason string) error {
	f.revoked[jti] = reason
	return nil
}

func (f *fakeRevoker) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := f.revoked[jti]
	return ok, nil
}

type fixture struct {
	app      *fiber.App
	accounts *fakeAccounts
	revoker  *fakeRevoker
	jwt      *authutil.JWTManager
}

func setup(t *testing.T) *fixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		accounts: &fakeAccounts{users: map[uint]*model.User{
			1: {ID: 1, Email: "admin@example.com", Name: "Admin", Role: model.RoleAdmin, PasswordHash: string(hash)},
		}},
		revoker: &fakeRevoker{revoked: map[string]string{}},
		jwt:     authutil.NewJWTManager(authutil.DefaultJWTConfig("test-secret", "test")),
	}
	h := newAuthHandler(f.accounts, f.jwt, f.revoker, nil)

	// stands in for the auth middleware
	identify := func(c *fiber.Ctx) error {
		token := strings.TrimPrefix(c.Get("Authorization"), "Bearer ")
		claims, err := f.jwt.ValidateToken(token, authutil.TokenTypeAccess)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		user, _ := f.accounts.FindByID(c.Context(), claims.UserID)
		c.Locals("user", user)
		c.Locals("claims", claims)
		c.Locals("token_jti", claims.ID)
		return c.Next()
	}

	f.app = fiber.New()
	f.app.Post("/auth/login", h.Login)
	f.app.Post("/auth/refresh", h.RefreshToken)
	f.app.Post("/auth/logout", identify, h.Logout)
	f.app.Get("/auth/me", identify, h.GetProfile)
	f.app.Put("/auth/password", identify, h.ChangePassword)
	return f
}

func (f *fixture) call(t *testing.T, method, path, token, body string, out interface{}) int {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, out)
		}
	}
	return resp.StatusCode
}

func (f *fixture) login(t *testing.T) LoginResponse {
	t.Helper()
	var res LoginResponse
	status := f.call(t, http.MethodPost, "/auth/login", "", `{"email":"Admin@Example.com","password":"correct-horse"}`, &res)
	if status != fiber.StatusOK {
		t.Fatalf("login status = %d", status)
	}
	return res
}

func TestLogin(t *testing.T) {
	f := setup(t)

	res := f.login(t)
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}
	if res.User.Email != "admin@example.com" || res.User.LastLoginAt == nil {
		t.Errorf("user = %+v", res.User)
	}
	if res.ExpiresIn <= 0 || res.ExpiresIn > 15*60 {
		t.Errorf("expires_in = %d", res.ExpiresIn)
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong password", `{"email":"admin@example.com","password":"nope-nope"}`, fiber.StatusUnauthorized},
		{"unknown email", `{"email":"ghost@example.com","password":"correct-horse"}`, fiber.StatusUnauthorized},
		{"missing password", `{"email":"admin@example.com"}`, fiber.StatusBadRequest},
		{"bad body", `{`, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.call(t, http.MethodPost, "/auth/login", "", tt.body, nil); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRefreshRotates(t *testing.T) {
	f := setup(t)
	first := f.login(t)

	var rotated RefreshResponse
	body := `{"refresh_token":"` + first.RefreshToken + `"}`
	if status := f.call(t, http.MethodPost, "/auth/refresh", "", body, &rotated); status != fiber.StatusOK {
		t.Fatalf("refresh status = %d", status)
	}
	if rotated.RefreshToken == "" || rotated.RefreshToken == first.RefreshToken {
		t.Error("expected a new refresh token")
	}

	if status := f.call(t, http.MethodPost, "/auth/refresh", "", body, nil); status != fiber.StatusUnauthorized {
		t.Errorf("reused refresh token status = %d, want 401", status)
	}

	access := `{"refresh_token":"` + first.AccessToken + `"}`
	if status := f.call(t, http.MethodPost, "/auth/refresh", "", access, nil); status != fiber.StatusUnauthorized {
		t.Errorf("access token as refresh status = %d, want 401", status)
	}
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	f := setup(t)
	res := f.login(t)

	body := `{"refresh_token":"` + res.RefreshToken + `"}`
	if status := f.call(t, http.MethodPost, "/auth/logout", res.AccessToken, body, nil); status != fiber.StatusOK {
		t.Fatalf("logout status = %d", status)
	}
	if len(f.revoker.revoked) != 2 {
		t.Errorf("revoked = %v, want access and refresh", f.revoker.revoked)
	}

	if status := f.call(t, http.MethodPost, "/auth/refresh", "", body, nil); status != fiber.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d", status)
	}
}

func TestChangePasswordInvalidatesTokens(t *testing.T) {
	f := setup(t)
	res := f.login(t)

	var me UserResponse
	if status := f.call(t, http.MethodGet, "/auth/me", res.AccessToken, "", &me); status != fiber.StatusOK || me.ID != 1 {
		t.Fatalf("me: %d %+v", status, me)
	}

	if status := f.call(t, http.MethodPut, "/auth/password", res.AccessToken, `{"current_password":"wrong-one","new_password":"another-horse"}`, nil); status != fiber.StatusUnauthorized {
		t.Errorf("wrong current password status = %d", status)
	}
	if status := f.call(t, http.MethodPut, "/auth/password", res.AccessToken, `{"current_password":"correct-horse","new_password":"short"}`, nil); status != fiber.StatusBadRequest {
		t.Errorf("short password status = %d", status)
	}
	if status := f.call(t, http.MethodPut, "/auth/password", res.AccessToken, `{"current_password":"correct-horse","new_password":"another-horse"}`, nil); status != fiber.StatusOK {
		t.Fatalf("change password status = %d", status)
	}

	if f.accounts.users[1].TokenVersion != 1 {
		t.Errorf("token version = %d", f.accounts.users[1].TokenVersion)
	}
	body := `{"refresh_token":"` + res.RefreshToken + `"}`
	if status := f.call(t, http.MethodPost, "/auth/refresh", "", body, nil); status != fiber.StatusUnauthorized {
		t.Errorf("refresh with old version status = %d", status)
	}
}
