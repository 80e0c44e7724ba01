package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	if err := VerifyPassword(hash, "correct-horse"); err != nil {
		t.Errorf("VerifyPassword() with right password = %v", err)
	}
	if err := VerifyPassword(hash, "wrong-horse"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("VerifyPassword() with wrong password = %v, want ErrPasswordMismatch", err)
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		want     error
	}{
		{"short", ErrPasswordTooShort},
		{"longenough", nil},
		{strings.Repeat("x", 73), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		if err := ValidatePassword(tt.password); !errors.Is(err, tt.want) {
			t.Errorf("ValidatePassword(len %d) = %v, want %v", len(tt.password), err, tt.want)
		}
	}
}

func newTestManager() *JWTManager {
	return NewJWTManager(DefaultJWTConfig("test-secret", "explainer-api"))
}

func TestGenerateTokenPair(t *testing.T) {
	m := newTestManager()
	p := Principal{UserID: 7, Email: "admin@example.com", Role: "admin", TokenVersion: 2}

	pair, err := m.GenerateTokenPair(p)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	if pair.AccessJTI == "" || pair.AccessJTI == pair.RefreshJTI {
		t.Errorf("expected distinct JTIs, got %q and %q", pair.AccessJTI, pair.RefreshJTI)
	}

	claims, err := m.ValidateToken(pair.AccessToken, TokenTypeAccess)
	if err != nil {
		t.Fatalf("ValidateToken(access) error = %v", err)
	}
	if claims.UserID != 7 || claims.Role != "admin" || claims.TokenVersion != 2 {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.ID != pair.AccessJTI {
		t.Errorf("claims.ID = %q, want %q", claims.ID, pair.AccessJTI)
	}

	if _, err := m.ValidateToken(pair.RefreshToken, TokenTypeAccess); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
	if _, err := m.ValidateToken(pair.RefreshToken, TokenTypeRefresh); err != nil {
		t.Errorf("ValidateToken(refresh) error = %v", err)
	}
}

func TestValidateTokenRejectsOtherSecret(t *testing.T) {
	pair, err := newTestManager().GenerateTokenPair(Principal{UserID: 1})
	if err != nil {
		t.Fatal(err)
	}

	other := NewJWTManager(DefaultJWTConfig("another-secret", "explainer-api"))
	if _, err := other.ValidateToken(pair.AccessToken, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	m := newTestManager()
	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }

	pair, err := m.GenerateTokenPair(Principal{UserID: 1})
	if err != nil {
		t.Fatal(err)
	}

	m.now = time.Now
	if _, err := m.ValidateToken(pair.AccessToken, TokenTypeAccess); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}
