package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/content-portal/internal/credential"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/querycache"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return tok
}

type resetCounter struct{ n int }

func (r *resetCounter) Reset(context.Context) error {
	r.n++
	return nil
}

func TestFromTokenReadsClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{
		"sub":   "editor@example.com",
		"role":  "ROLE_super_admin",
		"email": "editor@example.com",
		"exp":   exp.Unix(),
	})

	s, err := FromToken("Bearer " + tok)
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	if s.Role != model.RoleSuperAdmin {
		t.Errorf("Role = %q", s.Role)
	}
	if s.Email != "editor@example.com" || s.Subject != "editor@example.com" {
		t.Errorf("identity = %+v", s)
	}
	if !s.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, exp)
	}
	if s.Token != tok {
		t.Error("bearer prefix not stripped")
	}
}

func TestFromTokenRolesList(t *testing.T) {
	s, err := FromToken(signed(t, jwt.MapClaims{"sub": "42", "roles": []any{"ADMIN", "EDITOR"}}))
	if err != nil {
		t.Fatalf("FromToken: %v", err)
	}
	if s.Role != model.RoleAdmin {
		t.Errorf("Role = %q", s.Role)
	}
	if s.Expired(time.Now().Add(100 * 365 * 24 * time.Hour)) {
		t.Error("token without exp expired")
	}
}

func TestFromTokenRejectsGarbage(t *testing.T) {
	if _, err := FromToken(""); !errors.Is(err, ErrSignedOut) {
		t.Errorf("empty token error = %v", err)
	}
	if _, err := FromToken("not-a-jwt"); err == nil {
		t.Error("garbage token accepted")
	}
}

func TestManagerLifecycle(t *testing.T) {
	vault := credential.NewVault(keyring.NewArrayKeyring(nil))
	cache := querycache.New(10)
	cache.Set(querycache.Jobs.Detail("1"), "job", time.Minute)
	state := &resetCounter{}
	m := NewManager(vault, cache, state)

	if _, err := m.Current(); !errors.Is(err, ErrSignedOut) {
		t.Fatalf("Current before login = %v", err)
	}
	if tok, err := m.Token(); err != nil || tok != "" {
		t.Fatalf("Token before login = %q, %v", tok, err)
	}

	tok := signed(t, jwt.MapClaims{"sub": "a@example.com", "role": "ADMIN", "exp": time.Now().Add(time.Hour).Unix()})
	if _, err := m.Login(tok); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// A fresh manager finds the stored token.
	s, err := NewManager(vault, nil).Current()
	if err != nil || s.Role != model.RoleAdmin {
		t.Fatalf("Current from vault = %+v, %v", s, err)
	}

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if cache.Len() != 0 {
		t.Error("cache not cleared on logout")
	}
	if state.n != 1 {
		t.Errorf("resets = %d", state.n)
	}
	if _, err := vault.Token(); !errors.Is(err, credential.ErrNoToken) {
		t.Errorf("token survived logout: %v", err)
	}
}

func TestManagerRejectsExpiredToken(t *testing.T) {
	m := NewManager(credential.NewVault(keyring.NewArrayKeyring(nil)), nil)
	tok := signed(t, jwt.MapClaims{"sub": "x", "exp": time.Now().Add(-time.Minute).Unix()})

	if _, err := m.Login(tok); !errors.Is(err, ErrExpired) {
		t.Errorf("Login error = %v, want ErrExpired", err)
	}
}
