package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/content-portal/internal/credential"
	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/querycache"
)

// ErrSignedOut is returned when there is no usable session.
var ErrSignedOut = errors.New("not signed in")

// ErrExpired is returned for a token past its exp claim.
var ErrExpired = errors.New("session expired")

// Session is the signed-in user as described by the access token.
type Session struct {
	Subject   string
	Email     string
	Role      model.Role
	ExpiresAt time.Time
	Token     string
}

// Expired reports whether the token is past its expiry at now. A token
// without exp never expires.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// FromToken reads the claims of an access token. The signature is not
// checked; the server does that on every request.
func FromToken(token string) (Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Session{}, ErrSignedOut
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("parsing access token: %w", err)
	}

	s := Session{Token: token}
	s.Subject, _ = claims.GetSubject()
	s.Email, _ = claims["email"].(string)
	if s.Email == "" {
		s.Email = s.Subject
	}
	s.Role = roleClaim(claims)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// roleClaim accepts "role", "roles" (first entry) and Spring-style
// "ROLE_" prefixes.
func roleClaim(claims jwt.MapClaims) model.Role {
	raw, _ := claims["role"].(string)
	if raw == "" {
		if list, ok := claims["roles"].([]any); ok && len(list) > 0 {
			raw, _ = list[0].(string)
		}
	}
	return model.ParseRole(strings.TrimPrefix(strings.ToUpper(raw), "ROLE_"))
}

// Resetter forgets client-local state tied to a user.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Manager owns the access token and tears down per-user state on logout.
type Manager struct {
	vault  *credential.Vault
	cache  *querycache.Cache
	resets []Resetter
	now    func() time.Time

	mu      gosync.Mutex
	current *Session
}

// NewManager creates a manager. Every resetter is cleared on logout,
// after the cache.
func NewManager(vault *credential.Vault, cache *querycache.Cache, resets ...Resetter) *Manager {
	return &Manager{vault: vault, cache: cache, resets: resets, now: time.Now}
}

// Login validates and stores token.
func (m *Manager) Login(token string) (Session, error) {
	s, err := FromToken(token)
	if err != nil {
		return Session{}, err
	}
	if s.Expired(m.now()) {
		return Session{}, ErrExpired
	}
	if err := m.vault.SetToken(s.Token); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return s, nil
}

// Current returns the active session, reading the stored token on first
// use.
func (m *Manager) Current() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		token, err := m.vault.Token()
		if errors.Is(err, credential.ErrNoToken) {
			return Session{}, ErrSignedOut
		}
		if err != nil {
			return Session{}, err
		}
		s, err := FromToken(token)
		if err != nil {
			return Session{}, err
		}
		m.current = &s
	}
	if m.current.Expired(m.now()) {
		return Session{}, ErrExpired
	}
	return *m.current, nil
}

// Token is an api.TokenFunc. It returns "" when signed out so anonymous
// reads still work.
func (m *Manager) Token() (string, error) {
	s, err := m.Current()
	if errors.Is(err, ErrSignedOut) || errors.Is(err, ErrExpired) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// Logout drops the token, the query cache and every registered
// client-local state. All steps run even if one fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()

	errs := []error{m.vault.DeleteToken()}
	if m.cache != nil {
		m.cache.Clear()
	}
	for _, r := range m.resets {
		errs = append(errs, r.Reset(ctx))
	}
	return errors.Join(errs...)
}
