package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "content-portal"

// Keyring entries.
const (
	tokenKey       = "access_token"
	DigestPassword = "digest_password"
)

// ErrNoToken is returned by Token when nobody is signed in.
var ErrNoToken = errors.New("no stored access token")

// Open returns the portal keyring.
func Open() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/portal/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("portal-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Vault stores the access token in a keyring.
type Vault struct {
	ring keyring.Keyring
}

// NewVault wraps ring.
func NewVault(ring keyring.Keyring) *Vault {
	return &Vault{ring: ring}
}

// Token returns the stored access token.
func (v *Vault) Token() (string, error) {
	item, err := v.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", tokenKey, err)
	}
	return string(item.Data), nil
}

// SetToken stores the access token.
func (v *Vault) SetToken(token string) error {
	err := v.ring.Set(keyring.Item{
		Key:   tokenKey,
		Label: "Content portal access token",
		Data:  []byte(token),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", tokenKey, err)
	}
	return nil
}

// DeleteToken removes the access token. A missing token is not an error.
func (v *Vault) DeleteToken() error {
	err := v.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", tokenKey, err)
	}
	return nil
}

// Secret returns a named secret other than the access token.
func (v *Vault) Secret(key string) (string, error) {
	item, err := v.ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// SetSecret stores a named secret.
func (v *Vault) SetSecret(key, value string) error {
	if err := v.ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}
