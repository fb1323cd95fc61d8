package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/nhle/content-portal/internal/credential"
)

// KeyringStore implements KV on the operating system keyring.
type KeyringStore struct {
	ring keyring.Keyring
}

// NewKeyringStore opens the portal keyring.
func NewKeyringStore() (*KeyringStore, error) {
	ring, err := credential.Open()
	if err != nil {
		return nil, err
	}
	return &KeyringStore{ring: ring}, nil
}

// NewKeyringStoreFrom wraps an already opened keyring.
func NewKeyringStoreFrom(ring keyring.Keyring) *KeyringStore {
	return &KeyringStore{ring: ring}
}

func (k *KeyringStore) Get(_ context.Context, key string) (string, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting %q: %w", key, err)
	}
	return string(item.Data), nil
}

func (k *KeyringStore) Set(_ context.Context, key, value string) error {
	if err := k.ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

func (k *KeyringStore) Remove(_ context.Context, key string) error {
	err := k.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	return nil
}

func (k *KeyringStore) Close() error { return nil }
