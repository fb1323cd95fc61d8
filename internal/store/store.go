package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nhle/content-portal/internal/model"
)

// ErrNotFound is returned by KV.Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// KV is the small persisted key-value interface behind client-local state
// such as the notification suppression set. Writes are last-write-wins.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Backend is a KV that owns a resource which must be released.
type Backend interface {
	KV
	Close() error
}

// Open creates the backend selected by cfg.Backend.
func Open(cfg model.StateConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "keyring":
		return NewKeyringStore()
	case "redis":
		return NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// Namespaced prefixes every key so several users or profiles can share one
// backend without colliding.
type Namespaced struct {
	kv     KV
	prefix string
}

// WithPrefix returns a KV that stores keys under prefix + ":".
func WithPrefix(kv KV, prefix string) *Namespaced {
	return &Namespaced{kv: kv, prefix: prefix}
}

func (n *Namespaced) key(k string) string {
	if n.prefix == "" {
		return k
	}
	return n.prefix + ":" + k
}

// Get implements KV.
func (n *Namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.kv.Get(ctx, n.key(key))
}

// Set implements KV.
func (n *Namespaced) Set(ctx context.Context, key, value string) error {
	return n.kv.Set(ctx, n.key(key), value)
}

// Remove implements KV.
func (n *Namespaced) Remove(ctx context.Context, key string) error {
	return n.kv.Remove(ctx, n.key(key))
}
