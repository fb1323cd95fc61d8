package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"

	"github.com/nhle/content-portal/internal/model"
	"github.com/nhle/content-portal/internal/store"
	"github.com/nhle/content-portal/tests/testutil"
)

// exerciseKV checks the KV contract against any backend.
func exerciseKV(t *testing.T, kv store.KV) {
	t.Helper()
	ctx := context.Background()

	if _, err := kv.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := kv.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v2" {
		t.Errorf("Get(k) = %q, want last write %q", got, "v2")
	}

	if err := kv.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := kv.Get(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get after Remove error = %v, want ErrNotFound", err)
	}
	if err := kv.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove of missing key: %v", err)
	}
}

func TestSQLiteStoreKV(t *testing.T) {
	exerciseKV(t, testutil.NewTestStore(t))
}

func TestMemoryStoreKV(t *testing.T) {
	exerciseKV(t, store.NewMemoryStore())
}

func TestKeyringStoreKV(t *testing.T) {
	exerciseKV(t, store.NewKeyringStoreFrom(keyring.NewArrayKeyring(nil)))
}

func TestRedisStoreKV(t *testing.T) {
	addr := os.Getenv("PORTAL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PORTAL_TEST_REDIS_ADDR not set")
	}
	s, err := store.NewRedisStore(addr, 0)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	exerciseKV(t, store.WithPrefix(s, t.Name()))
}

func TestSQLiteMigrationsApplied(t *testing.T) {
	s := testutil.NewTestStore(t)
	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("SchemaVersion() = %d, want 2", v)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Set(ctx, "cv_last_seen_all", "2024-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "cv_last_seen_all")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "2024-01-01T00:00:00Z" {
		t.Errorf("Get() = %q after reopen", got)
	}
}

func TestNamespacedIsolation(t *testing.T) {
	ctx := context.Background()
	base := store.NewMemoryStore()
	alice := store.WithPrefix(base, "alice")
	bob := store.WithPrefix(base, "bob")

	if err := alice.Set(ctx, "cv_suppressed_notifs", `["1"]`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := bob.Get(ctx, "cv_suppressed_notifs"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("bob sees alice's key: err = %v", err)
	}
	if got, _ := base.Get(ctx, "alice:cv_suppressed_notifs"); got != `["1"]` {
		t.Errorf("underlying key = %q", got)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	mem, err := store.Open(model.StateConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	if _, ok := mem.(*store.MemoryStore); !ok {
		t.Errorf("Open(memory) returned %T", mem)
	}

	lite, err := store.Open(model.StateConfig{
		Backend:    "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "state.db"),
	})
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	defer lite.Close()
	if _, ok := lite.(*store.SQLiteStore); !ok {
		t.Errorf("Open(sqlite) returned %T", lite)
	}

	if _, err := store.Open(model.StateConfig{Backend: "floppy"}); err == nil {
		t.Error("Open(floppy) succeeded, want error")
	}
}
