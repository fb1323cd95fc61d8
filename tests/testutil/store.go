package testutil

import (
	"testing"

	"github.com/nhle/content-portal/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewMemoryKV returns an empty in-process KV.
func NewMemoryKV(t *testing.T) *store.MemoryStore {
	t.Helper()
	return store.NewMemoryStore()
}
