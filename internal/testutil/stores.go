package testutil

import (
	"testing"

	"mediadex/internal/cache"
	"mediadex/internal/vecstore"
)

// NewTestCache creates a new in-memory metadata cache with migrations
// applied. The cache is automatically closed when the test completes.
func NewTestCache(t *testing.T) *cache.Store {
	t.Helper()

	store, err := cache.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// NewTestVectorDB creates a new in-memory SQLite vector database with schema
// applied. The database is automatically closed when the test completes.
func NewTestVectorDB(t *testing.T) *vecstore.Store {
	t.Helper()

	store, err := vecstore.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open vector database: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
