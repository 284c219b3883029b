package testutil

import (
	"testing"

	"fieldaudit/internal/store"
	"fieldaudit/internal/store/migrations"
)

// NewTestStore creates a new in-memory SQLite store with the schema applied.
// The store is automatically closed when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	db, err := store.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	s := store.NewFromDB(db)

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
