package testutil

import (
	"fieldaudit/internal/blob"
)

// NewTestBlobStore creates a new in-memory blob store for testing.
func NewTestBlobStore() *blob.MemoryStore {
	return blob.NewMemoryStore("test-vault")
}
