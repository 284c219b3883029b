package store

import (
	"fmt"
	"os"
	"path/filepath"

	"fieldaudit/internal/config"
)

// NewStoreFromConfig creates a SQLiteStore based on the store configuration.
// The "memory" type is backed by an in-memory SQLite database and is intended
// for tests and throwaway runs.
func NewStoreFromConfig(cfg config.StoreConfig) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite store requires data_dir")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return Open(filepath.Join(cfg.DataDir, "audit.db"))
	case "memory":
		return Open(":memory:")
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
