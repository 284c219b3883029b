package blob

import (
	"context"
	"fmt"

	"fieldaudit/internal/audit"
	"fieldaudit/internal/config"
)

// NewBlobStoreFromConfig creates a BlobStore implementation based on the
// vault config type.
func NewBlobStoreFromConfig(ctx context.Context, cfg config.VaultConfig) (audit.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" || cfg.S3Region == "" {
			return nil, fmt.Errorf("s3 vault requires s3_bucket and s3_region to be set")
		}
		return NewS3Store(ctx, cfg)
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemStore(cfg.Name, cfg.FSVaultRoot)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
