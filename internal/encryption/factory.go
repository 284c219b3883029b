package encryption

import (
	"fmt"

	"fieldaudit/internal/audit"
	"fieldaudit/internal/config"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. Type "none" (the default) returns a nil Encryptor: attachments are
// stored as-is.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (audit.Encryptor, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
