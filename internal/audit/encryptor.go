package audit

import "io"

// Encryptor provides at-rest encryption for attachment payloads.
// Implementations use asymmetric encryption: Encrypt only needs the public
// key, so capture and upload never prompt for a passphrase.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `fieldaudit keys
	// init`. Generates a key pair, stores the public key in plaintext, and
	// encrypts the private key with the provided passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	// Uses the public key only.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext that can decrypt data for the duration of the
	// session. Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if the key material exists and the
	// encryptor is ready for use.
	IsConfigured() bool
}

// DecryptionContext holds unlocked key material for decrypting attachments.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
