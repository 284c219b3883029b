package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxAttempts is the upload retry budget when none is configured.
const DefaultMaxAttempts = 3

// Uploader converts a local image reference into a durable blob-store object.
// Failures are retried with exponential backoff (2^attempt seconds, no
// jitter); retries are sequential, never concurrent.
type Uploader struct {
	blob        BlobStore
	resolver    Resolver
	encryptor   Encryptor // nil means attachments are stored in plaintext
	logger      Logger
	sleeper     Sleeper
	maxAttempts int
}

// NewUploader creates an upload pipeline. encryptor may be nil.
func NewUploader(blob BlobStore, resolver Resolver, encryptor Encryptor, logger Logger, sleeper Sleeper) *Uploader {
	return &Uploader{
		blob:        blob,
		resolver:    resolver,
		encryptor:   encryptor,
		logger:      logger,
		sleeper:     sleeper,
		maxAttempts: DefaultMaxAttempts,
	}
}

// SetMaxAttempts overrides the retry budget. Values below 1 are ignored.
func (u *Uploader) SetMaxAttempts(n int) {
	if n >= 1 {
		u.maxAttempts = n
	}
}

// Upload reads the resource behind localRef and writes it to the blob store
// under owners/{ownerID}/{recordID}.jpg, returning the durable URL.
//
// An empty payload fails immediately with ErrEmptyPayload. Any other failure
// is retried up to the attempt budget; after exhaustion the last error is
// wrapped in an UploadError.
func (u *Uploader) Upload(ctx context.Context, localRef, ownerID, recordID string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= u.maxAttempts; attempt++ {
		url, err := u.attempt(ctx, localRef, ownerID, recordID)
		if err == nil {
			return url, nil
		}
		if errors.Is(err, ErrEmptyPayload) {
			return "", err
		}
		lastErr = err

		if attempt < u.maxAttempts {
			wait := time.Duration(1<<uint(attempt)) * time.Second
			u.logger.Warn("attachment upload failed, retrying",
				"record", recordID, "attempt", attempt, "wait", wait, "error", err)
			u.sleeper.Sleep(wait)
		}
	}

	return "", &UploadError{Attempts: u.maxAttempts, Err: lastErr}
}

// attempt performs one read-then-write cycle. The source is re-read on every
// attempt so a transiently unreadable source can recover.
func (u *Uploader) attempt(ctx context.Context, localRef, ownerID, recordID string) (string, error) {
	payload, err := u.resolver.Resolve(ctx, localRef)
	if err != nil {
		return "", fmt.Errorf("reading attachment source: %w", err)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("attachment source %s: %w", localRef, ErrEmptyPayload)
	}

	if u.encryptor != nil {
		var buf bytes.Buffer
		if err := u.encryptor.Encrypt(bytes.NewReader(payload), &buf); err != nil {
			return "", fmt.Errorf("encrypting attachment: %w", err)
		}
		payload = buf.Bytes()
	}

	key := AttachmentKey(ownerID, recordID)
	url, err := u.blob.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("writing attachment %s: %w", key, err)
	}

	return url, nil
}

// IsReachable reports whether the source URI currently resolves to an
// existing resource. Callers use it for pre-flight validation; it never
// gates the upload itself.
func (u *Uploader) IsReachable(ctx context.Context, uri string) bool {
	return u.resolver.Reachable(ctx, uri)
}
