package audit

import (
	"context"
	"fmt"
	"io"
)

// BlobInfo describes one stored object.
type BlobInfo struct {
	Key  string
	Size int64
}

// BlobStore is the hierarchical key-object interface for attachments.
// Keys follow the layout convention "owners/{ownerID}/{recordID}.jpg".
// Put returns a durable, directly-fetchable URL for the written object;
// KeyFromURL inverts that mapping for delete-by-reference recovery.
type BlobStore interface {
	// Put writes size bytes from r under key and returns the durable URL.
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)

	// Get retrieves the object under key and writes it to w.
	// Returns ErrBlobNotExist for a missing object.
	Get(ctx context.Context, key string, w io.Writer) error

	// Stat reads object metadata including the byte size.
	// Returns ErrBlobNotExist for a missing object.
	Stat(ctx context.Context, key string) (BlobInfo, error)

	// List returns metadata for every object under prefix. A missing or
	// empty prefix yields an empty slice, not an error.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)

	// Delete removes the object under key. Returns ErrBlobNotExist if the
	// object is already gone.
	Delete(ctx context.Context, key string) error

	// KeyFromURL parses a durable URL produced by this backend back into a
	// store key. ok is false when the URL does not belong to this backend.
	KeyFromURL(url string) (key string, ok bool)

	// ValidateSetup verifies the backend is accessible and configured.
	ValidateSetup() error
}

// AttachmentKey is the deterministic blob key for a record's photograph.
// The layout is part of the persisted contract and must not change.
func AttachmentKey(ownerID, recordID string) string {
	return fmt.Sprintf("owners/%s/%s.jpg", ownerID, recordID)
}

// OwnerPrefix is the blob prefix holding all of one owner's attachments.
func OwnerPrefix(ownerID string) string {
	return "owners/" + ownerID + "/"
}
