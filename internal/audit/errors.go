package audit

import (
	"errors"
	"fmt"
)

// Sentinel errors for the record lifecycle.
var (
	// ErrNotFound is returned when a record id does not exist in the store.
	ErrNotFound = errors.New("record not found")

	// ErrEmptyPayload is returned when an attachment source resolves to zero
	// bytes. It is fatal to the enclosing create operation.
	ErrEmptyPayload = errors.New("attachment payload is empty")

	// ErrDuplicateID is returned by RecordStore.Create when the explicit key
	// already exists. The allocator uses it to detect scan/write races.
	ErrDuplicateID = errors.New("record id already exists")

	// ErrBlobNotExist is returned by blob backends for a missing object.
	// Deletion treats it as success.
	ErrBlobNotExist = errors.New("blob does not exist")
)

// UploadError wraps the last failure after the upload pipeline has exhausted
// its retry budget.
type UploadError struct {
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PermissionError indicates the store rejected the caller: access is not
// configured rather than the data being absent.
type PermissionError struct {
	Op  string
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: store access not configured: %v", e.Op, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// IndexRequiredError indicates a query needs a server-side index or schema
// object that has not been provisioned yet. Distinct from a permission
// failure so callers can suggest running migrations instead of fixing access.
type IndexRequiredError struct {
	Op  string
	Err error
}

func (e *IndexRequiredError) Error() string {
	return fmt.Sprintf("%s: required index or schema object is missing (run migrations): %v", e.Op, e.Err)
}

func (e *IndexRequiredError) Unwrap() error { return e.Err }
