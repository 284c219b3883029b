package audit

import (
	"context"

	"fieldaudit/internal/model"
)

// RecordPatch is a partial update to an AssessmentRecord. Nil fields are left
// unchanged. The record id and owner are immutable and cannot be patched.
type RecordPatch struct {
	Latitude  *float64
	Longitude *float64
	Category  *string
	Element   *string
	Condition *int
	Priority  *int
	Notes     *string
	// AttachmentRef may be rewritten when an attachment is re-uploaded.
	AttachmentRef *string
}

// Empty reports whether the patch would change nothing.
func (p RecordPatch) Empty() bool {
	return p.Latitude == nil && p.Longitude == nil && p.Category == nil &&
		p.Element == nil && p.Condition == nil && p.Priority == nil &&
		p.Notes == nil && p.AttachmentRef == nil
}

// RecordStore is the key-document interface for assessment metadata.
// Implementations must return ErrNotFound for unknown ids, ErrDuplicateID for
// create-with-existing-key, and translate operational failures into
// PermissionError / IndexRequiredError where they can be distinguished.
//
// ListAll is privileged: the store does not enforce authorization, callers
// must have verified the admin role upstream.
type RecordStore interface {
	// Create writes a record under its explicit, pre-allocated key.
	Create(ctx context.Context, rec *model.AssessmentRecord) error

	// Get reads a record by key.
	Get(ctx context.Context, id string) (*model.AssessmentRecord, error)

	// ListByOwner returns one owner's records, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.AssessmentRecord, error)

	// ListAll returns every record, newest first.
	ListAll(ctx context.Context) ([]*model.AssessmentRecord, error)

	// ListIDs returns every record id. The allocator scans this set; no
	// server-side prefix filter is assumed.
	ListIDs(ctx context.Context) ([]string, error)

	// Update applies a partial patch to an existing record.
	Update(ctx context.Context, id string, patch RecordPatch) error

	// Delete removes a record by key.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying connection.
	Close() error
}

// ProfileStore holds user profiles. Profiles are owned by the identity side;
// the audit core reads them to decide user-scoped vs global operations.
type ProfileStore interface {
	PutProfile(ctx context.Context, p *model.UserProfile) error
	GetProfile(ctx context.Context, id string) (*model.UserProfile, error)
	ListProfiles(ctx context.Context) ([]*model.UserProfile, error)
	UpdateProfileRole(ctx context.Context, id, role string) error
}
