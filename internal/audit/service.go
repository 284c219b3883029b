package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"fieldaudit/internal/model"
)

// bulkDeleteConcurrency bounds the delete fan-out for the bulk variants.
const bulkDeleteConcurrency = 8

// Service coordinates the assessment record lifecycle across the record
// store and the blob store. Creation is two-phase (attachment first, then
// metadata); deletion is metadata first with best-effort attachment cleanup.
// No distributed transaction spans the two stores.
type Service struct {
	store    RecordStore
	profiles ProfileStore
	blob     BlobStore
	alloc    *Allocator
	uploader *Uploader
	logger   Logger
	clock    Clock
}

// NewService creates a Service with the provided dependencies.
func NewService(store RecordStore, profiles ProfileStore, blob BlobStore, uploader *Uploader, logger Logger, clock Clock) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
		blob:     blob,
		alloc:    NewAllocator(store, clock, logger),
		uploader: uploader,
		logger:   logger,
		clock:    clock,
	}
}

// CreateInput carries the caller-supplied fields of a new record. The
// AttachmentRef is a local resource reference; it is replaced by the durable
// URL before the metadata record is written.
type CreateInput struct {
	OwnerID       string
	Latitude      *float64
	Longitude     *float64
	Category      string
	Element       string
	Condition     int
	Priority      int
	AttachmentRef string
	Notes         string
}

func (in CreateInput) validate() error {
	if in.OwnerID == "" {
		return errors.New("owner id is required")
	}
	if in.AttachmentRef == "" {
		return errors.New("attachment reference is required")
	}
	if in.Condition < 1 || in.Condition > 5 {
		return fmt.Errorf("condition %d out of range [1,5]", in.Condition)
	}
	if in.Priority < 1 || in.Priority > 5 {
		return fmt.Errorf("priority %d out of range [1,5]", in.Priority)
	}
	return nil
}

// Create runs the two-phase creation sequence: allocate an identifier, upload
// the attachment under it, then write the metadata record with the resolved
// durable reference. If the upload fails no metadata is written and the
// identifier is abandoned; identifiers need only be unique, not dense.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.AssessmentRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	// Pre-flight reachability check. Advisory only: the upload is the
	// authoritative test and proceeds regardless.
	if !s.uploader.IsReachable(ctx, in.AttachmentRef) {
		s.logger.Warn("attachment source not reachable at pre-flight", "ref", in.AttachmentRef)
	}

	alloc := s.alloc.Next(ctx)

	url, err := s.uploader.Upload(ctx, in.AttachmentRef, in.OwnerID, alloc.ID)
	if err != nil {
		return nil, fmt.Errorf("uploading attachment for %s: %w", alloc.ID, err)
	}

	rec := &model.AssessmentRecord{
		ID:            alloc.ID,
		OwnerID:       in.OwnerID,
		CreatedAt:     s.clock.Now().UnixMilli(),
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		Category:      in.Category,
		Element:       in.Element,
		Condition:     in.Condition,
		Priority:      in.Priority,
		AttachmentRef: url,
		Notes:         in.Notes,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		// The attachment is already durable; a failure here leaves an
		// orphaned blob for the reconciliation sweep to collect.
		s.logger.Error("record write failed after attachment upload",
			"id", alloc.ID, "key", AttachmentKey(in.OwnerID, alloc.ID), "error", err)
		return nil, fmt.Errorf("writing record %s: %w", alloc.ID, err)
	}

	s.logger.Info("record created", "id", rec.ID, "owner", rec.OwnerID, "fallback_id", alloc.Fallback)
	return rec, nil
}

// Get reads one record by id.
func (s *Service) Get(ctx context.Context, id string) (*model.AssessmentRecord, error) {
	return s.store.Get(ctx, id)
}

// ListByOwner returns one owner's records, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*model.AssessmentRecord, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// ListAll returns every record, newest first. Privileged: callers must have
// verified the admin role upstream; the service does not enforce it.
func (s *Service) ListAll(ctx context.Context) ([]*model.AssessmentRecord, error) {
	return s.store.ListAll(ctx)
}

// Update applies a partial patch to an existing record. The id and owner are
// immutable.
func (s *Service) Update(ctx context.Context, id string, patch RecordPatch) error {
	if patch.Empty() {
		return nil
	}
	if err := s.store.Update(ctx, id, patch); err != nil {
		return fmt.Errorf("updating record %s: %w", id, err)
	}
	s.logger.Info("record updated", "id", id)
	return nil
}

// AttachmentOutcome classifies what happened to a record's attachment during
// deletion.
type AttachmentOutcome int

const (
	// AttachmentDeleted means the blob was removed.
	AttachmentDeleted AttachmentOutcome = iota
	// AttachmentMissing means the blob was already absent (treated as
	// success; deletion is idempotent with respect to the attachment).
	AttachmentMissing
	// AttachmentFailed means cleanup failed after the metadata record was
	// already removed. Logged, never surfaced as an operation failure.
	AttachmentFailed
)

func (o AttachmentOutcome) String() string {
	switch o {
	case AttachmentDeleted:
		return "deleted"
	case AttachmentMissing:
		return "missing"
	case AttachmentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeleteResult reports both halves of a cascading delete separately so
// monitoring can detect accumulating orphaned blobs.
type DeleteResult struct {
	MetadataDeleted bool
	Attachment      AttachmentOutcome
}

// Delete removes a record and best-effort removes its attachment. A metadata
// deletion failure aborts the operation; an attachment cleanup failure never
// does. The metadata store is the source of truth for "the record is gone".
func (s *Service) Delete(ctx context.Context, id string) (DeleteResult, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return DeleteResult{}, fmt.Errorf("deleting record %s: %w", id, err)
	}

	res := DeleteResult{
		MetadataDeleted: true,
		Attachment:      s.deleteAttachment(ctx, rec),
	}
	s.logger.Info("record deleted", "id", id, "attachment", res.Attachment.String())
	return res, nil
}

// deleteAttachment resolves the stored durable reference back into a blob
// key, falling back to the deterministic path convention when the reference
// is unparsable, and deletes the object.
func (s *Service) deleteAttachment(ctx context.Context, rec *model.AssessmentRecord) AttachmentOutcome {
	key, ok := s.blob.KeyFromURL(rec.AttachmentRef)
	if !ok {
		key = AttachmentKey(rec.OwnerID, rec.ID)
	}

	err := s.blob.Delete(ctx, key)
	switch {
	case err == nil:
		return AttachmentDeleted
	case errors.Is(err, ErrBlobNotExist):
		return AttachmentMissing
	default:
		s.logger.Warn("attachment cleanup failed after record deletion",
			"id", rec.ID, "key", key, "error", err)
		return AttachmentFailed
	}
}

// BulkDeleteResult reports how far a bulk deletion got. Partial completion
// is expected behavior, not an error.
type BulkDeleteResult struct {
	Deleted int
	Failed  int
}

// ClearOwner deletes every record owned by ownerID. Deletions fan out
// concurrently and do not roll back on partial failure.
func (s *Service) ClearOwner(ctx context.Context, ownerID string) (BulkDeleteResult, error) {
	recs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return BulkDeleteResult{}, fmt.Errorf("listing records for owner %s: %w", ownerID, err)
	}
	return s.deleteAll(ctx, recs), nil
}

// ClearAll deletes every record system-wide. Privileged; authorization is
// the caller's responsibility.
func (s *Service) ClearAll(ctx context.Context) (BulkDeleteResult, error) {
	recs, err := s.store.ListAll(ctx)
	if err != nil {
		return BulkDeleteResult{}, fmt.Errorf("listing all records: %w", err)
	}
	return s.deleteAll(ctx, recs), nil
}

func (s *Service) deleteAll(ctx context.Context, recs []*model.AssessmentRecord) BulkDeleteResult {
	var (
		mu  sync.Mutex
		res BulkDeleteResult
	)

	g := &errgroup.Group{}
	g.SetLimit(bulkDeleteConcurrency)

	for _, rec := range recs {
		g.Go(func() error {
			_, err := s.Delete(ctx, rec.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Warn("bulk delete: record failed", "id", rec.ID, "error", err)
				res.Failed++
			} else {
				res.Deleted++
			}
			return nil
		})
	}

	g.Wait()
	return res
}

// Profile passthroughs. Profiles are managed by the identity side; the
// service only stores and reads them.

func (s *Service) PutProfile(ctx context.Context, p *model.UserProfile) error {
	return s.profiles.PutProfile(ctx, p)
}

func (s *Service) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	return s.profiles.GetProfile(ctx, id)
}

func (s *Service) ListProfiles(ctx context.Context) ([]*model.UserProfile, error) {
	return s.profiles.ListProfiles(ctx)
}

func (s *Service) UpdateProfileRole(ctx context.Context, id, role string) error {
	if role != model.RoleStaff && role != model.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}
	return s.profiles.UpdateProfileRole(ctx, id, role)
}
