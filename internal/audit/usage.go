package audit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldaudit/internal/model"
)

// estimateConcurrency bounds the per-user fan-out of the system-wide sweep.
const estimateConcurrency = 4

// Estimator computes approximate storage consumption without any platform
// billing API. Document sizes replicate the billing convention they mirror;
// blob sizes come from object metadata. The estimator never mutates state.
type Estimator struct {
	store    RecordStore
	profiles ProfileStore
	blob     BlobStore
	logger   Logger
	clock    Clock
}

func NewEstimator(store RecordStore, profiles ProfileStore, blob BlobStore, logger Logger, clock Clock) *Estimator {
	return &Estimator{store: store, profiles: profiles, blob: blob, logger: logger, clock: clock}
}

// EstimateOwner computes storage metrics for one owner. An owner with no
// records and no attachments yields all-zero metrics, not an error.
func (e *Estimator) EstimateOwner(ctx context.Context, ownerID string) (*model.StorageMetrics, error) {
	m := &model.StorageMetrics{CalculatedAt: e.clock.Now().UnixMilli()}

	// Profile document, when one exists. Absence is normal for owners that
	// predate profile tracking.
	profile, err := e.profiles.GetProfile(ctx, ownerID)
	switch {
	case err == nil:
		m.RecordStoreSize += int64(CalculateDocumentSize(profileDocument(profile)))
		m.TotalDocuments++
	case errors.Is(err, ErrNotFound):
		// nothing to count
	default:
		e.logger.Warn("could not size user profile", "owner", ownerID, "error", err)
	}

	recs, err := e.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing records for owner %s: %w", ownerID, err)
	}
	for _, rec := range recs {
		m.RecordStoreSize += int64(CalculateDocumentSize(recordDocument(rec)))
		m.TotalDocuments++
	}
	m.RecordCount = len(recs)

	// Attachment bytes under the owner's prefix. A missing or empty prefix
	// contributes zero without being an error.
	blobs, err := e.blob.List(ctx, OwnerPrefix(ownerID))
	if err != nil {
		e.logger.Warn("could not list attachments", "owner", ownerID, "error", err)
	}
	for _, b := range blobs {
		m.BlobStoreSize += b.Size
		m.AttachmentCount++
	}

	m.TotalSize = m.RecordStoreSize + m.BlobStoreSize
	return m, nil
}

// EstimateSystem computes metrics for every known user. A user whose
// estimate fails contributes zero metrics rather than failing the sweep.
func (e *Estimator) EstimateSystem(ctx context.Context) (*model.SystemStorageMetrics, error) {
	users, err := e.profiles.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing user profiles: %w", err)
	}

	sys := &model.SystemStorageMetrics{
		TotalUsers:   len(users),
		Users:        make([]model.UserUsage, len(users)),
		CalculatedAt: e.clock.Now().UnixMilli(),
	}

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(estimateConcurrency)

	for i, u := range users {
		g.Go(func() error {
			m, err := e.EstimateOwner(ctx, u.ID)
			if err != nil {
				e.logger.Warn("could not estimate user storage", "user", u.ID, "error", err)
				m = &model.StorageMetrics{CalculatedAt: e.clock.Now().UnixMilli()}
			}
			mu.Lock()
			defer mu.Unlock()
			sys.Users[i] = model.UserUsage{UserID: u.ID, Email: u.Email, Metrics: *m}
			sys.TotalDocuments += m.TotalDocuments
			sys.RecordStoreSize += m.RecordStoreSize
			sys.BlobStoreSize += m.BlobStoreSize
			return nil
		})
	}
	g.Wait()

	sys.TotalSize = sys.RecordStoreSize + sys.BlobStoreSize
	return sys, nil
}

// CalculateDocumentSize computes the approximate billed size in bytes of a
// document, mirroring the third-party billing convention: 1 byte of document
// name overhead, then per field the UTF-8 length of the field name, a
// per-type value size, and 1 byte of field overhead.
//
// The algorithm is a pure function of its input and must stay byte-for-byte
// stable for comparability across releases.
func CalculateDocumentSize(doc map[string]any) int {
	size := 1 // document name overhead

	for name, value := range doc {
		size += len(name)
		size += valueSize(value)
		size++ // field overhead
	}

	return size
}

func valueSize(value any) int {
	switch v := value.(type) {
	case nil:
		return 1
	case string:
		return len(v)
	case bool:
		return 1
	case time.Time:
		return 8
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		// All numbers bill as 64-bit, timestamp-like epoch values
		// included.
		return 8
	case []any:
		// Array overhead plus each element wrapped and measured as a
		// single-field document. Nested arrays-of-arrays reuse the same
		// wrapper recursion; the result is an approximation contract,
		// not a certified billing match.
		size := 1
		for _, item := range v {
			size += CalculateDocumentSize(map[string]any{"temp": item})
		}
		return size
	case map[string]any:
		return CalculateDocumentSize(v)
	default:
		return len(fmt.Sprint(v))
	}
}

// recordDocument renders a record the way the store bills it.
func recordDocument(rec *model.AssessmentRecord) map[string]any {
	doc := map[string]any{
		"id":            rec.ID,
		"ownerId":       rec.OwnerID,
		"createdAt":     rec.CreatedAt,
		"category":      rec.Category,
		"element":       rec.Element,
		"condition":     rec.Condition,
		"priority":      rec.Priority,
		"attachmentRef": rec.AttachmentRef,
		"notes":         rec.Notes,
	}
	doc["latitude"] = floatField(rec.Latitude)
	doc["longitude"] = floatField(rec.Longitude)
	return doc
}

func floatField(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func profileDocument(p *model.UserProfile) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"email":       p.Email,
		"displayName": p.DisplayName,
		"role":        p.Role,
		"createdAt":   p.CreatedAt,
		"updatedAt":   p.UpdatedAt,
		"isActive":    p.IsActive,
	}
}

// FormatBytes renders a byte count on the binary unit ladder with two
// decimal places. Zero renders as the literal "0 Bytes".
func FormatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}

	sizes := []string{"Bytes", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizes) {
		i = len(sizes) - 1
	}

	return fmt.Sprintf("%.2f %s", float64(bytes)/math.Pow(1024, float64(i)), sizes[i])
}
