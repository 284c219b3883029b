package model

// AssessmentRecord is one persisted audit observation: structured metadata
// plus exactly one photographic attachment.
type AssessmentRecord struct {
	ID            string   // DDMMYYYY-SSSSS, immutable once assigned
	OwnerID       string   // creating user, never changes
	CreatedAt     int64    // epoch milliseconds, set once at creation
	Latitude      *float64 // nil when location was unavailable
	Longitude     *float64
	Category      string
	Element       string
	Condition     int    // 1..5
	Priority      int    // 1..5
	AttachmentRef string // local ref at intake, durable remote URL at rest
	Notes         string
}

// Roles a UserProfile can hold.
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// UserProfile holds role and activity metadata for an account. The audit
// core reads it only to decide whether an operation is user-scoped or global.
type UserProfile struct {
	ID          string // UUID
	Email       string
	DisplayName string
	Role        string // "staff" or "admin"
	CreatedAt   int64  // epoch milliseconds
	UpdatedAt   int64
	IsActive    bool
}

// StorageMetrics is a derived, non-persisted accounting of bytes consumed by
// one owner's (or the whole system's) records and attachments. Recomputed on
// demand, never cached.
type StorageMetrics struct {
	TotalDocuments  int   // record-store documents counted (records + profile)
	RecordStoreSize int64 // estimated record-store bytes
	BlobStoreSize   int64 // reported attachment bytes
	TotalSize       int64
	RecordCount     int
	AttachmentCount int
	CalculatedAt    int64 // epoch milliseconds
}

// UserUsage pairs one user's identity with their storage metrics inside a
// system-wide estimate.
type UserUsage struct {
	UserID  string
	Email   string
	Metrics StorageMetrics
}

// SystemStorageMetrics is the system-wide (admin) storage estimate.
type SystemStorageMetrics struct {
	TotalUsers      int
	TotalDocuments  int
	RecordStoreSize int64
	BlobStoreSize   int64
	TotalSize       int64
	Users           []UserUsage
	CalculatedAt    int64
}
