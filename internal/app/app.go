package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"fieldaudit/internal/audit"
	"fieldaudit/internal/blob"
	"fieldaudit/internal/config"
	"fieldaudit/internal/encryption"
	"fieldaudit/internal/model"
	"fieldaudit/internal/source"
	"fieldaudit/internal/store"
)

// App is the application layer between the CLI and the audit service.
// It constructs all dependencies from config, applies the acting-user
// authorization checks, and manages the store lifecycle on Close.
type App struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	blob      audit.BlobStore
	encryptor audit.Encryptor
	service   *audit.Service
	estimator *audit.Estimator
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Create", "Delete").
// The caller must call Close when done.
func NewApp(ctx context.Context, cfg *config.Config, operation string) (*App, error) {
	st, err := store.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	bs, err := blob.NewBlobStoreFromConfig(ctx, cfg.Vault)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	logger, logFile, err := newLogger(cfg.LogDir, operation)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	uploader := audit.NewUploader(bs, source.NewResolver(), enc, log, audit.RealSleeper{})
	if cfg.Upload.MaxAttempts > 0 {
		uploader.SetMaxAttempts(cfg.Upload.MaxAttempts)
	}

	svc := audit.NewService(st, st, bs, uploader, log, audit.RealClock{})
	est := audit.NewEstimator(st, st, bs, log, audit.RealClock{})

	return &App{
		cfg:       cfg,
		store:     st,
		blob:      bs,
		encryptor: enc,
		service:   svc,
		estimator: est,
		logFile:   logFile,
	}, nil
}

// requireAdmin verifies that the acting user exists and holds the admin role.
func (a *App) requireAdmin(ctx context.Context) error {
	if a.cfg.ActingUser == "" {
		return fmt.Errorf("no acting_user configured; admin operation refused")
	}
	p, err := a.service.GetProfile(ctx, a.cfg.ActingUser)
	if err != nil {
		return fmt.Errorf("looking up acting user: %w", err)
	}
	if p.Role != model.RoleAdmin {
		return fmt.Errorf("user %s is not an admin", a.cfg.ActingUser)
	}
	return nil
}

// CreateRecord creates an assessment record. When the input has no owner the
// acting user becomes the owner.
func (a *App) CreateRecord(ctx context.Context, in audit.CreateInput) (*model.AssessmentRecord, error) {
	if in.OwnerID == "" {
		in.OwnerID = a.cfg.ActingUser
	}
	return a.service.Create(ctx, in)
}

// GetRecord reads one record by id.
func (a *App) GetRecord(ctx context.Context, id string) (*model.AssessmentRecord, error) {
	return a.service.Get(ctx, id)
}

// ListRecords returns the acting user's records, newest first.
func (a *App) ListRecords(ctx context.Context) ([]*model.AssessmentRecord, error) {
	return a.service.ListByOwner(ctx, a.cfg.ActingUser)
}

// ListAllRecords returns every record in the system. Admin only.
func (a *App) ListAllRecords(ctx context.Context) ([]*model.AssessmentRecord, error) {
	if err := a.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return a.service.ListAll(ctx)
}

// UpdateRecord applies a partial patch to an existing record.
func (a *App) UpdateRecord(ctx context.Context, id string, patch audit.RecordPatch) error {
	return a.service.Update(ctx, id, patch)
}

// DeleteRecord removes a record and its attachment.
func (a *App) DeleteRecord(ctx context.Context, id string) (audit.DeleteResult, error) {
	return a.service.Delete(ctx, id)
}

// ClearRecords deletes all of the acting user's records.
func (a *App) ClearRecords(ctx context.Context) (audit.BulkDeleteResult, error) {
	return a.service.ClearOwner(ctx, a.cfg.ActingUser)
}

// ClearAllRecords deletes every record in the system. Admin only.
func (a *App) ClearAllRecords(ctx context.Context) (audit.BulkDeleteResult, error) {
	if err := a.requireAdmin(ctx); err != nil {
		return audit.BulkDeleteResult{}, err
	}
	return a.service.ClearAll(ctx)
}

// Usage estimates storage consumption for the acting user, or for ownerID
// when non-empty.
func (a *App) Usage(ctx context.Context, ownerID string) (*model.StorageMetrics, error) {
	if ownerID == "" {
		ownerID = a.cfg.ActingUser
	}
	return a.estimator.EstimateOwner(ctx, ownerID)
}

// SystemUsage estimates storage consumption across all users. Admin only.
func (a *App) SystemUsage(ctx context.Context) (*model.SystemStorageMetrics, error) {
	if err := a.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return a.estimator.EstimateSystem(ctx)
}

// AddUser registers a user profile with a fresh id and returns it.
func (a *App) AddUser(ctx context.Context, email, displayName, role string) (*model.UserProfile, error) {
	if role == "" {
		role = model.RoleStaff
	}
	if role != model.RoleStaff && role != model.RoleAdmin {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	now := audit.RealClock{}.Now().UnixMilli()
	p := &model.UserProfile{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
	}
	if err := a.service.PutProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("adding user: %w", err)
	}
	return p, nil
}

// ListUsers returns all user profiles.
func (a *App) ListUsers(ctx context.Context) ([]*model.UserProfile, error) {
	return a.service.ListProfiles(ctx)
}

// SetUserRole changes a user's role. Admin only.
func (a *App) SetUserRole(ctx context.Context, id, role string) error {
	if err := a.requireAdmin(ctx); err != nil {
		return err
	}
	return a.service.UpdateProfileRole(ctx, id, role)
}

// InitVault verifies the blob store is reachable and correctly configured.
func (a *App) InitVault() error {
	return a.blob.ValidateSetup()
}

// InitKeys generates the encryption key pair, protecting the private key with
// the passphrase. Fails when encryption is not configured or keys exist.
func (a *App) InitKeys(passphrase string) error {
	if a.encryptor == nil {
		return fmt.Errorf("encryption is disabled (type = none)")
	}
	if a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys already exist")
	}
	return a.encryptor.Setup(passphrase)
}

// EncryptionConfigured reports whether attachments are encrypted at rest and
// the key material exists, meaning fetches will need a passphrase.
func (a *App) EncryptionConfigured() bool {
	return a.encryptor != nil && a.encryptor.IsConfigured()
}

// FetchAttachment writes a record's attachment payload to w, decrypting it
// when encryption is configured. passphrase unlocks the private key; it is
// ignored when encryption is disabled.
func (a *App) FetchAttachment(ctx context.Context, id string, w io.Writer, passphrase string) error {
	rec, err := a.service.Get(ctx, id)
	if err != nil {
		return err
	}

	key, ok := a.blob.KeyFromURL(rec.AttachmentRef)
	if !ok {
		key = audit.AttachmentKey(rec.OwnerID, rec.ID)
	}

	if a.encryptor == nil || !a.encryptor.IsConfigured() {
		if err := a.blob.Get(ctx, key, w); err != nil {
			return fmt.Errorf("reading attachment %s: %w", key, err)
		}
		return nil
	}

	var ciphertext bytes.Buffer
	if err := a.blob.Get(ctx, key, &ciphertext); err != nil {
		return fmt.Errorf("reading attachment %s: %w", key, err)
	}

	dctx, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking encryption keys: %w", err)
	}
	if err := dctx.Decrypt(&ciphertext, w); err != nil {
		return fmt.Errorf("decrypting attachment: %w", err)
	}
	return nil
}

// Close releases the store connection and the log file.
func (a *App) Close() error {
	var firstErr error

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
