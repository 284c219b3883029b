// Package store implements the assessment record and user profile stores on
// SQLite. Store-level failures are translated into the operational error
// taxonomy so callers can distinguish "access not configured" from "schema
// not provisioned" from generic failures.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"

	"fieldaudit/internal/audit"
	"fieldaudit/internal/model"
	"fieldaudit/internal/store/migrations"
)

const recordColumns = "id, owner_id, created_at, latitude, longitude, category, element, condition, priority, attachment_ref, notes"

// SQLiteStore implements audit.RecordStore and audit.ProfileStore on a
// single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var (
	_ audit.RecordStore  = (*SQLiteStore)(nil)
	_ audit.ProfileStore = (*SQLiteStore)(nil)
)

// Open opens and configures a SQLite-backed store.
// path can be a file path or ":memory:" for an in-memory database.
func Open(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewFromDB wraps an existing database connection. The caller is responsible
// for ensuring the connection is properly configured.
func NewFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens a SQLite connection with the PRAGMAs the store
// expects. Exported for tools and tests that need a raw connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Migrate brings the schema to the latest version.
func (s *SQLiteStore) Migrate() error {
	return migrations.Up(s.db)
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Record operations

func (s *SQLiteStore) Create(ctx context.Context, rec *model.AssessmentRecord) error {
	query, args, err := sq.Insert("assessments").
		Columns(strings.Split(recordColumns, ", ")...).
		Values(rec.ID, rec.OwnerID, rec.CreatedAt, rec.Latitude, rec.Longitude,
			rec.Category, rec.Element, rec.Condition, rec.Priority,
			rec.AttachmentRef, rec.Notes).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isPrimaryKeyConflict(err) {
			return fmt.Errorf("record %s: %w", rec.ID, audit.ErrDuplicateID)
		}
		return translateErr("creating record", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.AssessmentRecord, error) {
	query, args, err := sq.Select(strings.Split(recordColumns, ", ")...).
		From("assessments").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", id, audit.ErrNotFound)
		}
		return nil, translateErr("reading record", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListByOwner(ctx context.Context, ownerID string) ([]*model.AssessmentRecord, error) {
	b := sq.Select(strings.Split(recordColumns, ", ")...).
		From("assessments").
		Where(sq.Eq{"owner_id": ownerID}).
		OrderBy("created_at DESC")
	return s.queryRecords(ctx, "listing records by owner", b)
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]*model.AssessmentRecord, error) {
	b := sq.Select(strings.Split(recordColumns, ", ")...).
		From("assessments").
		OrderBy("created_at DESC")
	return s.queryRecords(ctx, "listing all records", b)
}

func (s *SQLiteStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM assessments")
	if err != nil {
		return nil, translateErr("listing record ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("listing record ids", err)
	}
	return ids, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id string, patch audit.RecordPatch) error {
	b := sq.Update("assessments").Where(sq.Eq{"id": id})
	if patch.Latitude != nil {
		b = b.Set("latitude", *patch.Latitude)
	}
	if patch.Longitude != nil {
		b = b.Set("longitude", *patch.Longitude)
	}
	if patch.Category != nil {
		b = b.Set("category", *patch.Category)
	}
	if patch.Element != nil {
		b = b.Set("element", *patch.Element)
	}
	if patch.Condition != nil {
		b = b.Set("condition", *patch.Condition)
	}
	if patch.Priority != nil {
		b = b.Set("priority", *patch.Priority)
	}
	if patch.Notes != nil {
		b = b.Set("notes", *patch.Notes)
	}
	if patch.AttachmentRef != nil {
		b = b.Set("attachment_ref", *patch.AttachmentRef)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return translateErr("updating record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("record %s: %w", id, audit.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM assessments WHERE id = ?", id)
	if err != nil {
		return translateErr("deleting record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("record %s: %w", id, audit.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, op string, b sq.SelectBuilder) ([]*model.AssessmentRecord, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(op, err)
	}
	defer rows.Close()

	var recs []*model.AssessmentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr(op, err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.AssessmentRecord, error) {
	var (
		rec      model.AssessmentRecord
		lat, lon sql.NullFloat64
	)
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.CreatedAt, &lat, &lon,
		&rec.Category, &rec.Element, &rec.Condition, &rec.Priority,
		&rec.AttachmentRef, &rec.Notes)
	if err != nil {
		return nil, err
	}
	if lat.Valid {
		rec.Latitude = &lat.Float64
	}
	if lon.Valid {
		rec.Longitude = &lon.Float64
	}
	return &rec, nil
}

// Profile operations

func (s *SQLiteStore) PutProfile(ctx context.Context, p *model.UserProfile) error {
	query := `INSERT INTO user_profiles (id, email, display_name, role, created_at, updated_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			role = excluded.role,
			updated_at = excluded.updated_at,
			is_active = excluded.is_active`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Email, p.DisplayName, p.Role, p.CreatedAt, p.UpdatedAt, p.IsActive)
	if err != nil {
		return translateErr("writing user profile", err)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, email, display_name, role, created_at, updated_at, is_active FROM user_profiles WHERE id = ?", id)

	var p model.UserProfile
	err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.Role, &p.CreatedAt, &p.UpdatedAt, &p.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", id, audit.ErrNotFound)
		}
		return nil, translateErr("reading user profile", err)
	}
	return &p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]*model.UserProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, email, display_name, role, created_at, updated_at, is_active FROM user_profiles ORDER BY created_at")
	if err != nil {
		return nil, translateErr("listing user profiles", err)
	}
	defer rows.Close()

	var profiles []*model.UserProfile
	for rows.Next() {
		var p model.UserProfile
		if err := rows.Scan(&p.ID, &p.Email, &p.DisplayName, &p.Role, &p.CreatedAt, &p.UpdatedAt, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scanning user profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, translateErr("listing user profiles", err)
	}
	return profiles, nil
}

func (s *SQLiteStore) UpdateProfileRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE user_profiles SET role = ?, updated_at = strftime('%s','now') * 1000 WHERE id = ?", role, id)
	if err != nil {
		return translateErr("updating profile role", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating profile role: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("profile %s: %w", id, audit.ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isPrimaryKeyConflict reports whether err is a primary-key or unique
// constraint violation.
func isPrimaryKeyConflict(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// translateErr maps low-level SQLite failures onto the operational taxonomy:
// access problems become PermissionError, missing schema objects become
// IndexRequiredError, everything else is wrapped generically.
func translateErr(op string, err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrAuth, sqlite3.ErrPerm, sqlite3.ErrReadonly, sqlite3.ErrCantOpen:
			return &audit.PermissionError{Op: op, Err: err}
		case sqlite3.ErrError:
			msg := serr.Error()
			if strings.Contains(msg, "no such table") || strings.Contains(msg, "no such index") {
				return &audit.IndexRequiredError{Op: op, Err: err}
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
