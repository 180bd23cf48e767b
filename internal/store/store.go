// Package store provides the SQLite-backed relational store for campd:
// roles, camps, attendee registrations, and uploaded camp documents. Data is
// persisted across server restarts; capacity and per-camp email uniqueness
// are enforced here rather than in handlers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Sentinel errors handlers translate into HTTP statuses.
var (
	// ErrNotFound reports that the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrCampFull reports that a registration would exceed camp capacity.
	ErrCampFull = errors.New("store: camp is at capacity")
	// ErrDuplicateEmail reports that the email is already registered for the camp.
	ErrDuplicateEmail = errors.New("store: email already registered for this camp")
)

// Role is an attendee role within a camp (participant, counselor, ...).
type Role struct {
	// ID is the role's primary key.
	ID int64 `json:"id"`
	// Name is the unique role name.
	Name string `json:"name"`
	// Description is an optional human-readable explanation.
	Description string `json:"description,omitempty"`
}

// Camp is a single camp offering with a bounded capacity.
type Camp struct {
	// ID is the camp's primary key.
	ID int64 `json:"id"`
	// Name is the camp's display name.
	Name string `json:"name"`
	// Description is free text, also fed to the similarity index.
	Description string `json:"description,omitempty"`
	// Location is where the camp takes place.
	Location string `json:"location,omitempty"`
	// Capacity is the maximum number of attendees. Must be positive.
	Capacity int `json:"capacity"`
	// StartDate and EndDate bound the camp, as YYYY-MM-DD strings.
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	// VectorStoreID is the external vector store holding the camp's
	// documents. Empty until the first document is ingested.
	VectorStoreID string `json:"vector_store_id,omitempty"`
	// CreatedAt is when the camp was created.
	CreatedAt time.Time `json:"created_at"`
}

// Attendee is a registration of a person for a camp.
type Attendee struct {
	// ID is the registration's primary key.
	ID int64 `json:"id"`
	// CampID is the camp registered for.
	CampID int64 `json:"camp_id"`
	// RoleID is the attendee's role. Zero means unset.
	RoleID int64 `json:"role_id,omitempty"`
	// Name is the attendee's full name.
	Name string `json:"name"`
	// Email identifies the attendee; unique per camp.
	Email string `json:"email"`
	// CreatedAt is when the registration was made.
	CreatedAt time.Time `json:"created_at"`
}

// Document records a file uploaded for a camp: its object-storage key and,
// once ingested, its vector-store file ID.
type Document struct {
	// ID is the document's primary key.
	ID int64 `json:"id"`
	// CampID is the owning camp.
	CampID int64 `json:"camp_id"`
	// Filename is the original upload name.
	Filename string `json:"filename"`
	// ContentType is the upload's MIME type.
	ContentType string `json:"content_type,omitempty"`
	// SizeBytes is the upload size.
	SizeBytes int64 `json:"size_bytes"`
	// ObjectKey is the object-storage key the bytes live under.
	ObjectKey string `json:"object_key"`
	// FileID is the vector-store file ID once ingestion completed.
	FileID string `json:"file_id,omitempty"`
	// CreatedAt is when the document was uploaded.
	CreatedAt time.Time `json:"created_at"`
}

// RegistrationStore persists camps, roles, attendees, and documents.
// Implementations must be safe for concurrent use.
type RegistrationStore interface {
	CreateRole(ctx context.Context, r Role) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, r Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	CreateCamp(ctx context.Context, c Camp) (Camp, error)
	GetCamp(ctx context.Context, id int64) (Camp, error)
	ListCamps(ctx context.Context) ([]Camp, error)
	UpdateCamp(ctx context.Context, c Camp) (Camp, error)
	DeleteCamp(ctx context.Context, id int64) error
	// SetCampVectorStore records the external vector store backing the camp.
	SetCampVectorStore(ctx context.Context, campID int64, vectorStoreID string) error

	// RegisterAttendee enforces capacity and per-camp email uniqueness.
	RegisterAttendee(ctx context.Context, a Attendee) (Attendee, error)
	ListAttendees(ctx context.Context, campID int64) ([]Attendee, error)
	RemoveAttendee(ctx context.Context, campID, attendeeID int64) error

	AddDocument(ctx context.Context, d Document) (Document, error)
	GetDocument(ctx context.Context, campID, docID int64) (Document, error)
	ListDocuments(ctx context.Context, campID int64) ([]Document, error)
	DeleteDocument(ctx context.Context, campID, docID int64) error

	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a RegistrationStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the registration database.
// It resolves to ~/.campd/campd.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".campd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "campd.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	// Cascade deletes need the pragma; with a single connection it sticks.
	if _, err := s.db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("store: enable foreign keys: %w", err)
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS roles (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT    NOT NULL UNIQUE,
    description TEXT    NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS camps (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT    NOT NULL,
    description     TEXT    NOT NULL DEFAULT '',
    location        TEXT    NOT NULL DEFAULT '',
    capacity        INTEGER NOT NULL CHECK(capacity > 0),
    start_date      TEXT    NOT NULL DEFAULT '',
    end_date        TEXT    NOT NULL DEFAULT '',
    vector_store_id TEXT    NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE TABLE IF NOT EXISTS attendees (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    camp_id    INTEGER NOT NULL REFERENCES camps(id) ON DELETE CASCADE,
    role_id    INTEGER NOT NULL DEFAULT 0,
    name       TEXT    NOT NULL,
    email      TEXT    NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (camp_id, email)
);
CREATE TABLE IF NOT EXISTS documents (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    camp_id      INTEGER NOT NULL REFERENCES camps(id) ON DELETE CASCADE,
    filename     TEXT    NOT NULL,
    content_type TEXT    NOT NULL DEFAULT '',
    size_bytes   INTEGER NOT NULL DEFAULT 0,
    object_key   TEXT    NOT NULL,
    file_id      TEXT    NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attendees_camp ON attendees (camp_id);
CREATE INDEX IF NOT EXISTS idx_documents_camp ON documents (camp_id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// CreateRole inserts a new role.
func (s *SQLiteStore) CreateRole(ctx context.Context, r Role) (Role, error) {
	const q = `INSERT INTO roles (name, description) VALUES (?, ?)`
	res, err := s.db.ExecContext(ctx, q, r.Name, r.Description)
	if err != nil {
		return Role{}, fmt.Errorf("store: create role: %w", err)
	}
	r.ID, _ = res.LastInsertId()
	return r, nil
}

// GetRole returns the role with the given ID.
func (s *SQLiteStore) GetRole(ctx context.Context, id int64) (Role, error) {
	const q = `SELECT id, name, description FROM roles WHERE id = ?`
	var r Role
	err := s.db.QueryRowContext(ctx, q, id).Scan(&r.ID, &r.Name, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	if err != nil {
		return Role{}, fmt.Errorf("store: get role: %w", err)
	}
	return r, nil
}

// ListRoles returns all roles ordered by name.
func (s *SQLiteStore) ListRoles(ctx context.Context) ([]Role, error) {
	const q = `SELECT id, name, description FROM roles ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, fmt.Errorf("store: list roles scan: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list roles rows: %w", err)
	}
	return roles, nil
}

// UpdateRole replaces the role's mutable fields.
func (s *SQLiteStore) UpdateRole(ctx context.Context, r Role) (Role, error) {
	const q = `UPDATE roles SET name = ?, description = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, r.Name, r.Description, r.ID)
	if err != nil {
		return Role{}, fmt.Errorf("store: update role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Role{}, ErrNotFound
	}
	return r, nil
}

// DeleteRole removes the role with the given ID.
func (s *SQLiteStore) DeleteRole(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateCamp inserts a new camp.
func (s *SQLiteStore) CreateCamp(ctx context.Context, c Camp) (Camp, error) {
	const q = `INSERT INTO camps (name, description, location, capacity, start_date, end_date, vector_store_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	c.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, q,
		c.Name, c.Description, c.Location, c.Capacity, c.StartDate, c.EndDate, c.VectorStoreID, c.CreatedAt.Unix())
	if err != nil {
		return Camp{}, fmt.Errorf("store: create camp: %w", err)
	}
	c.ID, _ = res.LastInsertId()
	return c, nil
}

// GetCamp returns the camp with the given ID.
func (s *SQLiteStore) GetCamp(ctx context.Context, id int64) (Camp, error) {
	const q = `SELECT id, name, description, location, capacity, start_date, end_date, vector_store_id, created_at
FROM camps WHERE id = ?`
	return s.scanCamp(s.db.QueryRowContext(ctx, q, id))
}

// scanCamp reads one camp row from a QueryRow result.
func (s *SQLiteStore) scanCamp(row *sql.Row) (Camp, error) {
	var c Camp
	var ts int64
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Location, &c.Capacity,
		&c.StartDate, &c.EndDate, &c.VectorStoreID, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Camp{}, ErrNotFound
	}
	if err != nil {
		return Camp{}, fmt.Errorf("store: scan camp: %w", err)
	}
	c.CreatedAt = time.Unix(ts, 0).UTC()
	return c, nil
}

// ListCamps returns all camps ordered by start date, then name.
func (s *SQLiteStore) ListCamps(ctx context.Context) ([]Camp, error) {
	const q = `SELECT id, name, description, location, capacity, start_date, end_date, vector_store_id, created_at
FROM camps ORDER BY start_date, name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list camps: %w", err)
	}
	defer rows.Close()

	var camps []Camp
	for rows.Next() {
		var c Camp
		var ts int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Location, &c.Capacity,
			&c.StartDate, &c.EndDate, &c.VectorStoreID, &ts); err != nil {
			return nil, fmt.Errorf("store: list camps scan: %w", err)
		}
		c.CreatedAt = time.Unix(ts, 0).UTC()
		camps = append(camps, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list camps rows: %w", err)
	}
	return camps, nil
}

// UpdateCamp replaces the camp's mutable fields. The vector store binding is
// managed separately via SetCampVectorStore.
func (s *SQLiteStore) UpdateCamp(ctx context.Context, c Camp) (Camp, error) {
	const q = `UPDATE camps SET name = ?, description = ?, location = ?, capacity = ?, start_date = ?, end_date = ?
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q,
		c.Name, c.Description, c.Location, c.Capacity, c.StartDate, c.EndDate, c.ID)
	if err != nil {
		return Camp{}, fmt.Errorf("store: update camp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Camp{}, ErrNotFound
	}
	return s.GetCamp(ctx, c.ID)
}

// DeleteCamp removes the camp and, via cascade, its attendees and documents.
func (s *SQLiteStore) DeleteCamp(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM camps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete camp: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCampVectorStore records the external vector store backing the camp.
func (s *SQLiteStore) SetCampVectorStore(ctx context.Context, campID int64, vectorStoreID string) error {
	const q = `UPDATE camps SET vector_store_id = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, vectorStoreID, campID)
	if err != nil {
		return fmt.Errorf("store: set camp vector store: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RegisterAttendee registers a person for a camp. The conditional insert
// enforces capacity atomically; the UNIQUE(camp_id, email) index enforces
// one registration per email per camp.
func (s *SQLiteStore) RegisterAttendee(ctx context.Context, a Attendee) (Attendee, error) {
	if _, err := s.GetCamp(ctx, a.CampID); err != nil {
		return Attendee{}, err
	}

	const q = `
INSERT INTO attendees (camp_id, role_id, name, email, created_at)
SELECT ?, ?, ?, ?, ?
WHERE (SELECT COUNT(*) FROM attendees WHERE camp_id = ?) <
      (SELECT capacity FROM camps WHERE id = ?)`
	a.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, q,
		a.CampID, a.RoleID, a.Name, a.Email, a.CreatedAt.Unix(), a.CampID, a.CampID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return Attendee{}, ErrDuplicateEmail
		}
		return Attendee{}, fmt.Errorf("store: register attendee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Attendee{}, ErrCampFull
	}
	a.ID, _ = res.LastInsertId()
	return a, nil
}

// ListAttendees returns all registrations for a camp, oldest-first.
func (s *SQLiteStore) ListAttendees(ctx context.Context, campID int64) ([]Attendee, error) {
	const q = `SELECT id, camp_id, role_id, name, email, created_at
FROM attendees WHERE camp_id = ? ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q, campID)
	if err != nil {
		return nil, fmt.Errorf("store: list attendees: %w", err)
	}
	defer rows.Close()

	var out []Attendee
	for rows.Next() {
		var a Attendee
		var ts int64
		if err := rows.Scan(&a.ID, &a.CampID, &a.RoleID, &a.Name, &a.Email, &ts); err != nil {
			return nil, fmt.Errorf("store: list attendees scan: %w", err)
		}
		a.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list attendees rows: %w", err)
	}
	return out, nil
}

// RemoveAttendee deletes a registration, freeing a capacity slot.
func (s *SQLiteStore) RemoveAttendee(ctx context.Context, campID, attendeeID int64) error {
	const q = `DELETE FROM attendees WHERE id = ? AND camp_id = ?`
	res, err := s.db.ExecContext(ctx, q, attendeeID, campID)
	if err != nil {
		return fmt.Errorf("store: remove attendee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddDocument records an uploaded camp document.
func (s *SQLiteStore) AddDocument(ctx context.Context, d Document) (Document, error) {
	if _, err := s.GetCamp(ctx, d.CampID); err != nil {
		return Document{}, err
	}
	const q = `INSERT INTO documents (camp_id, filename, content_type, size_bytes, object_key, file_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	d.CreatedAt = time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx, q,
		d.CampID, d.Filename, d.ContentType, d.SizeBytes, d.ObjectKey, d.FileID, d.CreatedAt.Unix())
	if err != nil {
		return Document{}, fmt.Errorf("store: add document: %w", err)
	}
	d.ID, _ = res.LastInsertId()
	return d, nil
}

// GetDocument returns one document scoped to its camp.
func (s *SQLiteStore) GetDocument(ctx context.Context, campID, docID int64) (Document, error) {
	const q = `SELECT id, camp_id, filename, content_type, size_bytes, object_key, file_id, created_at
FROM documents WHERE id = ? AND camp_id = ?`
	var d Document
	var ts int64
	err := s.db.QueryRowContext(ctx, q, docID, campID).Scan(
		&d.ID, &d.CampID, &d.Filename, &d.ContentType, &d.SizeBytes, &d.ObjectKey, &d.FileID, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: get document: %w", err)
	}
	d.CreatedAt = time.Unix(ts, 0).UTC()
	return d, nil
}

// ListDocuments returns all documents for a camp, oldest-first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, campID int64) ([]Document, error) {
	const q = `SELECT id, camp_id, filename, content_type, size_bytes, object_key, file_id, created_at
FROM documents WHERE camp_id = ? ORDER BY created_at, id`
	rows, err := s.db.QueryContext(ctx, q, campID)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var d Document
		var ts int64
		if err := rows.Scan(&d.ID, &d.CampID, &d.Filename, &d.ContentType, &d.SizeBytes,
			&d.ObjectKey, &d.FileID, &ts); err != nil {
			return nil, fmt.Errorf("store: list documents scan: %w", err)
		}
		d.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list documents rows: %w", err)
	}
	return out, nil
}

// DeleteDocument removes a document record.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, campID, docID int64) error {
	const q = `DELETE FROM documents WHERE id = ? AND camp_id = ?`
	res, err := s.db.ExecContext(ctx, q, docID, campID)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping verifies the database connection, for readiness probes.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

var _ RegistrationStore = (*SQLiteStore)(nil)
