// Package store provides SQLite persistence for folio: the last view of
// every document the user opened, keyed by content digest.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// View is where the user left a document.
type View struct {
	Digest   string // hex SHA-256 of the document bytes
	Name     string
	Location string // path or URL it was opened from
	Page     int    // zero-based
	Zoom     int
	Rotation int
	Opened   time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS views (
		digest TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL,
		page INTEGER NOT NULL DEFAULT 0,
		zoom INTEGER NOT NULL DEFAULT 0,
		rotation INTEGER NOT NULL DEFAULT 0,
		opened_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_views_opened ON views(opened_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveView inserts or replaces the view for v.Digest. A zero Opened time is
// set to now.
// Thread-safe: acquires write lock.
func (s *Store) SaveView(v View) error {
	if v.Digest == "" {
		return errors.New("save view: empty digest")
	}
	if v.Opened.IsZero() {
		v.Opened = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO views (digest, name, location, page, zoom, rotation, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET
			name = excluded.name,
			location = excluded.location,
			page = excluded.page,
			zoom = excluded.zoom,
			rotation = excluded.rotation,
			opened_at = excluded.opened_at
	`, v.Digest, v.Name, v.Location, v.Page, v.Zoom, v.Rotation, v.Opened.UTC())
	if err != nil {
		return fmt.Errorf("save view: %w", err)
	}
	return nil
}

// LoadView returns the saved view for digest. ok is false if there is none.
// Thread-safe: acquires read lock.
func (s *Store) LoadView(digest string) (v View, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views, err := s.queryViews(`
		SELECT digest, name, location, page, zoom, rotation, opened_at
		FROM views WHERE digest = ?
	`, digest)
	if err != nil || len(views) == 0 {
		return View{}, false, err
	}
	return views[0], true, nil
}

// Recent returns up to limit views, most recently opened first.
// Thread-safe: acquires read lock.
func (s *Store) Recent(limit int) ([]View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryViews(`
		SELECT digest, name, location, page, zoom, rotation, opened_at
		FROM views
		ORDER BY opened_at DESC
		LIMIT ?
	`, limit)
}

// Forget deletes the view for digest.
// Thread-safe: acquires write lock.
func (s *Store) Forget(digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM views WHERE digest = ?", digest)
	return err
}

// Prune keeps the keep most recent views and deletes the rest, returning how
// many were deleted.
// Thread-safe: acquires write lock.
func (s *Store) Prune(keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM views WHERE digest NOT IN (
			SELECT digest FROM views ORDER BY opened_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune views: %w", err)
	}
	return res.RowsAffected()
}

// queryViews executes a query and scans the rows into Views.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryViews(query string, args ...any) ([]View, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []View
	for rows.Next() {
		var v View
		if err := rows.Scan(&v.Digest, &v.Name, &v.Location, &v.Page, &v.Zoom, &v.Rotation, &v.Opened); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}
