// Package store caches emitted envelopes in SQLite so reruns skip files
// whose content and schema version are unchanged. The cache is an
// optimization only: the converter works identically without it.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection holding cached envelopes.
type Store struct {
	db     *sql.DB
	dbPath string
}

const schema = `
CREATE TABLE IF NOT EXISTS envelopes (
    path           TEXT NOT NULL,
    checksum       TEXT NOT NULL,
    schema_version TEXT NOT NULL,
    envelope       TEXT NOT NULL,
    created_at     TEXT NOT NULL,
    PRIMARY KEY (path, checksum, schema_version)
);
CREATE INDEX IF NOT EXISTS idx_envelopes_path ON envelopes(path);
`

// cacheDir returns the default cache directory for databases.
func cacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	dir := filepath.Join(home, ".cache", "basconv")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir cache: %w", err)
	}
	return dir, nil
}

// Open opens or creates the default cache database.
func Open() (*Store, error) {
	dir, err := cacheDir()
	if err != nil {
		return nil, err
	}
	return OpenPath(filepath.Join(dir, "envelopes.db"))
}

// OpenPath opens a SQLite database at the given path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite database (for testing).
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	s := &Store{db: db, dbPath: ":memory:"}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Get returns the cached envelope for (path, checksum, schemaVersion).
// A miss returns ("", false); lookup errors also surface as a miss, the
// cache never fails a conversion.
func (s *Store) Get(path, checksum, schemaVersion string) (string, bool) {
	var envelope string
	err := s.db.QueryRow(
		`SELECT envelope FROM envelopes WHERE path = ? AND checksum = ? AND schema_version = ?`,
		path, checksum, schemaVersion,
	).Scan(&envelope)
	if err != nil {
		return "", false
	}
	return envelope, true
}

// Put stores an envelope, replacing any prior entry for the same key and
// dropping entries for the same path with a different checksum (stale
// content never accumulates).
func (s *Store) Put(path, checksum, schemaVersion, envelope string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM envelopes WHERE path = ? AND checksum != ?`, path, checksum); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("evict stale: %w", err)
	}
	_, err = tx.Exec(
		`INSERT OR REPLACE INTO envelopes (path, checksum, schema_version, envelope, created_at) VALUES (?, ?, ?, ?, ?)`,
		path, checksum, schemaVersion, envelope, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert envelope: %w", err)
	}
	return tx.Commit()
}

// Purge removes every cached envelope.
func (s *Store) Purge() error {
	_, err := s.db.Exec(`DELETE FROM envelopes`)
	return err
}

// Count returns the number of cached envelopes.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM envelopes`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
