// Package cache keeps the build ledger: for every entry template, the
// fingerprint it was last compiled from and the hash of the artifact
// written. The bundler consults it to skip recompiling unchanged entries.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the ledger database inside the cache directory.
const FileName = "htlpack-cache.db"

// Record is one ledger row.
type Record struct {
	Entry        string
	Fingerprint  string
	Artifact     string
	ArtifactHash string
	BuiltAt      time.Time
}

// Store is the sqlite-backed ledger.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the ledger in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// One writer keeps sqlite from reporting SQLITE_BUSY under parallel builds.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS builds (
		entry TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		artifact TEXT NOT NULL,
		artifact_hash TEXT NOT NULL,
		built_at INTEGER NOT NULL
	);`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Get returns the record for entry. ok is false when none exists.
func (s *Store) Get(entry string) (rec Record, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var builtAt int64
	row := s.db.QueryRow(
		`SELECT entry, fingerprint, artifact, artifact_hash, built_at FROM builds WHERE entry = ?`, entry)
	err = row.Scan(&rec.Entry, &rec.Fingerprint, &rec.Artifact, &rec.ArtifactHash, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query cache record for %s: %w", entry, err)
	}
	rec.BuiltAt = time.UnixMilli(builtAt)
	return rec, true, nil
}

// Put inserts or replaces the record for rec.Entry.
func (s *Store) Put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.BuiltAt.IsZero() {
		rec.BuiltAt = time.Now()
	}
	_, err := s.db.Exec(`
	INSERT INTO builds (entry, fingerprint, artifact, artifact_hash, built_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(entry) DO UPDATE SET
		fingerprint = excluded.fingerprint,
		artifact = excluded.artifact,
		artifact_hash = excluded.artifact_hash,
		built_at = excluded.built_at`,
		rec.Entry, rec.Fingerprint, rec.Artifact, rec.ArtifactHash, rec.BuiltAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store cache record for %s: %w", rec.Entry, err)
	}
	return nil
}

// Delete removes the record for entry, if any.
func (s *Store) Delete(entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM builds WHERE entry = ?`, entry); err != nil {
		return fmt.Errorf("delete cache record for %s: %w", entry, err)
	}
	return nil
}

// Len returns the number of records.
func (s *Store) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM builds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache records: %w", err)
	}
	return n, nil
}
