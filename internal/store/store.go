package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/grovekit/grove/internal/cob"
	"github.com/grovekit/grove/internal/urn"
)

//go:embed schema.sql
var schemaSQL string

//go:embed index.sql
var indexSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added covering index on operations(doc_id, clock)
const currentSchemaVersion = 1

// ErrNotFound is returned when a document, alias, or tracking entry does
// not exist.
var ErrNotFound = errors.New("not found")

// Store is the root handle over a grove state directory: the identity
// index plus lazily opened per-project databases.
type Store struct {
	root     string
	tieBreak cob.TieBreak
	locks    *lockTable

	mu       sync.Mutex
	index    *sql.DB
	projects map[string]*ProjectStore
}

// Option configures a Store.
type Option func(*Store)

// WithTieBreak sets the materialization tie-break policy applied to every
// document loaded from this store.
func WithTieBreak(tb cob.TieBreak) Option {
	return func(s *Store) {
		if tb != nil {
			s.tieBreak = tb
		}
	}
}

// Open creates or opens the state directory at root.
// Idempotent: safe to call against an existing state directory.
func Open(root string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create state root: %w", err)
	}

	s := &Store{
		root:     root,
		tieBreak: cob.AuthorThenClock,
		locks:    newLockTable(),
		projects: make(map[string]*ProjectStore),
	}
	for _, opt := range opts {
		opt(s)
	}

	index, err := openDatabase(filepath.Join(root, "index.db"), indexSQL, false)
	if err != nil {
		return nil, fmt.Errorf("open identity index: %w", err)
	}
	s.index = index
	return s, nil
}

// Close closes the index and every opened project database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, p := range s.projects {
		if err := p.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.projects = make(map[string]*ProjectStore)
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			errs = append(errs, err)
		}
		s.index = nil
	}
	return errors.Join(errs...)
}

// Project returns the per-project store, creating the project directory
// and database on first use. Handles are cached and shared.
func (s *Store) Project(project urn.Identifier) (*ProjectStore, error) {
	if project.Kind() != urn.KindProject {
		return nil, fmt.Errorf("open project store: %s is not a project identifier", project)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.projects[project.Digest()]; ok {
		return p, nil
	}

	dir := filepath.Join(s.root, project.Digest())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}

	db, err := openDatabase(filepath.Join(dir, "grove.db"), schemaSQL, true)
	if err != nil {
		return nil, fmt.Errorf("open project database: %w", err)
	}

	p := &ProjectStore{
		project:  project,
		db:       db,
		tieBreak: s.tieBreak,
		locks:    s.locks,
		cache:    make(map[string]*cob.Document),
	}
	s.projects[project.Digest()] = p
	return p, nil
}

// openDatabase opens a SQLite file and applies pragmas and schema.
// Project databases additionally run versioned migrations; the identity
// index has none yet. Idempotent.
func openDatabase(path, schema string, migrate bool) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	// SQLite supports one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if migrate {
		if err := runMigrations(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the (doc_id, clock) covering index for databases
// created before it existed in schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_operations_doc_clock
		ON operations(doc_id, clock)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
