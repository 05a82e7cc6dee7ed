// Package storage provides the persistence layer for playmesh backed by
// SQLite. Hosts and platform profiles are stored as JSON documents with
// extracted columns for the fields the control plane queries on.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	_ "modernc.org/sqlite"

	"github.com/playmesh/playmesh/internal/config"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a compare-and-set write loses against a
	// concurrent state transition.
	ErrConflict = errors.New("state transition conflict")
)

// Storage provides the main storage interface for playmesh.
type Storage struct {
	db     *sql.DB
	config *config.Config
}

// debugLog logs a message only if debug mode is enabled in config
func (s *Storage) debugLog(format string, args ...interface{}) {
	if s.config.Server.Debug {
		log.Printf(format, args...)
	}
}

// New creates a new Storage instance from the application configuration.
// It opens (or creates) the SQLite database and ensures the schema exists.
func New(cfg *config.Config) (*Storage, error) {
	dsn := cfg.Storage.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &Storage{
		db:     db,
		config: cfg,
	}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return storage, nil
}

// initializeSchema creates the tables and indexes needed for playmesh queries.
func (s *Storage) initializeSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS hosts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    platform TEXT NOT NULL,
    provider TEXT NOT NULL,
    state TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS platforms (
    platform TEXT PRIMARY KEY,
    doc TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_hosts_state ON hosts(state);
CREATE INDEX IF NOT EXISTS idx_hosts_user_platform ON hosts(user_id, platform);
CREATE INDEX IF NOT EXISTS idx_hosts_provider ON hosts(provider);
CREATE INDEX IF NOT EXISTS idx_hosts_created ON hosts(created_at);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}
