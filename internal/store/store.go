// Package store loads a WorkspaceSnapshot into SQLite so the graph can be
// queried with SQL. It backs the graph structural-query dialect.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite copy of one snapshot's graph.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dsn. The pool is capped at one
// connection so an in-memory database is shared by every query.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewMemoryStore opens an empty in-memory database and creates the schema.
func NewMemoryStore() (*Store, error) {
	s, err := NewStore(":memory:")
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the graph tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Freeze makes the database read-only for the rest of its life.
func (s *Store) Freeze(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return fmt.Errorf("freeze: %w", err)
	}
	return nil
}

// Positions are zero-based, matching snapshot spans. Relationship
// endpoints are not foreign keys: a snapshot may hold dangling ids.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS entities (
  id              TEXT PRIMARY KEY,
  kind            TEXT NOT NULL,
  name            TEXT NOT NULL,
  qualified_name  TEXT,
  path            TEXT,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS relationships (
  source          TEXT NOT NULL,
  target          TEXT NOT NULL,
  kind            TEXT NOT NULL,
  certainty       TEXT NOT NULL,
  confidence      INTEGER NOT NULL,
  provenance      TEXT NOT NULL,
  detail          TEXT
);

CREATE TABLE IF NOT EXISTS diagnostics (
  code            TEXT,
  severity        TEXT NOT NULL,
  message         TEXT NOT NULL,
  path            TEXT
);

CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
CREATE INDEX IF NOT EXISTS idx_entities_path ON entities(path);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target);
`
