// Package sqlite implements the store and broker on an embedded SQLite
// database. It is the default single-node backend.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"flowforge/backend"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped when schema.sql changes incompatibly.
const schemaVersion = 1

// Backend implements backend.Store and backend.Broker on one SQLite file.
type Backend struct {
	db         *sql.DB
	workerName string
	options    backend.Options
}

var (
	_ backend.Store  = (*Backend)(nil)
	_ backend.Broker = (*Backend)(nil)
)

// NewBackend opens (or creates) the database at path and applies the schema.
func NewBackend(path string, opts ...backend.BackendOption) (*Backend, error) {
	return newBackend(fmt.Sprintf("file:%s", path), opts...)
}

// NewInMemoryBackend creates a throwaway in-memory backend, used in tests.
func NewInMemoryBackend(opts ...backend.BackendOption) *Backend {
	b, err := newBackend("file::memory:", opts...)
	if err != nil {
		panic(err)
	}

	// A single connection keeps every query on the same in-memory database.
	b.db.SetMaxOpenConns(1)

	return b
}

func newBackend(dsn string, opts ...backend.BackendOption) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	b := &Backend{
		db:         db,
		workerName: fmt.Sprintf("worker-%v", uuid.NewString()),
		options:    backend.ApplyOptions(opts...),
	}

	if err := b.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return b, nil
}

func (b *Backend) initSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version sql.NullInt64
	err := b.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := b.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version.Int64 != schemaVersion:
		return fmt.Errorf("schema version mismatch: database has %d, expected %d", version.Int64, schemaVersion)
	}

	return nil
}

// Options returns the configured backend options.
func (b *Backend) Options() backend.Options {
	return b.options
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// timeFormat is fixed-width so stored timestamps order correctly under
// SQLite's string comparison.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
