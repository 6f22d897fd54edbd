// Package store owns the single-file relational store shared by every
// pipeline stage. Each stage writes exactly one table and only reads the
// tables of earlier stages.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// SchemaVersion is stamped into PRAGMA user_version. Bump it whenever
// schema.sql changes in a way older readers cannot handle.
const SchemaVersion = 1

const tsLayout = "2006-01-02T15:04:05.000000Z07:00"

var ErrSchemaTooNew = errors.New("store schema is newer than this binary")

type Store struct {
	db *sql.DB
}

// driverFor picks the database/sql driver for a DSN. Remote libSQL (Turso)
// URLs go through libsql, anything else is a local sqlite file.
func driverFor(dsn string) string {
	for _, prefix := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "libsql"
		}
	}
	return "sqlite"
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(driverFor(dsn), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dsn, err)
	}
	// one writer per process run
	db.SetMaxOpenConns(1)

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema to an already opened database.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return nil, fmt.Errorf("%w: file has %d, binary has %d", ErrSchemaTooNew, version, SchemaVersion)
	}

	for _, stmt := range strings.Split(Schema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}
	if version < SchemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return nil, fmt.Errorf("stamp schema version: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for ad hoc inspection queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(v string) (time.Time, error) {
	t, err := time.Parse(tsLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad snapshot_ts %q: %w", v, err)
	}
	return t, nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}
