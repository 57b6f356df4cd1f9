package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewSQLiteStore opens (creating if needed) a single-file SQLite database
// at path and returns a Store backed by it, ported from
// graph/store/sqlite.go's connection setup: WAL mode for concurrent
// readers, a single writer connection since SQLite serializes writes.
func NewSQLiteStore(ctx context.Context, path string) (*Store, func() error, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	st, err := newSQLStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, db.Close, nil
}
