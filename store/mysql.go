package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLStore opens a MySQL/MariaDB-backed Store using dsn, ported from
// graph/store/mysql.go's connection pool configuration. Callers own the
// returned close func and should defer it.
func NewMySQLStore(ctx context.Context, dsn string) (*Store, func() error, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping mysql: %w", err)
	}

	st, err := newSQLStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, db.Close, nil
}
