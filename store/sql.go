package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// sqlCollection is a Collection[T] backed by a single table of
// (id TEXT PRIMARY KEY, data TEXT). Both SQLiteStore and MySQLStore share
// this implementation since database/sql with '?' placeholders behaves
// identically for the simple CRUD + full-scan-query pattern used here,
// generalizing graph/store/{sqlite,mysql}.go's per-state-shape tables into
// one JSON-blob table per collection.
type sqlCollection[T any] struct {
	db    *sql.DB
	table string
	idOf  func(T) string
}

func newSQLCollection[T any](db *sql.DB, table string, idOf func(T) string) *sqlCollection[T] {
	return &sqlCollection[T]{db: db, table: table, idOf: idOf}
}

func (c *sqlCollection[T]) createTable(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id VARCHAR(255) PRIMARY KEY, data TEXT NOT NULL)`, c.table)
	_, err := c.db.ExecContext(ctx, stmt)
	return err
}

func (c *sqlCollection[T]) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", c.table), id).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (c *sqlCollection[T]) Find(ctx context.Context, id string) (T, error) {
	var zero T
	var data string
	err := c.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", c.table), id).Scan(&data)
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, err
	}
	var rec T
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return zero, err
	}
	return rec, nil
}

func (c *sqlCollection[T]) Query(ctx context.Context, q *Query) ([]T, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT id, data FROM %s", c.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type entry struct {
		id  string
		rec T
		mp  map[string]any
	}
	var entries []entry
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var rec T
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, err
		}
		var mp map[string]any
		if err := json.Unmarshal([]byte(data), &mp); err != nil {
			return nil, err
		}
		mp["__id"] = id
		entries = append(entries, entry{id: id, rec: rec, mp: mp})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	maps := make([]map[string]any, len(entries))
	index := make(map[string]T, len(entries))
	for i, e := range entries {
		maps[i] = e.mp
		index[e.id] = e.rec
	}
	matched := q.apply(maps)
	out := make([]T, 0, len(matched))
	for _, mp := range matched {
		id, _ := mp["__id"].(string)
		out = append(out, index[id])
	}
	return out, nil
}

func (c *sqlCollection[T]) Create(ctx context.Context, rec T) error {
	id := c.idOf(rec)
	exists, err := c.Exists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, ?)", c.table), id, string(data))
	return err
}

func (c *sqlCollection[T]) Update(ctx context.Context, rec T) error {
	id := c.idOf(rec)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", c.table), string(data), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *sqlCollection[T]) Delete(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.table), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func newSQLStore(ctx context.Context, db *sql.DB) (*Store, error) {
	models := newSQLCollection(db, "models", func(r ModelRecord) string { return r.ID })
	procs := newSQLCollection(db, "procs", func(r ProcRecord) string { return r.ID })
	tasks := newSQLCollection(db, "tasks", func(r TaskRecord) string { return r.ID() })
	messages := newSQLCollection(db, "messages", func(r MessageRecord) string { return r.ID })
	packages := newSQLCollection(db, "packages", func(r PackageRecord) string { return r.Name })

	for _, c := range []interface {
		createTable(context.Context) error
	}{models, procs, tasks, messages, packages} {
		if err := c.createTable(ctx); err != nil {
			return nil, err
		}
	}

	return &Store{Models: models, Procs: procs, Tasks: tasks, Messages: messages, Packages: packages}, nil
}
