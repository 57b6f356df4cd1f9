package store

import (
	"context"
	"encoding/json"
	"sync"
)

// memCollection is an in-memory Collection[T], thread-safe via a RWMutex,
// grounded on graph/store/memory.go's MemStore pattern generalized from a
// single map to any record type with a caller-supplied ID extractor.
type memCollection[T any] struct {
	mu      sync.RWMutex
	idOf    func(T) string
	records map[string]T
}

func newMemCollection[T any](idOf func(T) string) *memCollection[T] {
	return &memCollection[T]{idOf: idOf, records: make(map[string]T)}
}

func (m *memCollection[T]) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok, nil
}

func (m *memCollection[T]) Find(_ context.Context, id string) (T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return rec, nil
}

func (m *memCollection[T]) Query(_ context.Context, q *Query) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	maps := make([]map[string]any, 0, len(m.records))
	index := make(map[string]T, len(m.records))
	for id, rec := range m.records {
		b, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		var mp map[string]any
		if err := json.Unmarshal(b, &mp); err != nil {
			return nil, err
		}
		mp["__id"] = id
		maps = append(maps, mp)
		index[id] = rec
	}

	matched := q.apply(maps)
	out := make([]T, 0, len(matched))
	for _, mp := range matched {
		id, _ := mp["__id"].(string)
		out = append(out, index[id])
	}
	return out, nil
}

func (m *memCollection[T]) Create(_ context.Context, rec T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.idOf(rec)
	if _, exists := m.records[id]; exists {
		return ErrAlreadyExists
	}
	m.records[id] = rec
	return nil
}

func (m *memCollection[T]) Update(_ context.Context, rec T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.idOf(rec)
	if _, exists := m.records[id]; !exists {
		return ErrNotFound
	}
	m.records[id] = rec
	return nil
}

func (m *memCollection[T]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[id]; !exists {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// NewMemStore returns a Store backed entirely by in-memory collections,
// for tests and single-process runtimes.
func NewMemStore() *Store {
	return &Store{
		Models:   newMemCollection(func(r ModelRecord) string { return r.ID }),
		Procs:    newMemCollection(func(r ProcRecord) string { return r.ID }),
		Tasks:    newMemCollection(func(r TaskRecord) string { return r.ID() }),
		Messages: newMemCollection(func(r MessageRecord) string { return r.ID }),
		Packages: newMemCollection(func(r PackageRecord) string { return r.Name }),
	}
}
