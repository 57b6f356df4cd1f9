// Package store provides persistence for workflow definitions, processes,
// tasks, emitted messages and act-package registrations.
//
// Unlike the generic single-collection Store[S] this module's teacher
// exposes, the workflow engine needs five independently queryable
// collections (models, procs, tasks, messages, packages), each following
// the same Exists/Find/Query/Create/Update/Delete shape. Collection[T] is
// the generic building block; Store bundles the five concrete instances.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrAlreadyExists is returned by Create when the record's ID is already
// present in the collection.
var ErrAlreadyExists = errors.New("store: already exists")

// Collection is the persistence contract shared by every named collection
// (models, procs, tasks, messages, packages).
type Collection[T any] interface {
	Exists(ctx context.Context, id string) (bool, error)
	Find(ctx context.Context, id string) (T, error)
	Query(ctx context.Context, q *Query) ([]T, error)
	Create(ctx context.Context, rec T) error
	Update(ctx context.Context, rec T) error
	Delete(ctx context.Context, id string) error
}

// Store bundles the five collections the engine persists state into.
type Store struct {
	Models   Collection[ModelRecord]
	Procs    Collection[ProcRecord]
	Tasks    Collection[TaskRecord]
	Messages Collection[MessageRecord]
	Packages Collection[PackageRecord]
}
