package proc

import (
	"context"
	"time"

	"github.com/acts-go/acts/emit"
	"github.com/acts-go/acts/registry"
)

// Host is the seam through which the execution engine reaches back up
// into the scheduler/runtime without proc importing sch: sch.Runtime
// implements Host structurally.
type Host interface {
	// Emit publishes one lifecycle message.
	Emit(msg emit.Message)
	// Package looks up a registered act package by name (an Act's Key for
	// kind=code, or a call/subflow target workflow id resolved elsewhere).
	Package(name string) (registry.ActPackageFn, bool)
	// Schedule enqueues (pid, tid) for execution on the scheduler's signal
	// channel; it never runs the task synchronously.
	Schedule(pid, tid string)
	// Now returns the current time, overridable by tests/replay.
	Now() time.Time
	// StartSubprocess launches a child Process for the named workflow,
	// seeded with inputs, reporting back to (parentPid, parentActTid) per
	// §4.4, and returns the new child pid.
	StartSubprocess(ctx context.Context, workflowID string, inputs map[string]any, parentPid, parentActTid string) (string, error)
}
