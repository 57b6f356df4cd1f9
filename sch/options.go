package sch

import "time"

// Option configures a Runtime at construction, mirroring the teacher's
// functional-options convention (graph/options.go) scaled down to the
// handful of knobs a process scheduler actually needs.
type Option func(*Runtime)

// WithKeepProcesses disables cache eviction of terminal processes.
func WithKeepProcesses(keep bool) Option {
	return func(r *Runtime) { r.KeepProcesses = keep }
}

// WithTickInterval overrides the scheduler's tick period (default
// DefaultTickInterval).
func WithTickInterval(d time.Duration) Option {
	return func(r *Runtime) { r.tickInterval = d }
}

// WithMaxMessageRetryTimes overrides how many times tick redelivers an
// un-acked message before giving up (default 3).
func WithMaxMessageRetryTimes(n int) Option {
	return func(r *Runtime) { r.MaxMessageRetryTimes = n }
}
