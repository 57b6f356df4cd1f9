package sch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acts-go/acts/action"
	"github.com/acts-go/acts/cache"
	"github.com/acts-go/acts/emit"
	"github.com/acts-go/acts/metrics"
	"github.com/acts-go/acts/model"
	"github.com/acts-go/acts/proc"
	"github.com/acts-go/acts/registry"
	"github.com/acts-go/acts/store"
	"github.com/acts-go/acts/tree"
)

// Runtime owns the Scheduler, the process cache, the store adapter, the
// emitter and the act-package registry, and orchestrates process lifecycle:
// Start materializes a Process and schedules its root task; DoAction
// resolves a live-or-rehydrated Process and drives an Action through
// ActionRouter; a process reaching a terminal state with a parent is
// translated into a synthetic Action against the parent act.
type Runtime struct {
	Scheduler *Scheduler
	Cache     *cache.ProcessCache
	Store     *store.Store
	Emitter   emit.Emitter
	Registry  *registry.Registry
	Engine    *proc.Engine
	Router    *action.Router
	Metrics   *metrics.Metrics

	// KeepProcesses disables eviction of terminal processes from the
	// cache, for callers (e.g. replay/audit tools) that want completed
	// processes to remain resident.
	KeepProcesses bool
	// MaxMessageRetryTimes bounds how many times tick redelivers an
	// un-acked interrupted (irq) tasks before giving up. Zero disables
	// redelivery.
	MaxMessageRetryTimes int

	tickInterval time.Duration

	mu        sync.RWMutex
	workflows map[string]*model.Workflow
}

// NewRuntime builds a Runtime whose cache holds at most cacheCapacity live
// processes, backed by st (nil for an ephemeral, non-durable runtime), em
// (nil defaults to emit.NewNullEmitter()) and reg (nil defaults to
// registry.New(), which registers llm.mock and http.request).
func NewRuntime(cacheCapacity int, st *store.Store, em emit.Emitter, reg *registry.Registry, m *metrics.Metrics, opts ...Option) (*Runtime, error) {
	c, err := cache.NewProcessCache(cacheCapacity, st)
	if err != nil {
		return nil, err
	}
	if em == nil {
		em = emit.NewNullEmitter()
	}
	if reg == nil {
		reg = registry.New()
	}
	r := &Runtime{
		Cache:                c,
		Store:                st,
		Emitter:              em,
		Registry:             reg,
		Metrics:              m,
		MaxMessageRetryTimes: 3,
		tickInterval:         DefaultTickInterval,
		workflows:            make(map[string]*model.Workflow),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Engine = proc.NewEngine(r)
	r.Router = action.NewRouter(r.Engine, st)
	r.Scheduler = NewScheduler(r.runTask, r.tick, r.tickInterval, m)
	return r, nil
}

// Run drives the Scheduler's event loop until ctx is cancelled or Stop is
// called, blocking until every in-flight task runner returns.
func (r *Runtime) Run(ctx context.Context) { r.Scheduler.Run(ctx) }

// Stop ends the event loop after draining signals already queued ahead of
// the Terminal sentinel.
func (r *Runtime) Stop() { r.Scheduler.Stop() }

// RegisterWorkflow makes wf resolvable by id for Start, StartSubprocess and
// cache rehydration, and persists its definition to the store.
func (r *Runtime) RegisterWorkflow(ctx context.Context, wf *model.Workflow) {
	r.mu.Lock()
	r.workflows[wf.ID] = wf
	r.mu.Unlock()
	r.persistModel(ctx, wf)
}

func (r *Runtime) workflow(id string) (*model.Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	return wf, ok
}

// Start materializes a new Process over wf seeded with vars, schedules its
// root task, and returns it. pid may be empty to mint a fresh one;
// supplying one that names a live or stored process is an error.
func (r *Runtime) Start(ctx context.Context, wf *model.Workflow, vars map[string]any, pid string) (*proc.Process, error) {
	if pid != "" {
		if _, ok := r.Cache.Get(pid); ok {
			return nil, fmt.Errorf("sch: process %q already live", pid)
		}
		if r.Store != nil && r.Store.Procs != nil {
			if exists, _ := r.Store.Procs.Exists(ctx, pid); exists {
				return nil, fmt.Errorf("sch: process %q already exists", pid)
			}
		}
	}
	p, err := r.newProcess(wf, vars, pid)
	if err != nil {
		return nil, err
	}
	r.RegisterWorkflow(ctx, wf)
	r.Cache.Put(p)
	r.Scheduler.Schedule(p.ID, p.RootTid)
	return p, nil
}

// DoAction resolves a's process (live, or rehydrated from the store) and
// dispatches a against it; if that leaves the process terminal, it hands
// off to finishProcess.
func (r *Runtime) DoAction(ctx context.Context, a action.Action) error {
	if a.Pid == "" {
		return &action.ActionError{Message: "action missing pid"}
	}
	p, err := r.resolveProcess(ctx, a.Pid)
	if err != nil {
		return &action.ActionError{Message: fmt.Sprintf("unknown process %q", a.Pid)}
	}
	if err := r.Router.Dispatch(ctx, p, a); err != nil {
		return err
	}
	p.Lock()
	terminal := p.State.IsTerminal()
	p.Unlock()
	if terminal {
		r.finishProcess(p)
	}
	return nil
}

func (r *Runtime) newProcess(wf *model.Workflow, vars map[string]any, pid string) (*proc.Process, error) {
	if pid == "" {
		pid = uuid.NewString()
	}
	root, err := tree.Compile(wf)
	if err != nil {
		return nil, err
	}
	p := proc.NewProcess(pid, wf, root, vars)
	p.CreateTask(root, "")
	return p, nil
}

func (r *Runtime) resolveProcess(ctx context.Context, pid string) (*proc.Process, error) {
	if p, ok := r.Cache.Get(pid); ok {
		return p, nil
	}
	return r.Cache.Rehydrate(ctx, pid)
}

func (r *Runtime) persistModel(ctx context.Context, wf *model.Workflow) {
	if r.Store == nil || r.Store.Models == nil {
		return
	}
	raw, err := json.Marshal(wf)
	if err != nil {
		return
	}
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err != nil {
		return
	}
	rec := store.ModelRecord{ID: wf.ID, Name: wf.Name, Tag: wf.Tag, Definition: def}
	exists, err := r.Store.Models.Exists(ctx, rec.ID)
	if err != nil {
		return
	}
	if exists {
		_ = r.Store.Models.Update(ctx, rec)
		return
	}
	_ = r.Store.Models.Create(ctx, rec)
}

// runTask is the Scheduler's onTask callback: it resolves the owning
// Process, executes the named task under the process lock, and, if that
// execution settled the whole process, hands off to finishProcess.
func (r *Runtime) runTask(pid, tid string) {
	ctx := context.Background()
	p, err := r.resolveProcess(ctx, pid)
	if err != nil {
		return
	}

	p.Lock()
	t, ok := p.Tasks[tid]
	if !ok || t.State.IsTerminal() {
		p.Unlock()
		return
	}
	start := time.Now()
	_ = r.Engine.Exec(ctx, p, t)
	kind, state := string(t.Node.Kind()), string(t.State)
	terminal := p.State.IsTerminal()
	p.Unlock()

	if r.Metrics != nil {
		r.Metrics.RecordTaskLatency(kind, state, time.Since(start))
	}
	if terminal {
		r.finishProcess(p)
	}
}

// finishProcess resumes a waiting parent act, if p has one, with a
// synthetic Action derived from p's terminal state, then evicts p from the
// cache unless KeepProcesses is set.
func (r *Runtime) finishProcess(p *proc.Process) {
	ctx := context.Background()

	p.Lock()
	procState := p.State
	parentPid, parentTid := p.ParentPid, p.ParentTid
	var ecode, message string
	if p.Err != nil {
		ecode, message = p.Err.Ecode, p.Err.Message
	}
	outputs := p.Data.Snapshot()
	p.Unlock()

	if parentPid != "" && parentTid != "" {
		ev, ok := terminalEvent(procState)
		if ok {
			options := map[string]any{}
			if ev == action.Error {
				options["ecode"] = ecode
				options["message"] = message
			} else {
				for k, v := range outputs {
					options[k] = v
				}
			}
			if parent, err := r.resolveProcess(ctx, parentPid); err == nil {
				_ = r.Router.Dispatch(ctx, parent, action.Action{
					Pid: parent.ID, Tid: parentTid, Event: ev, Options: options,
				})
				parent.Lock()
				parentTerminal := parent.State.IsTerminal()
				parent.Unlock()
				if parentTerminal {
					r.finishProcess(parent)
				}
			}
		}
	}

	if !r.KeepProcesses {
		r.Cache.Remove(p.ID)
		if r.Metrics != nil {
			r.Metrics.IncrementCacheEvictions()
		}
	}
}

// terminalEvent translates a terminated subprocess's final state into the
// synthetic Action event driven against its parent act.
func terminalEvent(state proc.State) (action.Event, bool) {
	switch state {
	case proc.StateCompleted:
		return action.Next, true
	case proc.StateAborted:
		return action.Abort, true
	case proc.StateSkipped:
		return action.Skip, true
	case proc.StateError:
		return action.Error, true
	default:
		return "", false
	}
}

// tick is the Scheduler's onTick callback: every resident process gets a
// do_tick opportunity to fire expired timeouts (proc.Engine.Tick) and to
// have its un-acked Interrupt irq tasks redelivered up to
// MaxMessageRetryTimes.
func (r *Runtime) tick() {
	for _, pid := range r.Cache.Keys() {
		p, ok := r.Cache.Get(pid)
		if !ok {
			continue
		}
		p.Lock()
		r.Engine.Tick(p)
		r.redeliverMessages(p)
		p.Unlock()
	}
}

func (r *Runtime) redeliverMessages(p *proc.Process) {
	if r.MaxMessageRetryTimes <= 0 {
		return
	}
	for _, t := range p.Tasks {
		if t.State != proc.StateInterrupt {
			continue
		}
		act := t.Node.ActNode()
		if act == nil || act.Kind != model.ActIRQ {
			continue
		}
		if t.RetryTimes >= r.MaxMessageRetryTimes {
			continue
		}
		t.RetryTimes++
		r.Engine.EmitState(p, t, emit.StateInterrupt)
	}
}

// Emit implements proc.Host.
func (r *Runtime) Emit(msg emit.Message) {
	if r.Emitter != nil {
		r.Emitter.Emit(msg)
	}
}

// Package implements proc.Host.
func (r *Runtime) Package(name string) (registry.ActPackageFn, bool) {
	if r.Registry == nil {
		return nil, false
	}
	return r.Registry.Lookup(name)
}

// Schedule implements proc.Host.
func (r *Runtime) Schedule(pid, tid string) { r.Scheduler.Schedule(pid, tid) }

// Now implements proc.Host.
func (r *Runtime) Now() time.Time { return time.Now() }

// StartSubprocess implements proc.Host: resolve the target workflow,
// materialize a child Process parented to (parentPid, parentActTid), and
// schedule its root task.
func (r *Runtime) StartSubprocess(ctx context.Context, workflowID string, inputs map[string]any, parentPid, parentActTid string) (string, error) {
	wf, ok := r.workflow(workflowID)
	if !ok {
		return "", fmt.Errorf("sch: unknown workflow %q", workflowID)
	}
	p, err := r.newProcess(wf, inputs, "")
	if err != nil {
		return "", err
	}
	p.ParentPid = parentPid
	p.ParentTid = parentActTid
	r.Cache.Put(p)
	r.Scheduler.Schedule(p.ID, p.RootTid)
	return p.ID, nil
}
