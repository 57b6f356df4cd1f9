// Package cache implements a bounded LRU of live processes: eviction
// persists a dirty process to the store, and a cache miss rehydrates one
// by recompiling its workflow and replaying its tasks.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/acts-go/acts/model"
	"github.com/acts-go/acts/proc"
	"github.com/acts-go/acts/store"
	"github.com/acts-go/acts/tree"
	"github.com/acts-go/acts/vars"
)

// ProcessCache is a bounded LRU of live *proc.Process keyed by pid, wrapping
// hashicorp/golang-lru/v2 the way the teacher wraps container/heap in
// graph/scheduler.go's Frontier: a thin struct, its own lock, and a callback
// into this system's own persistence logic.
type ProcessCache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, *proc.Process]
	store *store.Store
}

// NewProcessCache returns a ProcessCache bounded to capacity live processes.
// st may be nil; evictions then simply drop the process (acceptable for
// tests that never need durability).
func NewProcessCache(capacity int, st *store.Store) (*ProcessCache, error) {
	c := &ProcessCache{store: st}
	l, err := lru.NewWithEvict(capacity, func(_ string, p *proc.Process) {
		c.persist(context.Background(), p)
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the live process for pid, touching its recency, or false if
// pid isn't resident — the caller should then try Rehydrate.
func (c *ProcessCache) Get(pid string) (*proc.Process, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(pid)
}

// Put inserts or refreshes p in the cache. If the cache is at capacity this
// evicts and persists the least recently used process.
func (c *ProcessCache) Put(p *proc.Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(p.ID, p)
}

// Remove evicts pid immediately (persisting it first), for a process that
// has reached a terminal state and keep-processes is off — back-pressure on
// the scheduler's queue comes from exactly this path, not from queue
// capacity.
func (c *ProcessCache) Remove(pid string) {
	c.mu.Lock()
	p, ok := c.lru.Peek(pid)
	c.mu.Unlock()
	if !ok {
		return
	}
	c.persist(context.Background(), p)
	c.mu.Lock()
	c.lru.Remove(pid)
	c.mu.Unlock()
}

// Len reports how many processes are currently resident.
func (c *ProcessCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the pids of every process currently resident, oldest first,
// for the runtime's periodic tick sweep over resident processes.
func (c *ProcessCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// persist writes p's proc record and every task record to the store. Write
// errors are swallowed here: they must not wedge the event loop. The
// eviction callback runs on the LRU's own call path and has no tick to
// retry on, so the durable copy simply stays stale until the process is
// persisted again.
func (c *ProcessCache) persist(ctx context.Context, p *proc.Process) {
	if c.store == nil {
		return
	}
	p.Lock()
	defer p.Unlock()

	rec := store.ProcRecord{
		ID:        p.ID,
		Mid:       p.Model.ID,
		State:     string(p.State),
		Env:       p.Data.Snapshot(),
		ParentPid: p.ParentPid,
		ParentTid: p.ParentTid,
	}
	if root := p.RootTask(); root != nil {
		rec.StartTime = root.StartTime
		if !root.EndTime.IsZero() {
			et := root.EndTime
			rec.EndTime = &et
		}
	}
	if p.Err != nil {
		rec.Err = p.Err.Error()
	}
	upsert(ctx, c.store.Procs, rec.ID, rec)

	for _, t := range p.Tasks {
		trec := store.TaskRecord{
			Pid:       p.ID,
			Tid:       t.ID,
			Nid:       t.Node.ID,
			Kind:      string(t.Node.Kind()),
			State:     string(t.State),
			Prev:      t.PrevTaskID,
			Data:      t.Data.Snapshot(),
			StartTime: t.StartTime,
			Timestamp: time.Now(),
		}
		if !t.EndTime.IsZero() {
			et := t.EndTime
			trec.EndTime = &et
		}
		if t.Err != nil {
			trec.Err = t.Err.Error()
		}
		upsert(ctx, c.store.Tasks, trec.ID(), trec)
	}
}

// Rehydrate reconstructs a process absent from the cache: it recompiles the
// workflow from the stored model definition, then replays every persisted
// task against the freshly compiled tree, reattaching each task's hooks (via
// tree's own node-to-hooks derivation) and restoring its state and data. The
// rehydrated process is added to the cache before being returned.
//
// A task whose persisted node id resolves to nothing in the recompiled tree
// is skipped: it was a catch/timeout/push node attached dynamically during
// the original run, never reproduced by recompiling the static model (see
// DESIGN.md's Open Question decision on this).
func (c *ProcessCache) Rehydrate(ctx context.Context, pid string) (*proc.Process, error) {
	if c.store == nil {
		return nil, store.ErrNotFound
	}
	procRec, err := c.store.Procs.Find(ctx, pid)
	if err != nil {
		return nil, err
	}
	modelRec, err := c.store.Models.Find(ctx, procRec.Mid)
	if err != nil {
		return nil, err
	}
	wf, err := decodeWorkflow(modelRec)
	if err != nil {
		return nil, err
	}
	root, err := tree.Compile(wf)
	if err != nil {
		return nil, err
	}

	p := proc.NewProcess(pid, wf, root, procRec.Env)
	p.State = proc.State(procRec.State)
	p.ParentPid = procRec.ParentPid
	p.ParentTid = procRec.ParentTid

	taskRecs, err := c.store.Tasks.Query(ctx, store.NewQuery().Where(store.And(store.Eq("pid", pid))))
	if err != nil {
		return nil, err
	}
	for _, tr := range taskRecs {
		node := tree.FindNode(root, tr.Nid)
		if node == nil {
			continue
		}
		t := p.RestoreTask(tr.Tid, node, tr.Prev)
		t.State = proc.State(tr.State)
		t.Data = vars.FromMap(tr.Data)
		t.StartTime = tr.StartTime
		if tr.EndTime != nil {
			t.EndTime = *tr.EndTime
		}
		if tr.Err != "" {
			t.Err = &proc.TaskError{Message: tr.Err}
		}
	}

	c.Put(p)
	return p, nil
}

func decodeWorkflow(rec store.ModelRecord) (*model.Workflow, error) {
	raw, err := json.Marshal(rec.Definition)
	if err != nil {
		return nil, err
	}
	wf := &model.Workflow{}
	if err := json.Unmarshal(raw, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// upsert writes rec into col under id, creating it if absent and updating it
// otherwise. Collection[T] never exposes a single atomic upsert, so this is
// the one place that composes Exists with Create/Update.
func upsert[T any](ctx context.Context, col store.Collection[T], id string, rec T) {
	if col == nil {
		return
	}
	exists, err := col.Exists(ctx, id)
	if err != nil {
		return
	}
	if exists {
		_ = col.Update(ctx, rec)
		return
	}
	_ = col.Create(ctx, rec)
}
