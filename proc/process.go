package proc

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/acts-go/acts/model"
	"github.com/acts-go/acts/tree"
	"github.com/acts-go/acts/vars"
)

// Process is a live execution of one compiled workflow.
type Process struct {
	mu sync.Mutex

	ID       string
	Model    *model.Workflow
	Root     *tree.Node
	Tasks    map[string]*Task
	RootTid  string
	Data     *vars.Vars
	State    State
	Err      *TaskError
	ParentPid string
	ParentTid string

	seq int
}

// NewProcess allocates a Process for root over the given workflow, seeding
// process-level data from initVars. The root task itself is not created
// here; callers call CreateTask(root-node, "") once.
func NewProcess(id string, wf *model.Workflow, root *tree.Node, initVars map[string]any) *Process {
	return &Process{
		ID:    id,
		Model: wf,
		Root:  root,
		Tasks: make(map[string]*Task),
		Data:  vars.FromMap(initVars),
		State: StateNone,
	}
}

// Lock/Unlock expose the per-process mutex so ActionRouter and the
// scheduler runner can serialize execution on this Process, per §5.
func (p *Process) Lock()   { p.mu.Lock() }
func (p *Process) Unlock() { p.mu.Unlock() }

// CreateTask allocates a Task with a fresh id for node, recording prev as
// the task's predecessor (parent task id, or the redone task's id).
func (p *Process) CreateTask(node *tree.Node, prev string) *Task {
	p.seq++
	id := fmt.Sprintf("t#%d", p.seq)
	t := newTask(id, p.seq, p.ID, node, prev)
	p.Tasks[id] = t
	if p.RootTid == "" && prev == "" {
		p.RootTid = id
	}
	return t
}

// RestoreTask reinserts a previously-persisted task under its original id,
// for cache rehydration (see cache.ProcessCache.Rehydrate): CreateTask
// always mints ids in the "t#<n>" shape, so the sequence number embedded in
// id is trusted directly rather than recomputed, and Process.seq is
// advanced past it so later CreateTask calls never collide.
func (p *Process) RestoreTask(id string, node *tree.Node, prevTaskID string) *Task {
	seq, _ := parseTaskSeq(id)
	t := newTask(id, seq, p.ID, node, prevTaskID)
	p.Tasks[id] = t
	if p.RootTid == "" && prevTaskID == "" {
		p.RootTid = id
	}
	if seq > p.seq {
		p.seq = seq
	}
	return t
}

func parseTaskSeq(id string) (int, bool) {
	if !strings.HasPrefix(id, "t#") {
		return 0, false
	}
	n, err := strconv.Atoi(id[2:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// RootTask returns the workflow's root task.
func (p *Process) RootTask() *Task { return p.Tasks[p.RootTid] }

// TaskByNid returns every task instantiating node id nid.
func (p *Process) TaskByNid(nid string) []*Task {
	var out []*Task
	for _, t := range p.Tasks {
		if t.Node.ID == nid {
			out = append(out, t)
		}
	}
	return out
}

// ParentTask discovers t's parent by walking PrevTaskID until a
// predecessor at a strictly lower tree level is found.
func (p *Process) ParentTask(t *Task) *Task {
	cur := t
	for {
		if cur.PrevTaskID == "" {
			return nil
		}
		prev, ok := p.Tasks[cur.PrevTaskID]
		if !ok {
			return nil
		}
		if prev.Node.Level < t.Node.Level {
			return prev
		}
		cur = prev
	}
}

// Find resolves name by ascending scope: t's own data, then each ancestor
// task's data, then process-level data.
func (p *Process) Find(t *Task, name string) (any, bool) {
	cur := t
	for cur != nil {
		if v, ok := cur.Data.Get(name); ok {
			return v, true
		}
		cur = p.ParentTask(cur)
	}
	return p.Data.Get(name)
}

// UpdateData implements the write-propagation invariant: the write targets
// the nearest ancestor whose data already defines key, falling back to t's
// own local data.
func (p *Process) UpdateData(t *Task, key string, value any) {
	cur := t
	for {
		parent := p.ParentTask(cur)
		if parent == nil {
			break
		}
		if parent.Data.Has(key) {
			parent.Data.Set(key, value)
			return
		}
		cur = parent
	}
	if p.Data.Has(key) {
		p.Data.Set(key, value)
		return
	}
	t.Data.Set(key, value)
}

// StepTaskByID returns the most recently created, non-removed task
// instantiating the step node with the given declared step id, or nil.
func (p *Process) StepTaskByID(stepID string) *Task {
	var found *Task
	for _, t := range p.Tasks {
		sn := t.Node.StepNode()
		if sn == nil || sn.ID != stepID || t.State == StateRemoved {
			continue
		}
		if found == nil || t.Seq > found.Seq {
			found = t
		}
	}
	return found
}
