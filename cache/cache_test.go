package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/acts-go/acts/model"
	"github.com/acts-go/acts/proc"
	"github.com/acts-go/acts/store"
	"github.com/acts-go/acts/tree"
)

func testWorkflow(id string) *model.Workflow {
	return &model.Workflow{
		ID: id,
		Steps: []model.Step{
			{ID: "s1", Acts: []model.Act{{ID: "a1", Kind: model.ActIRQ, Key: "approve", Rets: []string{"decision"}}}},
		},
	}
}

func mustModelRecord(t *testing.T, wf *model.Workflow) store.ModelRecord {
	t.Helper()
	raw, err := json.Marshal(wf)
	if err != nil {
		t.Fatalf("Marshal workflow: %v", err)
	}
	var def map[string]any
	if err := json.Unmarshal(raw, &def); err != nil {
		t.Fatalf("Unmarshal workflow: %v", err)
	}
	return store.ModelRecord{ID: wf.ID, Definition: def}
}

func newProcessForCache(t *testing.T, wf *model.Workflow, pid string) *proc.Process {
	t.Helper()
	root, err := tree.Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	p := proc.NewProcess(pid, wf, root, nil)
	root1 := p.CreateTask(root, "")
	root1.State = proc.StateRunning
	step := p.CreateTask(root.Children[0], root1.ID)
	step.State = proc.StateRunning
	act := p.CreateTask(root.Children[0].Children[0], step.ID)
	act.State = proc.StateInterrupt
	act.Data.Set("hello", "world")
	return p
}

func TestPutGetRemoveLen(t *testing.T) {
	c, err := NewProcessCache(2, nil)
	if err != nil {
		t.Fatalf("NewProcessCache: %v", err)
	}
	p := newProcessForCache(t, testWorkflow("wf-put"), "p1")
	c.Put(p)

	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	got, ok := c.Get("p1")
	if !ok || got != p {
		t.Fatalf("Get(p1) = %v, %v, want original process", got, ok)
	}

	c.Remove("p1")
	if c.Len() != 0 {
		t.Fatalf("Len after Remove = %d, want 0", c.Len())
	}
	if _, ok := c.Get("p1"); ok {
		t.Fatalf("Get(p1) after Remove: found, want miss")
	}
}

func TestEvictionPersistsToStore(t *testing.T) {
	st := store.NewMemStore()
	c, err := NewProcessCache(1, st)
	if err != nil {
		t.Fatalf("NewProcessCache: %v", err)
	}
	p1 := newProcessForCache(t, testWorkflow("wf-evict-1"), "p1")
	p2 := newProcessForCache(t, testWorkflow("wf-evict-2"), "p2")

	c.Put(p1)
	c.Put(p2) // evicts p1 (capacity 1), triggering persist

	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
	if _, ok := c.Get("p1"); ok {
		t.Fatalf("p1 still resident after eviction")
	}

	rec, err := st.Procs.Find(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Procs.Find(p1): %v", err)
	}
	if rec.ID != "p1" {
		t.Fatalf("rec.ID = %q, want p1", rec.ID)
	}

	taskRecs, err := st.Tasks.Query(context.Background(), store.NewQuery().Where(store.And(store.Eq("pid", "p1"))))
	if err != nil {
		t.Fatalf("Tasks.Query: %v", err)
	}
	if len(taskRecs) != 3 {
		t.Fatalf("persisted task count = %d, want 3", len(taskRecs))
	}
}

func TestRehydrateRestoresTasksAndData(t *testing.T) {
	st := store.NewMemStore()
	wf := testWorkflow("wf-rehydrate")
	if err := st.Models.Create(context.Background(), mustModelRecord(t, wf)); err != nil {
		t.Fatalf("Models.Create: %v", err)
	}

	c, err := NewProcessCache(1, st)
	if err != nil {
		t.Fatalf("NewProcessCache: %v", err)
	}
	p := newProcessForCache(t, wf, "p-rehydrate")
	c.persist(context.Background(), p)
	c.Remove("p-rehydrate") // no-op, never resident; clears any stale cache state

	rehydrated, err := c.Rehydrate(context.Background(), "p-rehydrate")
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if rehydrated.ID != "p-rehydrate" {
		t.Fatalf("rehydrated.ID = %q, want p-rehydrate", rehydrated.ID)
	}
	if len(rehydrated.Tasks) != 3 {
		t.Fatalf("rehydrated task count = %d, want 3", len(rehydrated.Tasks))
	}

	var act *proc.Task
	for _, tk := range rehydrated.Tasks {
		if actNode := tk.Node.ActNode(); actNode != nil {
			act = tk
		}
	}
	if act == nil {
		t.Fatalf("rehydrated process missing its act task")
	}
	if act.State != proc.StateInterrupt {
		t.Fatalf("act.State = %v, want Interrupt", act.State)
	}
	if v, ok := act.Data.Get("hello"); !ok || v != "world" {
		t.Fatalf("act.Data[hello] = %v, %v, want world", v, ok)
	}

	if got, ok := c.Get("p-rehydrate"); !ok || got != rehydrated {
		t.Fatalf("Rehydrate did not add process back to cache")
	}
}

func TestRehydrateSkipsUnresolvableNode(t *testing.T) {
	st := store.NewMemStore()
	wf := testWorkflow("wf-dangling")
	if err := st.Models.Create(context.Background(), mustModelRecord(t, wf)); err != nil {
		t.Fatalf("Models.Create: %v", err)
	}

	c, err := NewProcessCache(1, st)
	if err != nil {
		t.Fatalf("NewProcessCache: %v", err)
	}
	p := newProcessForCache(t, wf, "p-dangling")
	// Simulate a task bound to a dynamically-attached node that won't
	// exist once the workflow is recompiled from scratch.
	root, _ := tree.Compile(wf)
	dynNodes, err := tree.AttachStep(root, []model.Step{{ID: "recovery", Acts: []model.Act{{ID: "ra1", Kind: model.ActCmd}}}})
	if err != nil {
		t.Fatalf("AttachStep: %v", err)
	}
	ghost := p.CreateTask(dynNodes[0], p.RootTid)
	ghost.State = proc.StateCompleted

	c.persist(context.Background(), p)

	rehydrated, err := c.Rehydrate(context.Background(), "p-dangling")
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if _, ok := rehydrated.Tasks[ghost.ID]; ok {
		t.Fatalf("ghost task %s was restored, want skipped", ghost.ID)
	}
	if len(rehydrated.Tasks) != 3 {
		t.Fatalf("rehydrated task count = %d, want 3 (ghost skipped)", len(rehydrated.Tasks))
	}
}
