package sch

import (
	"context"
	"testing"

	"github.com/acts-go/acts/action"
	"github.com/acts-go/acts/model"
	"github.com/acts-go/acts/proc"
	"github.com/acts-go/acts/store"
)

// drainRuntime synchronously pops and runs every signal currently queued,
// standing in for the Scheduler's goroutine-per-signal loop so tests stay
// deterministic and single-threaded.
func drainRuntime(t *testing.T, r *Runtime) {
	t.Helper()
	for n := 0; r.Scheduler.QueueDepth() > 0; n++ {
		if n > 1000 {
			t.Fatalf("drainRuntime: queue never emptied, possible scheduling loop")
		}
		sig := r.Scheduler.queue.pop()
		if sig.Terminal {
			continue
		}
		r.runTask(sig.Pid, sig.Tid)
	}
}

func findTaskByKind(p *proc.Process, kind model.ActKind) *proc.Task {
	for _, t := range p.Tasks {
		if act := t.Node.ActNode(); act != nil && act.Kind == kind {
			return t
		}
	}
	return nil
}

func irqWorkflow(id string) *model.Workflow {
	return &model.Workflow{
		ID: id,
		Steps: []model.Step{
			{ID: "s1", Acts: []model.Act{{ID: "a1", Kind: model.ActIRQ, Key: "approve", Rets: []string{"decision"}}}},
		},
	}
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	st := store.NewMemStore()
	r, err := NewRuntime(16, st, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	return r
}

func TestStartSchedulesAndRunsToInterrupt(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	wf := irqWorkflow("wf-start")

	p, err := r.Start(ctx, wf, nil, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drainRuntime(t, r)

	irq := findTaskByKind(p, model.ActIRQ)
	if irq == nil || irq.State != proc.StateInterrupt {
		t.Fatalf("expected an Interrupt irq task, got %+v", irq)
	}
	if p.State == proc.StateCompleted {
		t.Fatalf("process should still be running, not Completed")
	}
	if _, ok := r.Cache.Get(p.ID); !ok {
		t.Fatalf("process should remain resident while an act is Interrupt")
	}
}

func TestStartRejectsCollidingPid(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	wf := irqWorkflow("wf-collide")

	if _, err := r.Start(ctx, wf, nil, "pid-1"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, err := r.Start(ctx, wf, nil, "pid-1"); err == nil {
		t.Fatalf("expected collision error for a live pid, got nil")
	}
}

func TestDoActionCompletesProcessAndEvictsFromCache(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	wf := irqWorkflow("wf-doaction")

	p, err := r.Start(ctx, wf, nil, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drainRuntime(t, r)

	irq := findTaskByKind(p, model.ActIRQ)
	if irq == nil {
		t.Fatalf("expected irq task")
	}

	err = r.DoAction(ctx, action.Action{
		Pid: p.ID, Tid: irq.ID, Event: action.Next,
		Options: map[string]any{"decision": "approved"},
	})
	if err != nil {
		t.Fatalf("DoAction: %v", err)
	}
	drainRuntime(t, r)

	if p.State != proc.StateCompleted {
		t.Fatalf("process state = %v, want Completed", p.State)
	}
	if _, ok := r.Cache.Get(p.ID); ok {
		t.Fatalf("completed root process should have been evicted")
	}
}

func TestDoActionUnknownProcessReturnsError(t *testing.T) {
	r := newTestRuntime(t)
	err := r.DoAction(context.Background(), action.Action{Pid: "no-such-pid", Tid: "t1", Event: action.Skip})
	if err == nil {
		t.Fatalf("expected error for unknown process")
	}
}

func TestSubprocessCompletionResumesParentViaSyntheticNext(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	child := &model.Workflow{
		ID: "wf-child",
		Steps: []model.Step{
			{ID: "cs1", Acts: []model.Act{{
				ID: "expose", Kind: model.ActExpose,
				Inputs: map[string]any{"result": "done"},
			}}},
		},
	}
	r.RegisterWorkflow(ctx, child)

	parent := &model.Workflow{
		ID: "wf-parent",
		Steps: []model.Step{
			{ID: "ps1", Acts: []model.Act{{
				ID: "call", Kind: model.ActCall,
				Inputs: map[string]any{"workflow": "wf-child"},
				Rets:   []string{"result"},
			}}},
		},
	}

	p, err := r.Start(ctx, parent, nil, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drainRuntime(t, r)

	if p.State != proc.StateCompleted {
		t.Fatalf("parent process state = %v, want Completed once child resolves", p.State)
	}
	callTask := findTaskByKind(p, model.ActCall)
	if callTask == nil || callTask.State != proc.StateCompleted {
		t.Fatalf("call task = %+v, want Completed", callTask)
	}
	if v, ok := callTask.Data.Get("result"); !ok || v != "done" {
		t.Fatalf("call task result = %v, %v, want \"done\"", v, ok)
	}
	if _, ok := r.Cache.Get(p.ID); ok {
		t.Fatalf("parent process should have been evicted once terminal")
	}
}

func TestTickRedeliversUnackedMessages(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	wf := irqWorkflow("wf-tick")

	p, err := r.Start(ctx, wf, nil, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	drainRuntime(t, r)

	irqTask := findTaskByKind(p, model.ActIRQ)
	if irqTask == nil || irqTask.State != proc.StateInterrupt {
		t.Fatalf("expected an Interrupt irq task, got %+v", irqTask)
	}

	r.tick()
	if irqTask.RetryTimes != 1 {
		t.Fatalf("RetryTimes = %d, want 1 after one tick", irqTask.RetryTimes)
	}
	r.tick()
	if irqTask.RetryTimes != 2 {
		t.Fatalf("RetryTimes = %d, want 2 after two ticks", irqTask.RetryTimes)
	}

	r.MaxMessageRetryTimes = 2
	r.tick()
	if irqTask.RetryTimes != 2 {
		t.Fatalf("RetryTimes = %d, want capped at MaxMessageRetryTimes (2)", irqTask.RetryTimes)
	}
}
