package proc

import (
	"context"
	"testing"
	"time"

	"github.com/acts-go/acts/emit"
	"github.com/acts-go/acts/model"
	"github.com/acts-go/acts/registry"
	"github.com/acts-go/acts/tree"
)

type testHost struct {
	now      time.Time
	queue    [][2]string
	messages []emit.Message
	packages map[string]registry.ActPackageFn
}

func newTestHost() *testHost {
	return &testHost{now: time.Unix(0, 0), packages: map[string]registry.ActPackageFn{}}
}

func (h *testHost) Emit(msg emit.Message) { h.messages = append(h.messages, msg) }

func (h *testHost) Package(name string) (registry.ActPackageFn, bool) {
	fn, ok := h.packages[name]
	return fn, ok
}

func (h *testHost) Schedule(pid, tid string) { h.queue = append(h.queue, [2]string{pid, tid}) }

func (h *testHost) Now() time.Time {
	h.now = h.now.Add(time.Millisecond)
	return h.now
}

func (h *testHost) StartSubprocess(ctx context.Context, workflowID string, inputs map[string]any, parentPid, parentActTid string) (string, error) {
	return "", nil
}

func (h *testHost) drain(t *testing.T, eng *Engine, p *Process) {
	for len(h.queue) > 0 {
		item := h.queue[0]
		h.queue = h.queue[1:]
		task := p.Tasks[item[1]]
		if task == nil {
			t.Fatalf("scheduled unknown task %s", item[1])
		}
		if err := eng.Exec(context.Background(), p, task); err != nil {
			t.Fatalf("Exec(%s): %v", task.ID, err)
		}
	}
}

func linearWorkflow() *model.Workflow {
	return &model.Workflow{
		ID: "wf1",
		Steps: []model.Step{
			{ID: "s1", Acts: []model.Act{{ID: "a1", Kind: model.ActSet, Inputs: map[string]any{"x": 1.0}}}},
			{ID: "s2", Acts: []model.Act{{ID: "a2", Kind: model.ActExpose, Inputs: map[string]any{"y": 2.0}}}},
		},
	}
}

func runToCompletion(t *testing.T, wf *model.Workflow) (*Process, *testHost) {
	t.Helper()
	root, err := tree.Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	p := NewProcess("p1", wf, root, nil)
	host := newTestHost()
	eng := NewEngine(host)
	rootTask := p.CreateTask(root, "")
	if err := eng.Exec(context.Background(), p, rootTask); err != nil {
		t.Fatalf("Exec root: %v", err)
	}
	host.drain(t, eng, p)
	return p, host
}

func TestLinearWorkflowCompletes(t *testing.T) {
	p, _ := runToCompletion(t, linearWorkflow())
	if p.State != StateCompleted {
		t.Fatalf("process state = %v, want Completed", p.State)
	}
	if v, ok := p.Data.Get("y"); !ok || v != 2.0 {
		t.Fatalf("process data y = %v, %v", v, ok)
	}
}

func TestIRQSuspendsAndNextCompletes(t *testing.T) {
	wf := &model.Workflow{
		ID: "wf2",
		Steps: []model.Step{
			{ID: "s1", Acts: []model.Act{{ID: "a1", Kind: model.ActIRQ, Key: "approve"}}},
		},
	}
	root, err := tree.Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	p := NewProcess("p2", wf, root, nil)
	host := newTestHost()
	eng := NewEngine(host)
	rootTask := p.CreateTask(root, "")
	if err := eng.Exec(context.Background(), p, rootTask); err != nil {
		t.Fatalf("Exec root: %v", err)
	}
	host.drain(t, eng, p)

	var irqTask *Task
	for _, tk := range p.Tasks {
		if act := tk.Node.ActNode(); act != nil && act.Kind == model.ActIRQ {
			irqTask = tk
		}
	}
	if irqTask == nil || irqTask.State != StateInterrupt {
		t.Fatalf("expected an Interrupt irq task, got %+v", irqTask)
	}

	irqTask.transitionTo(host.Now(), StateCompleted)
	ctx := &Context{Host: host, Process: p, Task: irqTask}
	if err := eng.next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	host.drain(t, eng, p)

	if p.State != StateCompleted {
		t.Fatalf("process state = %v, want Completed", p.State)
	}
}

func TestBranchIfSelectsMatchingBranch(t *testing.T) {
	wf := &model.Workflow{
		ID: "wf3",
		Steps: []model.Step{
			{
				ID: "s1",
				Branches: []model.Branch{
					{ID: "b1", If: "${1 > 2}", Steps: []model.Step{{ID: "b1s1", Acts: []model.Act{{ID: "a1", Kind: model.ActExpose, Inputs: map[string]any{"branch": "b1"}}}}}},
					{ID: "b2", Else: true, Steps: []model.Step{{ID: "b2s1", Acts: []model.Act{{ID: "a2", Kind: model.ActExpose, Inputs: map[string]any{"branch": "b2"}}}}}},
				},
			},
		},
	}
	p, _ := runToCompletion(t, wf)
	if v, _ := p.Data.Get("branch"); v != "b2" {
		t.Fatalf("branch = %v, want b2", v)
	}
}

func TestErrorWithCatchRecovers(t *testing.T) {
	wf := &model.Workflow{
		ID: "wf4",
		Steps: []model.Step{
			{
				ID: "s1",
				Acts: []model.Act{{ID: "a1", Kind: model.ActCode, Key: "boom"}},
				Catches: []model.Catch{
					{On: "", Then: []model.Step{{ID: "recover", Acts: []model.Act{{ID: "a2", Kind: model.ActExpose, Inputs: map[string]any{"recovered": true}}}}}},
				},
			},
		},
	}
	root, err := tree.Compile(wf)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	p := NewProcess("p4", wf, root, nil)
	host := newTestHost()
	host.packages["boom"] = func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
		return nil, &TaskError{Ecode: "BOOM", Message: "kaboom"}
	}
	eng := NewEngine(host)
	rootTask := p.CreateTask(root, "")
	if err := eng.Exec(context.Background(), p, rootTask); err != nil {
		t.Fatalf("Exec root: %v", err)
	}
	host.drain(t, eng, p)

	if v, ok := p.Data.Get("recovered"); !ok || v != true {
		t.Fatalf("recovered = %v, %v", v, ok)
	}
}
