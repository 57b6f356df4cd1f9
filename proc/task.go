package proc

import (
	"time"

	"github.com/acts-go/acts/tree"
	"github.com/acts-go/acts/vars"
)

// Task is the runtime instance of one compiled Node.
type Task struct {
	ID         string
	Seq        int
	Pid        string
	Node       *tree.Node
	State      State
	Data       *vars.Vars
	Err        *TaskError
	StartTime  time.Time
	EndTime    time.Time
	PrevTaskID string
	Hooks      map[tree.Phase][]tree.HookStatement
	RetryTimes int

	// Sequence/each iteration bookkeeping, valid only when Node is an Act
	// of kind sequence/each.
	SeqItems []any
	SeqIndex int

	// Needs/else bookkeeping for Branch tasks.
	Needs []string

	// FiredTimeouts marks which of the owning node's Timeouts (by index)
	// have already scheduled their Then branch, so a tick never re-fires
	// the same timeout twice.
	FiredTimeouts map[int]bool
}

func newTask(id string, seq int, pid string, node *tree.Node, prevTaskID string) *Task {
	hooks := make(map[tree.Phase][]tree.HookStatement)
	for _, h := range node.Content.Hooks() {
		hooks[h.Phase] = append(hooks[h.Phase], h)
	}
	return &Task{
		ID:         id,
		Seq:        seq,
		Pid:        pid,
		Node:       node,
		State:      StateNone,
		Data:       vars.New(),
		PrevTaskID: prevTaskID,
		Hooks:      hooks,
	}
}

// transitionTo moves the task to state, stamping start/end time and
// clearing Err whenever the task leaves Error.
func (t *Task) transitionTo(now time.Time, state State) {
	if t.State == StateNone && state != StateNone {
		t.StartTime = now
	}
	if t.State == StateError && state != StateError {
		t.Err = nil
	}
	t.State = state
	if state.IsTerminal() {
		t.EndTime = now
	}
}
