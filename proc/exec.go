package proc

import (
	"context"
	"fmt"

	"github.com/acts-go/acts/emit"
	"github.com/acts-go/acts/model"
	"github.com/acts-go/acts/tree"
)

// Engine drives exec(task) against one Host, grounded on graph/engine.go's
// Engine.Run step loop: init sets Ready, run sets Running and dispatches on
// node kind, next() decides continuation.
type Engine struct {
	Host Host
}

func NewEngine(host Host) *Engine { return &Engine{Host: host} }

// Exec runs one task to either a suspend point (Interrupt/Pending) or as
// far toward a terminal state as it can go without external input, then
// hands off to review(task), which calls next(task) to schedule
// continuation work.
func (e *Engine) Exec(ctx context.Context, p *Process, t *Task) error {
	if t.State.IsTerminal() {
		return &RuntimeError{Message: fmt.Sprintf("exec called on terminal task %s", t.ID)}
	}
	c := &Context{Host: e.Host, Process: p, Task: t}

	if err := e.init(c); err != nil {
		return e.fail(c, err)
	}
	if t.State == StateSkipped || t.State == StatePending {
		return e.afterRun(c)
	}
	if err := e.run(c); err != nil {
		return e.fail(c, err)
	}
	return e.afterRun(c)
}

// afterRun hands control to review(task) once run() returns, unless the
// task suspended awaiting external input (Interrupt/Pending).
func (e *Engine) afterRun(c *Context) error {
	if c.Task.State == StateInterrupt || c.Task.State == StatePending {
		return nil
	}
	return e.review(c)
}

func (e *Engine) fail(c *Context, err error) error {
	te := toTaskError(err)
	c.Task.Err = te
	c.Task.transitionTo(e.Host.Now(), StateError)
	e.emitState(c, emit.StateError)
	return e.errorHandler(c)
}

func toTaskError(err error) *TaskError {
	if te, ok := err.(*TaskError); ok {
		return te
	}
	if be, ok := err.(*BusinessError); ok {
		return &TaskError{Ecode: be.Ecode, Message: be.Message, Cause: be}
	}
	return &TaskError{Ecode: "RUNTIME_ERROR", Message: err.Error(), Cause: err}
}

// init sets Ready and runs node-kind-specific init behavior.
func (e *Engine) init(c *Context) error {
	c.Task.transitionTo(e.Host.Now(), StateReady)
	e.emitState(c, emit.StateCreated)

	switch c.Task.Node.Kind() {
	case tree.KindWorkflow:
		return e.initWorkflow(c)
	case tree.KindStep:
		return e.initStep(c)
	case tree.KindBranch:
		return e.initBranch(c)
	case tree.KindAct:
		return nil
	}
	return nil
}

func (e *Engine) initWorkflow(c *Context) error {
	wf := c.Task.Node.Content.(*tree.WorkflowContent).Workflow
	for k, v := range wf.Inputs {
		if !c.Process.Data.Has(k) {
			c.Process.Data.Set(k, v)
		}
	}
	return runHooks(c, c.Task.Hooks[model.PhaseCreated])
}

func (e *Engine) initStep(c *Context) error {
	step := c.Task.Node.StepNode()
	if step.If != "" {
		ok, err := c.EvalBool(step.If)
		if err != nil {
			return EvalErr(err)
		}
		if !ok {
			c.Task.transitionTo(e.Host.Now(), StateSkipped)
			return nil
		}
	}
	return nil
}

func (e *Engine) initBranch(c *Context) error {
	branch := c.Task.Node.BranchNode()
	if len(branch.Needs) > 0 {
		for _, nid := range branch.Needs {
			st := c.Process.StepTaskByID(nid)
			if st == nil || !st.State.IsTerminal() {
				c.Task.transitionTo(e.Host.Now(), StatePending)
				c.Task.Needs = branch.Needs
				return nil
			}
		}
	}
	if branch.Else {
		if anySiblingSucceeded(c.Process, c.Task) {
			c.Task.transitionTo(e.Host.Now(), StateSkipped)
			return nil
		}
		return nil
	}
	if branch.If != "" {
		ok, err := c.EvalBool(branch.If)
		if err != nil {
			return EvalErr(err)
		}
		if !ok {
			c.Task.transitionTo(e.Host.Now(), StateSkipped)
		}
	}
	return nil
}

func anySiblingSucceeded(p *Process, t *Task) bool {
	parent := p.ParentTask(t)
	if parent == nil {
		return false
	}
	for _, sibling := range p.Tasks {
		if sibling.ID == t.ID {
			continue
		}
		if p.ParentTask(sibling) != parent {
			continue
		}
		if sibling.State == StateCompleted {
			return true
		}
	}
	return false
}

// run sets Running and executes node-kind-specific run behavior. A task
// already Skipped/Pending from init must not run.
func (e *Engine) run(c *Context) error {
	if c.Task.State == StateSkipped || c.Task.State == StatePending {
		return nil
	}
	c.Task.transitionTo(e.Host.Now(), StateRunning)

	switch c.Task.Node.Kind() {
	case tree.KindWorkflow:
		return e.runWorkflow(c)
	case tree.KindStep:
		return e.runStep(c)
	case tree.KindBranch:
		return e.runBranch(c)
	case tree.KindAct:
		return e.runAct(c)
	}
	return nil
}

func (e *Engine) runBranch(c *Context) error {
	if len(c.Task.Node.Children) == 0 {
		c.Task.transitionTo(e.Host.Now(), StateCompleted)
		return nil
	}
	first := c.Task.Node.Children[0]
	child := c.Process.CreateTask(first, c.Task.ID)
	e.Host.Schedule(c.Process.ID, child.ID)
	return nil
}

func (e *Engine) runWorkflow(c *Context) error {
	if len(c.Task.Node.Children) == 0 {
		c.Task.transitionTo(e.Host.Now(), StateCompleted)
		return nil
	}
	first := c.Task.Node.Children[0]
	child := c.Process.CreateTask(first, c.Task.ID)
	e.Host.Schedule(c.Process.ID, child.ID)
	return nil
}

func (e *Engine) runStep(c *Context) error {
	if err := runHooks(c, c.Task.Hooks[model.PhaseCreated]); err != nil {
		return EvalErr(err)
	}
	acts := actChildren(c.Task.Node)
	if len(acts) == 0 {
		if len(branchChildren(c.Task.Node)) == 0 {
			c.Task.transitionTo(e.Host.Now(), StateCompleted)
		}
		return nil
	}
	// Acts run sequentially: only the first is scheduled eagerly here, the
	// rest chain off it via the same declaration-order Next pointer that
	// links sibling steps (see continuationOf).
	first := acts[0]
	child := c.Process.CreateTask(first, c.Task.ID)
	e.Host.Schedule(c.Process.ID, child.ID)
	return nil
}

func actChildren(n *tree.Node) []*tree.Node {
	var out []*tree.Node
	for _, c := range n.Children {
		if c.Kind() == tree.KindAct {
			out = append(out, c)
		}
	}
	return out
}

func branchChildren(n *tree.Node) []*tree.Node {
	var out []*tree.Node
	for _, c := range n.Children {
		if c.Kind() == tree.KindBranch {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) runAct(c *Context) error {
	act := c.Task.Node.ActNode()
	switch act.Kind {
	case model.ActIRQ:
		c.Task.transitionTo(e.Host.Now(), StateInterrupt)
		e.emitState(c, emit.StateInterrupt)
		return nil

	case model.ActMsg:
		e.emitState(c, emit.StateCreated)
		c.Task.transitionTo(e.Host.Now(), StateCompleted)
		return nil

	case model.ActSet:
		for k, v := range act.Inputs {
			val, err := evalValue(c, v)
			if err != nil {
				return EvalErr(err)
			}
			parent := c.Process.ParentTask(c.Task)
			if parent != nil {
				c.Process.UpdateData(parent, k, val)
			} else {
				c.Task.Data.Set(k, val)
			}
		}
		c.Task.transitionTo(e.Host.Now(), StateCompleted)
		return nil

	case model.ActExpose:
		for k, v := range act.Inputs {
			val, err := evalValue(c, v)
			if err != nil {
				return EvalErr(err)
			}
			c.Process.Data.Set(k, val)
		}
		c.Task.transitionTo(e.Host.Now(), StateCompleted)
		return nil

	case model.ActSequence, model.ActEach:
		return e.runSequence(c, act)

	case model.ActBlock, model.ActChain:
		children := act.Acts
		if len(children) == 0 {
			c.Task.transitionTo(e.Host.Now(), StateCompleted)
			return nil
		}
		first := c.Task.Node.Children[0]
		child := c.Process.CreateTask(first, c.Task.ID)
		e.Host.Schedule(c.Process.ID, child.ID)
		return nil

	case model.ActCall, model.ActSubflow:
		return e.runCall(c, act)

	case model.ActCmd:
		return e.runCmd(c, act)

	case model.ActCode:
		return e.runCode(c, act)

	default:
		return &RuntimeError{Message: fmt.Sprintf("unsupported act kind %q", act.Kind)}
	}
}

func (e *Engine) runSequence(c *Context, act *model.Act) error {
	if c.Task.SeqItems == nil {
		raw, ok := act.Inputs["in"]
		if !ok {
			c.Task.transitionTo(e.Host.Now(), StateCompleted)
			return nil
		}
		val, err := evalValue(c, raw)
		if err != nil {
			return EvalErr(err)
		}
		items, _ := val.([]any)
		c.Task.SeqItems = items
		c.Task.SeqIndex = 0
	}
	if c.Task.SeqIndex >= len(c.Task.SeqItems) || len(c.Task.Node.Children) == 0 {
		c.Task.transitionTo(e.Host.Now(), StateCompleted)
		return nil
	}
	c.Task.Data.Set("value", c.Task.SeqItems[c.Task.SeqIndex])
	c.Task.Data.Set("index", c.Task.SeqIndex)
	child := c.Process.CreateTask(c.Task.Node.Children[0], c.Task.ID)
	e.Host.Schedule(c.Process.ID, child.ID)
	return nil
}

func (e *Engine) runCall(c *Context, act *model.Act) error {
	wfID, _ := act.Inputs["workflow"].(string)
	if wfID == "" {
		return &TaskError{Ecode: "UNKNOWN_WORKFLOW", Message: "call act missing workflow input"}
	}
	inputs := make(map[string]any, len(act.Inputs))
	for k, v := range act.Inputs {
		if k == "workflow" {
			continue
		}
		val, err := evalValue(c, v)
		if err != nil {
			return EvalErr(err)
		}
		inputs[k] = val
	}
	_, err := e.Host.StartSubprocess(context.Background(), wfID, inputs, c.Process.ID, c.Task.ID)
	if err != nil {
		return &TaskError{Ecode: "UNKNOWN_WORKFLOW", Message: err.Error(), Cause: err}
	}
	c.Task.transitionTo(e.Host.Now(), StateInterrupt)
	e.emitState(c, emit.StateInterrupt)
	return nil
}

func (e *Engine) runCmd(c *Context, act *model.Act) error {
	target, _ := act.Inputs["state"].(string)
	step := c.Process.ParentTask(c.Task)
	if step != nil && target != "" {
		step.transitionTo(e.Host.Now(), State(target))
	}
	c.Task.transitionTo(e.Host.Now(), StateCompleted)
	return nil
}

func (e *Engine) runCode(c *Context, act *model.Act) error {
	if act.Key == "" {
		return &RuntimeError{Message: "code act missing key"}
	}
	fn, ok := e.Host.Package(act.Key)
	if !ok {
		return &RuntimeError{Message: fmt.Sprintf("unregistered act package %q", act.Key)}
	}
	inputs := make(map[string]any, len(act.Inputs))
	for k, v := range act.Inputs {
		val, err := evalValue(c, v)
		if err != nil {
			return EvalErr(err)
		}
		inputs[k] = val
	}
	out, err := fn(context.Background(), inputs)
	if err != nil {
		return err
	}
	for k, v := range out {
		c.Task.Data.Set(k, v)
	}
	c.Task.transitionTo(e.Host.Now(), StateCompleted)
	return nil
}

func evalValue(c *Context, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	if len(s) > 3 && s[:2] == "${" && s[len(s)-1] == '}' {
		return c.Eval(s[2 : len(s)-1])
	}
	return s, nil
}

func runHooks(c *Context, hooks []tree.HookStatement) error {
	for _, h := range hooks {
		if _, err := c.Eval(h.Expr); err != nil {
			return err
		}
	}
	return nil
}

// next(task) runs once task itself has reached a terminal state (either
// directly, or via review's aggregation of its children): it schedules
// task's continuation sibling if one exists, then lets task's parent
// re-review now that one more of its children has settled. An Error state
// never follows a continuation sibling — it only bubbles up.
func (e *Engine) next(c *Context) error {
	p, t := c.Process, c.Task

	if t.State != StateError {
		if cont := continuationOf(t.Node); cont != nil {
			child := p.CreateTask(cont, ancestorOrSelfID(p, t))
			e.Host.Schedule(p.ID, child.ID)
		}
	}

	parent := p.ParentTask(t)
	if parent == nil {
		p.State = t.State
		p.Err = t.Err
		return nil
	}
	return e.review(&Context{Host: e.Host, Process: p, Task: parent})
}

// continuationOf returns the node that follows n: an explicit Step.Next
// resolution takes priority, otherwise the declaration-order sibling.
// Branches never fall through to a sibling branch — branch selection is
// handled once, by scheduleBranches, not by chaining.
func continuationOf(n *tree.Node) *tree.Node {
	if n.Kind() == tree.KindBranch {
		return nil
	}
	if n.NextStep != nil {
		return n.NextStep
	}
	return n.Next
}

func ancestorOrSelfID(p *Process, t *Task) string {
	if parent := p.ParentTask(t); parent != nil {
		return parent.ID
	}
	return t.ID
}

func hasLiveChildren(p *Process, t *Task) bool {
	for _, other := range p.Tasks {
		if p.ParentTask(other) == t && !other.State.IsTerminal() {
			return true
		}
	}
	return false
}

func branchesScheduled(p *Process, t *Task, branches []*tree.Node) bool {
	for _, b := range branches {
		if len(p.TaskByNid(b.ID)) > 0 {
			return true
		}
	}
	return false
}

func (e *Engine) scheduleBranches(c *Context, branches []*tree.Node) error {
	p, t := c.Process, c.Task
	var anyTrue bool
	for _, b := range branches {
		branch := b.BranchNode()
		if branch.Else || len(branch.Needs) > 0 {
			continue
		}
		bc := &Context{Host: e.Host, Process: p, Task: t}
		ok := true
		if branch.If != "" {
			var err error
			ok, err = bc.EvalBool(branch.If)
			if err != nil {
				return EvalErr(err)
			}
		}
		if ok {
			anyTrue = true
			child := p.CreateTask(b, t.ID)
			e.Host.Schedule(p.ID, child.ID)
		}
	}
	if !anyTrue {
		for _, b := range branches {
			branch := b.BranchNode()
			if branch.Else || len(branch.Needs) > 0 {
				child := p.CreateTask(b, t.ID)
				e.Host.Schedule(p.ID, child.ID)
			}
		}
	}
	return nil
}

// review(task) is called whenever one of task's children may have just
// settled (including task itself, right after run()). It waits for any
// still-live child, schedules a Step's branches the first time all of its
// acts are done, and otherwise aggregates task's own state from its
// children before handing off to next(task).
func (e *Engine) review(c *Context) error {
	p, t := c.Process, c.Task

	if hasLiveChildren(p, t) {
		return nil
	}

	if t.Node.Kind() == tree.KindStep {
		branches := branchChildren(t.Node)
		if len(branches) > 0 && !branchesScheduled(p, t, branches) {
			return e.scheduleBranches(c, branches)
		}
	}

	// A sequence/each act starts its next iteration once the previous one
	// has settled without an Error.
	if act := t.Node.ActNode(); act != nil && (act.Kind == model.ActSequence || act.Kind == model.ActEach) && !t.State.IsTerminal() {
		if st, _ := aggregateState(p, t); st != StateError && t.SeqIndex+1 < len(t.SeqItems) {
			t.SeqIndex++
			t.Data.Set("value", t.SeqItems[t.SeqIndex])
			t.Data.Set("index", t.SeqIndex)
			child := p.CreateTask(t.Node.Children[0], t.ID)
			e.Host.Schedule(p.ID, child.ID)
			return nil
		}
	}

	if t.State.IsTerminal() {
		return e.next(c)
	}

	state, taskErr := aggregateState(p, t)
	now := e.Host.Now()
	t.transitionTo(now, state)
	t.Err = taskErr
	if state == StateError {
		e.emitState(c, emit.StateError)
	} else {
		e.emitState(c, emit.State(state))
	}
	return e.next(c)
}

// aggregateState derives task's own outcome from its direct children: any
// Error propagates, else Skipped only if every child was Skipped, else
// Completed. A childless task (e.g. a workflow/step with nothing declared)
// is trivially Completed.
func aggregateState(p *Process, t *Task) (State, *TaskError) {
	var anyChild, allSkipped = false, true
	var errTask *TaskError
	for _, sib := range p.Tasks {
		if p.ParentTask(sib) != t {
			continue
		}
		anyChild = true
		if sib.State != StateSkipped {
			allSkipped = false
		}
		if sib.State == StateError && errTask == nil {
			errTask = sib.Err
		}
	}
	if !anyChild {
		return StateCompleted, nil
	}
	if errTask != nil {
		return StateError, errTask
	}
	if allSkipped {
		return StateSkipped, nil
	}
	return StateCompleted, nil
}

// errorHandler implements §4.3 error(task): walk task's node and each
// ancestor's node in turn, looking for a Catch whose On matches (or is the
// "" wildcard). The first match schedules its Then steps as a new child of
// the matching owner and marks the originating task Completed; if no catch
// anywhere matches, the Error state stands and propagates via next/review
// like any other terminal state.
func (e *Engine) errorHandler(c *Context) error {
	p, t := c.Process, c.Task
	owner := t
	for owner != nil {
		if m := matchCatch(catchesFor(owner.Node), t.Err); m != nil {
			if len(m.Then) == 0 {
				t.transitionTo(e.Host.Now(), StateCompleted)
				return e.next(c)
			}
			nodes, err := tree.AttachStep(owner.Node, m.Then)
			if err == nil && len(nodes) > 0 {
				t.transitionTo(e.Host.Now(), StateCompleted)
				child := p.CreateTask(nodes[0], owner.ID)
				e.Host.Schedule(p.ID, child.ID)
				return e.review(&Context{Host: e.Host, Process: p, Task: owner})
			}
		}
		owner = p.ParentTask(owner)
	}
	return e.next(c)
}

// Advance runs next(task) against a task the caller (the action router) has
// already moved into an advance-family or otherwise-settled state.
func (e *Engine) Advance(p *Process, t *Task) error {
	return e.next(&Context{Host: e.Host, Process: p, Task: t})
}

// Review re-checks task's children, e.g. right after the router attaches a
// new Push child or marks a sibling Skipped.
func (e *Engine) Review(p *Process, t *Task) error {
	return e.review(&Context{Host: e.Host, Process: p, Task: t})
}

// RaiseError runs error(task) against a task the caller has already put
// into the Error state.
func (e *Engine) RaiseError(p *Process, t *Task) error {
	return e.errorHandler(&Context{Host: e.Host, Process: p, Task: t})
}

// EmitState emits a state-change message for t, for callers (the action
// router) that drive a transition the engine itself never runs through
// init/run/review.
func (e *Engine) EmitState(p *Process, t *Task, state emit.State) {
	e.emitState(&Context{Host: e.Host, Process: p, Task: t}, state)
}

// SetState transitions t to state using the host clock. The action router
// uses this to apply the direct state changes (Remove, Submit, Next, Skip,
// Abort, Error) described against tasks it does not otherwise drive through
// init/run/review.
func (e *Engine) SetState(p *Process, t *Task, state State) {
	t.transitionTo(e.Host.Now(), state)
}

func matchCatch(catches []model.Catch, taskErr *TaskError) *model.Catch {
	for i := range catches {
		if catches[i].On == "" || (taskErr != nil && catches[i].On == taskErr.Ecode) {
			return &catches[i]
		}
	}
	return nil
}

// Tick gives every Interrupt task in p a chance to fire an elapsed
// Timeout, per §4.6/§5: the original task remains Interrupt; only the
// Timeout.Then branch is scheduled.
func (e *Engine) Tick(p *Process) {
	now := e.Host.Now()
	for _, t := range p.Tasks {
		if t.State != StateInterrupt {
			continue
		}
		timeouts := timeoutsFor(t.Node)
		for i, to := range timeouts {
			if t.FiredTimeouts != nil && t.FiredTimeouts[i] {
				continue
			}
			if now.Sub(t.StartTime) < to.On {
				continue
			}
			if len(to.Then) == 0 {
				continue
			}
			// Attach the recovery branch to the interrupted task's owning
			// step (not the task itself): the interrupt must stay a leaf so
			// review() never aggregates it away once the recovery finishes.
			ownerNode, ownerTaskID := t.Node, t.ID
			if t.Node.Kind() == tree.KindAct {
				if parent := p.ParentTask(t); parent != nil {
					ownerNode, ownerTaskID = parent.Node, parent.ID
				}
			}
			nodes, err := tree.AttachStep(ownerNode, to.Then)
			if err != nil || len(nodes) == 0 {
				continue
			}
			if t.FiredTimeouts == nil {
				t.FiredTimeouts = make(map[int]bool)
			}
			t.FiredTimeouts[i] = true
			child := p.CreateTask(nodes[0], ownerTaskID)
			e.Host.Schedule(p.ID, child.ID)
		}
	}
}

func timeoutsFor(n *tree.Node) []model.Timeout {
	switch content := n.Content.(type) {
	case *tree.StepContent:
		return content.Step.Timeouts
	case *tree.ActContent:
		return content.Act.Timeouts
	case *tree.WorkflowContent:
		return content.Workflow.Timeouts
	}
	return nil
}

func catchesFor(n *tree.Node) []model.Catch {
	switch content := n.Content.(type) {
	case *tree.StepContent:
		return content.Step.Catches
	case *tree.ActContent:
		return content.Act.Catches
	case *tree.WorkflowContent:
		return content.Workflow.Catches
	}
	return nil
}

func (e *Engine) emitState(c *Context, state emit.State) {
	if e.Host == nil {
		return
	}
	msg := emit.Message{
		ID:    fmt.Sprintf("%s-%s", c.Task.ID, state),
		Tid:   c.Task.ID,
		Type:  nodeType(c.Task.Node),
		State: state,
		Pid:   c.Process.ID,
		Nid:   c.Task.Node.ID,
		Model: emit.ModelRef{ID: c.Process.Model.ID, Name: c.Process.Model.Name, Tag: c.Process.Model.Tag},
	}
	if act := c.Task.Node.ActNode(); act != nil {
		msg.Key = act.Key
		msg.Name = act.Name
		msg.Tag = act.Tag
		msg.Inputs = act.Inputs
		msg.Outputs = act.Outputs
	}
	msg.StartTime = c.Task.StartTime
	msg.EndTime = c.Task.EndTime
	msg.RetryTimes = c.Task.RetryTimes
	e.Host.Emit(msg)
}

func nodeType(n *tree.Node) emit.Type {
	switch n.Kind() {
	case tree.KindWorkflow:
		return emit.TypeWorkflow
	case tree.KindStep:
		return emit.TypeStep
	case tree.KindBranch:
		return emit.TypeBranch
	case tree.KindAct:
		if act := n.ActNode(); act != nil {
			switch act.Kind {
			case model.ActIRQ:
				return emit.TypeIRQ
			case model.ActMsg:
				return emit.TypeMsg
			case model.ActAction:
				return emit.TypeAction
			}
		}
	}
	return emit.TypeStep
}
