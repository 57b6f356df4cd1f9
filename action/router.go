package action

import (
	"context"

	"github.com/google/uuid"

	"github.com/acts-go/acts/emit"
	"github.com/acts-go/acts/model"
	"github.com/acts-go/acts/proc"
	"github.com/acts-go/acts/store"
	"github.com/acts-go/acts/tree"
)

// Router dispatches external Actions against a running Engine, grounded on
// graph/engine.go's result.Route dispatch (Terminal/Many/To) generalized
// from a routing decision returned by node logic to an event submitted by a
// caller outside the engine. All operations on one Process are serialized
// by the Process's own lock, per the concurrency model.
type Router struct {
	Engine *proc.Engine
	Store  *store.Store
}

// NewRouter returns a Router driving engine, persisting postconditions to
// st. st may be nil, in which case the message-completed postcondition is a
// no-op.
func NewRouter(engine *proc.Engine, st *store.Store) *Router {
	return &Router{Engine: engine, Store: st}
}

// Dispatch applies a to the task it names within p, enforcing the
// precondition for a.Event and then running the effect described for it.
// For every event but Push, the router also marks the originating external
// message (if any) Completed in the store.
func (r *Router) Dispatch(ctx context.Context, p *proc.Process, a Action) error {
	if a.Pid != "" && a.Pid != p.ID {
		return actionErrorf("action pid %q does not match process %q", a.Pid, p.ID)
	}

	p.Lock()
	defer p.Unlock()

	t, ok := p.Tasks[a.Tid]
	if !ok {
		return actionErrorf("unknown task %q", a.Tid)
	}

	var err error
	switch a.Event {
	case Push:
		err = r.push(p, t, a)
	case Remove:
		err = r.remove(p, t)
	case Submit:
		err = r.submit(p, t, a)
	case Next:
		err = r.next(p, t, a)
	case Back:
		err = r.back(p, t, a)
	case Cancel:
		err = r.cancel(p, t)
	case Abort:
		err = r.abort(p, t)
	case Skip:
		err = r.skip(p, t)
	case Error:
		err = r.errorEvent(p, t, a)
	case SetVars:
		err = r.setVars(t, a)
	case SetProcessVars:
		err = r.setProcessVars(p, t, a)
	default:
		err = actionErrorf("unsupported event %q", a.Event)
	}
	if err != nil {
		return err
	}
	if a.Event != Push {
		r.markMessageCompleted(ctx, a.Tid)
	}
	return nil
}

// push constructs a new child Act from a.Options against a container task
// (a step or another act), attaches it to the compiled tree on demand via
// tree.AttachAct, and schedules it — mirroring the eager-schedule-first-
// child pattern runStep/runWorkflow already use for statically compiled
// children.
func (r *Router) push(p *proc.Process, t *proc.Task, a Action) error {
	if t.Node.Kind() != tree.KindStep && t.Node.Kind() != tree.KindAct {
		return actionErrorf("push target %q is not a container", t.ID)
	}

	kindRaw, _ := a.Options["kind"].(string)
	if kindRaw == "" {
		kindRaw, _ = a.Options["act"].(string)
	}
	kind := model.ActKind(kindRaw)
	if kind == "" {
		return actionErrorf("push requires options.kind")
	}

	key, _ := a.Options["key"].(string)
	switch kind {
	case model.ActIRQ, model.ActMsg, model.ActCall, model.ActSubflow, model.ActCmd, model.ActCode:
		if key == "" {
			return actionErrorf("push requires options.key for kind %q", kind)
		}
	}

	id, _ := a.Options["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	act := &model.Act{ID: id, Kind: kind, Key: key}
	if name, ok := a.Options["name"].(string); ok {
		act.Name = name
	}
	if tag, ok := a.Options["tag"].(string); ok {
		act.Tag = tag
	}
	if with, ok := a.Options["with"].(map[string]any); ok {
		act.Inputs = with
	}
	if outputs, ok := a.Options["outputs"].(map[string]any); ok {
		act.Outputs = outputs
	}
	if rets, ok := a.Options["rets"].([]string); ok {
		act.Rets = rets
	}

	node := tree.AttachAct(t.Node, act)
	child := p.CreateTask(node, t.ID)
	r.Engine.Host.Schedule(p.ID, child.ID)
	return nil
}

func (r *Router) remove(p *proc.Process, t *proc.Task) error {
	if t.State != proc.StateInterrupt {
		return actionErrorf("remove target %q is not Interrupt", t.ID)
	}
	r.Engine.SetState(p, t, proc.StateRemoved)
	r.Engine.EmitState(p, t, emit.StateRemoved)
	return r.Engine.Advance(p, t)
}

func (r *Router) submit(p *proc.Process, t *proc.Task, a Action) error {
	if t.State != proc.StateInterrupt {
		return actionErrorf("submit target %q is not Interrupt", t.ID)
	}
	t.Data.Merge(a.Options)
	r.Engine.SetState(p, t, proc.StateSubmitted)
	r.Engine.EmitState(p, t, emit.StateSubmitted)
	return r.Engine.Advance(p, t)
}

// next completes an Interrupt or a leaf Running task: a leaf is one with no
// compiled children (a plain act, or a container that never attached any).
func (r *Router) next(p *proc.Process, t *proc.Task, a Action) error {
	leaf := len(t.Node.Children) == 0
	if t.State != proc.StateInterrupt && !(t.State == proc.StateRunning && leaf) {
		return actionErrorf("next target %q is not Interrupt or a running leaf", t.ID)
	}
	if act := t.Node.ActNode(); act != nil {
		for _, key := range act.Rets {
			if _, ok := a.Options[key]; !ok {
				return actionErrorf("next missing required ret %q", key)
			}
		}
	}
	t.Data.Merge(a.Options)
	r.Engine.SetState(p, t, proc.StateCompleted)
	r.Engine.EmitState(p, t, emit.StateCompleted)
	return r.Engine.Advance(p, t)
}

// back rewinds an Interrupt task to an earlier step: every task created
// since that step's last instance is settled (Running -> Completed, Pending
// -> Skipped) and a fresh task instantiating the target step is chained off
// the Interrupt task as its predecessor.
func (r *Router) back(p *proc.Process, t *proc.Task, a Action) error {
	if t.State != proc.StateInterrupt {
		return actionErrorf("back target %q is not Interrupt", t.ID)
	}
	to, _ := a.Options["to"].(string)
	if to == "" {
		return actionErrorf("back requires options.to")
	}
	targetNode := tree.FindStep(p.Root, to)
	if targetNode == nil {
		return actionErrorf("back target step %q not found", to)
	}

	var since int
	if anchor := p.StepTaskByID(to); anchor != nil {
		since = anchor.Seq
	}

	r.Engine.SetState(p, t, proc.StateBacked)
	r.Engine.EmitState(p, t, emit.StateBacked)

	for _, other := range p.Tasks {
		if other.Seq <= since || other.State.IsTerminal() {
			continue
		}
		switch other.State {
		case proc.StateRunning:
			r.Engine.SetState(p, other, proc.StateCompleted)
			r.Engine.EmitState(p, other, emit.StateCompleted)
		case proc.StatePending:
			r.Engine.SetState(p, other, proc.StateSkipped)
			r.Engine.EmitState(p, other, emit.StateSkipped)
		}
	}

	child := p.CreateTask(targetNode, t.ID)
	r.Engine.Host.Schedule(p.ID, child.ID)
	return nil
}

// cancel redoes every following step that declares acts, once the nearest
// ancestor step has settled Completed: each such step gets a fresh task
// created directly in state Cancelled, standing in for "redo the ancestor
// step's continuation, but cancelled" (see DESIGN.md's Open Question
// decision on this event's wording).
func (r *Router) cancel(p *proc.Process, t *proc.Task) error {
	parent := p.ParentTask(t)
	for parent != nil && parent.Node.Kind() != tree.KindStep {
		parent = p.ParentTask(parent)
	}
	if parent == nil {
		return actionErrorf("cancel target %q has no ancestor step", t.ID)
	}
	if parent.State != proc.StateCompleted {
		return actionErrorf("cancel requires ancestor step %q to be Completed", parent.ID)
	}

	found := false
	for cur := followingNode(parent.Node); cur != nil; cur = followingNode(cur) {
		if cur.Kind() != tree.KindStep || len(actNodesOf(cur)) == 0 {
			continue
		}
		found = true
		nt := p.CreateTask(cur, parent.ID)
		r.Engine.SetState(p, nt, proc.StateCancelled)
		r.Engine.EmitState(p, nt, emit.StateCancelled)
	}
	if !found {
		return actionErrorf("cancel found no following step with acts after %q", parent.ID)
	}
	return nil
}

// abort marks t and its entire ancestor chain Aborted directly, bypassing
// next/review: an aborted task must never schedule a continuation sibling,
// unlike every other terminal state next() knows about.
func (r *Router) abort(p *proc.Process, t *proc.Task) error {
	if t.State.IsTerminal() {
		return actionErrorf("abort target %q is already terminal", t.ID)
	}
	r.Engine.SetState(p, t, proc.StateAborted)
	r.Engine.EmitState(p, t, emit.StateAborted)
	for cur := p.ParentTask(t); cur != nil; cur = p.ParentTask(cur) {
		if cur.State.IsTerminal() {
			break
		}
		r.Engine.SetState(p, cur, proc.StateAborted)
		r.Engine.EmitState(p, cur, emit.StateAborted)
	}
	p.State = proc.StateAborted
	return nil
}

func (r *Router) skip(p *proc.Process, t *proc.Task) error {
	if t.State.IsTerminal() {
		return actionErrorf("skip target %q is already terminal", t.ID)
	}
	if parent := p.ParentTask(t); parent != nil {
		for _, sib := range p.Tasks {
			if sib.ID == t.ID || p.ParentTask(sib) != parent || sib.State.IsTerminal() {
				continue
			}
			r.Engine.SetState(p, sib, proc.StateSkipped)
			r.Engine.EmitState(p, sib, emit.StateSkipped)
		}
	}
	r.Engine.SetState(p, t, proc.StateSkipped)
	r.Engine.EmitState(p, t, emit.StateSkipped)
	return r.Engine.Advance(p, t)
}

func (r *Router) errorEvent(p *proc.Process, t *proc.Task, a Action) error {
	if t.State.IsTerminal() {
		return actionErrorf("error target %q is already terminal", t.ID)
	}
	ecode, _ := a.Options["ecode"].(string)
	if ecode == "" {
		ecode, _ = a.Options["error"].(string)
	}
	if ecode == "" {
		return actionErrorf("error requires options.ecode")
	}
	msg, _ := a.Options["message"].(string)
	t.Err = &proc.TaskError{Ecode: ecode, Message: msg}

	if parent := p.ParentTask(t); parent != nil {
		for _, sib := range p.Tasks {
			if sib.ID == t.ID || p.ParentTask(sib) != parent || sib.State.IsTerminal() {
				continue
			}
			r.Engine.SetState(p, sib, proc.StateSkipped)
			r.Engine.EmitState(p, sib, emit.StateSkipped)
		}
	}

	r.Engine.SetState(p, t, proc.StateError)
	r.Engine.EmitState(p, t, emit.StateError)
	return r.Engine.RaiseError(p, t)
}

func (r *Router) setVars(t *proc.Task, a Action) error {
	if t.State.IsTerminal() {
		return actionErrorf("setvars target %q is already terminal", t.ID)
	}
	t.Data.Merge(a.Options)
	return nil
}

func (r *Router) setProcessVars(p *proc.Process, t *proc.Task, a Action) error {
	if t.State.IsTerminal() {
		return actionErrorf("setprocessvars target %q is already terminal", t.ID)
	}
	p.Data.Merge(a.Options)
	return nil
}

// markMessageCompleted marks every non-terminal message record logged
// against tid Completed, once the router has applied an event's effect. A
// nil Store (or Messages collection) is a no-op, for callers driving the
// engine without a persistence layer wired in yet.
func (r *Router) markMessageCompleted(ctx context.Context, tid string) {
	if r.Store == nil || r.Store.Messages == nil {
		return
	}
	recs, err := r.Store.Messages.Query(ctx, store.NewQuery().Where(store.And(store.Eq("tid", tid))))
	if err != nil {
		return
	}
	for _, rec := range recs {
		if rec.State == string(emit.StateCompleted) {
			continue
		}
		rec.State = string(emit.StateCompleted)
		_ = r.Store.Messages.Update(ctx, rec)
	}
}

// followingNode mirrors proc's unexported continuationOf: an explicit
// Step.Next resolution takes priority over the declaration-order sibling,
// and a Branch never chains to a sibling branch.
func followingNode(n *tree.Node) *tree.Node {
	if n.Kind() == tree.KindBranch {
		return nil
	}
	if n.NextStep != nil {
		return n.NextStep
	}
	return n.Next
}

func actNodesOf(n *tree.Node) []*tree.Node {
	var out []*tree.Node
	for _, c := range n.Children {
		if c.Kind() == tree.KindAct {
			out = append(out, c)
		}
	}
	return out
}
