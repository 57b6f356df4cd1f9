package tree

import (
	"fmt"

	"github.com/acts-go/acts/model"
)

// idGen hands out deterministic, collision-free node ids: "<prefix>#<n>",
// mirroring the teacher's Engine node-id-as-map-key convention
// (graph/engine.go Add) while allowing multiple nodes per declared id
// (branches/acts can repeat an id across nesting levels).
type idGen struct {
	n int
}

func (g *idGen) next(prefix string) string {
	g.n++
	return fmt.Sprintf("%s#%d", prefix, g.n)
}

// Compile builds the node graph for w. Compile performs the
// single depth-first pass described in the NodeTree algorithm: Steps become
// level+1 children of the Workflow node linked by declaration-order
// Prev/Next; each Step's Branches become level+2 children linked the same
// way, recursing into nested branch steps; Step.Next targets are resolved
// against the already-built id→node table once the whole tree exists,
// mirroring the teacher's evaluateEdges two-phase (build, then resolve)
// structure (graph/engine.go Add/Connect/evaluateEdges).
func Compile(w *model.Workflow) (*Node, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	gen := &idGen{}
	root := &Node{ID: gen.next("wf"), Content: &WorkflowContent{Workflow: w}, Level: 0}

	byStepID := make(map[string]*Node)

	var compileSteps func(steps []model.Step, parent *Node) []*Node
	var compileAct func(a *model.Act, parent *Node) *Node

	compileAct = func(a *model.Act, parent *Node) *Node {
		n := &Node{ID: gen.next("act"), Content: &ActContent{Act: a}, Level: parent.Level + 1, Parent: parent}
		var prev *Node
		for i := range a.Acts {
			child := compileAct(&a.Acts[i], n)
			if prev != nil {
				prev.Next = child
				child.Prev = prev
			}
			n.Children = append(n.Children, child)
			prev = child
		}
		return n
	}

	compileSteps = func(steps []model.Step, parent *Node) []*Node {
		nodes := make([]*Node, 0, len(steps))
		var prev *Node
		for i := range steps {
			s := &steps[i]
			n := &Node{ID: gen.next("step"), Content: &StepContent{Step: s}, Level: parent.Level + 1, Parent: parent, NextID: s.Next}
			byStepID[s.ID] = n
			if prev != nil {
				prev.Next = n
				n.Prev = prev
			}
			var prevAct *Node
			for j := range s.Acts {
				an := compileAct(&s.Acts[j], n)
				if prevAct != nil {
					prevAct.Next = an
					an.Prev = prevAct
				}
				n.Children = append(n.Children, an)
				prevAct = an
			}
			var prevBranch *Node
			for j := range s.Branches {
				b := &s.Branches[j]
				bn := &Node{ID: gen.next("branch"), Content: &BranchContent{Branch: b}, Level: n.Level + 1, Parent: n}
				if prevBranch != nil {
					prevBranch.Next = bn
					bn.Prev = prevBranch
				}
				bn.Children = append(bn.Children, compileSteps(b.Steps, bn)...)
				n.Children = append(n.Children, bn)
				prevBranch = bn
			}
			nodes = append(nodes, n)
			prev = n
		}
		return nodes
	}

	root.Children = compileSteps(w.Steps, root)

	// Resolve Next targets now that every step id is known.
	var resolve func(n *Node) error
	resolve = func(n *Node) error {
		if n.NextID != "" {
			target, ok := byStepID[n.NextID]
			if !ok {
				return &model.ModelError{Message: "next references unknown step", Code: model.ErrUnknownNext, NodeID: n.ID}
			}
			n.NextStep = target
		}
		for _, c := range n.Children {
			if err := resolve(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := resolve(root); err != nil {
		return nil, err
	}

	return root, nil
}

// dynGen hands out ids for nodes compiled after the initial Compile pass
// (catch/timeout recovery branches), numbered from a package-level counter
// so they never collide with the owning tree's "step#n"/"act#n" ids.
var dynGen = &idGen{n: 1 << 30}

// AttachStep compiles steps (a Catch.Then or Timeout.Then list) as new
// children of parent, in declaration order, resolving Next targets only
// within this list. Used by the execution engine to materialize recovery
// branches on demand, since catch/timeout bodies are not part of the
// static tree built by Compile.
func AttachStep(parent *Node, steps []model.Step) ([]*Node, error) {
	byID := make(map[string]*Node)
	var nodes []*Node
	var prev *Node
	for i := range steps {
		s := &steps[i]
		n := &Node{ID: dynGen.next("recovery"), Content: &StepContent{Step: s}, Level: parent.Level + 1, Parent: parent, NextID: s.Next}
		byID[s.ID] = n
		if prev != nil {
			prev.Next = n
			n.Prev = prev
		}
		var prevAct *Node
		for j := range s.Acts {
			an := attachAct(&s.Acts[j], n)
			if prevAct != nil {
				prevAct.Next = an
				an.Prev = prevAct
			}
			n.Children = append(n.Children, an)
			prevAct = an
		}
		nodes = append(nodes, n)
		prev = n
	}
	for _, n := range nodes {
		if n.NextID != "" {
			target, ok := byID[n.NextID]
			if !ok {
				return nil, &model.ModelError{Message: "next references unknown step", Code: model.ErrUnknownNext, NodeID: n.ID}
			}
			n.NextStep = target
		}
	}
	parent.Children = append(parent.Children, nodes...)
	return nodes, nil
}

// AttachAct compiles a single act as a new child of parent, in the same
// dynamic id space as AttachStep. Used by the action router's Push event to
// construct an ad hoc Act task against a running container task.
func AttachAct(parent *Node, a *model.Act) *Node {
	n := attachAct(a, parent)
	parent.Children = append(parent.Children, n)
	return n
}

func attachAct(a *model.Act, parent *Node) *Node {
	n := &Node{ID: dynGen.next("recovery-act"), Content: &ActContent{Act: a}, Level: parent.Level + 1, Parent: parent}
	var prev *Node
	for i := range a.Acts {
		child := attachAct(&a.Acts[i], n)
		if prev != nil {
			prev.Next = child
			child.Prev = prev
		}
		n.Children = append(n.Children, child)
		prev = child
	}
	return n
}

// FindNode returns the compiled node with the given id anywhere under root
// (workflow, step, branch, or act), or nil. Used by cache rehydration to
// resolve a persisted TaskRecord.Nid back to its node; a dynamically
// attached catch/timeout/push node is not part of a freshly compiled tree,
// so its id is not found there.
func FindNode(root *Node, id string) *Node {
	if root.ID == id {
		return root
	}
	var found *Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if found != nil {
			return
		}
		if n.ID == id {
			found = n
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return found
}

// FindStep returns the compiled Node for step id s, or nil.
func FindStep(root *Node, id string) *Node {
	var found *Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if found != nil {
			return
		}
		if sn := n.StepNode(); sn != nil && sn.ID == id {
			found = n
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	return found
}
