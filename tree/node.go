// Package tree compiles a validated model.Workflow into a node graph: a
// single depth-first pass fixes parent/children/prev/next edges of the
// declared workflow. The graph is not frozen after Compile: AttachStep and
// AttachAct append catch/timeout recovery steps and pushed acts to an
// existing node's Children at run time.
package tree

import "github.com/acts-go/acts/model"

// Phase re-exports model.Phase for callers that only depend on tree.
type Phase = model.Phase

// HookStatement is a Statement bound to the node that declared it, cloned
// into a task's Hooks map at task creation time.
type HookStatement struct {
	Phase Phase
	Expr  string
}

// Kind identifies which NodeContent variant a Node wraps.
type Kind string

const (
	KindWorkflow Kind = "workflow"
	KindStep     Kind = "step"
	KindBranch   Kind = "branch"
	KindAct      Kind = "act"
)

// NodeContent is the tagged-variant payload of a Node: exactly one of
// *WorkflowContent, *StepContent, *BranchContent, *ActContent.
type NodeContent interface {
	Kind() Kind
	Hooks() []HookStatement
}

// WorkflowContent wraps the compiled workflow's own declaration.
type WorkflowContent struct {
	Workflow *model.Workflow
}

func (c *WorkflowContent) Kind() Kind { return KindWorkflow }
func (c *WorkflowContent) Hooks() []HookStatement {
	return statementsToHooks(c.Workflow.Setup, c.Workflow.On)
}

// StepContent wraps one compiled Step declaration.
type StepContent struct {
	Step *model.Step
}

func (c *StepContent) Kind() Kind { return KindStep }
func (c *StepContent) Hooks() []HookStatement {
	return statementsToHooks(c.Step.Setup, nil)
}

// BranchContent wraps one compiled Branch declaration.
type BranchContent struct {
	Branch *model.Branch
}

func (c *BranchContent) Kind() Kind              { return KindBranch }
func (c *BranchContent) Hooks() []HookStatement  { return nil }

// ActContent wraps one compiled Act declaration.
type ActContent struct {
	Act *model.Act
}

func (c *ActContent) Kind() Kind { return KindAct }
func (c *ActContent) Hooks() []HookStatement {
	return statementsToHooks(c.Act.Setup, nil)
}

func statementsToHooks(setup []model.Statement, on []model.Statement) []HookStatement {
	out := make([]HookStatement, 0, len(setup)+len(on))
	for _, s := range setup {
		phase := s.Phase
		if phase == "" {
			phase = model.PhaseCreated
		}
		out = append(out, HookStatement{Phase: phase, Expr: s.Expr})
	}
	for _, s := range on {
		out = append(out, HookStatement{Phase: s.Phase, Expr: s.Expr})
	}
	return out
}

// Node is one element of the compiled graph. Parent/Children
// link across levels; Prev/Next link siblings at the same level only.
type Node struct {
	ID       string
	Content  NodeContent
	Level    int
	Parent   *Node
	Children []*Node
	Prev     *Node
	Next     *Node

	// NextID is the unresolved model.Step.Next target, resolved to NextStep
	// at finalize time.
	NextID   string
	NextStep *Node
}

// Kind is a convenience accessor over Content.Kind().
func (n *Node) Kind() Kind { return n.Content.Kind() }

// Root walks Parent pointers to the workflow root.
func (n *Node) Root() *Node {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// StepNode returns the *model.Step wrapped by this node, or nil.
func (n *Node) StepNode() *model.Step {
	if sc, ok := n.Content.(*StepContent); ok {
		return sc.Step
	}
	return nil
}

// BranchNode returns the *model.Branch wrapped by this node, or nil.
func (n *Node) BranchNode() *model.Branch {
	if bc, ok := n.Content.(*BranchContent); ok {
		return bc.Branch
	}
	return nil
}

// ActNode returns the *model.Act wrapped by this node, or nil.
func (n *Node) ActNode() *model.Act {
	if ac, ok := n.Content.(*ActContent); ok {
		return ac.Act
	}
	return nil
}
