// Package model defines the parsed, validated workflow definition: a
// Workflow is an ordered sequence of Steps, each of which may carry
// Branches, Acts, setup statements, Catches, Timeouts, and on-event hooks.
//
// Model types are pure data; compiling them into a runnable graph is the
// job of package tree.
package model

import (
	"fmt"
	"time"
)

// ActKind enumerates the act variants a Step or another Act may declare.
type ActKind string

const (
	ActIRQ      ActKind = "irq"      // interrupt / human task
	ActMsg      ActKind = "msg"      // fire-and-forget notification
	ActSet      ActKind = "set"      // mutate data
	ActExpose   ActKind = "expose"   // publish to parent/outputs
	ActAction   ActKind = "action"   // issue a command
	ActSequence ActKind = "sequence" // iterate a value list
	ActBlock    ActKind = "block"    // grouped acts
	ActCall     ActKind = "call"     // launch a child workflow
	ActSubflow  ActKind = "subflow"  // alias of call
	ActCmd      ActKind = "cmd"      // inline state transition
	ActEach     ActKind = "each"
	ActChain    ActKind = "chain"
	ActCode     ActKind = "code" // user package
)

// Phase names the lifecycle moment a hook statement is attached to.
type Phase string

const (
	PhaseCreated      Phase = "created"
	PhaseCompleted    Phase = "completed"
	PhaseStep         Phase = "step"
	PhaseBeforeUpdate Phase = "before_update"
	PhaseUpdated      Phase = "updated"
	PhaseErrorCatch   Phase = "error_catch"
	PhaseTimeout      Phase = "timeout"
)

// Statement is a single setup/hook expression bound to a Phase, e.g.
// `$(count, $(count)+1)`. The expression grammar is owned by package script.
type Statement struct {
	Phase Phase  `json:"phase,omitempty"`
	Expr  string `json:"expr"`
}

// Catch is a recovery branch selected by matching Task.err.ecode against On.
// An empty On matches any error.
type Catch struct {
	On   string `json:"on,omitempty"`
	Then []Step `json:"then"`
}

// Timeout schedules Then after On has elapsed without the owning task
// reaching a terminal state.
type Timeout struct {
	On   time.Duration `json:"on"`
	Then []Step        `json:"then"`
}

// Act is a tagged variant: exactly one ActKind but a single shared field set.
// Kind-specific data lives in the shared Inputs map (e.g. ActSequence reads
// "in" from Inputs for the iterated array).
type Act struct {
	ID      string         `json:"id"`
	Kind    ActKind        `json:"kind"`
	Name    string         `json:"name,omitempty"`
	Key     string         `json:"key,omitempty"`
	Tag     string         `json:"tag,omitempty"`
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Rets    []string       `json:"rets,omitempty"`
	On      Phase          `json:"on,omitempty"`
	Setup   []Statement    `json:"setup,omitempty"`
	Catches []Catch        `json:"catches,omitempty"`
	Timeouts []Timeout     `json:"timeouts,omitempty"`
	Acts    []Act          `json:"acts,omitempty"` // nested acts for block/sequence
}

// Branch is a conditional fork under a Step.
type Branch struct {
	ID      string         `json:"id"`
	Needs   []string       `json:"needs,omitempty"`
	Else    bool           `json:"else,omitempty"`
	If      string         `json:"if,omitempty"`
	Steps   []Step         `json:"steps,omitempty"`
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
}

// Step is a node in a Workflow's declared sequence. At most one of
// {Branches, Next} semantically drives continuation.
type Step struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Tag      string         `json:"tag,omitempty"`
	Inputs   map[string]any `json:"inputs,omitempty"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	Acts     []Act          `json:"acts,omitempty"`
	Branches []Branch       `json:"branches,omitempty"`
	Setup    []Statement    `json:"setup,omitempty"`
	Catches  []Catch        `json:"catches,omitempty"`
	Timeouts []Timeout      `json:"timeouts,omitempty"`
	Next     string         `json:"next,omitempty"`
	If       string         `json:"if,omitempty"`
	Run      string         `json:"run,omitempty"`
}

// Workflow is the top-level parsed and validated definition.
type Workflow struct {
	ID      string         `json:"id"`
	Name    string         `json:"name,omitempty"`
	Tag     string         `json:"tag,omitempty"`
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Envs    map[string]any `json:"envs,omitempty"`
	Steps   []Step         `json:"steps"`
	On      []Statement    `json:"on,omitempty"`
	Catches []Catch        `json:"catches,omitempty"`
	Timeouts []Timeout     `json:"timeouts,omitempty"`
	Setup   []Statement    `json:"setup,omitempty"`
}

// ErrorCode enumerates ModelError machine-readable codes.
type ErrorCode string

const (
	ErrDuplicateStepID ErrorCode = "DUPLICATE_STEP_ID"
	ErrUnknownNext     ErrorCode = "UNKNOWN_NEXT"
	ErrEmptyWorkflow   ErrorCode = "EMPTY_WORKFLOW"
	ErrMissingActKey   ErrorCode = "MISSING_ACT_KEY"
)

// ModelError reports an invalid workflow definition found during Validate
// or during tree compilation, grounded on the teacher's *NodeError shape
// (Message/Code/NodeID/Cause).
type ModelError struct {
	Message string
	Code    ErrorCode
	NodeID  string
	Cause   error
}

func (e *ModelError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("model: %s (%s): %s", e.NodeID, e.Code, e.Message)
	}
	return fmt.Sprintf("model (%s): %s", e.Code, e.Message)
}

func (e *ModelError) Unwrap() error { return e.Cause }

// Validate checks structural invariants: unique step ids within the
// workflow (recursively, across nested branch steps too), acts requiring a
// Key have one, and Next targets a declared sibling-or-descendant step id.
func (w *Workflow) Validate() error {
	if len(w.Steps) == 0 {
		return &ModelError{Message: "workflow has no steps", Code: ErrEmptyWorkflow, NodeID: w.ID}
	}
	ids := make(map[string]bool)
	var walkSteps func(steps []Step) error
	var walkAct func(a Act) error
	walkAct = func(a Act) error {
		if needsKey(a.Kind) && a.Key == "" {
			return &ModelError{Message: "act requires key", Code: ErrMissingActKey, NodeID: a.ID}
		}
		for _, child := range a.Acts {
			if err := walkAct(child); err != nil {
				return err
			}
		}
		return nil
	}
	walkSteps = func(steps []Step) error {
		for _, s := range steps {
			if ids[s.ID] {
				return &ModelError{Message: "duplicate step id", Code: ErrDuplicateStepID, NodeID: s.ID}
			}
			ids[s.ID] = true
			for _, a := range s.Acts {
				if err := walkAct(a); err != nil {
					return err
				}
			}
			for _, b := range s.Branches {
				if err := walkSteps(b.Steps); err != nil {
					return err
				}
			}
			for _, c := range s.Catches {
				if err := walkSteps(c.Then); err != nil {
					return err
				}
			}
			for _, to := range s.Timeouts {
				if err := walkSteps(to.Then); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walkSteps(w.Steps); err != nil {
		return err
	}
	for _, s := range w.Steps {
		if s.Next != "" && !ids[s.Next] {
			return &ModelError{Message: "next references unknown step", Code: ErrUnknownNext, NodeID: s.ID}
		}
	}
	return nil
}

func needsKey(kind ActKind) bool {
	switch kind {
	case ActIRQ, ActMsg, ActCall, ActSubflow, ActCmd, ActCode:
		return true
	default:
		return false
	}
}

// StepByID returns the first Step matching id within steps, recursing into
// branch-nested steps.
func StepByID(steps []Step, id string) (*Step, bool) {
	for i := range steps {
		if steps[i].ID == id {
			return &steps[i], true
		}
		for _, b := range steps[i].Branches {
			if s, ok := StepByID(b.Steps, id); ok {
				return s, true
			}
		}
	}
	return nil, false
}
