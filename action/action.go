// Package action implements the external action vocabulary of §4.5: the
// wire-shaped Action a caller submits against a running task, and the
// ActionError returned when a precondition is violated.
package action

import "fmt"

// Event enumerates the events an Action may carry.
type Event string

const (
	Push           Event = "Push"
	Remove         Event = "Remove"
	Submit         Event = "Submit"
	Next           Event = "Next"
	Back           Event = "Back"
	Cancel         Event = "Cancel"
	Abort          Event = "Abort"
	Skip           Event = "Skip"
	Error          Event = "Error"
	SetVars        Event = "SetVars"
	SetProcessVars Event = "SetProcessVars"
)

// Action is the wire shape an external caller submits to the router.
// Reserved option keys: "to" (Back target step id), "ecode"/"error"
// (Error), "act"/"key"/"id"/"name"/"tag"/"with"/"rets"/"outputs" (Push).
type Action struct {
	Pid     string
	Tid     string
	Event   Event
	Options map[string]any
}

// ActionError reports a precondition violated by an Action: unknown pid/
// tid, a terminal-state task, a missing required option, or an unsupported
// event.
type ActionError struct {
	Message string
}

func (e *ActionError) Error() string { return e.Message }

func actionErrorf(format string, args ...any) *ActionError {
	return &ActionError{Message: fmt.Sprintf(format, args...)}
}
