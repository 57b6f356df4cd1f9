// Package script implements the scripting host contract used by workflow
// expressions: `$(name)` / `$(name, value)` nearest-scope get/set,
// `$env.name` process-level get/set, `$act.*` on the current act task,
// `stepId.field` sibling-step reads, the `union`/`intersection`/
// `difference` array helpers, `console.*` side effects, named plugin
// defaults via `register_var`, and `throw new Error(msg)` surfacing as an
// Exception. It is deliberately a small, fixed grammar rather than a
// general-purpose sandboxed language.
package script

import "fmt"

// Binder supplies the live bindings an expression needs during Eval.
// proc.Context implements it over its process's and task's data and its
// sibling-step lookup.
type Binder interface {
	Get(name string) (any, bool)
	Set(name string, value any)
	Env(name string) (any, bool)
	SetEnv(name string, value any)
	Step(stepID, field string) (any, bool)
	ActInputs() map[string]any
	ActData() (any, bool)
	ActSet(key string, value any)
	Console(level, msg string)
	RegisterVar(name string, def any)
}

// Error is a ScriptError: an expression evaluation failure unrelated to a
// user-raised Exception (syntax error, unknown call, type mismatch).
type Error struct {
	ECode   string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("script error (%s): %s", e.ECode, e.Message) }

// Exception is what `throw new Error(msg)` raises; the task-level error
// handler treats it as a BusinessError subject to catches.
type Exception struct {
	ECode   string
	Message string
}

func (e *Exception) Error() string { return fmt.Sprintf("%s: %s", e.ECode, e.Message) }

// Evaluator parses and evaluates expressions against a Binder. Evaluator
// holds no state of its own (stateless at rest per the scripting-host
// lifetime design); all live bindings come from the Binder passed to Eval.
type Evaluator struct{}

// NewEvaluator returns a ready-to-use Evaluator.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Eval parses and evaluates expr against b, returning its value.
func (e *Evaluator) Eval(expr string, b Binder) (any, error) {
	ast, err := parseProgram(expr)
	if err != nil {
		return nil, &Error{ECode: "syntax", Message: err.Error()}
	}
	return ast.eval(b)
}

// EvalBool evaluates expr and coerces the result with the same truthiness
// rule `if`/`needs` guards use.
func (e *Evaluator) EvalBool(expr string, b Binder) (bool, error) {
	v, err := e.Eval(expr, b)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

// ApplyStatement evaluates expr purely for its side effects (a `$(name,
// value)` set, a `$env(...)` set, a `console.*` call, or an `$act.set`
// call), discarding the value.
func (e *Evaluator) ApplyStatement(expr string, b Binder) error {
	_, err := e.Eval(expr, b)
	return err
}

// Throw constructs an Exception the way a `code` act package raises a
// BusinessError, grounded on the contract's `throw new Error(msg)` form.
func Throw(ecode, message string) error {
	return &Exception{ECode: ecode, Message: message}
}
