package proc

import (
	"fmt"
	"log"

	"github.com/acts-go/acts/script"
)

// Context bundles one task's execution environment and implements
// script.Binder so node expressions can resolve `$(name)`, `$env.x`,
// `stepId.field`, and `$act.*` calls against this process/task pair.
type Context struct {
	Host    Host
	Process *Process
	Task    *Task
}

var _ script.Binder = (*Context)(nil)

func (c *Context) Get(name string) (any, bool) { return c.Process.Find(c.Task, name) }

func (c *Context) Set(name string, value any) { c.Process.UpdateData(c.Task, name, value) }

func (c *Context) Env(name string) (any, bool) { return c.Process.Data.Get(name) }

func (c *Context) SetEnv(name string, value any) { c.Process.Data.Set(name, value) }

func (c *Context) Step(stepID, field string) (any, bool) {
	t := c.Process.StepTaskByID(stepID)
	if t == nil {
		return nil, false
	}
	return t.Data.Get(field)
}

func (c *Context) ActInputs() map[string]any {
	if act := c.Task.Node.ActNode(); act != nil {
		return act.Inputs
	}
	return nil
}

func (c *Context) ActData() (any, bool) { return c.Task.Data.Snapshot(), true }

func (c *Context) ActSet(key string, value any) { c.Task.Data.Set(key, value) }

func (c *Context) Console(level, msg string) {
	log.Printf("[%s] pid=%s tid=%s %s", level, c.Process.ID, c.Task.ID, msg)
}

func (c *Context) RegisterVar(name string, def any) {
	if !c.Task.Data.Has(name) {
		c.Task.Data.Set(name, def)
	}
}

// Eval runs expr against this context, returning its value.
func (c *Context) Eval(expr string) (any, error) {
	return script.NewEvaluator().Eval(expr, c)
}

// EvalBool runs expr against this context and coerces the result to bool.
// expr may be bare or wrapped in `${...}`, the same wrapper evalValue
// accepts for act inputs.
func (c *Context) EvalBool(expr string) (bool, error) {
	if len(expr) > 3 && expr[:2] == "${" && expr[len(expr)-1] == '}' {
		expr = expr[2 : len(expr)-1]
	}
	return script.NewEvaluator().EvalBool(expr, c)
}

// EvalErr turns a script-level error (ScriptError/Exception) into the
// engine's own error vocabulary.
func EvalErr(err error) error {
	if err == nil {
		return nil
	}
	if exc, ok := err.(*script.Exception); ok {
		return &BusinessError{Ecode: exc.ECode, Message: exc.Message}
	}
	if se, ok := err.(*script.Error); ok {
		return &RuntimeError{Message: fmt.Sprintf("%s: %s", se.ECode, se.Message), Cause: se}
	}
	return &RuntimeError{Message: err.Error(), Cause: err}
}
