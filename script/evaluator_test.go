package script

import (
	"sort"
	"testing"
)

type testBinder struct {
	vars     map[string]any
	env      map[string]any
	steps    map[string]map[string]any
	actIn    map[string]any
	actD     any
	consoles []string
	regs     map[string]any
}

func newTestBinder() *testBinder {
	return &testBinder{vars: map[string]any{}, env: map[string]any{}, steps: map[string]map[string]any{}, regs: map[string]any{}}
}

func (b *testBinder) Get(name string) (any, bool)    { v, ok := b.vars[name]; return v, ok }
func (b *testBinder) Set(name string, value any)     { b.vars[name] = value }
func (b *testBinder) Env(name string) (any, bool)    { v, ok := b.env[name]; return v, ok }
func (b *testBinder) SetEnv(name string, value any)  { b.env[name] = value }
func (b *testBinder) Step(step, field string) (any, bool) {
	m, ok := b.steps[step]
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}
func (b *testBinder) ActInputs() map[string]any   { return b.actIn }
func (b *testBinder) ActData() (any, bool)        { return b.actD, b.actD != nil }
func (b *testBinder) ActSet(key string, value any) { b.vars[key] = value }
func (b *testBinder) Console(level, msg string)   { b.consoles = append(b.consoles, level+":"+msg) }
func (b *testBinder) RegisterVar(name string, def any) { b.regs[name] = def }

func TestGetSetVar(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	b.vars["a"] = int64(10)
	v, err := e.Eval("$(a)", b)
	if err != nil || v != int64(10) {
		t.Fatalf("Eval($(a)) = %v, %v", v, err)
	}
	if _, err := e.Eval("$(a, 20)", b); err != nil {
		t.Fatalf("set: %v", err)
	}
	if b.vars["a"] != int64(20) {
		t.Fatalf("a = %v, want 20", b.vars["a"])
	}
}

func TestComparison(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	b.vars["a"] = int64(10)
	ok, err := e.EvalBool("$(a)>0", b)
	if err != nil || !ok {
		t.Fatalf("EvalBool($(a)>0) = %v, %v", ok, err)
	}
	ok, err = e.EvalBool("$(a)<=0", b)
	if err != nil || ok {
		t.Fatalf("EvalBool($(a)<=0) = %v, %v", ok, err)
	}
}

func TestEnvGetSet(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	if _, err := e.Eval(`$env("x", 5)`, b); err != nil {
		t.Fatalf("set env: %v", err)
	}
	if b.env["x"] != int64(5) {
		t.Fatalf("env.x = %v, want 5", b.env["x"])
	}
	v, err := e.Eval("$env.x", b)
	if err != nil || v != int64(5) {
		t.Fatalf("Eval($env.x) = %v, %v", v, err)
	}
}

func TestStepField(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	b.steps["s1"] = map[string]any{"result": "ok"}
	v, err := e.Eval("s1.result", b)
	if err != nil || v != "ok" {
		t.Fatalf("Eval(s1.result) = %v, %v", v, err)
	}
}

func TestArrayHelpers(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	b.vars["x"] = []any{"a", "b"}
	b.vars["y"] = []any{"b", "c"}
	v, err := e.Eval("union($(x), $(y))", b)
	if err != nil {
		t.Fatalf("union: %v", err)
	}
	got := toStrings(v.([]any))
	sort.Strings(got)
	want := []string{"a", "b", "c"}
	if !equalStrs(got, want) {
		t.Fatalf("union = %v, want %v", got, want)
	}

	v, err = e.Eval("intersection($(x), $(y))", b)
	if err != nil {
		t.Fatalf("intersection: %v", err)
	}
	if got := toStrings(v.([]any)); len(got) != 1 || got[0] != "b" {
		t.Fatalf("intersection = %v, want [b]", got)
	}

	v, err = e.Eval("difference($(x), $(y))", b)
	if err != nil {
		t.Fatalf("difference: %v", err)
	}
	if got := toStrings(v.([]any)); len(got) != 1 || got[0] != "a" {
		t.Fatalf("difference = %v, want [a]", got)
	}
}

func TestConsole(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	if _, err := e.Eval(`console.log("hi")`, b); err != nil {
		t.Fatalf("console.log: %v", err)
	}
	if len(b.consoles) != 1 || b.consoles[0] != "log:hi" {
		t.Fatalf("consoles = %v", b.consoles)
	}
}

func TestActMethods(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	b.actIn = map[string]any{"uid": "u1"}
	v, err := e.Eval("$act.inputs()", b)
	if err != nil {
		t.Fatalf("$act.inputs(): %v", err)
	}
	m := v.(map[string]any)
	if m["uid"] != "u1" {
		t.Fatalf("inputs = %v", m)
	}
	if _, err := e.Eval(`$act.set("k", "v")`, b); err != nil {
		t.Fatalf("$act.set: %v", err)
	}
	if b.vars["k"] != "v" {
		t.Fatalf("k = %v, want v", b.vars["k"])
	}
}

func TestThrow(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	_, err := e.Eval(`throw new Error("boom")`, b)
	exc, ok := err.(*Exception)
	if !ok || exc.Message != "boom" {
		t.Fatalf("err = %v, want Exception{boom}", err)
	}
}

func TestRegisterVar(t *testing.T) {
	e := NewEvaluator()
	b := newTestBinder()
	if _, err := e.Eval(`register_var("cfg", 1)`, b); err != nil {
		t.Fatalf("register_var: %v", err)
	}
	if b.regs["cfg"] != int64(1) {
		t.Fatalf("regs = %v", b.regs)
	}
}

func toStrings(vs []any) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.(string)
	}
	return out
}

func equalStrs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
