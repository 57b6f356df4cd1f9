package script

// Expr is a parsed scripting-host expression node.
type Expr interface {
	eval(b Binder) (any, error)
}

type literal struct{ value any }

func (l literal) eval(Binder) (any, error) { return l.value, nil }

// getVar implements `$(name)`.
type getVar struct{ name string }

func (g getVar) eval(b Binder) (any, error) {
	val, _ := b.Get(g.name)
	return val, nil
}

// setVar implements `$(name, value)`.
type setVar struct {
	name string
	val  Expr
}

func (s setVar) eval(b Binder) (any, error) {
	v, err := s.val.eval(b)
	if err != nil {
		return nil, err
	}
	b.Set(s.name, v)
	return v, nil
}

// envGet implements `$env.name`.
type envGet struct{ name string }

func (e envGet) eval(b Binder) (any, error) {
	val, _ := b.Env(e.name)
	return val, nil
}

// envCall implements `$env(name)` / `$env(name, value)`.
type envCall struct {
	name string
	val  Expr // nil for get
}

func (e envCall) eval(b Binder) (any, error) {
	if e.val == nil {
		val, _ := b.Env(e.name)
		return val, nil
	}
	v, err := e.val.eval(b)
	if err != nil {
		return nil, err
	}
	b.SetEnv(e.name, v)
	return v, nil
}

// stepField implements `stepId.field`.
type stepField struct {
	step  string
	field string
}

func (s stepField) eval(b Binder) (any, error) {
	val, _ := b.Step(s.step, s.field)
	return val, nil
}

// methodCall implements `recv.method(args...)`, covering `$act.inputs()`,
// `$act.data()`, `$act.set(k,v)`, `console.log(...)`, and the bare array
// helpers `union(...)`/`intersection(...)`/`difference(...)`/
// `register_var(...)` (recv == "").
type methodCall struct {
	recv   string
	method string
	args   []Expr
}

func (m methodCall) eval(b Binder) (any, error) {
	args := make([]any, len(m.args))
	for i, a := range m.args {
		v, err := a.eval(b)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch m.recv {
	case "$act":
		switch m.method {
		case "inputs":
			return b.ActInputs(), nil
		case "data":
			v, _ := b.ActData()
			return v, nil
		case "set":
			if len(args) != 2 {
				return nil, &Error{ECode: "arity", Message: "$act.set(key, value) requires 2 args"}
			}
			key, _ := args[0].(string)
			b.ActSet(key, args[1])
			return nil, nil
		}
	case "console":
		msg := joinAny(args)
		b.Console(m.method, msg)
		return nil, nil
	case "":
		switch m.method {
		case "union":
			return arrayUnion(args), nil
		case "intersection":
			return arrayIntersection(args), nil
		case "difference":
			return arrayDifference(args), nil
		case "register_var":
			if len(args) == 0 {
				return nil, &Error{ECode: "arity", Message: "register_var(name, default?) requires at least 1 arg"}
			}
			name, _ := args[0].(string)
			var def any
			if len(args) > 1 {
				def = args[1]
			}
			b.RegisterVar(name, def)
			return nil, nil
		}
	}
	return nil, &Error{ECode: "unknown_call", Message: "unknown call " + m.recv + "." + m.method}
}

// binOp implements arithmetic, comparison, and logical binary operators.
type binOp struct {
	op   string
	l, r Expr
}

func (e binOp) eval(b Binder) (any, error) {
	lv, err := e.l.eval(b)
	if err != nil {
		return nil, err
	}
	if e.op == "&&" {
		if !truthy(lv) {
			return false, nil
		}
		rv, err := e.r.eval(b)
		if err != nil {
			return nil, err
		}
		return truthy(rv), nil
	}
	if e.op == "||" {
		if truthy(lv) {
			return true, nil
		}
		rv, err := e.r.eval(b)
		if err != nil {
			return nil, err
		}
		return truthy(rv), nil
	}
	rv, err := e.r.eval(b)
	if err != nil {
		return nil, err
	}
	switch e.op {
	case "==":
		return looseEqual(lv, rv), nil
	case "!=":
		return !looseEqual(lv, rv), nil
	case ">", "<", ">=", "<=":
		return compareNumeric(e.op, lv, rv)
	case "+", "-", "*", "/":
		return arithmetic(e.op, lv, rv)
	}
	return nil, &Error{ECode: "bad_op", Message: "unsupported operator " + e.op}
}

// unaryNot implements `!expr`.
type unaryNot struct{ e Expr }

func (u unaryNot) eval(b Binder) (any, error) {
	v, err := u.e.eval(b)
	if err != nil {
		return nil, err
	}
	return !truthy(v), nil
}

// throwExpr implements `throw new Error(msg)`.
type throwExpr struct{ msg Expr }

func (t throwExpr) eval(b Binder) (any, error) {
	v, err := t.msg.eval(b)
	if err != nil {
		return nil, err
	}
	msg, _ := v.(string)
	return nil, &Exception{Message: msg}
}
