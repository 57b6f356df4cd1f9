package script

import "fmt"

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

func compareNumeric(op string, l, r any) (any, error) {
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, &Error{ECode: "type", Message: fmt.Sprintf("cannot compare %v %s %v", l, op, r)}
	}
	switch op {
	case ">":
		return lf > rf, nil
	case "<":
		return lf < rf, nil
	case ">=":
		return lf >= rf, nil
	case "<=":
		return lf <= rf, nil
	}
	return nil, &Error{ECode: "bad_op", Message: "unsupported comparison " + op}
}

func arithmetic(op string, l, r any) (any, error) {
	if op == "+" {
		ls, lok := l.(string)
		rs, rok := r.(string)
		if lok || rok {
			if !lok {
				ls = fmt.Sprintf("%v", l)
			}
			if !rok {
				rs = fmt.Sprintf("%v", r)
			}
			return ls + rs, nil
		}
	}
	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, &Error{ECode: "type", Message: fmt.Sprintf("cannot apply %s to %v, %v", op, l, r)}
	}
	_, lInt := l.(int64)
	_, rInt := r.(int64)
	switch op {
	case "+":
		if lInt && rInt {
			return l.(int64) + r.(int64), nil
		}
		return lf + rf, nil
	case "-":
		if lInt && rInt {
			return l.(int64) - r.(int64), nil
		}
		return lf - rf, nil
	case "*":
		if lInt && rInt {
			return l.(int64) * r.(int64), nil
		}
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, &Error{ECode: "div_zero", Message: "division by zero"}
		}
		return lf / rf, nil
	}
	return nil, &Error{ECode: "bad_op", Message: "unsupported operator " + op}
}

func looseEqual(l, r any) bool {
	if lf, lok := toFloat(l); lok {
		if rf, rok := toFloat(r); rok {
			return lf == rf
		}
	}
	return fmt.Sprintf("%v", l) == fmt.Sprintf("%v", r)
}

func joinAny(args []any) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%v", a)
	}
	return s
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case nil:
		return nil
	default:
		return []any{t}
	}
}

func arrayUnion(args []any) []any {
	seen := make(map[string]bool)
	var out []any
	for _, a := range args {
		for _, v := range toSlice(a) {
			k := fmt.Sprintf("%v", v)
			if !seen[k] {
				seen[k] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func arrayIntersection(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	counts := make(map[string]int)
	values := make(map[string]any)
	for _, a := range args {
		seenInThis := make(map[string]bool)
		for _, v := range toSlice(a) {
			k := fmt.Sprintf("%v", v)
			if !seenInThis[k] {
				seenInThis[k] = true
				counts[k]++
				values[k] = v
			}
		}
	}
	var out []any
	for k, c := range counts {
		if c == len(args) {
			out = append(out, values[k])
		}
	}
	return out
}

func arrayDifference(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	exclude := make(map[string]bool)
	for _, a := range args[1:] {
		for _, v := range toSlice(a) {
			exclude[fmt.Sprintf("%v", v)] = true
		}
	}
	var out []any
	for _, v := range toSlice(args[0]) {
		if !exclude[fmt.Sprintf("%v", v)] {
			out = append(out, v)
		}
	}
	return out
}
