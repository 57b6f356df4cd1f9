package store

// Query builds a filter over a collection, grounded on the Cond/Expr
// tree in original_source's store/query.rs: a Query is a top-level
// conjunction of Cond groups, and each Cond group is itself either a
// conjunction or a disjunction of field==value expressions. Results are
// then ordered and paginated.
type Query struct {
	conds   []Cond
	orderBy string
	desc    bool
	offset  int
	limit   int
}

// Expr is a single field==value comparison within a Cond group.
type Expr struct {
	Key   string
	Value any
}

// Cond is a group of Exprs combined either by AND or OR.
type Cond struct {
	or    bool
	exprs []Expr
}

// And returns a Cond whose Exprs must all match (conjunction).
func And(exprs ...Expr) Cond { return Cond{or: false, exprs: exprs} }

// Or returns a Cond where at least one Expr must match (disjunction).
func Or(exprs ...Expr) Cond { return Cond{or: true, exprs: exprs} }

// Eq builds an equality Expr.
func Eq(key string, value any) Expr { return Expr{Key: key, Value: value} }

// NewQuery returns an empty Query matching every record, limited to the
// default page size of 10000.
func NewQuery() *Query {
	return &Query{limit: 10000}
}

// Where appends a Cond group to the query's top-level conjunction.
func (q *Query) Where(c Cond) *Query {
	q.conds = append(q.conds, c)
	return q
}

// OrderBy sorts results by field, descending when desc is true.
func (q *Query) OrderBy(field string, desc bool) *Query {
	q.orderBy = field
	q.desc = desc
	return q
}

// Offset skips the first n matching records.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	return q
}

// Limit caps the number of returned records.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

// matches reports whether rec (a JSON-shaped map) satisfies every Cond
// group in the query.
func (q *Query) matches(rec map[string]any) bool {
	for _, c := range q.conds {
		if !c.matches(rec) {
			return false
		}
	}
	return true
}

func (c Cond) matches(rec map[string]any) bool {
	if len(c.exprs) == 0 {
		return true
	}
	if c.or {
		for _, e := range c.exprs {
			if e.matches(rec) {
				return true
			}
		}
		return false
	}
	for _, e := range c.exprs {
		if !e.matches(rec) {
			return false
		}
	}
	return true
}

func (e Expr) matches(rec map[string]any) bool {
	v, ok := rec[e.Key]
	if !ok {
		return false
	}
	return looseEqual(v, e.Value)
}

func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// apply filters, orders and paginates records in place, returning the
// matching slice.
func (q *Query) apply(records []map[string]any) []map[string]any {
	var out []map[string]any
	for _, r := range records {
		if q.matches(r) {
			out = append(out, r)
		}
	}
	if q.orderBy != "" {
		sortMaps(out, q.orderBy, q.desc)
	}
	if q.offset > 0 {
		if q.offset >= len(out) {
			return nil
		}
		out = out[q.offset:]
	}
	limit := q.limit
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func sortMaps(records []map[string]any, field string, desc bool) {
	less := func(i, j int) bool {
		ai, aok := asFloat(records[i][field])
		bi, bok := asFloat(records[j][field])
		var lt bool
		if aok && bok {
			lt = ai < bi
		} else {
			as, _ := records[i][field].(string)
			bs, _ := records[j][field].(string)
			lt = as < bs
		}
		if desc {
			return !lt
		}
		return lt
	}
	insertionSort(records, less)
}

func insertionSort(records []map[string]any, less func(i, j int) bool) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}
