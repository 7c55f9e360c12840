package remote

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Op is a filter operator understood by both the backend and the in-memory
// evaluator.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpIn     Op = "in"
	OpGte    Op = "gte"
	OpLte    Op = "lte"
	OpILike  Op = "ilike"
	OpIsNull Op = "is"
)

// Filter restricts rows by one field. For OpIn, Value is a slice; for
// OpIsNull, Value is a bool (true matches null, false matches non-null).
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Order is one sort key. Nulls sort last unless NullsFirst is set.
type Order struct {
	Field      string
	Desc       bool
	NullsFirst bool
}

// Query is a filtered, ordered, paginated read. The same Query is sent to the
// backend and evaluated against cached records, so both tiers agree.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
	// Embed is a PostgREST select list (e.g. "*,notes:job_notes(*)"). The
	// in-memory evaluator ignores it.
	Embed string
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(slices.Clone(q.Filters), Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy returns a copy of q with an extra sort key.
func (q Query) OrderBy(field string, desc bool) Query {
	q.Order = append(slices.Clone(q.Order), Order{Field: field, Desc: desc})
	return q
}

// Page returns a copy of q with the given limit and offset.
func (q Query) Page(limit, offset int) Query {
	q.Limit, q.Offset = limit, offset
	return q
}

// Values encodes q as PostgREST query parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	sel := q.Embed
	if sel == "" {
		sel = "*"
	}
	v.Set("select", sel)
	for _, f := range q.Filters {
		v.Add(f.Field, encodeFilter(f))
	}
	if len(q.Order) > 0 {
		keys := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			nulls := "nullslast"
			if o.NullsFirst {
				nulls = "nullsfirst"
			}
			keys = append(keys, o.Field+"."+dir+"."+nulls)
		}
		v.Set("order", strings.Join(keys, ","))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

func encodeFilter(f Filter) string {
	switch f.Op {
	case OpIsNull:
		if b, _ := f.Value.(bool); !b {
			return "not.is.null"
		}
		return "is.null"
	case OpIn:
		vals := toSlice(f.Value)
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			s := scalarString(v)
			if strings.ContainsAny(s, `,()"`) {
				s = strconv.Quote(s)
			}
			parts = append(parts, s)
		}
		return "in.(" + strings.Join(parts, ",") + ")"
	case OpILike:
		return "ilike." + strings.ReplaceAll(scalarString(f.Value), "%", "*")
	default:
		return string(f.Op) + "." + scalarString(f.Value)
	}
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func toSlice(v any) []any {
	norm := normalize(v)
	if s, ok := norm.([]any); ok {
		return s
	}
	return []any{norm}
}

// normalize converts a Go value to the shape encoding/json decodes into
// (string, float64, bool, nil, []any, map[string]any) so it compares against
// decoded documents.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, float64, bool:
		return x
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// Match reports whether the decoded document satisfies every filter.
func (q Query) Match(doc map[string]any) bool {
	for _, f := range q.Filters {
		if !matchFilter(f, doc[f.Field]) {
			return false
		}
	}
	return true
}

func matchFilter(f Filter, field any) bool {
	switch f.Op {
	case OpIsNull:
		want, _ := f.Value.(bool)
		return (field == nil) == want
	case OpIn:
		if field == nil {
			return false
		}
		for _, v := range toSlice(f.Value) {
			if c, ok := compare(field, v); ok && c == 0 {
				return true
			}
		}
		return false
	case OpILike:
		s, ok := field.(string)
		p, pok := f.Value.(string)
		return ok && pok && likeMatch(strings.ToLower(p), strings.ToLower(s))
	}
	if field == nil {
		return false
	}
	c, ok := compare(field, normalize(f.Value))
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpGte:
		return c >= 0
	case OpLte:
		return c <= 0
	}
	return false
}

// compare orders two decoded JSON scalars of the same kind. ISO-8601
// timestamps compare as strings, which is chronological for a fixed format.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// likeMatch implements SQL LIKE with % (any run) and _ (any one rune).
func likeMatch(pattern, s string) bool {
	for len(pattern) > 0 {
		r, n := utf8.DecodeRuneInString(pattern)
		switch r {
		case '%':
			rest := pattern[n:]
			if rest == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if likeMatch(rest, s[i:]) {
					return true
				}
			}
			return false
		case '_':
			if s == "" {
				return false
			}
			_, sn := utf8.DecodeRuneInString(s)
			s = s[sn:]
		default:
			sr, sn := utf8.DecodeRuneInString(s)
			if s == "" || sr != r {
				return false
			}
			s = s[sn:]
		}
		pattern = pattern[n:]
	}
	return s == ""
}

// Less reports whether document a sorts before b under q's ordering.
func (q Query) Less(a, b map[string]any) bool {
	for _, o := range q.Order {
		av, bv := a[o.Field], b[o.Field]
		if av == nil || bv == nil {
			if av == nil && bv == nil {
				continue
			}
			// exactly one is null
			return (av == nil) == o.NullsFirst
		}
		c, ok := compare(av, bv)
		if !ok || c == 0 {
			continue
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

// Apply evaluates q against raw JSON documents: filter, sort, then paginate.
// It returns the page and the number of matches before pagination. Documents
// that are not JSON objects are skipped.
func (q Query) Apply(docs []json.RawMessage) ([]json.RawMessage, int) {
	type row struct {
		raw json.RawMessage
		doc map[string]any
	}
	rows := make([]row, 0, len(docs))
	for _, raw := range docs {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if q.Match(doc) {
			rows = append(rows, row{raw: raw, doc: doc})
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(rows, func(i, j int) bool { return q.Less(rows[i].doc, rows[j].doc) })
	}
	total := len(rows)

	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	out := make([]json.RawMessage, 0, end-start)
	for _, r := range rows[start:end] {
		out = append(out, r.raw)
	}
	return out, total
}
