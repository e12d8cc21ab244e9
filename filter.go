package tunqi

import (
	"strings"

	"github.com/tunqi-go/tunqi/internal/filter"
)

// Query is a composable boolean predicate over a table's rows, built with
// Q() and the operator methods named after internal/ops's registered
// vocabulary (Eq, Ne, Lt, ...). It mirrors the source's q(**kwargs)/
// q().eq(...) calls as a fluent builder per spec.md's design note.
type Query struct {
	node filter.Node
}

// Q starts an empty filter. With no further calls it matches every row.
func Q() *Query {
	return &Query{}
}

// Keywords builds a filter the way the "path__operator=value" string DSL
// does, from an ordered list of (path, value) pairs — path may carry a
// trailing "__<operator>" suffix (e.g. "n__lt"), recognized against the
// registered operators at compile time. kv must have an even length.
func Keywords(kv ...any) *Query {
	return &Query{node: filter.FromKeywords(kv...)}
}

func (q *Query) add(n filter.Node) *Query {
	if q.node == nil {
		q.node = n
		return q
	}
	q.node = filter.AndOf(q.node, n)
	return q
}

// And combines q with every other filter by conjunction.
func (q *Query) And(others ...*Query) *Query {
	return And(append([]*Query{q}, others...)...)
}

// Or combines q with every other filter by disjunction.
func (q *Query) Or(others ...*Query) *Query {
	return Or(append([]*Query{q}, others...)...)
}

// And conjoins every non-empty filter given.
func And(qs ...*Query) *Query {
	return &Query{node: filter.AndOf(nodesOf(qs)...)}
}

// Or disjoins every non-empty filter given.
func Or(qs ...*Query) *Query {
	return &Query{node: filter.OrOf(nodesOf(qs)...)}
}

// Not negates q, cancelling a double negation instead of double-wrapping.
func Not(q *Query) *Query {
	if q == nil {
		return &Query{}
	}
	return &Query{node: filter.NotOf(q.node)}
}

func nodesOf(qs []*Query) []filter.Node {
	nodes := make([]filter.Node, 0, len(qs))
	for _, q := range qs {
		if q != nil && q.node != nil {
			nodes = append(nodes, q.node)
		}
	}
	return nodes
}

// Path starts a predicate against path (a "."-separated column path
// through relations/JSON, e.g. "posts.commentary.content"), to be finished
// with one of PathFilter's operator methods — the q().path("...").
// startswith(...) form.
func (q *Query) Path(path string) *PathFilter {
	return &PathFilter{q: q, path: path}
}

// PathFilter is the path-first half of a q().path("...").op(value) call.
type PathFilter struct {
	q    *Query
	path string
}

func (p *PathFilter) leaf(op string, v any) *Query {
	return p.q.add(filter.NewLeaf(strings.ReplaceAll(p.path, ".", "__"), op, v))
}

func (p *PathFilter) Eq(v any) *Query         { return p.leaf("eq", v) }
func (p *PathFilter) Ne(v any) *Query         { return p.leaf("ne", v) }
func (p *PathFilter) Lt(v any) *Query         { return p.leaf("lt", v) }
func (p *PathFilter) Le(v any) *Query         { return p.leaf("le", v) }
func (p *PathFilter) Gt(v any) *Query         { return p.leaf("gt", v) }
func (p *PathFilter) Ge(v any) *Query         { return p.leaf("ge", v) }
func (p *PathFilter) In(v any) *Query         { return p.leaf("in", v) }
func (p *PathFilter) NotIn(v any) *Query      { return p.leaf("not_in", v) }
func (p *PathFilter) Contains(v any) *Query   { return p.leaf("contains", v) }
func (p *PathFilter) StartsWith(v any) *Query { return p.leaf("startswith", v) }
func (p *PathFilter) EndsWith(v any) *Query   { return p.leaf("endswith", v) }
func (p *PathFilter) Like(v any) *Query       { return p.leaf("like", v) }
func (p *PathFilter) NotLike(v any) *Query    { return p.leaf("not_like", v) }
func (p *PathFilter) Matches(v any) *Query    { return p.leaf("matches", v) }
func (p *PathFilter) Is(v any) *Query         { return p.leaf("is", v) }
func (p *PathFilter) IsNot(v any) *Query      { return p.leaf("is_not", v) }
func (p *PathFilter) Has(v any) *Query        { return p.leaf("has", v) }

// The path-and-value shorthand (q().eq("n", 1)) that spec.md's design note
// calls out by name; each delegates to the Path/operator pair above.
func (q *Query) Eq(path string, v any) *Query         { return q.Path(path).Eq(v) }
func (q *Query) Ne(path string, v any) *Query         { return q.Path(path).Ne(v) }
func (q *Query) Lt(path string, v any) *Query         { return q.Path(path).Lt(v) }
func (q *Query) Le(path string, v any) *Query         { return q.Path(path).Le(v) }
func (q *Query) Gt(path string, v any) *Query         { return q.Path(path).Gt(v) }
func (q *Query) Ge(path string, v any) *Query         { return q.Path(path).Ge(v) }
func (q *Query) In(path string, v any) *Query         { return q.Path(path).In(v) }
func (q *Query) NotIn(path string, v any) *Query      { return q.Path(path).NotIn(v) }
func (q *Query) Contains(path string, v any) *Query   { return q.Path(path).Contains(v) }
func (q *Query) StartsWith(path string, v any) *Query { return q.Path(path).StartsWith(v) }
func (q *Query) EndsWith(path string, v any) *Query   { return q.Path(path).EndsWith(v) }
func (q *Query) Like(path string, v any) *Query       { return q.Path(path).Like(v) }
func (q *Query) NotLike(path string, v any) *Query    { return q.Path(path).NotLike(v) }
func (q *Query) Matches(path string, v any) *Query    { return q.Path(path).Matches(v) }
func (q *Query) Is(path string, v any) *Query         { return q.Path(path).Is(v) }
func (q *Query) IsNot(path string, v any) *Query      { return q.Path(path).IsNot(v) }
func (q *Query) Has(path string, v any) *Query        { return q.Path(path).Has(v) }

// Render renders q as a human-readable infix expression, the same text
// DoesNotExistError embeds.
func (q *Query) Render() string {
	if q == nil || q.node == nil {
		return ""
	}
	return q.node.Render()
}
