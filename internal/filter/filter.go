// Package filter implements the composable boolean tree of path-keyed
// predicates used to scope every read/write operation: Leaf(path, operator,
// value) combined with And/Or/Not. Leaves keep their path string
// unresolved (relations, JSON navigation and even the trailing operator
// name are not split out here) because doing so correctly requires the
// table's schema, which this package has no dependency on; resolution
// happens in the query compiler via internal/pathexpr.
package filter

import (
	"fmt"
	"strings"

	"github.com/tunqi-go/tunqi/internal/ops"
)

// Node is a filter tree node: a Leaf, or an And/Or/Not combinator.
type Node interface {
	node()
	// Render returns a human-readable infix rendering, used in
	// DoesNotExistError messages and for debugging.
	Render() string
}

// Leaf is a single (path, operator, value) predicate. Operator is "" when
// it hasn't been given explicitly (the trailing "__<op>" form, or the
// bare-equality default); pathexpr resolves the final operator name at
// compile time using the owning table's schema.
type Leaf struct {
	Path     string
	Operator string
	Value    any
}

func (*Leaf) node() {}

// NewLeaf builds a Leaf with an explicit operator, the form the
// programmatic column-expression builder produces (c.n.gt(4)).
func NewLeaf(path, operator string, value any) *Leaf {
	return &Leaf{Path: path, Operator: operator, Value: value}
}

// And is the conjunction of its children.
type And struct{ Children []Node }

func (*And) node() {}

// Or is the disjunction of its children.
type Or struct{ Children []Node }

func (*Or) node() {}

// Not negates its single child.
type Not struct{ Child Node }

func (*Not) node() {}

// AndOf builds an And node from nodes, dropping nils, collapsing to the
// single remaining child when there is exactly one, and returning nil when
// there are none (meaning "no filter").
func AndOf(nodes ...Node) Node {
	return combine(func(c []Node) Node { return &And{Children: c} }, nodes)
}

// OrOf is AndOf's disjunctive counterpart.
func OrOf(nodes ...Node) Node {
	return combine(func(c []Node) Node { return &Or{Children: c} }, nodes)
}

func combine(wrap func([]Node) Node, nodes []Node) Node {
	var kept []Node
	for _, n := range nodes {
		if n != nil {
			kept = append(kept, n)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return wrap(kept)
	}
}

// NotOf negates child, cancelling a double negation instead of
// double-wrapping it.
func NotOf(child Node) Node {
	if child == nil {
		return nil
	}
	if inner, ok := child.(*Not); ok {
		return inner.Child
	}
	return &Not{Child: child}
}

// FromKeywords builds an And-of-Leafs from an ordered list of (path, value)
// pairs, the shape a "q(**kw)" call produces. kv must have an even length.
func FromKeywords(kv ...any) Node {
	if len(kv)%2 != 0 {
		panic("filter.FromKeywords: odd number of arguments")
	}
	nodes := make([]Node, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		nodes = append(nodes, &Leaf{Path: kv[i].(string), Value: kv[i+1]})
	}
	return AndOf(nodes...)
}

// Render renders l using the operator's registered symbol, falling back to
// a best-effort textual split of a "__<op>" suffix (or plain "==" equality)
// when Operator hasn't been resolved yet.
func (l *Leaf) Render() string {
	path, symbol := l.displayPathAndSymbol()
	return fmt.Sprintf("%s %s %s", path, symbol, renderValue(l.Value))
}

func (l *Leaf) displayPathAndSymbol() (path, symbol string) {
	path = strings.ReplaceAll(l.Path, "__", ".")
	if l.Operator != "" {
		if op, ok := ops.LookupOperator(l.Operator); ok {
			return path, symbolOrName(op)
		}
		return path, l.Operator
	}
	if i := strings.LastIndex(l.Path, "__"); i >= 0 {
		if op, ok := ops.LookupOperator(l.Path[i+2:]); ok {
			return strings.ReplaceAll(l.Path[:i], "__", "."), symbolOrName(op)
		}
	}
	return path, "=="
}

// symbolOrName returns op's display symbol, falling back to its registered
// name when no symbol was given (a custom operator registered without an
// explicit infix spelling prints under its own name).
func symbolOrName(op ops.Operator) string {
	if op.Symbol != "" {
		return op.Symbol
	}
	return op.Name
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + val + "'"
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = renderValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case nil:
		return "null"
	default:
		return fmt.Sprint(val)
	}
}

func (n *And) Render() string { return renderChildren(n.Children, "and", isOr) }
func (n *Or) Render() string  { return renderChildren(n.Children, "or", isAtomic) }

func isOr(n Node) bool {
	_, ok := n.(*Or)
	return ok
}

func isAtomic(Node) bool { return false }

func renderChildren(children []Node, joiner string, parenthesize func(Node) bool) string {
	parts := make([]string, len(children))
	for i, c := range children {
		s := c.Render()
		if parenthesize(c) {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " "+joiner+" ")
}

func (n *Not) Render() string {
	s := n.Child.Render()
	if _, atomic := n.Child.(*Leaf); !atomic {
		s = "(" + s + ")"
	}
	return "not " + s
}
