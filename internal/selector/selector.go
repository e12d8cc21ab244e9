// Package selector implements the tree of output-column expressions a
// query names: plain column paths, arithmetic built on them, and
// relation-name "all columns of that joined table" expansions. Like
// internal/filter, resolution against a concrete schema (relation/JSON/
// function validity) happens in the query compiler via internal/pathexpr;
// this package only holds the unresolved shape and the output-key/alias
// rules that don't need schema knowledge.
package selector

import "fmt"

// Node is one entry in a selection list.
type Node interface {
	node()
	// OutputKey is the result column name: the explicit alias if one was
	// given, else the canonical dotted path.
	OutputKey() string
}

// Column selects a single column path, optionally through relations and a
// JSON/function chain, all "."-separated (e.g. "posts.commentary.content"
// or "d.s.length"), with an optional alias.
type Column struct {
	Path  string
	Alias string
}

func (*Column) node() {}

// OutputKey implements Node.
func (c *Column) OutputKey() string {
	if c.Alias != "" {
		return c.Alias
	}
	return c.Path
}

// As returns a copy of c with alias set, the ":alias" suffix form's
// programmatic equivalent.
func (c *Column) As(alias string) *Column {
	return &Column{Path: c.Path, Alias: alias}
}

func (c *Column) binary(op string, rhs any) *Expr {
	return &Expr{Op: op, Left: c, Right: toNode(rhs)}
}

// Add/Sub/Mul/Div build an arithmetic expression with c as the left
// operand; rhs is another *Column/*Expr or a Go numeric literal.
func (c *Column) Add(rhs any) *Expr { return c.binary("+", rhs) }
func (c *Column) Sub(rhs any) *Expr { return c.binary("-", rhs) }
func (c *Column) Mul(rhs any) *Expr { return c.binary("*", rhs) }
func (c *Column) Div(rhs any) *Expr { return c.binary("/", rhs) }

// C starts a programmatic column selector for path, a "."-separated string
// (e.g. "d.s.length" or "posts.commentary.content").
func C(path string) *Column { return &Column{Path: path} }

// Literal wraps a plain Go value (used as an arithmetic operand).
type Literal struct{ Value any }

func (*Literal) node()              {}
func (l *Literal) OutputKey() string { return fmt.Sprint(l.Value) }

func toNode(v any) Node {
	switch n := v.(type) {
	case Node:
		return n
	default:
		return &Literal{Value: v}
	}
}

// Expr is a computed arithmetic expression over two operands.
type Expr struct {
	Op          string
	Left, Right Node
	Alias       string
}

func (*Expr) node() {}

// OutputKey implements Node; an unaliased computed expression has no
// canonical dotted-path name of its own, so its left operand's key is
// reused (matching "c.d.s.length().as_('L') + 2" still being keyed "L").
func (e *Expr) OutputKey() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Left.OutputKey()
}

// As returns a copy of e with alias set.
func (e *Expr) As(alias string) *Expr {
	return &Expr{Op: e.Op, Left: e.Left, Right: e.Right, Alias: alias}
}

func (e *Expr) binary(op string, rhs any) *Expr {
	return &Expr{Op: op, Left: e, Right: toNode(rhs)}
}

func (e *Expr) Add(rhs any) *Expr { return e.binary("+", rhs) }
func (e *Expr) Sub(rhs any) *Expr { return e.binary("-", rhs) }
func (e *Expr) Mul(rhs any) *Expr { return e.binary("*", rhs) }
func (e *Expr) Div(rhs any) *Expr { return e.binary("/", rhs) }

// RelationAll selects every column of a joined table, qualified by the
// relation path that reaches it (a selector string whose last segment
// names a relation rather than a column).
type RelationAll struct {
	RelationPath string
}

func (*RelationAll) node() {}

// OutputKey implements Node; callers expand a RelationAll into one
// per-column Column before this would ever be rendered standalone.
func (r *RelationAll) OutputKey() string { return r.RelationPath }
