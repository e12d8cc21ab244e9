package tunqi

import (
	"github.com/tunqi-go/tunqi/internal/compiler"
	"github.com/tunqi-go/tunqi/internal/exec"
	"github.com/tunqi-go/tunqi/internal/selector"
)

// Row is one returned record: a map of column name (or alias, or
// "<relation>.<column>" for a joined relation's columns per spec.md's row-
// shape rule) to its decoded native value.
type Row = exec.Row

// Value is the right-hand side of one Update assignment: either a constant
// or a computed expression over the row's current values (e.g.
// C("views").Add(1) for `views = views + 1`), never both. Build one with
// Val or ValExpr.
type Value struct {
	constant any
	expr     selector.Node
}

// Val wraps a constant assignment value.
func Val(v any) Value { return Value{constant: v} }

// ValExpr wraps a computed assignment value built from C and its
// arithmetic methods.
func ValExpr(s *Select) Value {
	if s == nil {
		return Value{}
	}
	return Value{expr: s.node}
}

// Assignment is one column's Update target.
type Assignment struct {
	Column string
	Value  Value
}

// Set builds an Assignment for column from a constant or computed Value.
func Set(column string, v Value) Assignment {
	return Assignment{Column: column, Value: v}
}

func compileAssignments(assigns []Assignment) []compiler.Assignment {
	out := make([]compiler.Assignment, len(assigns))
	for i, a := range assigns {
		out[i] = compiler.Assignment{Column: a.Column, Value: a.Value.constant, Expr: a.Value.expr}
	}
	return out
}
