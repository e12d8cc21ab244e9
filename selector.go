package tunqi

import "github.com/tunqi-go/tunqi/internal/selector"

// Select is one entry in a select(...) call's output list: a plain column
// path, an arithmetic expression over one, or every column of a joined
// relation. Build one with C or All.
type Select struct {
	node selector.Node
}

// OutputKey is the result row's key for this selector: its alias if one was
// given, else its canonical dotted path (or, for a RelationAll, the
// relation path it expands from).
func (s *Select) OutputKey() string { return s.node.OutputKey() }

// C starts a column selector for path, a "."-separated string through
// relations/JSON/functions (e.g. "posts.commentary.content" or
// "d.s.length"). Chain As to alias it, or Add/Sub/Mul/Div to compute.
func C(path string) *Select {
	return &Select{node: selector.C(path)}
}

// All selects every column of the relation reached by path, qualified
// "<relation>.<column>" in the result row per spec.md's row-shape rule.
func All(path string) *Select {
	return &Select{node: &selector.RelationAll{RelationPath: path}}
}

// As aliases s, replacing its default output key.
func (s *Select) As(alias string) *Select {
	switch n := s.node.(type) {
	case *selector.Column:
		return &Select{node: n.As(alias)}
	case *selector.Expr:
		return &Select{node: n.As(alias)}
	default:
		return s
	}
}

func (s *Select) binary(op string, rhs any) *Select {
	var right any = rhs
	if sel, ok := rhs.(*Select); ok {
		right = sel.node
	}
	switch n := s.node.(type) {
	case *selector.Column:
		return &Select{node: exprBinary(n, op, right)}
	case *selector.Expr:
		return &Select{node: exprBinary(n, op, right)}
	default:
		return s
	}
}

// binaryNode is the subset of selector node methods Add/Sub/Mul/Div need;
// both *selector.Column and *selector.Expr implement it.
type binaryNode interface {
	Add(any) *selector.Expr
	Sub(any) *selector.Expr
	Mul(any) *selector.Expr
	Div(any) *selector.Expr
}

func exprBinary(n binaryNode, op string, rhs any) *selector.Expr {
	switch op {
	case "+":
		return n.Add(rhs)
	case "-":
		return n.Sub(rhs)
	case "*":
		return n.Mul(rhs)
	default:
		return n.Div(rhs)
	}
}

func (s *Select) Add(rhs any) *Select { return s.binary("+", rhs) }
func (s *Select) Sub(rhs any) *Select { return s.binary("-", rhs) }
func (s *Select) Mul(rhs any) *Select { return s.binary("*", rhs) }
func (s *Select) Div(rhs any) *Select { return s.binary("/", rhs) }

func selectNodes(cols []*Select) []selector.Node {
	if cols == nil {
		return nil
	}
	nodes := make([]selector.Node, len(cols))
	for i, c := range cols {
		nodes[i] = c.node
	}
	return nodes
}
