// Package compiler walks a filter/selector/order plan against a schema and
// emits parameterized SQL for one of the dialect adapters: SELECT, COUNT,
// EXISTS, UPDATE, DELETE. It is the one place internal/filter,
// internal/selector and internal/pathexpr meet internal/schema and
// internal/dialect; the CRUD executor calls these entry points rather than
// building SQL itself.
package compiler

import (
	"fmt"
	"strings"

	"github.com/tunqi-go/tunqi/internal/codec"
	"github.com/tunqi-go/tunqi/internal/dialect"
	"github.com/tunqi-go/tunqi/internal/filter"
	"github.com/tunqi-go/tunqi/internal/ops"
	"github.com/tunqi-go/tunqi/internal/pathexpr"
	"github.com/tunqi-go/tunqi/internal/schema"
	"github.com/tunqi-go/tunqi/internal/selector"
)

// Plan is a compiled statement ready to execute: positional placeholders
// (adapter.Placeholder order) and their bound argument values.
type Plan struct {
	SQL  string
	Args []any
}

// OutputColumn is one compiled SELECT list entry: the row-map key a caller
// should use, and the SQL expression producing it.
type OutputColumn struct {
	Key  string
	Expr string
	// Type is the column's declared schema.ColumnType ("" for a computed
	// literal/arithmetic expression with no single declared type), letting
	// the CRUD executor decode each returned value without re-deriving it.
	Type string
}

// SelectRequest describes a select(...) call's full shape. Selectors is nil
// for "every own column of Table, in declaration order" (db.select("t")).
// Order entries are raw "±path" strings.
type SelectRequest struct {
	Table     string
	Selectors []selector.Node
	Filter    filter.Node
	Order     []string
	Limit     *int
	Offset    *int
}

// Assignment is one `update(...)(...)` target: either a constant Value or a
// computed Expr (e.g. `x = c.x + 1`), never both.
type Assignment struct {
	Column string
	Value  any
	Expr   selector.Node
}

// compileCtx threads the schema/adapter/join-planner/binder through every
// rendering helper in this package so none of them need to reconstruct it.
type compileCtx struct {
	reg     *schema.Registry
	adapter dialect.Adapter
	jp      *joinPlanner
	args    []any
	bindErr error
}

func newCompileCtx(reg *schema.Registry, adapter dialect.Adapter, table string) *compileCtx {
	return &compileCtx{reg: reg, adapter: adapter, jp: newJoinPlanner(reg, table, adapter)}
}

// bind registers value as the next positional parameter, passing it through
// the value codec's top-level encoding first, and returns its placeholder.
func (c *compileCtx) bind(value any) string {
	enc, err := codec.EncodeTop(value)
	if err != nil {
		if c.bindErr == nil {
			c.bindErr = err
		}
		enc = value
	}
	c.args = append(c.args, enc)
	return c.adapter.Placeholder(len(c.args))
}

// columnExpr renders a resolved path into its SQL expression and the
// effective type of that expression (for operators/functions further down
// the chain), threading through any JSON accessor and function chain.
func (c *compileCtx) columnExpr(p *pathexpr.Path, alias string) (string, string, error) {
	q := c.adapter.QuoteIdent
	expr := fmt.Sprintf("%s.%s", q(alias), q(p.Column))
	currentType := p.ColumnType
	if len(p.JSONPath) > 0 {
		expr = c.adapter.JSONExtractText(expr, p.JSONPath)
		currentType = "string"
	}
	for _, name := range p.Functions {
		fn, ok := ops.LookupFunction(name)
		if !ok {
			return "", "", fmt.Errorf("unknown function %q", name)
		}
		rendered, err := fn.Render(ops.RenderContext{Adapter: c.adapter, ColumnExpr: expr, ColumnType: currentType})
		if err != nil {
			return "", "", err
		}
		expr = rendered
		currentType = fn.ResultType
	}
	return expr, currentType, nil
}

// resolveColumnPath parses raw against the join planner's root table,
// registers the relation chain it walks (inner controls INNER vs LEFT for
// any newly-seen prefix) and renders the resulting SQL expression.
func (c *compileCtx) resolveColumnPath(raw string, mode pathexpr.Mode, inner bool) (*pathexpr.Path, string, string, error) {
	p, err := pathexpr.Parse(c.reg.Resolver(), c.jp.table, raw, mode)
	if err != nil {
		return nil, "", "", err
	}
	alias, err := c.jp.require(p.Relations, inner)
	if err != nil {
		return nil, "", "", err
	}
	expr, finalType, err := c.columnExpr(p, alias)
	if err != nil {
		return nil, "", "", err
	}
	return p, expr, finalType, nil
}

// --- WHERE clause rendering ---------------------------------------------

// renderFilter mirrors filter.Node.Render's AND/OR/NOT precedence rules,
// but emits bound SQL through the operator registry instead of a
// human-readable string.
func (c *compileCtx) renderFilter(node filter.Node) (string, error) {
	switch n := node.(type) {
	case nil:
		return "", nil
	case *filter.Leaf:
		return c.renderLeaf(n)
	case *filter.And:
		return c.renderChildren(n.Children, "AND", isOrNode)
	case *filter.Or:
		return c.renderChildren(n.Children, "OR", neverParenthesize)
	case *filter.Not:
		inner, err := c.renderFilter(n.Child)
		if err != nil {
			return "", err
		}
		if _, atomic := n.Child.(*filter.Leaf); !atomic {
			inner = "(" + inner + ")"
		}
		return "NOT " + inner, nil
	default:
		return "", fmt.Errorf("unsupported filter node %T", node)
	}
}

func (c *compileCtx) renderLeaf(n *filter.Leaf) (string, error) {
	p, expr, finalType, err := c.resolveColumnPath(n.Path, pathexpr.Filter, true)
	if err != nil {
		return "", err
	}
	opName := n.Operator
	if opName == "" {
		opName = p.Operator
	}
	if opName == "" {
		opName = "eq"
	}
	op, ok := ops.LookupOperator(opName)
	if !ok {
		return "", fmt.Errorf("unknown operator %q", opName)
	}
	return op.Render(ops.RenderContext{Adapter: c.adapter, ColumnExpr: expr, ColumnType: finalType, Bind: c.bind}, n.Value)
}

func isOrNode(n filter.Node) bool {
	_, ok := n.(*filter.Or)
	return ok
}

func neverParenthesize(filter.Node) bool { return false }

func (c *compileCtx) renderChildren(children []filter.Node, joiner string, parenthesize func(filter.Node) bool) (string, error) {
	parts := make([]string, len(children))
	for i, child := range children {
		s, err := c.renderFilter(child)
		if err != nil {
			return "", err
		}
		if parenthesize(child) {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, " "+joiner+" "), nil
}

// --- SELECT list rendering ----------------------------------------------

func (c *compileCtx) defaultSelectList() []OutputColumn {
	q := c.adapter.QuoteIdent
	var out []OutputColumn
	for _, col := range c.reg.Columns(c.jp.table) {
		ctype, _ := c.reg.ColumnType(c.jp.table, col)
		out = append(out, OutputColumn{Key: col, Expr: fmt.Sprintf("%s.%s", q(c.jp.table), q(col)), Type: ctype})
	}
	return out
}

func (c *compileCtx) selectList(nodes []selector.Node) ([]OutputColumn, bool, error) {
	if len(nodes) == 0 {
		return c.defaultSelectList(), false, nil
	}
	var out []OutputColumn
	anyRelationAll := false
	for _, node := range nodes {
		switch n := node.(type) {
		case *selector.RelationAll:
			cols, err := c.expandRelationAll(n.RelationPath)
			if err != nil {
				return nil, false, err
			}
			anyRelationAll = true
			out = append(out, cols...)
		case *selector.Column:
			p, expr, finalType, err := c.resolveColumnPath(n.Path, pathexpr.Selector, false)
			if err != nil {
				return nil, false, err
			}
			if p.RelationAll {
				cols, err := c.expandRelationAllPath(p)
				if err != nil {
					return nil, false, err
				}
				anyRelationAll = true
				out = append(out, cols...)
				continue
			}
			key := n.Alias
			if key == "" {
				key = p.Alias
			}
			if key == "" {
				key = n.Path
			}
			out = append(out, OutputColumn{Key: key, Expr: expr, Type: finalType})
		default:
			expr, _, err := c.renderOperand(node)
			if err != nil {
				return nil, false, err
			}
			out = append(out, OutputColumn{Key: node.OutputKey(), Expr: expr})
		}
	}
	return out, anyRelationAll, nil
}

// renderOperand renders node's SQL expression along with its effective
// schema.ColumnType ("" when not statically known, e.g. a non-string
// literal; a Go string literal counts as "string"), so an enclosing
// *selector.Expr can pick string_concat over arithmetic "+" when both
// operands are string-typed.
func (c *compileCtx) renderOperand(node selector.Node) (string, string, error) {
	switch n := node.(type) {
	case *selector.Literal:
		if _, ok := n.Value.(string); ok {
			return c.bind(n.Value), "string", nil
		}
		return c.bind(n.Value), "", nil
	case *selector.Column:
		_, expr, finalType, err := c.resolveColumnPath(n.Path, pathexpr.Selector, false)
		return expr, finalType, err
	case *selector.Expr:
		left, leftType, err := c.renderOperand(n.Left)
		if err != nil {
			return "", "", err
		}
		right, rightType, err := c.renderOperand(n.Right)
		if err != nil {
			return "", "", err
		}
		if n.Op == "+" && isStringType(leftType) && isStringType(rightType) {
			return c.adapter.StringConcat(left, right), "string", nil
		}
		return fmt.Sprintf("(%s %s %s)", left, n.Op, right), "", nil
	default:
		return "", "", fmt.Errorf("unsupported selector node %T", node)
	}
}

func isStringType(t string) bool {
	return t == string(schema.String) || t == string(schema.StringLength)
}

// expandRelationAll parses a bare relation-chain selector string and
// expands it to one OutputColumn per column of the table it reaches.
func (c *compileCtx) expandRelationAll(relationPath string) ([]OutputColumn, error) {
	p, err := pathexpr.Parse(c.reg.Resolver(), c.jp.table, relationPath, pathexpr.Selector)
	if err != nil {
		return nil, err
	}
	if !p.RelationAll {
		return nil, fmt.Errorf("selector %q does not name a relation", relationPath)
	}
	return c.expandRelationAllPath(p)
}

func (c *compileCtx) expandRelationAllPath(p *pathexpr.Path) ([]OutputColumn, error) {
	alias, err := c.jp.require(p.Relations, false)
	if err != nil {
		return nil, err
	}
	q := c.adapter.QuoteIdent
	var out []OutputColumn
	for _, col := range c.reg.Columns(p.Table) {
		key := strings.Join(append(append([]string(nil), p.Relations...), col), ".")
		ctype, _ := c.reg.ColumnType(p.Table, col)
		out = append(out, OutputColumn{Key: key, Expr: fmt.Sprintf("%s.%s", q(alias), q(col)), Type: ctype})
	}
	return out, nil
}

// --- ORDER BY rendering ---------------------------------------------------

func (c *compileCtx) orderClauses(keys []string) ([]string, error) {
	var out []string
	for _, raw := range keys {
		desc := false
		key := raw
		switch {
		case strings.HasPrefix(raw, "-"):
			desc = true
			key = raw[1:]
		case strings.HasPrefix(raw, "+"):
			key = raw[1:]
		}
		_, expr, _, err := c.resolveColumnPath(key, pathexpr.Selector, false)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		out = append(out, expr+" "+dir)
	}
	return out, nil
}

// --- top-level statement assembly ----------------------------------------

func joinedFrom(adapter dialect.Adapter, jp *joinPlanner) string {
	q := adapter.QuoteIdent
	from := fmt.Sprintf("%s AS %s", q(jp.table), q(jp.table))
	clauses := jp.clauses()
	if len(clauses) == 0 {
		return from
	}
	return from + " " + strings.Join(clauses, " ")
}

// CompileSelect builds the SELECT plan for req.
func CompileSelect(reg *schema.Registry, adapter dialect.Adapter, req SelectRequest) (*Plan, []OutputColumn, error) {
	c := newCompileCtx(reg, adapter, req.Table)

	// bind() calls must happen in the same left-to-right order their
	// placeholders end up in the final SQL text (SELECT list, then
	// WHERE, then ORDER BY) — positional "?" dialects match args to
	// placeholders by occurrence order, not by Go call order.
	cols, anyRelationAll, err := c.selectList(req.Selectors)
	if err != nil {
		return nil, nil, err
	}
	where, err := c.renderFilter(req.Filter)
	if err != nil {
		return nil, nil, err
	}
	order, err := c.orderClauses(req.Order)
	if err != nil {
		return nil, nil, err
	}
	if c.bindErr != nil {
		return nil, nil, c.bindErr
	}

	dedup := !anyRelationAll && c.jp.anyToMany()

	var b strings.Builder
	b.WriteString("SELECT ")
	if dedup {
		b.WriteString("DISTINCT ")
	}
	exprs := make([]string, len(cols))
	for i, oc := range cols {
		exprs[i] = oc.Expr
	}
	b.WriteString(strings.Join(exprs, ", "))
	b.WriteString(" FROM ")
	b.WriteString(joinedFrom(adapter, c.jp))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	if len(order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}
	if req.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *req.Limit)
	}
	if req.Offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *req.Offset)
	}
	return &Plan{SQL: b.String(), Args: c.args}, cols, nil
}

// CompileExists builds the EXISTS(...) plan for a filter over table.
func CompileExists(reg *schema.Registry, adapter dialect.Adapter, table string, f filter.Node) (*Plan, error) {
	c := newCompileCtx(reg, adapter, table)
	where, err := c.renderFilter(f)
	if err != nil {
		return nil, err
	}
	if c.bindErr != nil {
		return nil, c.bindErr
	}
	var b strings.Builder
	b.WriteString("SELECT EXISTS(SELECT 1 FROM ")
	b.WriteString(joinedFrom(adapter, c.jp))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	b.WriteString(")")
	return &Plan{SQL: b.String(), Args: c.args}, nil
}

// CompileCount builds the COUNT plan: distinctPaths names the selector
// strings passed as count(table, col)/count(table, [cols]); nil means
// "plain count, deduping on pk only when a to-many join requires it".
func CompileCount(reg *schema.Registry, adapter dialect.Adapter, table string, distinctPaths []string, f filter.Node) (*Plan, error) {
	c := newCompileCtx(reg, adapter, table)
	where, err := c.renderFilter(f)
	if err != nil {
		return nil, err
	}

	q := adapter.QuoteIdent
	var distinctExprs []string
	switch {
	case len(distinctPaths) > 0:
		for _, raw := range distinctPaths {
			_, expr, _, err := c.resolveColumnPath(raw, pathexpr.Selector, false)
			if err != nil {
				return nil, err
			}
			distinctExprs = append(distinctExprs, expr)
		}
	case c.jp.anyToMany():
		distinctExprs = []string{fmt.Sprintf("%s.%s", q(table), q("pk"))}
	}
	if c.bindErr != nil {
		return nil, c.bindErr
	}

	from := joinedFrom(adapter, c.jp)
	if len(distinctExprs) == 0 {
		var b strings.Builder
		b.WriteString("SELECT COUNT(*) FROM ")
		b.WriteString(from)
		if where != "" {
			b.WriteString(" WHERE ")
			b.WriteString(where)
		}
		return &Plan{SQL: b.String(), Args: c.args}, nil
	}

	var inner strings.Builder
	inner.WriteString("SELECT DISTINCT ")
	inner.WriteString(strings.Join(distinctExprs, ", "))
	inner.WriteString(" FROM ")
	inner.WriteString(from)
	if where != "" {
		inner.WriteString(" WHERE ")
		inner.WriteString(where)
	}
	sql := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS %s", inner.String(), q("_count"))
	return &Plan{SQL: sql, Args: c.args}, nil
}

// CompileUpdate builds an UPDATE plan. Cross-dialect multi-table UPDATE
// syntax diverges (MySQL/Postgres/SQLite each spell "UPDATE ... JOIN ..."
// differently), so a filter that reaches through any joined relation
// compiles as a pk subquery instead: the same SELECT plan CompileSelect
// would build, but selecting only the root table's pk, wrapped in
// "WHERE pk IN (...)" against a plain single-table UPDATE.
func CompileUpdate(reg *schema.Registry, adapter dialect.Adapter, table string, f filter.Node, assignments []Assignment) (*Plan, error) {
	q := adapter.QuoteIdent

	// SET clauses never touch a joined relation (assignments are always
	// plain columns/expressions on the root table), so they share one
	// compileCtx with the filter below purely to keep placeholder
	// numbering sequential across the whole statement (required for
	// numbered dialects like postgres's $1, $2, ...); the SET clauses
	// are rendered, and so bound, before the WHERE clause, matching
	// their position in the final SQL text.
	c := newCompileCtx(reg, adapter, table)
	setClauses := make([]string, len(assignments))
	for i, a := range assignments {
		if _, ok := reg.ColumnType(table, a.Column); !ok {
			return nil, fmt.Errorf("table '%s' has no column '%s'", table, a.Column)
		}
		var rhs string
		var err error
		if a.Expr != nil {
			rhs, _, err = c.renderOperand(a.Expr)
		} else {
			enc, encErr := codec.EncodeTop(a.Value)
			if encErr != nil {
				err = encErr
			} else {
				rhs = c.bind(enc)
			}
		}
		if err != nil {
			return nil, err
		}
		setClauses[i] = fmt.Sprintf("%s = %s", q(a.Column), rhs)
	}

	where, err := c.renderFilter(f)
	if err != nil {
		return nil, err
	}
	if c.bindErr != nil {
		return nil, c.bindErr
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s", q(table), strings.Join(setClauses, ", "))
	if c.jp.anyJoins() {
		sub, _, werr := wrapPKSubquery(adapter, c, where)
		if werr != nil {
			return nil, werr
		}
		fmt.Fprintf(&b, " WHERE %s.%s IN (%s)", q(table), q("pk"), sub)
	} else if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	return &Plan{SQL: b.String(), Args: c.args}, nil
}

// CompileDelete builds a DELETE plan, using the same pk-subquery strategy as
// CompileUpdate whenever the filter reaches through a joined relation.
func CompileDelete(reg *schema.Registry, adapter dialect.Adapter, table string, f filter.Node) (*Plan, error) {
	q := adapter.QuoteIdent
	c := newCompileCtx(reg, adapter, table)
	where, err := c.renderFilter(f)
	if err != nil {
		return nil, err
	}
	if c.bindErr != nil {
		return nil, c.bindErr
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", q(table))
	args := []any{}
	if c.jp.anyJoins() {
		sub, subArgs, werr := wrapPKSubquery(adapter, c, where)
		if werr != nil {
			return nil, werr
		}
		fmt.Fprintf(&b, " WHERE %s.%s IN (%s)", q(table), q("pk"), sub)
		args = append(args, subArgs...)
	} else if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
		args = append(args, c.args...)
	}
	return &Plan{SQL: b.String(), Args: args}, nil
}

// wrapPKSubquery renders "SELECT DISTINCT <table>.pk FROM <table> <joins>
// WHERE <where>" using c's already-planned joins, for the UPDATE/DELETE
// pk-IN-subquery fallback.
func wrapPKSubquery(adapter dialect.Adapter, c *compileCtx, where string) (string, []any, error) {
	q := adapter.QuoteIdent
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT DISTINCT %s.%s FROM %s", q(c.jp.table), q("pk"), joinedFrom(adapter, c.jp))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	return b.String(), c.args, nil
}
