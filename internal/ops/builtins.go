package ops

import (
	"fmt"
)

// init registers every builtin operator/function the engine ships with.
// User code can add more via RegisterOperator/RegisterFunction; it can never
// remove or shadow a builtin (builtins are never unregistered).
func init() {
	for _, op := range builtinOperators() {
		RegisterOperator(op)
	}
	for _, fn := range builtinFunctions() {
		RegisterFunction(fn)
	}
}

func simpleCompare(symbol, sql string) Operator {
	return Operator{
		Name:   symbol,
		Symbol: sqlSymbol[symbol],
		Render: func(ctx RenderContext, value any) (string, error) {
			return fmt.Sprintf("%s %s %s", ctx.ColumnExpr, sql, ctx.Bind(value)), nil
		},
	}
}

var sqlSymbol = map[string]string{
	"eq":         "==",
	"ne":         "!=",
	"lt":         "<",
	"le":         "<=",
	"gt":         ">",
	"ge":         ">=",
	"in":         "in",
	"not_in":     "not in",
	"contains":   "contains",
	"startswith": "starts with",
	"endswith":   "ends with",
	"like":       "like",
	"not_like":   "not like",
	"matches":    "matches",
	"is":         "is",
	"is_not":     "is not",
	"has":        "has",
}

func builtinOperators() []Operator {
	return []Operator{
		simpleCompare("eq", "="),
		simpleCompare("ne", "!="),
		simpleCompare("lt", "<"),
		simpleCompare("le", "<="),
		simpleCompare("gt", ">"),
		simpleCompare("ge", ">="),
		{
			Name:   "in",
			Symbol: sqlSymbol["in"],
			Render: renderInList(false),
		},
		{
			Name:   "not_in",
			Symbol: sqlSymbol["not_in"],
			Render: renderInList(true),
		},
		{
			Name:   "contains",
			Symbol: sqlSymbol["contains"],
			Render: func(ctx RenderContext, value any) (string, error) {
				if ctx.ColumnType == "json" {
					return ctx.Adapter.JSONArrayContainsExpr(ctx.ColumnExpr, ctx.Bind(fmt.Sprint(value))), nil
				}
				return likeExpr(ctx, "%", value, "%"), nil
			},
		},
		{
			Name:   "startswith",
			Symbol: sqlSymbol["startswith"],
			Render: func(ctx RenderContext, value any) (string, error) {
				return likeExpr(ctx, "", value, "%"), nil
			},
		},
		{
			Name:   "endswith",
			Symbol: sqlSymbol["endswith"],
			Render: func(ctx RenderContext, value any) (string, error) {
				return likeExpr(ctx, "%", value, ""), nil
			},
		},
		{
			Name:   "like",
			Symbol: sqlSymbol["like"],
			Render: func(ctx RenderContext, value any) (string, error) {
				return fmt.Sprintf("%s LIKE %s", ctx.ColumnExpr, ctx.Bind(value)), nil
			},
		},
		{
			Name:   "not_like",
			Symbol: sqlSymbol["not_like"],
			Render: func(ctx RenderContext, value any) (string, error) {
				return fmt.Sprintf("%s NOT LIKE %s", ctx.ColumnExpr, ctx.Bind(value)), nil
			},
		},
		{
			Name:   "matches",
			Symbol: sqlSymbol["matches"],
			Render: func(ctx RenderContext, value any) (string, error) {
				return ctx.Adapter.RegexpMatch(ctx.ColumnExpr, ctx.Bind(value)), nil
			},
		},
		{
			Name:   "is",
			Symbol: sqlSymbol["is"],
			Render: renderIs(false),
		},
		{
			Name:   "is_not",
			Symbol: sqlSymbol["is_not"],
			Render: renderIs(true),
		},
		{
			Name:   "has",
			Symbol: sqlSymbol["has"],
			Render: func(ctx RenderContext, value any) (string, error) {
				path, ok := value.(string)
				if !ok {
					return "", fmt.Errorf("has requires a dotted json path string, got %T", value)
				}
				return fmt.Sprintf("%s IS NOT NULL", ctx.Adapter.JSONExtract(ctx.ColumnExpr, splitJSONPath(path))), nil
			},
		},
	}
}

func renderInList(negate bool) func(RenderContext, any) (string, error) {
	return func(ctx RenderContext, value any) (string, error) {
		items, err := toSlice(value)
		if err != nil {
			return "", err
		}
		if len(items) == 0 {
			if negate {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
		placeholders := make([]string, len(items))
		for i, item := range items {
			placeholders[i] = ctx.Bind(item)
		}
		op := "IN"
		if negate {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", ctx.ColumnExpr, op, joinComma(placeholders)), nil
	}
}

func renderIs(negate bool) func(RenderContext, any) (string, error) {
	return func(ctx RenderContext, value any) (string, error) {
		op := "IS"
		if negate {
			op = "IS NOT"
		}
		switch v := value.(type) {
		case nil:
			return fmt.Sprintf("%s %s NULL", ctx.ColumnExpr, op), nil
		case bool:
			lit := "FALSE"
			if v {
				lit = "TRUE"
			}
			return fmt.Sprintf("%s %s %s", ctx.ColumnExpr, op, lit), nil
		default:
			return "", fmt.Errorf("%s operator requires null or a boolean, got %T", sqlSymbol["is"], value)
		}
	}
}

func likeExpr(ctx RenderContext, prefix string, value any, suffix string) string {
	s := fmt.Sprint(value)
	escaped := escapeLike(s)
	// SQLite's LIKE has no default escape character (unlike Postgres/MySQL,
	// which default to backslash), so the backslash-escaping escapeLike
	// applies to the literal value is inert there without an explicit
	// ESCAPE clause.
	return fmt.Sprintf("%s LIKE %s ESCAPE '\\'", ctx.ColumnExpr, ctx.Bind(prefix+escaped+suffix))
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\', s[i])
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

func toSlice(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("in/not_in requires a list value, got %T", value)
	}
}

func joinComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
