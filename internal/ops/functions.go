package ops

import (
	"fmt"
	"strings"

	"github.com/tunqi-go/tunqi/internal/dialect"
)

func builtinFunctions() []Function {
	return []Function{
		{
			Name:       "length",
			ResultType: "integer",
			Render: func(ctx RenderContext) (string, error) {
				switch ctx.ColumnType {
				case "json":
					return "", fmt.Errorf("length() does not apply to a json path; select an array/string element first")
				default:
					return fmt.Sprintf("LENGTH(%s)", ctx.ColumnExpr), nil
				}
			},
		},
		{
			// binary() asserts the json path holds base64 bytes, and
			// is otherwise a pass-through: decoding happens in the
			// value codec, not in SQL.
			Name:       "binary",
			ResultType: "binary",
			Render: func(ctx RenderContext) (string, error) {
				return ctx.ColumnExpr, nil
			},
		},
		{
			// datetime() asserts the json path holds an ISO-8601
			// timestamp marker; like binary(), the cast itself
			// happens in the value codec.
			Name:       "datetime",
			ResultType: "datetime",
			Render: func(ctx RenderContext) (string, error) {
				return ctx.ColumnExpr, nil
			},
		},
		{
			Name:       "double",
			ResultType: "double",
			Render: func(ctx RenderContext) (string, error) {
				castType := "DOUBLE"
				if ctx.Adapter.Kind() == dialect.PostgreSQL {
					castType = "DOUBLE PRECISION"
				}
				return fmt.Sprintf("CAST(%s AS %s)", ctx.ColumnExpr, castType), nil
			},
		},
	}
}

// splitJSONPath turns a dotted/indexed path string such as "0.s" or "a.b.c"
// into its ordered segments, the form JSONExtract expects.
func splitJSONPath(path string) []string {
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}
