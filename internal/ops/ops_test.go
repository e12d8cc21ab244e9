package ops_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunqi-go/tunqi/internal/dialect"
	"github.com/tunqi-go/tunqi/internal/ops"
)

func render(t *testing.T, opName, columnType string, value any) string {
	t.Helper()
	op, ok := ops.LookupOperator(opName)
	require.True(t, ok, "operator %q not registered", opName)

	adapter, _, err := dialect.Parse("sqlite:///x.db")
	require.NoError(t, err)

	n := 0
	ctx := ops.RenderContext{
		Adapter:    adapter,
		ColumnExpr: "t.n",
		ColumnType: columnType,
		Bind: func(any) string {
			n++
			return fmt.Sprintf("?%d", n)
		},
	}
	sql, err := op.Render(ctx, value)
	require.NoError(t, err)
	return sql
}

func TestSimpleComparisons(t *testing.T) {
	assert.Equal(t, "t.n = ?1", render(t, "eq", "integer", 2))
	assert.Equal(t, "t.n != ?1", render(t, "ne", "integer", 2))
	assert.Equal(t, "t.n > ?1", render(t, "gt", "integer", 2))
	assert.Equal(t, "t.n <= ?1", render(t, "le", "integer", 2))
}

func TestInNotIn(t *testing.T) {
	assert.Equal(t, "t.n IN (?1, ?2, ?3)", render(t, "in", "integer", []any{1, 2, 3}))
	assert.Equal(t, "t.n NOT IN (?1)", render(t, "not_in", "integer", []any{1}))
	assert.Equal(t, "1 = 0", render(t, "in", "integer", []any{}))
	assert.Equal(t, "1 = 1", render(t, "not_in", "integer", []any{}))
}

func TestStringMatchOperators(t *testing.T) {
	assert.Equal(t, "t.n LIKE ?1 ESCAPE '\\'", render(t, "startswith", "string", "foo"))
	assert.Equal(t, "t.n LIKE ?1 ESCAPE '\\'", render(t, "endswith", "string", "foo"))
	assert.Equal(t, "t.n LIKE ?1 ESCAPE '\\'", render(t, "contains", "string", "foo"))
}

func TestContainsOnJSONColumnUsesArrayMembership(t *testing.T) {
	sql := render(t, "contains", "json", 1)
	assert.Contains(t, sql, "json_each")
}

func TestIsOperator(t *testing.T) {
	assert.Equal(t, "t.n IS NULL", render(t, "is", "boolean", nil))
	assert.Equal(t, "t.n IS TRUE", render(t, "is", "boolean", true))
	assert.Equal(t, "t.n IS NOT FALSE", render(t, "is_not", "boolean", false))
}

func TestHasOperator(t *testing.T) {
	sql := render(t, "has", "json", "0.s")
	assert.Contains(t, sql, "json_extract(t.n, '$[0].s')")
	assert.Contains(t, sql, "IS NOT NULL")
}

func TestRegisterAndUnregisterOperator(t *testing.T) {
	h := ops.RegisterOperator(ops.Operator{
		Name: "scratch_test_op",
		Render: func(ctx ops.RenderContext, value any) (string, error) {
			return "1 = 1", nil
		},
	})
	assert.True(t, ops.IsOperator("scratch_test_op"))
	h.Close()
	assert.False(t, ops.IsOperator("scratch_test_op"))
}

func TestBuiltinFunctionsRender(t *testing.T) {
	lengthFn, ok := ops.LookupFunction("length")
	require.True(t, ok)
	adapter, _, err := dialect.Parse("sqlite:///x.db")
	require.NoError(t, err)
	sql, err := lengthFn.Render(ops.RenderContext{Adapter: adapter, ColumnExpr: "t.s", ColumnType: "string"})
	require.NoError(t, err)
	assert.Equal(t, "LENGTH(t.s)", sql)
}
