package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunqi-go/tunqi/internal/compiler"
	"github.com/tunqi-go/tunqi/internal/dialect"
	"github.com/tunqi-go/tunqi/internal/filter"
	"github.com/tunqi-go/tunqi/internal/schema"
	"github.com/tunqi-go/tunqi/internal/selector"
)

func newUserPostRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.New()
	require.NoError(t, r.AddTable("user", schema.TableSpec{
		Columns: []schema.ColumnSpec{{Name: "name", Type: "string"}},
	}))
	require.NoError(t, r.AddTable("post", schema.TableSpec{
		Columns: []schema.ColumnSpec{
			{Name: "user", Type: "fk", Table: "user"},
			{Name: "content", Type: "string"},
		},
	}))
	return r
}

func sqliteAdapter(t *testing.T) dialect.Adapter {
	t.Helper()
	adapter, _, err := dialect.Parse("sqlite:///test.db")
	require.NoError(t, err)
	return adapter
}

func postgresAdapter(t *testing.T) dialect.Adapter {
	t.Helper()
	adapter, _, err := dialect.Parse("postgresql://u:p@h:5432/d")
	require.NoError(t, err)
	return adapter
}

func mysqlAdapter(t *testing.T) dialect.Adapter {
	t.Helper()
	adapter, _, err := dialect.Parse("mysql://u:p@h:3306/d")
	require.NoError(t, err)
	return adapter
}

func TestCompileSelectDefaultColumns(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, cols, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{Table: "user"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pk", "name"}, keysOf(cols))
	assert.Equal(t, `SELECT "user"."pk", "user"."name" FROM "user" AS "user"`, plan.SQL)
	assert.Empty(t, plan.Args)
}

func TestCompileSelectWithFilterBindsArgsInTextOrder(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	f := filter.AndOf(
		filter.NewLeaf("name", "eq", "ann"),
	)
	plan, _, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{Table: "user", Filter: f})
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `WHERE "user"."name" = ?`)
	assert.Equal(t, []any{"ann"}, plan.Args)
}

func TestCompileSelectThroughBackrefFilterUsesInnerJoinAndDedups(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	f := filter.NewLeaf("posts__content", "startswith", "hi")
	plan, cols, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{Table: "user", Filter: f})
	require.NoError(t, err)
	assert.Equal(t, []string{"pk", "name"}, keysOf(cols))
	assert.Contains(t, plan.SQL, "SELECT DISTINCT")
	assert.Contains(t, plan.SQL, `INNER JOIN "post" AS "posts" ON "posts"."user" = "user"."pk"`)
	assert.Contains(t, plan.SQL, `WHERE "posts"."content" LIKE ?`)
}

func TestCompileSelectRelationAllSelectorExpandsColumnsAndSkipsDedup(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	req := compiler.SelectRequest{
		Table:     "user",
		Selectors: []selector.Node{selector.C("name"), &selector.RelationAll{RelationPath: "posts"}},
		Filter:    filter.NewLeaf("posts__content", "startswith", "hi"),
	}
	plan, cols, err := compiler.CompileSelect(reg, adapter, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "posts.pk", "posts.user", "posts.content"}, keysOf(cols))
	assert.NotContains(t, plan.SQL, "DISTINCT")
}

func TestCompileSelectOrderByDescAndLimitOffset(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)
	limit, offset := 10, 5

	plan, _, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{
		Table: "user",
		Order: []string{"-name"},
		Limit: &limit, Offset: &offset,
	})
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `ORDER BY "user"."name" DESC`)
	assert.Contains(t, plan.SQL, "LIMIT 10")
	assert.Contains(t, plan.SQL, "OFFSET 5")
}

func TestCompileExists(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileExists(reg, adapter, "user", filter.NewLeaf("name", "eq", "ann"))
	require.NoError(t, err)
	assert.Equal(t, `SELECT EXISTS(SELECT 1 FROM "user" AS "user" WHERE "user"."name" = ?)`, plan.SQL)
	assert.Equal(t, []any{"ann"}, plan.Args)
}

func TestCompileCountPlainNoJoin(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileCount(reg, adapter, "user", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "user" AS "user"`, plan.SQL)
}

func TestCompileCountDedupsOnPKWhenJoinMayMultiplyRows(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileCount(reg, adapter, "user", nil, filter.NewLeaf("posts__content", "startswith", "hi"))
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `SELECT DISTINCT "user"."pk" FROM`)
	assert.Contains(t, plan.SQL, "SELECT COUNT(*) FROM (")
}

func TestCompileCountWithExplicitDistinctColumn(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileCount(reg, adapter, "user", []string{"name"}, nil)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `SELECT DISTINCT "user"."name" FROM`)
}

func TestCompileUpdateSimpleNoJoin(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileUpdate(reg, adapter, "user", filter.NewLeaf("pk", "eq", 1),
		[]compiler.Assignment{{Column: "name", Value: "bob"}})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "user" SET "name" = ? WHERE "user"."pk" = ?`, plan.SQL)
	assert.Equal(t, []any{"bob", 1}, plan.Args)
}

func TestCompileUpdateThroughJoinUsesPKSubquery(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileUpdate(reg, adapter, "user", filter.NewLeaf("posts__content", "eq", "hi"),
		[]compiler.Assignment{{Column: "name", Value: "bob"}})
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `UPDATE "user" SET "name" = ? WHERE "user"."pk" IN (SELECT DISTINCT "user"."pk" FROM`)
	assert.Equal(t, []any{"bob", "hi"}, plan.Args)
}

func TestCompileUpdateWithComputedExpression(t *testing.T) {
	reg := schema.New()
	require.NoError(t, reg.AddTable("t", schema.TableSpec{
		Columns: []schema.ColumnSpec{{Name: "n", Type: "integer"}},
	}))
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileUpdate(reg, adapter, "t", nil,
		[]compiler.Assignment{{Column: "n", Expr: selector.C("n").Add(1)}})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "t" SET "n" = ("t"."n" + ?)`, plan.SQL)
	assert.Equal(t, []any{1}, plan.Args)
}

func TestCompileDeleteSimpleNoJoin(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileDelete(reg, adapter, "user", filter.NewLeaf("pk", "eq", 1))
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "user" WHERE "user"."pk" = ?`, plan.SQL)
	assert.Equal(t, []any{1}, plan.Args)
}

func TestCompileDeleteThroughJoinUsesPKSubquery(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	plan, err := compiler.CompileDelete(reg, adapter, "user", filter.NewLeaf("posts__content", "eq", "hi"))
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `DELETE FROM "user" WHERE "user"."pk" IN (SELECT DISTINCT "user"."pk" FROM`)
}

func TestCompileSelectUnknownColumnErrorEmbedsAvailableSelectors(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := sqliteAdapter(t)

	_, _, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{
		Table:     "user",
		Selectors: []selector.Node{selector.C("bogus")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table 'user' has no column 'bogus'")
	assert.Contains(t, err.Error(), "(available selectors are pk, name and posts)")
}

// Postgres/MySQL emission below mirrors the sqlite cases above but asserts
// the dialect-specific identifier quoting, placeholder style, JSON accessor
// form and pk-subquery join fallback that only show up off sqlite.

func TestCompileSelectThroughBackrefFilterUsesInnerJoinAndDedups_Postgres(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := postgresAdapter(t)

	f := filter.NewLeaf("posts__content", "startswith", "hi")
	plan, cols, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{Table: "user", Filter: f})
	require.NoError(t, err)
	assert.Equal(t, []string{"pk", "name"}, keysOf(cols))
	assert.Contains(t, plan.SQL, "SELECT DISTINCT")
	assert.Contains(t, plan.SQL, `INNER JOIN "post" AS "posts" ON "posts"."user" = "user"."pk"`)
	assert.Contains(t, plan.SQL, `WHERE "posts"."content" LIKE $1 ESCAPE '\'`)
}

func TestCompileSelectThroughBackrefFilterUsesInnerJoinAndDedups_MySQL(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := mysqlAdapter(t)

	f := filter.NewLeaf("posts__content", "startswith", "hi")
	plan, cols, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{Table: "user", Filter: f})
	require.NoError(t, err)
	assert.Equal(t, []string{"pk", "name"}, keysOf(cols))
	assert.Contains(t, plan.SQL, "SELECT DISTINCT")
	assert.Contains(t, plan.SQL, "INNER JOIN `post` AS `posts` ON `posts`.`user` = `user`.`pk`")
	assert.Contains(t, plan.SQL, "WHERE `posts`.`content` LIKE ? ESCAPE '\\'")
}

func TestCompileUpdateThroughJoinUsesPKSubquery_Postgres(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := postgresAdapter(t)

	plan, err := compiler.CompileUpdate(reg, adapter, "user", filter.NewLeaf("posts__content", "eq", "hi"),
		[]compiler.Assignment{{Column: "name", Value: "bob"}})
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `UPDATE "user" SET "name" = $1 WHERE "user"."pk" IN (SELECT DISTINCT "user"."pk" FROM`)
	assert.Equal(t, []any{"bob", "hi"}, plan.Args)
}

func TestCompileUpdateThroughJoinUsesPKSubquery_MySQL(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := mysqlAdapter(t)

	plan, err := compiler.CompileUpdate(reg, adapter, "user", filter.NewLeaf("posts__content", "eq", "hi"),
		[]compiler.Assignment{{Column: "name", Value: "bob"}})
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "UPDATE `user` SET `name` = ? WHERE `user`.`pk` IN (SELECT DISTINCT `user`.`pk` FROM")
	assert.Equal(t, []any{"bob", "hi"}, plan.Args)
}

func TestCompileDeleteThroughJoinUsesPKSubquery_Postgres(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := postgresAdapter(t)

	plan, err := compiler.CompileDelete(reg, adapter, "user", filter.NewLeaf("posts__content", "eq", "hi"))
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `DELETE FROM "user" WHERE "user"."pk" IN (SELECT DISTINCT "user"."pk" FROM`)
	assert.Equal(t, []any{"hi"}, plan.Args)
}

func TestCompileDeleteThroughJoinUsesPKSubquery_MySQL(t *testing.T) {
	reg := newUserPostRegistry(t)
	adapter := mysqlAdapter(t)

	plan, err := compiler.CompileDelete(reg, adapter, "user", filter.NewLeaf("posts__content", "eq", "hi"))
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "DELETE FROM `user` WHERE `user`.`pk` IN (SELECT DISTINCT `user`.`pk` FROM")
	assert.Equal(t, []any{"hi"}, plan.Args)
}

func TestCompileSelectJSONPath_Postgres(t *testing.T) {
	reg := schema.New()
	require.NoError(t, reg.AddTable("t", schema.TableSpec{
		Columns: []schema.ColumnSpec{{Name: "d", Type: "json"}},
	}))
	adapter := postgresAdapter(t)

	plan, cols, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{
		Table:     "t",
		Selectors: []selector.Node{selector.C("d.a.b")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d.a.b"}, keysOf(cols))
	assert.Contains(t, plan.SQL, `"t"."d" -> 'a' ->> 'b'`)
}

func TestCompileSelectJSONPath_MySQL(t *testing.T) {
	reg := schema.New()
	require.NoError(t, reg.AddTable("t", schema.TableSpec{
		Columns: []schema.ColumnSpec{{Name: "d", Type: "json"}},
	}))
	adapter := mysqlAdapter(t)

	plan, cols, err := compiler.CompileSelect(reg, adapter, compiler.SelectRequest{
		Table:     "t",
		Selectors: []selector.Node{selector.C("d.a.b")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"d.a.b"}, keysOf(cols))
	assert.Contains(t, plan.SQL, "JSON_UNQUOTE(JSON_EXTRACT(`t`.`d`, '$.a.b'))")
}

func TestCompileUpdateStringConcatAssignment_Postgres(t *testing.T) {
	reg := schema.New()
	require.NoError(t, reg.AddTable("t", schema.TableSpec{
		Columns: []schema.ColumnSpec{{Name: "s", Type: "string"}},
	}))
	adapter := postgresAdapter(t)

	plan, err := compiler.CompileUpdate(reg, adapter, "t", nil,
		[]compiler.Assignment{{Column: "s", Expr: selector.C("s").Add("!")}})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "t" SET "s" = "t"."s" || $1`, plan.SQL)
	assert.Equal(t, []any{"!"}, plan.Args)
}

func TestCompileUpdateStringConcatAssignment_MySQL(t *testing.T) {
	reg := schema.New()
	require.NoError(t, reg.AddTable("t", schema.TableSpec{
		Columns: []schema.ColumnSpec{{Name: "s", Type: "string"}},
	}))
	adapter := mysqlAdapter(t)

	plan, err := compiler.CompileUpdate(reg, adapter, "t", nil,
		[]compiler.Assignment{{Column: "s", Expr: selector.C("s").Add("!")}})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE `t` SET `s` = CONCAT(`t`.`s`, ?)", plan.SQL)
	assert.Equal(t, []any{"!"}, plan.Args)
}

func keysOf(cols []compiler.OutputColumn) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Key
	}
	return out
}
