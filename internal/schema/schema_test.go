package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunqi-go/tunqi/internal/schema"
)

func newRegistryWithT(t *testing.T) *schema.Registry {
	t.Helper()
	r := schema.New()
	require.NoError(t, r.AddTable("t", schema.TableSpec{
		Columns: []schema.ColumnSpec{
			{Name: "n", Type: "integer"},
		},
	}))
	return r
}

func TestAddTableAcceptsDefaultAndExplicitPlural(t *testing.T) {
	r := newRegistryWithT(t)
	require.NoError(t, r.AddTable("a", schema.TableSpec{
		Columns: []schema.ColumnSpec{{Name: "n", Type: "integer"}},
	}))
	require.NoError(t, r.AddTable("b", schema.TableSpec{
		Plural:  "bi",
		Columns: []schema.ColumnSpec{{Name: "s", Type: "string"}},
	}))
	assert.Contains(t, r.AvailableTables(), "a")
	assert.Contains(t, r.AvailableTables(), "b")
}

func TestAddTableAlreadyExists(t *testing.T) {
	r := newRegistryWithT(t)
	require.NoError(t, r.AddTable("a", schema.TableSpec{Columns: []schema.ColumnSpec{{Name: "n", Type: "integer"}}}))
	err := r.AddTable("a", schema.TableSpec{Columns: []schema.ColumnSpec{{Name: "s", Type: "string"}}})
	require.Error(t, err)
	assert.Equal(t, "table 'a' already exists", err.Error())
}

func TestRelationsOfExplicitAndInferred(t *testing.T) {
	r := newRegistryWithT(t)
	require.NoError(t, r.AddTable("user", schema.TableSpec{
		Columns: []schema.ColumnSpec{{Name: "name", Type: "string"}},
	}))
	require.NoError(t, r.AddTable("post", schema.TableSpec{
		Columns: []schema.ColumnSpec{
			{Name: "user", Type: "fk", Table: "user"},
			{Name: "content", Type: "string"},
			{Name: "commentary", Type: "backref", Table: "comment"},
			{Name: "tagging", Type: "m2m", Table: "tag"},
		},
	}))
	require.NoError(t, r.AddTable("comment", schema.TableSpec{
		Columns: []schema.ColumnSpec{
			{Name: "post", Type: "fk", Table: "post"},
			{Name: "content", Type: "string"},
		},
	}))
	require.NoError(t, r.AddTable("tag", schema.TableSpec{
		Columns: []schema.ColumnSpec{
			{Name: "name", Type: "string"},
			{Name: "posts", Type: "m2m", Table: "post"},
		},
	}))

	userRels, err := r.RelationsOf("user")
	require.NoError(t, err)
	names := relNames(userRels)
	assert.Equal(t, []string{"posts"}, names)

	postRels, err := r.RelationsOf("post")
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "commentary", "tagging"}, relNames(postRels))

	commentRels, err := r.RelationsOf("comment")
	require.NoError(t, err)
	assert.Equal(t, []string{"post"}, relNames(commentRels))

	tagRels, err := r.RelationsOf("tag")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts"}, relNames(tagRels))
}

func TestRelationsOfInvalidForeignKeyTarget(t *testing.T) {
	r := newRegistryWithT(t)
	require.NoError(t, r.AddTable("comment", schema.TableSpec{
		Columns: []schema.ColumnSpec{
			{Name: "post", Type: "fk", Table: "post"},
			{Name: "content", Type: "string"},
		},
	}))
	_, err := r.RelationsOf("comment")
	require.Error(t, err)
	assert.Equal(t, "table 'post' referenced by foreign key 'comment.post' doesn't exist (available tables are t and comment)", err.Error())
}

func TestGetTableDoesNotExist(t *testing.T) {
	r := newRegistryWithT(t)
	_, err := r.RelationsOf("a")
	require.Error(t, err)
	assert.Equal(t, "table 'a' doesn't exist (available tables are t)", err.Error())
}

func relNames(rels []schema.Relation) []string {
	out := make([]string, len(rels))
	for i, rel := range rels {
		out[i] = rel.Name
	}
	return out
}
