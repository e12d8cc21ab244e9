package tunqi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tunqi-go/tunqi"
)

// Mirrors original_source/tests/async/core/test_query.py's
// q(...)/&/|/~ rendering table.
func TestQueryRenderMatchesSourceRenderingTable(t *testing.T) {
	cases := []struct {
		name string
		q    *tunqi.Query
		want string
	}{
		{"eq", tunqi.Keywords("n", 1), "n == 1"},
		{"gt", tunqi.Q().Gt("n", 4), "n > 4"},
		{"not gt", tunqi.Not(tunqi.Q().Gt("n", 4)), "not n > 4"},
		{"double negation cancels", tunqi.Not(tunqi.Not(tunqi.Q().Gt("n", 4))), "n > 4"},
		{"and of two keywords", tunqi.Keywords("n__ge", 1, "n__le", 5), "n >= 1 and n <= 5"},
		{"or", tunqi.Q().Lt("n", 1).Or(tunqi.Q().Gt("n", 5)), "n < 1 or n > 5"},
		{
			"not of or parenthesizes",
			tunqi.Not(tunqi.Q().Lt("n", 1).Or(tunqi.Q().Gt("n", 5))),
			"not (n < 1 or n > 5)",
		},
		{
			"and of leaf and not-or",
			tunqi.Q().Ge("n", 1).And(tunqi.Not(tunqi.Q().Lt("n", 1).Or(tunqi.Q().Gt("n", 5)))),
			"n >= 1 and not (n < 1 or n > 5)",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.q.Render())
		})
	}
}

func TestPathBuilderMatchesShorthandForm(t *testing.T) {
	shorthand := tunqi.Q().StartsWith("posts.commentary.content", "comment 1")
	viaPath := tunqi.Q().Path("posts.commentary.content").StartsWith("comment 1")
	assert.Equal(t, shorthand.Render(), viaPath.Render())
}

func TestEmptyQueryRendersEmpty(t *testing.T) {
	assert.Equal(t, "", tunqi.Q().Render())
	assert.Equal(t, "", (*tunqi.Query)(nil).Render())
}

func TestOperatorMethodsCoverTheFullVocabulary(t *testing.T) {
	for _, op := range []func(*tunqi.Query) *tunqi.Query{
		func(q *tunqi.Query) *tunqi.Query { return q.Eq("n", 1) },
		func(q *tunqi.Query) *tunqi.Query { return q.Ne("n", 1) },
		func(q *tunqi.Query) *tunqi.Query { return q.Lt("n", 1) },
		func(q *tunqi.Query) *tunqi.Query { return q.Le("n", 1) },
		func(q *tunqi.Query) *tunqi.Query { return q.Gt("n", 1) },
		func(q *tunqi.Query) *tunqi.Query { return q.Ge("n", 1) },
		func(q *tunqi.Query) *tunqi.Query { return q.In("n", []int{1, 2}) },
		func(q *tunqi.Query) *tunqi.Query { return q.NotIn("n", []int{1, 2}) },
		func(q *tunqi.Query) *tunqi.Query { return q.Contains("tags", "x") },
		func(q *tunqi.Query) *tunqi.Query { return q.StartsWith("s", "x") },
		func(q *tunqi.Query) *tunqi.Query { return q.EndsWith("s", "x") },
		func(q *tunqi.Query) *tunqi.Query { return q.Like("s", "x%") },
		func(q *tunqi.Query) *tunqi.Query { return q.NotLike("s", "x%") },
		func(q *tunqi.Query) *tunqi.Query { return q.Matches("s", "^x") },
		func(q *tunqi.Query) *tunqi.Query { return q.Is("n", nil) },
		func(q *tunqi.Query) *tunqi.Query { return q.IsNot("n", nil) },
		func(q *tunqi.Query) *tunqi.Query { return q.Has("d", "k") },
	} {
		rendered := op(tunqi.Q()).Render()
		assert.NotEmpty(t, rendered)
	}
}
