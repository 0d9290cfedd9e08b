package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type catalog map[string]map[string]string

func (c catalog) Relation(entity, name string) (string, bool) {
	target, ok := c[entity][name]
	return target, ok
}

var blog = catalog{
	"posts":    {"comments": "comments", "users": "users"},
	"comments": {"users": "users", "posts": "posts"},
}

func TestIncludeNone(t *testing.T) {
	c := Compiler{Catalog: blog}
	incs, err := c.Include("posts", RelationSpec{Fields: map[string][]string{"comments": {"id"}}})
	require.NoError(t, err)
	assert.Nil(t, incs)
}

func TestIncludeProjection(t *testing.T) {
	c := Compiler{Catalog: blog}
	incs, err := c.Include("posts", RelationSpec{
		Relations: []string{"comments"},
		Fields:    map[string][]string{"comments": {"id", "text"}},
	})
	require.NoError(t, err)
	require.Len(t, incs, 1)
	assert.Equal(t, Include{
		Relation:   "comments",
		Path:       "comments",
		Entity:     "comments",
		Attributes: []string{"id", "text"},
	}, incs[0])
}

func TestIncludeFilterAndSort(t *testing.T) {
	c := Compiler{Catalog: blog}
	incs, err := c.Include("posts", RelationSpec{
		Relations: []string{"users", "comments"},
		Filters:   map[string]any{"comments": mustDecode(t, `{"approved": {"eq": true}}`)},
		Sort:      map[string]string{"comments": "created_at:desc"},
	})
	require.NoError(t, err)
	require.Len(t, incs, 2)

	assert.Equal(t, "users", incs[0].Relation)
	assert.Nil(t, incs[0].Where)
	assert.False(t, incs[0].Required)

	assert.Equal(t, "comments", incs[1].Relation)
	assert.Equal(t, Comparison{Field: "approved", Op: OpEq, Value: true}, incs[1].Where)
	assert.True(t, incs[1].Required)
	assert.Equal(t, []Order{{Field: "created_at", Direction: Desc}}, incs[1].Order)
}

func TestIncludeUnknownRelation(t *testing.T) {
	c := Compiler{Catalog: blog}
	incs, err := c.Include("posts", RelationSpec{Relations: []string{"likes"}})
	require.NoError(t, err)
	require.Len(t, incs, 1)
	assert.Equal(t, "likes", incs[0].Relation)
	assert.Empty(t, incs[0].Entity)
}

func TestIncludeMalformedRelationFilter(t *testing.T) {
	c := Compiler{Catalog: blog}
	_, err := c.Include("posts", RelationSpec{
		Relations: []string{"comments"},
		Filters:   map[string]any{"comments": mustDecode(t, `{"a": {"eq": 1}, "b": {"eq": 1}}`)},
	})
	assert.True(t, IsMalformedFilter(err))
}

func TestIncludeNested(t *testing.T) {
	spec := RelationSpec{
		Relations: []string{"comments", "comments.users"},
		Fields:    map[string][]string{"comments.users": {"id", "name"}},
	}

	t.Run("depth guard", func(t *testing.T) {
		c := Compiler{Catalog: blog}
		_, err := c.Include("posts", spec)
		assert.True(t, errors.Is(err, ErrIncludeDepth))
	})

	t.Run("nests under parent", func(t *testing.T) {
		c := Compiler{Catalog: blog, MaxIncludeDepth: 2}
		incs, err := c.Include("posts", spec)
		require.NoError(t, err)
		require.Len(t, incs, 1)
		require.Len(t, incs[0].Include, 1)
		child := incs[0].Include[0]
		assert.Equal(t, "users", child.Relation)
		assert.Equal(t, "comments.users", child.Path)
		assert.Equal(t, "users", child.Entity)
		assert.Equal(t, []string{"id", "name"}, child.Attributes)
	})

	t.Run("creates missing parent", func(t *testing.T) {
		c := Compiler{Catalog: blog, MaxIncludeDepth: 2}
		incs, err := c.Include("posts", RelationSpec{Relations: []string{"comments.users"}})
		require.NoError(t, err)
		require.Len(t, incs, 1)
		assert.Equal(t, "comments", incs[0].Relation)
		require.Len(t, incs[0].Include, 1)
		assert.Equal(t, "users", incs[0].Include[0].Relation)
	})
}

func TestCompileEndToEnd(t *testing.T) {
	var c Compiler
	d, page, err := c.Compile("people", Input{
		Filters:  mustDecode(t, `{"and":[{"age":{"gte":"18"}},{"age":{"lt":"65"}}]}`),
		Sort:     "age:asc",
		Page:     "2",
		PageSize: "5",
	})
	require.NoError(t, err)
	assert.Equal(t, Junction{Op: And, Terms: []Predicate{
		Comparison{Field: "age", Op: OpGte, Value: "18"},
		Comparison{Field: "age", Op: OpLt, Value: "65"},
	}}, d.Where)
	assert.Equal(t, []Order{{Field: "age", Direction: Asc}}, d.Order)
	assert.Equal(t, 5, d.Limit)
	assert.Equal(t, 5, d.Offset)
	assert.Equal(t, 3, PageCount(12, page.PageSize))

	again, _, err := c.Compile("people", Input{
		Filters:  mustDecode(t, `{"and":[{"age":{"gte":"18"}},{"age":{"lt":"65"}}]}`),
		Sort:     "age:asc",
		Page:     "2",
		PageSize: "5",
	})
	require.NoError(t, err)
	assert.Equal(t, d, again)
}

func TestCompileWithoutPages(t *testing.T) {
	var c Compiler
	d, _, err := c.Compile("people", Input{Page: "3", WithoutPages: true})
	require.NoError(t, err)
	assert.Zero(t, d.Limit)
	assert.Zero(t, d.Offset)
}
