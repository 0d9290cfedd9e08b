package rest

import (
	"testing"

	"github.com/edgeflare/pgapi/pkg/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Params
	}{
		{
			name:  "empty",
			query: "",
			want:  Params{},
		},
		{
			name:  "scalars",
			query: "sort=title:asc&page=2&pageSize=25",
			want:  Params{Sort: "title:asc", Page: "2", PageSize: "25"},
		},
		{
			name:  "repeated scalar keeps the last value",
			query: "sort=id&sort=title:desc",
			want:  Params{Sort: "title:desc"},
		},
		{
			name:  "comma separated lists",
			query: "fields=id,%20title,&relations=comments",
			want:  Params{Fields: []string{"id", "title"}, Relations: []string{"comments"}},
		},
		{
			name:  "bracket and repeated lists",
			query: "fields[]=id&fields[]=title&relations=a&relations=b",
			want:  Params{Fields: []string{"id", "title"}, Relations: []string{"a", "b"}},
		},
		{
			name:  "empty list means absent",
			query: "fields=",
			want:  Params{},
		},
		{
			name:  "relation parameters",
			query: "relationFields[comments]=id,body&relationFields[author][]=name&relationSort[comments]=id:desc",
			want: Params{
				RelationFields: map[string][]string{"comments": {"id", "body"}, "author": {"name"}},
				RelationSort:   map[string]string{"comments": "id:desc"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParamsFilters(t *testing.T) {
	t.Run("bracket syntax keeps key order", func(t *testing.T) {
		p, err := ParseParams("filters[age][lte]=65&filters[age][gte]=18")
		require.NoError(t, err)

		root, ok := p.Filters.(*query.Object)
		require.True(t, ok)
		age, _ := root.Get("age")
		assert.Equal(t, []string{"lte", "gte"}, age.(*query.Object).Keys())
	})

	t.Run("indices become lists", func(t *testing.T) {
		p, err := ParseParams("filters[or][1][b][eq]=2&filters[or][0][a][eq]=1&filters[id][in][]=1")
		require.NoError(t, err)

		root := p.Filters.(*query.Object)
		or, _ := root.Get("or")
		list, ok := or.([]any)
		require.True(t, ok)
		require.Len(t, list, 2)
		assert.Equal(t, map[string]any{"a": map[string]any{"eq": "1"}}, query.Plain(list[0]))
		assert.Equal(t, map[string]any{"b": map[string]any{"eq": "2"}}, query.Plain(list[1]))

		id, _ := root.Get("id")
		assert.Equal(t, map[string]any{"in": []any{"1"}}, query.Plain(id))
	})

	t.Run("json document", func(t *testing.T) {
		p, err := ParseParams(`filters=%7B%22and%22%3A%5B%7B%22age%22%3A%7B%22gte%22%3A18%7D%7D%5D%7D`)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"and": []any{map[string]any{"age": map[string]any{"gte": float64(18)}}},
		}, query.Plain(p.Filters))
	})

	t.Run("relation filters", func(t *testing.T) {
		p, err := ParseParams(`relationFilters[comments][approved][eq]=true&relationFilters[author]=%7B%22name%22%3A%7B%22eq%22%3A%22ann%22%7D%7D`)
		require.NoError(t, err)
		require.Len(t, p.RelationFilters, 2)
		assert.Equal(t, map[string]any{"approved": map[string]any{"eq": "true"}}, query.Plain(p.RelationFilters["comments"]))
		assert.Equal(t, map[string]any{"name": map[string]any{"eq": "ann"}}, query.Plain(p.RelationFilters["author"]))
	})

	t.Run("empty filter", func(t *testing.T) {
		p, err := ParseParams("filters=")
		require.NoError(t, err)
		assert.Nil(t, p.Filters)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseParams("filters=%7B")
		assert.Error(t, err)
	})

	t.Run("invalid escape", func(t *testing.T) {
		_, err := ParseParams("filters[a][eq]=%zz")
		assert.Error(t, err)
	})
}

func TestSplitKey(t *testing.T) {
	assert.Equal(t, []string{"a"}, splitKey("a"))
	assert.Equal(t, []string{"a", "b", "0", ""}, splitKey("a[b][0][]"))
	assert.Equal(t, []string{"a", "b]x"}, splitKey("a[b]]x"))
	assert.Equal(t, []string{"a[b[c"}, splitKey("a[b[c"))
	assert.Equal(t, []string{"[a]"}, splitKey("[a]"))
}
