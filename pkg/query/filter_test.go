package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := DecodeJSON([]byte(s))
	require.NoError(t, err)
	return v
}

func TestFilterNil(t *testing.T) {
	var c Compiler
	p, err := c.Filter(nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = c.Filter(mustDecode(t, `{}`))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestFilterSingleField(t *testing.T) {
	var c Compiler
	p, err := c.Filter(mustDecode(t, `{"age": {"gte": 18}}`))
	require.NoError(t, err)
	assert.Equal(t, Comparison{Field: "age", Op: OpGte, Value: float64(18)}, p)
}

func TestFilterMultipleRootKeys(t *testing.T) {
	var c Compiler
	_, err := c.Filter(mustDecode(t, `{"a": {"eq": 1}, "b": {"eq": 2}}`))
	require.Error(t, err)
	assert.True(t, IsMalformedFilter(err))
	assert.Contains(t, err.Error(), "single root property")

	_, err = c.Filter(map[string]any{"and": []any{}, "or": []any{}})
	assert.True(t, IsMalformedFilter(err))
}

func TestFilterBooleanGroup(t *testing.T) {
	var c Compiler
	raw := `{"and": [{"age": {"gte": "18"}}, {"age": {"lt": "65"}}]}`
	p, err := c.Filter(mustDecode(t, raw))
	require.NoError(t, err)
	assert.Equal(t, Junction{Op: And, Terms: []Predicate{
		Comparison{Field: "age", Op: OpGte, Value: "18"},
		Comparison{Field: "age", Op: OpLt, Value: "65"},
	}}, p)
}

func TestFilterGroupEntryWithSeveralFields(t *testing.T) {
	var c Compiler
	raw := `{"or": [{"name": {"startsWith": "A"}, "active": {"eq": true}}, {"role": {"in": ["admin", "owner"]}}]}`
	p, err := c.Filter(mustDecode(t, raw))
	require.NoError(t, err)
	assert.Equal(t, Junction{Op: Or, Terms: []Predicate{
		Junction{Op: And, Terms: []Predicate{
			Comparison{Field: "name", Op: OpStartsWith, Value: "A"},
			Comparison{Field: "active", Op: OpEq, Value: true},
		}},
		Comparison{Field: "role", Op: OpIn, Value: []any{"admin", "owner"}},
	}}, p)
}

func TestFilterRepeatedOperators(t *testing.T) {
	raw := `{"age": {"gte": 18, "lt": 65}}`

	t.Run("last wins by default", func(t *testing.T) {
		var c Compiler
		p, err := c.Filter(mustDecode(t, raw))
		require.NoError(t, err)
		assert.Equal(t, Comparison{Field: "age", Op: OpLt, Value: float64(65)}, p)
	})

	t.Run("order of keys decides", func(t *testing.T) {
		var c Compiler
		p, err := c.Filter(mustDecode(t, `{"age": {"lt": 65, "gte": 18}}`))
		require.NoError(t, err)
		assert.Equal(t, Comparison{Field: "age", Op: OpGte, Value: float64(18)}, p)
	})

	t.Run("conjoin keeps all", func(t *testing.T) {
		c := Compiler{Merge: MergeConjoin}
		p, err := c.Filter(mustDecode(t, raw))
		require.NoError(t, err)
		assert.Equal(t, Junction{Op: And, Terms: []Predicate{
			Comparison{Field: "age", Op: OpGte, Value: float64(18)},
			Comparison{Field: "age", Op: OpLt, Value: float64(65)},
		}}, p)
	})

	t.Run("inside a group entry", func(t *testing.T) {
		var c Compiler
		p, err := c.Filter(mustDecode(t, `{"and": [{"age": {"gte": 18, "lt": 65}}]}`))
		require.NoError(t, err)
		assert.Equal(t, Junction{Op: And, Terms: []Predicate{
			Comparison{Field: "age", Op: OpLt, Value: float64(65)},
		}}, p)
	})
}

func TestFilterNestedGroups(t *testing.T) {
	var c Compiler
	raw := `{"or": [{"and": [{"a": {"eq": 1}}, {"b": {"eq": 2}}]}, {"c": {"eq": 3}}]}`
	p, err := c.Filter(mustDecode(t, raw))
	require.NoError(t, err)
	assert.Equal(t, Junction{Op: Or, Terms: []Predicate{
		Junction{Op: And, Terms: []Predicate{
			Comparison{Field: "a", Op: OpEq, Value: float64(1)},
			Comparison{Field: "b", Op: OpEq, Value: float64(2)},
		}},
		Comparison{Field: "c", Op: OpEq, Value: float64(3)},
	}}, p)

	deep := `{"and": [{"and": [{"and": [{"and": [{"and": [{"a": {"eq": 1}}]}]}]}]}]}`
	_, err = c.Filter(mustDecode(t, deep))
	assert.True(t, IsMalformedFilter(err))
}

func TestFilterMalformedShapes(t *testing.T) {
	var c Compiler
	tests := []struct {
		name string
		raw  any
		path string
	}{
		{"root not object", "age", ""},
		{"group not list", mustDecode(t, `{"and": {"a": {"eq": 1}}}`), "and"},
		{"entry not object", mustDecode(t, `{"or": [1]}`), "or[0]"},
		{"field not object", mustDecode(t, `{"age": 18}`), "age"},
		{"entry field not object", mustDecode(t, `{"and": [{"age": [1]}]}`), "and[0].age"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Filter(tt.raw)
			var mf *MalformedFilterError
			require.ErrorAs(t, err, &mf)
			assert.Equal(t, tt.path, mf.Path)
		})
	}
}

func TestFilterUnknownOperator(t *testing.T) {
	raw := `{"age": {"around": 18}}`

	var lax Compiler
	p, err := lax.Filter(mustDecode(t, raw))
	require.NoError(t, err)
	cmp, ok := p.(Comparison)
	require.True(t, ok)
	assert.Equal(t, Operator("around"), cmp.Op)
	assert.False(t, cmp.Op.Known())

	strict := Compiler{Strict: true}
	_, err = strict.Filter(mustDecode(t, raw))
	assert.True(t, IsMalformedFilter(err))
}

func TestFilterPlainMap(t *testing.T) {
	var c Compiler
	p, err := c.Filter(map[string]any{"or": []any{
		map[string]any{"b": map[string]any{"eq": 2}, "a": map[string]any{"eq": 1}},
	}})
	require.NoError(t, err)
	// plain maps are visited in sorted key order
	assert.Equal(t, []string{"a", "b"}, Fields(p))
}

func TestFilterEmptyGroups(t *testing.T) {
	for _, tt := range []struct {
		raw  string
		want Predicate
	}{
		{`{"or": []}`, nil},
		{`{"and": []}`, nil},
		{`{"or": [{}]}`, nil},
		{`{"or": [{}, {"a": {"eq": 1}}]}`, nil},
		{`{"or": [{"a": {}}, {"a": {"eq": 1}}]}`, nil},
		{`{"and": [{}, {"a": {"eq": 1}}]}`, Junction{Op: And, Terms: []Predicate{
			Comparison{Field: "a", Op: OpEq, Value: float64(1)},
		}}},
		{`{"and": [{"or": []}, {"a": {"eq": 1}}]}`, Junction{Op: And, Terms: []Predicate{
			Comparison{Field: "a", Op: OpEq, Value: float64(1)},
		}}},
	} {
		var c Compiler
		p, err := c.Filter(mustDecode(t, tt.raw))
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, p, tt.raw)
	}
}

func TestFilterEmptyField(t *testing.T) {
	var c Compiler
	p, err := c.Filter(mustDecode(t, `{"age": {}}`))
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestOperatorClasses(t *testing.T) {
	want := map[Class][]Operator{
		ClassEquality: {OpEq, OpNe, OpIs, OpNot, OpCol},
		ClassRange:    {OpGt, OpGte, OpLt, OpLte, OpBetween, OpNotBetween},
		ClassSet:      {OpAll, OpIn, OpNotIn},
		ClassPattern: {OpLike, OpNotLike, OpStartsWith, OpEndsWith, OpSubstring, OpILike,
			OpNotILike, OpRegexp, OpNotRegexp, OpIRegexp, OpNotIRegexp},
		ClassMatch: {OpAny, OpMatch},
	}
	total := 0
	for class, ops := range want {
		for _, op := range ops {
			assert.Equal(t, class, op.Class(), op)
		}
		total += len(ops)
	}
	assert.Len(t, Operators(), total)
	assert.Equal(t, ClassUnknown, Operator("EQ").Class())
}
