package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONKeepsOrder(t *testing.T) {
	v, err := DecodeJSON([]byte(`{"z": 1, "a": {"lt": 2, "gt": [1, "x", null, true]}, "m": "s"}`))
	require.NoError(t, err)
	obj, ok := v.(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	inner, _ := obj.Get("a")
	assert.Equal(t, []string{"lt", "gt"}, inner.(*Object).Keys())

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":{"lt":2,"gt":[1,"x",null,true]},"m":"s"}`, string(out))

	assert.Equal(t, map[string]any{
		"z": float64(1),
		"a": map[string]any{"lt": float64(2), "gt": []any{float64(1), "x", nil, true}},
		"m": "s",
	}, obj.Plain())
}

func TestDecodeJSONErrors(t *testing.T) {
	for _, in := range []string{``, `{"a":`, `{"a": 1} {}`, `[1,]`} {
		_, err := DecodeJSON([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestObjectSetKeepsPosition(t *testing.T) {
	o := NewObject()
	o.Set("a", 1)
	o.Set("b", 2)
	o.Set("a", 3)
	assert.Equal(t, []string{"a", "b"}, o.Keys())
	v, _ := o.Get("a")
	assert.Equal(t, 3, v)
	assert.Equal(t, 2, o.Len())
}
