package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSort(t *testing.T) {
	var c Compiler
	tests := []struct {
		in   string
		want []Order
	}{
		{"", nil},
		{"name:desc", []Order{{Field: "name", Direction: Desc}}},
		{"name:asc", []Order{{Field: "name", Direction: Asc}}},
		{"name:DeSc", []Order{{Field: "name", Direction: Desc}}},
		{"desc:name", []Order{{Field: "name", Direction: Desc}}},
		{"name", []Order{{Field: "name", Direction: ""}}},
		{"name:NULLS FIRST", []Order{{Field: "name", Direction: "NULLS FIRST"}}},
		{"created_at:desc:extra", []Order{{Field: "created_at", Direction: "desc:extra"}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Sort(tt.in))
		})
	}
}
