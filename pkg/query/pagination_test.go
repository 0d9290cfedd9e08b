package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		name           string
		page, pageSize string
		limit, offset  int
	}{
		{"defaults", "", "", 10, 0},
		{"explicit", "3", "5", 5, 10},
		{"zero takes default", "0", "0", 10, 0},
		{"non numeric", "abc", "x", 10, 0},
		{"negative takes default", "-2", "-5", 10, 0},
		{"fraction floors", "2.9", "5.5", 5, 5},
		{"fraction below one", "0.5", "0.2", 10, 0},
		{"whitespace", " 2 ", "5", 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(tt.page, tt.pageSize)
			assert.Equal(t, tt.limit, p.Limit)
			assert.Equal(t, tt.offset, p.Offset)
			assert.Equal(t, p.Limit, p.PageSize)
		})
	}
}

func TestPaginateMaxPageSize(t *testing.T) {
	c := Compiler{MaxPageSize: 50}
	p := c.Paginate("2", "500")
	assert.Equal(t, 50, p.Limit)
	assert.Equal(t, 50, p.Offset)
}

func TestPageCount(t *testing.T) {
	assert.Equal(t, 3, PageCount(12, 5))
	assert.Equal(t, 2, PageCount(10, 5))
	assert.Equal(t, 0, PageCount(0, 10))
	assert.Equal(t, 1, PageCount(1, 10))
	assert.Equal(t, 0, PageCount(5, 0))
}
