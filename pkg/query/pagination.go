package query

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Page is the resolved pagination of a list request.
type Page struct {
	Page     int
	PageSize int
	Limit    int
	Offset   int
}

// Paginate resolves page / pageSize query values. Absent, non-numeric, zero and
// negative values fall back to the defaults; fractions are floored.
func (c Compiler) Paginate(page, pageSize string) Page {
	p := coerce(page, DefaultPage)
	size := coerce(pageSize, DefaultPageSize)
	if c.MaxPageSize > 0 && size > c.MaxPageSize {
		size = c.MaxPageSize
	}
	return Page{
		Page:     p,
		PageSize: size,
		Limit:    size,
		Offset:   (p - 1) * size,
	}
}

// Paginate resolves pagination with a zero Compiler.
func Paginate(page, pageSize string) Page {
	return Compiler{}.Paginate(page, pageSize)
}

// PageCount is ceil(total / pageSize).
func PageCount(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

func coerce(s string, def int) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	}
	n := int(math.Floor(f))
	if n <= 0 {
		return def
	}
	return n
}
