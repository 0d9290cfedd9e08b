package query

import "strings"

// Sort compiles a "field:direction" directive. An empty directive yields nil,
// leaving the order to the store. Only one key is supported per directive.
func (c Compiler) Sort(s string) []Order {
	if s == "" {
		return nil
	}
	field, dir, _ := strings.Cut(s, ":")
	if isDirection(field) && !isDirection(dir) && dir != "" {
		field, dir = dir, field
	}
	return []Order{{Field: field, Direction: normalizeDirection(dir)}}
}

func isDirection(s string) bool {
	return strings.EqualFold(s, "asc") || strings.EqualFold(s, "desc")
}

func normalizeDirection(s string) Direction {
	if isDirection(s) {
		return Direction(strings.ToUpper(s))
	}
	return Direction(s)
}
