package query

import (
	"errors"
	"fmt"
)

// MalformedFilterError reports a filter tree that violates its structural rules.
type MalformedFilterError struct {
	Path   string // location in the filter tree, e.g. "and[1].age"
	Reason string
}

func (e *MalformedFilterError) Error() string {
	if e.Path == "" {
		return "malformed filter: " + e.Reason
	}
	return fmt.Sprintf("malformed filter at %s: %s", e.Path, e.Reason)
}

func malformed(path, format string, args ...any) error {
	return &MalformedFilterError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// IsMalformedFilter reports whether err is, or wraps, a *MalformedFilterError.
func IsMalformedFilter(err error) bool {
	var mf *MalformedFilterError
	return errors.As(err, &mf)
}

// ErrIncludeDepth is returned for relation paths nested deeper than allowed.
var ErrIncludeDepth = errors.New("relation inclusion too deep")
