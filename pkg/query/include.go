package query

import (
	"fmt"
	"strings"
)

// Catalog resolves relation names of an entity to the related entity.
type Catalog interface {
	Relation(entity, name string) (target string, ok bool)
}

// RelationSpec holds the relation parameters of a request. The maps are keyed
// by relation path as it appears in Relations.
type RelationSpec struct {
	Relations []string
	Fields    map[string][]string
	Filters   map[string]any
	Sort      map[string]string
}

const defaultMaxIncludeDepth = 1

// Include resolves the requested relations of entity into inclusion
// descriptors, in request order. It returns nil when no relations were asked
// for. Unknown relations keep an empty Entity; the store rejects them.
func (c Compiler) Include(entity string, spec RelationSpec) ([]Include, error) {
	if spec.Relations == nil {
		return nil, nil
	}
	maxDepth := c.MaxIncludeDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxIncludeDepth
	}

	out := make([]Include, 0, len(spec.Relations))
	for _, path := range spec.Relations {
		segments := strings.Split(path, ".")
		if len(segments) > maxDepth {
			return nil, fmt.Errorf("%w: %q has %d levels, at most %d allowed", ErrIncludeDepth, path, len(segments), maxDepth)
		}

		level := &out
		parent := entity
		for i, name := range segments {
			sub := strings.Join(segments[:i+1], ".")
			last := i == len(segments)-1
			idx := -1
			if !last {
				idx = indexOf(*level, name)
			}
			if idx < 0 {
				inc, err := c.resolve(parent, name, sub, spec)
				if err != nil {
					return nil, err
				}
				*level = append(*level, inc)
				idx = len(*level) - 1
			}
			parent = (*level)[idx].Entity
			level = &(*level)[idx].Include
		}
	}
	return out, nil
}

func (c Compiler) resolve(parent, name, path string, spec RelationSpec) (Include, error) {
	inc := Include{Relation: name, Path: path}
	if c.Catalog != nil && parent != "" {
		if target, ok := c.Catalog.Relation(parent, name); ok {
			inc.Entity = target
		}
	}
	if fields, ok := spec.Fields[path]; ok {
		inc.Attributes = fields
	}
	if raw, ok := spec.Filters[path]; ok {
		where, err := c.Filter(raw)
		if err != nil {
			return Include{}, fmt.Errorf("relation %s: %w", path, err)
		}
		inc.Where = where
		inc.Required = where != nil
	}
	if s, ok := spec.Sort[path]; ok {
		inc.Order = c.Sort(s)
	}
	return inc, nil
}

func indexOf(incs []Include, name string) int {
	for i, inc := range incs {
		if inc.Relation == name {
			return i
		}
	}
	return -1
}
