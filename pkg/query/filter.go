package query

import (
	"fmt"
)

// Node is a parsed filter tree: a FieldFilter or a Group.
type Node interface {
	node()
}

// Condition is one operator applied to a field.
type Condition struct {
	Op    Operator
	Value any
}

// FieldFilter holds the operators given for one field, in input order.
type FieldFilter struct {
	Field      string
	Conditions []Condition
}

// Group combines entries under a boolean operator. Each entry lists the nodes
// of one filter object; they are conjoined when compiled.
type Group struct {
	Op      BoolOp
	Entries [][]Node
}

func (FieldFilter) node() {}
func (Group) node()       {}

// MergePolicy decides what happens when several operators constrain the same
// field within one filter object.
type MergePolicy int

const (
	// MergeLastWins keeps only the last operator given for the field.
	MergeLastWins MergePolicy = iota
	// MergeConjoin keeps every operator and conjoins them.
	MergeConjoin
)

// ParseMergePolicy maps "lastWins" / "conjoin" to a MergePolicy.
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch s {
	case "", "lastWins":
		return MergeLastWins, nil
	case "conjoin":
		return MergeConjoin, nil
	}
	return MergeLastWins, fmt.Errorf("unknown merge policy %q", s)
}

const defaultMaxFilterDepth = 4

// ParseFilter turns a decoded filter value into a Node. A nil value or an empty
// object yields a nil Node.
func (c Compiler) ParseFilter(raw any) (Node, error) {
	if raw == nil {
		return nil, nil
	}
	keys, get, ok := entries(raw)
	if !ok {
		return nil, malformed("", "filters must be an object, got %T", raw)
	}
	switch len(keys) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, malformed("", "filters must have a single root property")
	}

	key := keys[0]
	if op, ok := isBoolOp(key); ok {
		return c.parseGroup(op, get(key), key, 1)
	}
	return c.parseField(key, get(key), key)
}

func (c Compiler) parseGroup(op BoolOp, raw any, path string, depth int) (Node, error) {
	maxDepth := c.MaxFilterDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxFilterDepth
	}
	if depth > maxDepth {
		return nil, malformed(path, "boolean groups nested deeper than %d", maxDepth)
	}

	list, ok := raw.([]any)
	if !ok {
		return nil, malformed(path, "%s expects a list of filters, got %T", op, raw)
	}

	g := Group{Op: op, Entries: make([][]Node, 0, len(list))}
	for i, item := range list {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		keys, get, ok := entries(item)
		if !ok {
			return nil, malformed(itemPath, "entry must be an object, got %T", item)
		}
		nodes := make([]Node, 0, len(keys))
		for _, key := range keys {
			var (
				n   Node
				err error
			)
			if nested, ok := isBoolOp(key); ok {
				n, err = c.parseGroup(nested, get(key), itemPath+"."+key, depth+1)
			} else {
				n, err = c.parseField(key, get(key), itemPath+"."+key)
			}
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		g.Entries = append(g.Entries, nodes)
	}
	return g, nil
}

func (c Compiler) parseField(field string, raw any, path string) (Node, error) {
	keys, get, ok := entries(raw)
	if !ok {
		return nil, malformed(path, "field %q expects an operator object, got %T", field, raw)
	}
	f := FieldFilter{Field: field, Conditions: make([]Condition, 0, len(keys))}
	for _, key := range keys {
		op := Operator(key)
		if c.Strict && !op.Known() {
			return nil, malformed(path+"."+key, "unknown operator %q", key)
		}
		f.Conditions = append(f.Conditions, Condition{Op: op, Value: get(key)})
	}
	return f, nil
}

// CompileNode reduces a parsed tree into a Predicate. It never fails: every
// structural check happens in ParseFilter.
func (c Compiler) CompileNode(n Node) Predicate {
	switch t := n.(type) {
	case FieldFilter:
		return c.compileField(t)
	case Group:
		terms := make([]Predicate, 0, len(t.Entries))
		for _, entry := range t.Entries {
			preds := make([]Predicate, 0, len(entry))
			for _, child := range entry {
				preds = append(preds, c.CompileNode(child))
			}
			p := AllOf(preds...)
			if p == nil {
				// an unconstrained branch makes the whole or hold
				if t.Op == Or {
					return nil
				}
				continue
			}
			terms = append(terms, p)
		}
		if len(terms) == 0 {
			return nil
		}
		return Junction{Op: t.Op, Terms: terms}
	default:
		return nil
	}
}

func (c Compiler) compileField(f FieldFilter) Predicate {
	if len(f.Conditions) == 0 {
		return nil
	}
	if c.Merge == MergeLastWins {
		last := f.Conditions[len(f.Conditions)-1]
		return Comparison{Field: f.Field, Op: last.Op, Value: last.Value}
	}
	preds := make([]Predicate, len(f.Conditions))
	for i, cond := range f.Conditions {
		preds[i] = Comparison{Field: f.Field, Op: cond.Op, Value: cond.Value}
	}
	return AllOf(preds...)
}

// Filter parses and compiles a decoded filter value. A nil result means no
// constraint.
func (c Compiler) Filter(raw any) (Predicate, error) {
	n, err := c.ParseFilter(raw)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, nil
	}
	return c.CompileNode(n), nil
}
