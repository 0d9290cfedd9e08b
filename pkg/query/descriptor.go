package query

// Predicate is a compiled, storage agnostic constraint. It is either a
// Comparison or a Junction.
type Predicate interface {
	predicate()
}

// Comparison constrains a single field with a single operator.
type Comparison struct {
	Field string
	Op    Operator
	Value any
}

// Junction combines predicates under and / or.
type Junction struct {
	Op    BoolOp
	Terms []Predicate
}

func (Comparison) predicate() {}
func (Junction) predicate()   {}

// Eq is shorthand for an equality comparison, used for primary key lookups.
func Eq(field string, value any) Predicate {
	return Comparison{Field: field, Op: OpEq, Value: value}
}

// AllOf conjoins the non-nil predicates. It returns nil when none remain and the
// predicate itself when only one does.
func AllOf(preds ...Predicate) Predicate {
	terms := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			terms = append(terms, p)
		}
	}
	switch len(terms) {
	case 0:
		return nil
	case 1:
		return terms[0]
	default:
		return Junction{Op: And, Terms: terms}
	}
}

// Fields returns every field a predicate constrains, in order of appearance.
func Fields(p Predicate) []string {
	var out []string
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch t := p.(type) {
		case Comparison:
			out = append(out, t.Field)
		case Junction:
			for _, term := range t.Terms {
				walk(term)
			}
		}
	}
	walk(p)
	return out
}

// Direction is a sort direction. Recognized values are ASC and DESC; anything
// else is passed through as it was given.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Order is one (field, direction) sort key.
type Order struct {
	Field     string
	Direction Direction
}

// Include eager-loads a related entity alongside the primary one.
type Include struct {
	Relation   string // relation name as requested
	Path       string // full dotted path, equal to Relation at the top level
	Entity     string // resolved related entity, empty when the relation is unknown
	Attributes []string
	Where      Predicate
	Order      []Order
	// Required excludes parent rows that have no matching related row. It is
	// set whenever Where is.
	Required bool
	Include  []Include
}

// Descriptor is the compiled query handed to the storage layer.
type Descriptor struct {
	Where      Predicate
	Order      []Order
	Attributes []string
	Include    []Include
	Limit      int // 0 means no limit
	Offset     int
}
