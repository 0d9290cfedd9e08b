package query

// Operator is a comparison operator name as it appears in a filter, e.g. "gte".
// Names are case-sensitive.
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpIs  Operator = "is"
	OpNot Operator = "not"
	OpCol Operator = "col"

	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpBetween    Operator = "between"
	OpNotBetween Operator = "notBetween"

	OpAll   Operator = "all"
	OpIn    Operator = "in"
	OpNotIn Operator = "notIn"

	OpLike       Operator = "like"
	OpNotLike    Operator = "notLike"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpSubstring  Operator = "substring"
	OpILike      Operator = "iLike"
	OpNotILike   Operator = "notILike"
	OpRegexp     Operator = "regexp"
	OpNotRegexp  Operator = "notRegexp"
	OpIRegexp    Operator = "iRegexp"
	OpNotIRegexp Operator = "notIRegexp"

	OpAny   Operator = "any"
	OpMatch Operator = "match"
)

// Class groups operators by the shape of operand they take.
type Class int

const (
	ClassUnknown  Class = iota
	ClassEquality       // scalar operand
	ClassRange          // scalar, or a pair for between / notBetween
	ClassSet            // list operand
	ClassPattern        // string pattern operand
	ClassMatch          // list (any) or text search query (match)
)

func (c Class) String() string {
	switch c {
	case ClassEquality:
		return "equality"
	case ClassRange:
		return "range"
	case ClassSet:
		return "set"
	case ClassPattern:
		return "pattern"
	case ClassMatch:
		return "match"
	default:
		return "unknown"
	}
}

var operatorClasses = map[Operator]Class{
	OpEq:  ClassEquality,
	OpNe:  ClassEquality,
	OpIs:  ClassEquality,
	OpNot: ClassEquality,
	OpCol: ClassEquality,

	OpGt:         ClassRange,
	OpGte:        ClassRange,
	OpLt:         ClassRange,
	OpLte:        ClassRange,
	OpBetween:    ClassRange,
	OpNotBetween: ClassRange,

	OpAll:   ClassSet,
	OpIn:    ClassSet,
	OpNotIn: ClassSet,

	OpLike:       ClassPattern,
	OpNotLike:    ClassPattern,
	OpStartsWith: ClassPattern,
	OpEndsWith:   ClassPattern,
	OpSubstring:  ClassPattern,
	OpILike:      ClassPattern,
	OpNotILike:   ClassPattern,
	OpRegexp:     ClassPattern,
	OpNotRegexp:  ClassPattern,
	OpIRegexp:    ClassPattern,
	OpNotIRegexp: ClassPattern,

	OpAny:   ClassMatch,
	OpMatch: ClassMatch,
}

// Operators lists every supported operator.
func Operators() []Operator {
	ops := make([]Operator, 0, len(operatorClasses))
	for op := range operatorClasses {
		ops = append(ops, op)
	}
	return ops
}

// Class returns the operator class, ClassUnknown for names outside the set.
func (op Operator) Class() Class {
	return operatorClasses[op]
}

// Known reports whether op is one of the supported operators.
func (op Operator) Known() bool {
	return op.Class() != ClassUnknown
}

// Pair reports whether op takes a two element operand.
func (op Operator) Pair() bool {
	return op == OpBetween || op == OpNotBetween
}

// List reports whether op takes a list operand.
func (op Operator) List() bool {
	switch op {
	case OpAll, OpIn, OpNotIn, OpAny:
		return true
	}
	return false
}

// BoolOp combines the branches of a boolean group.
type BoolOp string

const (
	And BoolOp = "and"
	Or  BoolOp = "or"
)

func isBoolOp(key string) (BoolOp, bool) {
	switch BoolOp(key) {
	case And, Or:
		return BoolOp(key), true
	}
	return "", false
}
