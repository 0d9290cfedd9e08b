package pgx

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgapi/pkg/pgx/schema"
	"github.com/edgeflare/pgapi/pkg/query"
	"github.com/jackc/pgx/v5"
)

var (
	ErrUnknownEntity    = errors.New("unknown entity")
	ErrUnknownColumn    = errors.New("unknown column")
	ErrUnknownRelation  = errors.New("unknown relation")
	ErrUnknownOperator  = errors.New("unsupported operator")
	ErrInvalidOperand   = errors.New("invalid operand")
	ErrInvalidDirection = errors.New("invalid sort direction")
	ErrNoPredicate      = errors.New("refusing to modify rows without a predicate")
)

// Entities resolves entity names to table metadata. *schema.Registry
// implements it.
type Entities interface {
	Entity(name string) (schema.Entity, bool)
}

type statement struct {
	sql  string
	args []any
}

// queryBuilder renders one statement. Values always travel as $n arguments,
// identifiers are sanitized and rows come back as a single jsonb column.
type queryBuilder struct {
	entities Entities
	args     []any
	aliases  int
}

func newQueryBuilder(entities Entities) *queryBuilder {
	return &queryBuilder{entities: entities}
}

func (qb *queryBuilder) statement(sql string) statement {
	return statement{sql: sql, args: qb.args}
}

func (qb *queryBuilder) placeholder(value any) string {
	qb.args = append(qb.args, value)
	return "$" + strconv.Itoa(len(qb.args))
}

func (qb *queryBuilder) alias() string {
	a := "t" + strconv.Itoa(qb.aliases)
	qb.aliases++
	return a
}

func (qb *queryBuilder) entity(name string) (schema.Entity, error) {
	e, ok := qb.entities.Entity(name)
	if !ok {
		return schema.Entity{}, fmt.Errorf("%w %q", ErrUnknownEntity, name)
	}
	return e, nil
}

func tableIdentifier(e schema.Entity) string {
	return pgx.Identifier{cmp.Or(e.Schema, "public"), cmp.Or(e.Table, e.Name)}.Sanitize()
}

func columnIdentifier(alias, column string) string {
	return alias + "." + pgx.Identifier{column}.Sanitize()
}

// literal quotes s as a string constant. Only used for jsonb keys.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func checkColumn(e schema.Entity, column string) error {
	if !e.HasColumn(column) {
		return fmt.Errorf("%w %q of %s", ErrUnknownColumn, column, e.Name)
	}
	return nil
}

// selectRows renders the page of rows described by d.
func selectRows(entities Entities, entity string, d query.Descriptor) (statement, error) {
	qb := newQueryBuilder(entities)
	e, err := qb.entity(entity)
	if err != nil {
		return statement{}, err
	}
	a := qb.alias()

	row, err := qb.rowExpr(e, a, d.Attributes, d.Include)
	if err != nil {
		return statement{}, err
	}
	where, err := qb.filter(e, a, d.Where, d.Include)
	if err != nil {
		return statement{}, err
	}
	order, err := qb.orderBy(e, a, d.Order)
	if err != nil {
		return statement{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s AS %s", row, tableIdentifier(e), a)
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if order != "" {
		sb.WriteString(" ORDER BY " + order)
	}
	if d.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(d.Limit))
	}
	if d.Offset > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(d.Offset))
	}
	return qb.statement(sb.String()), nil
}

// countRows renders count(*) over the rows matching d, ignoring Limit / Offset.
func countRows(entities Entities, entity string, d query.Descriptor) (statement, error) {
	qb := newQueryBuilder(entities)
	e, err := qb.entity(entity)
	if err != nil {
		return statement{}, err
	}
	a := qb.alias()
	where, err := qb.filter(e, a, d.Where, d.Include)
	if err != nil {
		return statement{}, err
	}
	sql := fmt.Sprintf("SELECT count(*) FROM %s AS %s", tableIdentifier(e), a)
	if where != "" {
		sql += " WHERE " + where
	}
	return qb.statement(sql), nil
}

// insertRow renders INSERT ... RETURNING. Payload keys that are not columns
// of the entity are skipped.
func insertRow(entities Entities, entity string, payload map[string]any) (statement, error) {
	qb := newQueryBuilder(entities)
	e, err := qb.entity(entity)
	if err != nil {
		return statement{}, err
	}
	a := qb.alias()

	var columns, placeholders []string
	for _, k := range payloadColumns(e, payload) {
		columns = append(columns, pgx.Identifier{k}.Sanitize())
		placeholders = append(placeholders, qb.placeholder(query.Plain(payload[k])))
	}

	sql := fmt.Sprintf("INSERT INTO %s AS %s", tableIdentifier(e), a)
	if len(columns) == 0 {
		sql += " DEFAULT VALUES"
	} else {
		sql += fmt.Sprintf(" (%s) VALUES (%s)", strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	}
	sql += fmt.Sprintf(" RETURNING to_jsonb(%s.*)", a)
	return qb.statement(sql), nil
}

// updateRows renders UPDATE ... RETURNING. It returns ok=false when the payload
// holds no known column, leaving nothing to update.
func updateRows(entities Entities, entity string, where query.Predicate, payload map[string]any) (stmt statement, ok bool, err error) {
	if where == nil {
		return statement{}, false, ErrNoPredicate
	}
	qb := newQueryBuilder(entities)
	e, err := qb.entity(entity)
	if err != nil {
		return statement{}, false, err
	}
	a := qb.alias()

	var set []string
	for _, k := range payloadColumns(e, payload) {
		set = append(set, pgx.Identifier{k}.Sanitize()+" = "+qb.placeholder(query.Plain(payload[k])))
	}
	if len(set) == 0 {
		return statement{}, false, nil
	}
	cond, err := qb.predicate(e, a, where)
	if err != nil {
		return statement{}, false, err
	}
	sql := fmt.Sprintf("UPDATE %s AS %s SET %s WHERE %s RETURNING to_jsonb(%s.*)",
		tableIdentifier(e), a, strings.Join(set, ", "), cond, a)
	return qb.statement(sql), true, nil
}

func deleteRows(entities Entities, entity string, d query.Descriptor) (statement, error) {
	if d.Where == nil {
		return statement{}, ErrNoPredicate
	}
	qb := newQueryBuilder(entities)
	e, err := qb.entity(entity)
	if err != nil {
		return statement{}, err
	}
	a := qb.alias()
	cond, err := qb.filter(e, a, d.Where, d.Include)
	if err != nil {
		return statement{}, err
	}
	return qb.statement(fmt.Sprintf("DELETE FROM %s AS %s WHERE %s", tableIdentifier(e), a, cond)), nil
}

// payloadColumns returns the payload keys that are columns of e, sorted so the
// rendered statement is stable.
func payloadColumns(e schema.Entity, payload map[string]any) []string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if e.HasColumn(k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

// rowExpr builds the jsonb object of one row: the projected columns, or the
// whole row, merged with one key per include.
func (qb *queryBuilder) rowExpr(e schema.Entity, alias string, attributes []string, includes []query.Include) (string, error) {
	expr := "to_jsonb(" + alias + ".*)"
	if len(attributes) > 0 {
		pairs := make([]string, 0, 2*len(attributes))
		for _, attr := range attributes {
			if err := checkColumn(e, attr); err != nil {
				return "", err
			}
			pairs = append(pairs, literal(attr), columnIdentifier(alias, attr))
		}
		expr = "jsonb_build_object(" + strings.Join(pairs, ", ") + ")"
	}
	for _, inc := range includes {
		sub, err := qb.include(e, alias, inc)
		if err != nil {
			return "", err
		}
		expr += " || jsonb_build_object(" + literal(inc.Relation) + ", " + sub + ")"
	}
	return expr, nil
}

// join resolves inc against parent and renders the correlation condition of a
// fresh alias of the related entity, plus the include's own filter.
func (qb *queryBuilder) join(parent schema.Entity, parentAlias string, inc query.Include) (schema.Relation, schema.Entity, string, string, error) {
	rel, ok := parent.Relation(inc.Relation)
	if !ok {
		return rel, schema.Entity{}, "", "", fmt.Errorf("%w %q of %s", ErrUnknownRelation, inc.Relation, parent.Name)
	}
	if rel.SourceColumn == "" || rel.TargetColumn == "" {
		return rel, schema.Entity{}, "", "", fmt.Errorf("relation %q of %s: missing join columns", rel.Name, parent.Name)
	}
	child, err := qb.entity(rel.Target)
	if err != nil {
		return rel, child, "", "", fmt.Errorf("relation %q of %s: %w", rel.Name, parent.Name, err)
	}
	if err := checkColumn(parent, rel.SourceColumn); err != nil {
		return rel, child, "", "", err
	}
	if err := checkColumn(child, rel.TargetColumn); err != nil {
		return rel, child, "", "", err
	}

	a := qb.alias()
	cond := columnIdentifier(a, rel.TargetColumn) + " = " + columnIdentifier(parentAlias, rel.SourceColumn)
	extra, err := qb.filter(child, a, inc.Where, inc.Include)
	if err != nil {
		return rel, child, "", "", fmt.Errorf("relation %q: %w", rel.Name, err)
	}
	if extra != "" {
		cond += " AND " + extra
	}
	return rel, child, a, cond, nil
}

func (qb *queryBuilder) include(parent schema.Entity, parentAlias string, inc query.Include) (string, error) {
	rel, child, a, cond, err := qb.join(parent, parentAlias, inc)
	if err != nil {
		return "", err
	}
	row, err := qb.rowExpr(child, a, inc.Attributes, inc.Include)
	if err != nil {
		return "", fmt.Errorf("relation %q: %w", rel.Name, err)
	}
	order, err := qb.orderBy(child, a, inc.Order)
	if err != nil {
		return "", fmt.Errorf("relation %q: %w", rel.Name, err)
	}

	from := tableIdentifier(child) + " AS " + a
	if rel.Kind == schema.HasMany {
		agg := "jsonb_agg(" + row
		if order != "" {
			agg += " ORDER BY " + order
		}
		agg += ")"
		return fmt.Sprintf("(SELECT COALESCE(%s, '[]'::jsonb) FROM %s WHERE %s)", agg, from, cond), nil
	}

	sql := fmt.Sprintf("(SELECT %s FROM %s WHERE %s", row, from, cond)
	if order != "" {
		sql += " ORDER BY " + order
	}
	return sql + " LIMIT 1)", nil
}

// filter conjoins the predicate with an EXISTS clause per required include.
func (qb *queryBuilder) filter(e schema.Entity, alias string, where query.Predicate, includes []query.Include) (string, error) {
	var parts []string
	if where != nil {
		cond, err := qb.predicate(e, alias, where)
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	for _, inc := range includes {
		if !inc.Required {
			continue
		}
		_, child, a, cond, err := qb.join(e, alias, inc)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", tableIdentifier(child), a, cond))
	}
	return strings.Join(parts, " AND "), nil
}

var directions = []string{
	"ASC", "DESC",
	"ASC NULLS FIRST", "ASC NULLS LAST",
	"DESC NULLS FIRST", "DESC NULLS LAST",
	"NULLS FIRST", "NULLS LAST",
}

func (qb *queryBuilder) orderBy(e schema.Entity, alias string, orders []query.Order) (string, error) {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		if err := checkColumn(e, o.Field); err != nil {
			return "", err
		}
		term := columnIdentifier(alias, o.Field)
		if o.Direction != "" {
			dir := strings.Join(strings.Fields(strings.ToUpper(string(o.Direction))), " ")
			if !slices.Contains(directions, dir) {
				return "", fmt.Errorf("%w %q", ErrInvalidDirection, o.Direction)
			}
			term += " " + dir
		}
		parts = append(parts, term)
	}
	return strings.Join(parts, ", "), nil
}

func (qb *queryBuilder) predicate(e schema.Entity, alias string, p query.Predicate) (string, error) {
	switch t := p.(type) {
	case query.Comparison:
		return qb.comparison(e, alias, t)
	case query.Junction:
		// an empty group adds no constraint
		if len(t.Terms) == 0 {
			return "TRUE", nil
		}
		sep := " AND "
		if t.Op == query.Or {
			sep = " OR "
		}
		parts := make([]string, 0, len(t.Terms))
		for _, term := range t.Terms {
			s, err := qb.predicate(e, alias, term)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "(" + strings.Join(parts, sep) + ")", nil
	default:
		return "", fmt.Errorf("unsupported predicate %T", p)
	}
}

var binaryOperators = map[query.Operator]string{
	query.OpGt:         ">",
	query.OpGte:        ">=",
	query.OpLt:         "<",
	query.OpLte:        "<=",
	query.OpLike:       "LIKE",
	query.OpNotLike:    "NOT LIKE",
	query.OpILike:      "ILIKE",
	query.OpNotILike:   "NOT ILIKE",
	query.OpRegexp:     "~",
	query.OpNotRegexp:  "!~",
	query.OpIRegexp:    "~*",
	query.OpNotIRegexp: "!~*",
}

func (qb *queryBuilder) comparison(e schema.Entity, alias string, c query.Comparison) (string, error) {
	if err := checkColumn(e, c.Field); err != nil {
		return "", err
	}
	col := columnIdentifier(alias, c.Field)
	v := query.Plain(c.Value)
	operand := func(err error) error {
		return fmt.Errorf("%w for %s on %s: %v", ErrInvalidOperand, c.Op, c.Field, err)
	}

	switch c.Op {
	case query.OpEq, query.OpNe:
		if v == nil {
			if c.Op == query.OpEq {
				return col + " IS NULL", nil
			}
			return col + " IS NOT NULL", nil
		}
		ph, err := qb.scalar(v)
		if err != nil {
			return "", operand(err)
		}
		if c.Op == query.OpEq {
			return col + " = " + ph, nil
		}
		return col + " != " + ph, nil

	case query.OpIs, query.OpNot:
		kw, err := truthLiteral(v)
		if err != nil {
			return "", operand(err)
		}
		if c.Op == query.OpIs {
			return col + " IS " + kw, nil
		}
		return col + " IS NOT " + kw, nil

	case query.OpCol:
		other, ok := v.(string)
		if !ok {
			return "", operand(fmt.Errorf("want a column name, got %T", v))
		}
		if err := checkColumn(e, other); err != nil {
			return "", err
		}
		return col + " = " + columnIdentifier(alias, other), nil

	case query.OpBetween, query.OpNotBetween:
		lo, hi, err := pair(v)
		if err != nil {
			return "", operand(err)
		}
		kw := " BETWEEN "
		if c.Op == query.OpNotBetween {
			kw = " NOT BETWEEN "
		}
		return col + kw + qb.placeholder(lo) + " AND " + qb.placeholder(hi), nil

	case query.OpIn, query.OpNotIn:
		items, err := list(v)
		if err != nil {
			return "", operand(err)
		}
		if len(items) == 0 {
			if c.Op == query.OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		kw := " IN "
		if c.Op == query.OpNotIn {
			kw = " NOT IN "
		}
		return col + kw + "(" + qb.placeholders(items) + ")", nil

	case query.OpAll, query.OpAny:
		items, err := list(v)
		if err != nil {
			return "", operand(err)
		}
		if len(items) == 0 {
			// = ALL of nothing holds, = ANY of nothing does not
			if c.Op == query.OpAll {
				return "TRUE", nil
			}
			return "FALSE", nil
		}
		arr := "ARRAY[" + qb.placeholders(items) + "]"
		if typ, ok := e.Types[c.Field]; ok && !strings.HasSuffix(typ, "[]") {
			arr += "::" + typ + "[]"
		}
		fn := "ANY"
		if c.Op == query.OpAll {
			fn = "ALL"
		}
		return col + " = " + fn + "(" + arr + ")", nil

	case query.OpStartsWith, query.OpEndsWith, query.OpSubstring:
		s, err := text(v)
		if err != nil {
			return "", operand(err)
		}
		s = escapeLike(s)
		switch c.Op {
		case query.OpStartsWith:
			s += "%"
		case query.OpEndsWith:
			s = "%" + s
		default:
			s = "%" + s + "%"
		}
		return col + " LIKE " + qb.placeholder(s), nil

	case query.OpMatch:
		s, err := text(v)
		if err != nil {
			return "", operand(err)
		}
		return col + " @@ to_tsquery(" + qb.placeholder(s) + ")", nil
	}

	if sym, ok := binaryOperators[c.Op]; ok {
		var ph string
		var err error
		if c.Op.Class() == query.ClassPattern {
			var s string
			if s, err = text(v); err == nil {
				ph = qb.placeholder(s)
			}
		} else {
			ph, err = qb.scalar(v)
		}
		if err != nil {
			return "", operand(err)
		}
		return col + " " + sym + " " + ph, nil
	}
	return "", fmt.Errorf("%w %q on %s", ErrUnknownOperator, c.Op, c.Field)
}

func (qb *queryBuilder) scalar(v any) (string, error) {
	switch v.(type) {
	case map[string]any, []any:
		return "", fmt.Errorf("want a scalar, got %T", v)
	}
	return qb.placeholder(v), nil
}

func (qb *queryBuilder) placeholders(items []any) string {
	phs := make([]string, len(items))
	for i, item := range items {
		phs[i] = qb.placeholder(item)
	}
	return strings.Join(phs, ", ")
}

// truthLiteral accepts null, true and false, as JSON values or query strings.
func truthLiteral(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		return strings.ToUpper(strconv.FormatBool(t)), nil
	case string:
		switch strings.ToLower(t) {
		case "null":
			return "NULL", nil
		case "true":
			return "TRUE", nil
		case "false":
			return "FALSE", nil
		}
	}
	return "", fmt.Errorf("want null, true or false, got %v", v)
}

// list accepts a JSON array, a comma separated string or a single scalar.
func list(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			switch item.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("want a list of scalars, got %T element", item)
			}
		}
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parts := strings.Split(t, ",")
		items := make([]any, len(parts))
		for i, p := range parts {
			items[i] = p
		}
		return items, nil
	case map[string]any:
		return nil, fmt.Errorf("want a list, got an object")
	case nil:
		return nil, nil
	default:
		return []any{t}, nil
	}
}

func pair(v any) (any, any, error) {
	items, err := list(v)
	if err != nil {
		return nil, nil, err
	}
	if len(items) != 2 {
		return nil, nil, fmt.Errorf("want two values, got %d", len(items))
	}
	return items[0], items[1], nil
}

func text(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("want a string, got %T", v)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
