package schema

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
)

type RelationKind string

const (
	// BelongsTo: the source row holds the foreign key.
	BelongsTo RelationKind = "belongsTo"
	// HasMany: the target rows hold the foreign key.
	HasMany RelationKind = "hasMany"
)

// Relation links an entity to a related one. The join condition is
// source.SourceColumn = target.TargetColumn.
type Relation struct {
	Name         string       `mapstructure:"name"`
	Target       string       `mapstructure:"target"`
	Kind         RelationKind `mapstructure:"kind"`
	SourceColumn string       `mapstructure:"sourceColumn"`
	TargetColumn string       `mapstructure:"targetColumn"`
}

// Entity is a table or view exposed by name.
type Entity struct {
	Name       string            `mapstructure:"name"`
	Schema     string            `mapstructure:"schema"`
	Table      string            `mapstructure:"table"`
	PrimaryKey string            `mapstructure:"primaryKey"`
	Columns    []string          `mapstructure:"columns"` // empty means unknown, columns are not checked
	Types      map[string]string `mapstructure:"types"`   // column SQL types, optional
	Relations  []Relation        `mapstructure:"relations"`
}

// HasColumn reports whether col belongs to the entity. Entities without column
// information accept every column.
func (e Entity) HasColumn(col string) bool {
	return len(e.Columns) == 0 || slices.Contains(e.Columns, col)
}

// Relation looks a relation up by name.
func (e Entity) Relation(name string) (Relation, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// Registry holds the entities served by the API. It is safe for concurrent use;
// Replace swaps the whole set at once.
type Registry struct {
	mu        sync.RWMutex
	entities  map[string]Entity
	overrides []Entity
}

// NewRegistry builds a registry from introspected tables, then applies the
// declared entities on top. A declared entity with the name of an introspected
// one overrides its non-empty fields and adds or replaces relations by name.
func NewRegistry(tables map[string]Table, declared ...Entity) *Registry {
	r := &Registry{overrides: declared}
	r.entities = build(tables, declared)
	return r
}

// Replace rebuilds the registry from freshly loaded tables, keeping the
// declared entities it was created with.
func (r *Registry) Replace(tables map[string]Table) {
	entities := build(tables, r.overrides)
	r.mu.Lock()
	r.entities = entities
	r.mu.Unlock()
}

// Reload introspects the database again and replaces the registry content.
func (r *Registry) Reload(ctx context.Context, conn Querier, schemas ...string) error {
	tables, err := Load(ctx, conn, schemas...)
	if err != nil {
		return err
	}
	r.Replace(tables)
	return nil
}

func (r *Registry) Entity(name string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	return e, ok
}

// Entities returns the registered entity names, sorted.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Relation resolves a relation name to its target entity.
func (r *Registry) Relation(entity, name string) (string, bool) {
	rel, ok := r.Join(entity, name)
	return rel.Target, ok
}

// Join returns the full relation definition.
func (r *Registry) Join(entity, name string) (Relation, bool) {
	e, ok := r.Entity(entity)
	if !ok {
		return Relation{}, false
	}
	return e.Relation(name)
}

// PrimaryKey returns the key column of entity, "id" when unknown.
func (r *Registry) PrimaryKey(entity string) string {
	if e, ok := r.Entity(entity); ok && e.PrimaryKey != "" {
		return e.PrimaryKey
	}
	return "id"
}

func build(tables map[string]Table, declared []Entity) map[string]Entity {
	// public tables claim bare names first, other schemas fall back to
	// schema.table on collision
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		pa, pb := strings.HasPrefix(a, "public."), strings.HasPrefix(b, "public.")
		if pa != pb {
			if pa {
				return -1
			}
			return 1
		}
		return cmp.Compare(a, b)
	})

	entities := make(map[string]Entity, len(tables)+len(declared))
	byTable := make(map[string]string, len(tables))
	for _, k := range keys {
		t := tables[k]
		name := t.Name
		if _, taken := entities[name]; taken {
			name = t.FullName()
		}
		e := Entity{Name: name, Schema: t.Schema, Table: t.Name}
		if len(t.PrimaryKeys) == 1 {
			e.PrimaryKey = t.PrimaryKeys[0]
		}
		for _, c := range t.Columns {
			e.Columns = append(e.Columns, c.Name)
			if c.DataType != "" {
				if e.Types == nil {
					e.Types = make(map[string]string, len(t.Columns))
				}
				e.Types[c.Name] = c.DataType
			}
		}
		entities[name] = e
		byTable[k] = name
	}

	for _, k := range keys {
		t := tables[k]
		source := byTable[k]
		for _, fk := range t.ForeignKeys {
			target, ok := byTable[fk.ReferencedSchema+"."+fk.ReferencedTable]
			if !ok {
				continue
			}
			addRelation(entities, source, Relation{
				Name:         relationName(entities[source], entities[target].Table, fk.Column),
				Target:       target,
				Kind:         BelongsTo,
				SourceColumn: fk.Column,
				TargetColumn: fk.ReferencedColumn,
			})
			addRelation(entities, target, Relation{
				Name:         relationName(entities[target], t.Name, fk.Column),
				Target:       source,
				Kind:         HasMany,
				SourceColumn: fk.ReferencedColumn,
				TargetColumn: fk.Column,
			})
		}
	}

	for _, d := range declared {
		entities[d.Name] = merge(entities[d.Name], d)
	}
	return entities
}

// relationName prefers the related table name and falls back to the foreign key
// column without its _id suffix when an entity references the same table twice.
func relationName(e Entity, table, column string) string {
	if _, taken := e.Relation(table); !taken {
		return table
	}
	return strings.TrimSuffix(column, "_id")
}

func addRelation(entities map[string]Entity, entity string, rel Relation) {
	e := entities[entity]
	if _, exists := e.Relation(rel.Name); exists {
		return
	}
	e.Relations = append(e.Relations, rel)
	entities[entity] = e
}

func merge(base, d Entity) Entity {
	base.Name = d.Name
	base.Schema = cmp.Or(d.Schema, base.Schema, "public")
	base.Table = cmp.Or(d.Table, base.Table, d.Name)
	base.PrimaryKey = cmp.Or(d.PrimaryKey, base.PrimaryKey)
	if len(d.Columns) > 0 {
		base.Columns = d.Columns
	}
	if len(d.Types) > 0 {
		base.Types = d.Types
	}
	for _, rel := range d.Relations {
		if i := slices.IndexFunc(base.Relations, func(r Relation) bool { return r.Name == rel.Name }); i >= 0 {
			base.Relations[i] = rel
		} else {
			base.Relations = append(base.Relations, rel)
		}
	}
	return base
}
