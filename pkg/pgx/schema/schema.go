// Package schema introspects PostgreSQL tables and keeps the registry of
// entities the REST API is allowed to serve, together with the relations
// between them.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

type TableType string

const (
	TypeTable            TableType = "TABLE"
	TypeView             TableType = "VIEW"
	TypeMaterializedView TableType = "MATERIALIZED VIEW"
)

type Table struct {
	Schema      string       `json:"schema" mapstructure:"schema"`
	Name        string       `json:"name" mapstructure:"name"`
	Type        TableType    `json:"type" mapstructure:"type"`
	Columns     []Column     `json:"columns" mapstructure:"columns"`
	PrimaryKeys []string     `json:"primary_keys" mapstructure:"primaryKeys"`
	ForeignKeys []ForeignKey `json:"foreign_keys" mapstructure:"foreignKeys"`
}

type Column struct {
	Name         string `json:"name" mapstructure:"name"`
	DataType     string `json:"data_type" mapstructure:"dataType"`
	IsNullable   bool   `json:"is_nullable" mapstructure:"nullable"`
	IsPrimaryKey bool   `json:"is_primary_key" mapstructure:"primaryKey"`
}

type ForeignKey struct {
	Column           string `json:"column" mapstructure:"column"`
	ReferencedSchema string `json:"referenced_schema" mapstructure:"referencedSchema"`
	ReferencedTable  string `json:"referenced_table" mapstructure:"referencedTable"`
	ReferencedColumn string `json:"referenced_column" mapstructure:"referencedColumn"`
}

// FullName is schema_name.table_name.
func (t Table) FullName() string {
	return t.Schema + "." + t.Name
}

// Querier is the subset of a pgx connection or pool the loader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Load reads tables, views and materialized views of the given schemas, or of
// every non-system schema when none are given. The result is keyed by
// schema_name.table_name.
func Load(ctx context.Context, conn Querier, schemas ...string) (map[string]Table, error) {
	if len(schemas) == 0 {
		var err error
		if schemas, err = querySchemas(ctx, conn); err != nil {
			return nil, fmt.Errorf("query schemas: %w", err)
		}
	}

	tables := make(map[string]Table)
	for _, s := range schemas {
		if isSystem(s) {
			continue
		}
		if err := loadSchema(ctx, conn, s, tables); err != nil {
			return nil, fmt.Errorf("load schema %s: %w", s, err)
		}
	}
	return tables, nil
}

func loadSchema(ctx context.Context, conn Querier, schemaName string, tables map[string]Table) error {
	rows, err := conn.Query(ctx, `
		SELECT table_name, 'TABLE'::text
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		UNION ALL
		SELECT table_name, 'VIEW'::text
		FROM information_schema.views
		WHERE table_schema = $1
		UNION ALL
		SELECT matviewname, 'MATERIALIZED VIEW'::text
		FROM pg_matviews
		WHERE schemaname = $1`, schemaName)
	if err != nil {
		return err
	}
	for rows.Next() {
		t := Table{Schema: schemaName}
		if err := rows.Scan(&t.Name, &t.Type); err != nil {
			rows.Close()
			return err
		}
		tables[t.FullName()] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if err := loadColumns(ctx, conn, schemaName, tables); err != nil {
		return fmt.Errorf("columns: %w", err)
	}
	if err := loadForeignKeys(ctx, conn, schemaName, tables); err != nil {
		return fmt.Errorf("foreign keys: %w", err)
	}
	return nil
}

// loadColumns uses pg_attribute so materialized views get their columns too.
func loadColumns(ctx context.Context, conn Querier, schemaName string, tables map[string]Table) error {
	rows, err := conn.Query(ctx, `
		SELECT
			c.relname,
			a.attname,
			format_type(a.atttypid, a.atttypmod),
			NOT a.attnotnull,
			COALESCE(a.attnum = ANY(i.indkey), false)
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_index i ON i.indrelid = c.oid AND i.indisprimary
		WHERE n.nspname = $1
			AND c.relkind IN ('r', 'v', 'm', 'p')
			AND a.attnum > 0
			AND NOT a.attisdropped
		ORDER BY c.relname, a.attnum`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName string
		var col Column
		if err := rows.Scan(&tableName, &col.Name, &col.DataType, &col.IsNullable, &col.IsPrimaryKey); err != nil {
			return err
		}
		key := schemaName + "." + tableName
		t, ok := tables[key]
		if !ok {
			continue
		}
		t.Columns = append(t.Columns, col)
		if col.IsPrimaryKey {
			t.PrimaryKeys = append(t.PrimaryKeys, col.Name)
		}
		tables[key] = t
	}
	return rows.Err()
}

func loadForeignKeys(ctx context.Context, conn Querier, schemaName string, tables map[string]Table) error {
	rows, err := conn.Query(ctx, `
		SELECT
			tc.table_name,
			kcu.column_name,
			ccu.table_schema,
			ccu.table_name,
			ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
		ORDER BY tc.table_name, kcu.ordinal_position`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName string
		var fk ForeignKey
		if err := rows.Scan(&tableName, &fk.Column, &fk.ReferencedSchema, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return err
		}
		key := schemaName + "." + tableName
		if t, ok := tables[key]; ok {
			t.ForeignKeys = append(t.ForeignKeys, fk)
			tables[key] = t
		}
	}
	return rows.Err()
}

func querySchemas(ctx context.Context, conn Querier) ([]string, error) {
	rows, err := conn.Query(ctx, `SELECT schema_name FROM information_schema.schemata ORDER BY schema_name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func isSystem(schema string) bool {
	if schema == "information_schema" || schema == "pg_catalog" {
		return true
	}
	return strings.HasPrefix(schema, "pg_toast") || strings.HasPrefix(schema, "pg_temp")
}
