package schema

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/pgapi/internal/testutil/pgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixture = `
CREATE SCHEMA pgapi_schema_test;
CREATE TABLE pgapi_schema_test.authors (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE pgapi_schema_test.books (
	id SERIAL PRIMARY KEY,
	title TEXT,
	author_id INT REFERENCES pgapi_schema_test.authors(id)
);
CREATE VIEW pgapi_schema_test.titles AS SELECT id, title FROM pgapi_schema_test.books;
`

func TestLoad(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Pool(ctx, t)
	pgtest.Exec(ctx, t, pool, fixture, "DROP SCHEMA IF EXISTS pgapi_schema_test CASCADE")

	tables, err := Load(ctx, pool, "pgapi_schema_test")
	require.NoError(t, err)
	require.Len(t, tables, 3)

	books := tables["pgapi_schema_test.books"]
	assert.Equal(t, TypeTable, books.Type)
	assert.Equal(t, []string{"id"}, books.PrimaryKeys)
	require.Len(t, books.Columns, 3)
	assert.Equal(t, "author_id", books.Columns[2].Name)
	assert.True(t, books.Columns[2].IsNullable)
	assert.Equal(t, []ForeignKey{{
		Column: "author_id", ReferencedSchema: "pgapi_schema_test", ReferencedTable: "authors", ReferencedColumn: "id",
	}}, books.ForeignKeys)

	assert.Equal(t, TypeView, tables["pgapi_schema_test.titles"].Type)
	assert.False(t, tables["pgapi_schema_test.authors"].Columns[1].IsNullable)

	r := NewRegistry(tables)
	rel, ok := r.Join("authors", "books")
	require.True(t, ok)
	assert.Equal(t, HasMany, rel.Kind)
}

func TestWatchReload(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool := pgtest.Pool(ctx, t)
	pgtest.Exec(ctx, t, pool, fixture, "DROP SCHEMA IF EXISTS pgapi_schema_test CASCADE")

	r := NewRegistry(nil)
	conn := pgtest.Connect(ctx, t)
	reloaded := make(chan struct{}, 1)
	go func() {
		_ = Watch(ctx, conn, func(ctx context.Context) error {
			err := r.Reload(ctx, pool, "pgapi_schema_test")
			reloaded <- struct{}{}
			return err
		}, zap.NewNop())
	}()

	// LISTEN must be in place before NOTIFY
	require.Eventually(t, func() bool {
		_, err := pool.Exec(ctx, "SELECT pg_notify($1, $2)", ReloadChannel, ReloadPayload)
		if err != nil {
			return false
		}
		select {
		case <-reloaded:
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 100*time.Millisecond)

	assert.Equal(t, []string{"authors", "books", "titles"}, r.Entities())
}
