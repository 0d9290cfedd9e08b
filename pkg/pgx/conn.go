// Package pgx is the PostgreSQL storage backend: connection pools, SQL
// rendering of compiled query descriptors and the Store running them.
package pgx

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is what the Store needs from a connection. *pgx.Conn, *pgxpool.Conn,
// *pgxpool.Pool and pgx.Tx all implement it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
