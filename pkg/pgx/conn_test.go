package pgx

import (
	"github.com/edgeflare/pgapi/pkg/pgx/schema"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ Conn = (*pgx.Conn)(nil)
	_ Conn = (*pgxpool.Conn)(nil)
	_ Conn = (*pgxpool.Pool)(nil)
	_ Conn = (pgx.Tx)(nil)

	_ schema.Querier = (Conn)(nil)
	_ Entities       = (*schema.Registry)(nil)
)
