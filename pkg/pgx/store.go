package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/pgapi/pkg/query"
	"github.com/edgeflare/pgapi/pkg/store"
	"github.com/jackc/pgx/v5"
)

// Store runs compiled descriptors against PostgreSQL. Every statement returns
// rows as jsonb so related entities nest without any post-processing.
type Store struct {
	conn     Conn
	entities Entities
}

var _ store.Store = (*Store)(nil)

// NewStore returns a Store executing on conn, a *pgxpool.Pool usually.
func NewStore(conn Conn, entities Entities) *Store {
	return &Store{conn: conn, entities: entities}
}

func (s *Store) FindAndCountAll(ctx context.Context, entity string, q query.Descriptor) ([]store.Row, int64, error) {
	sel, err := selectRows(s.entities, entity, q)
	if err != nil {
		return nil, 0, err
	}
	cnt, err := countRows(s.entities, entity, q)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.rows(ctx, sel)
	if err != nil {
		return nil, 0, fmt.Errorf("select %s: %w", entity, err)
	}
	var total int64
	if err := s.conn.QueryRow(ctx, cnt.sql, cnt.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return rows, total, nil
}

func (s *Store) FindOne(ctx context.Context, entity string, q query.Descriptor) (store.Row, error) {
	q.Limit, q.Offset = 1, 0
	sel, err := selectRows(s.entities, entity, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.rows(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", entity, err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Create(ctx context.Context, entity string, payload store.Row) (store.Row, error) {
	ins, err := insertRow(s.entities, entity, payload)
	if err != nil {
		return nil, err
	}
	var row store.Row
	if err := s.conn.QueryRow(ctx, ins.sql, ins.args...).Scan(&row); err != nil {
		return nil, fmt.Errorf("insert %s: %w", entity, err)
	}
	return row, nil
}

// Update returns the first updated row. A payload without any column of the
// entity updates nothing and returns the current row.
func (s *Store) Update(ctx context.Context, entity string, where query.Predicate, payload store.Row) (store.Row, error) {
	upd, ok, err := updateRows(s.entities, entity, where, payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.FindOne(ctx, entity, query.Descriptor{Where: where})
	}
	rows, err := s.rows(ctx, upd)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", entity, err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Destroy(ctx context.Context, entity string, q query.Descriptor) (int64, error) {
	del, err := deleteRows(s.entities, entity, q)
	if err != nil {
		return 0, err
	}
	tag, err := s.conn.Exec(ctx, del.sql, del.args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) rows(ctx context.Context, stmt statement) ([]store.Row, error) {
	rows, err := s.conn.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[map[string]any])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
