package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type lineageStore struct {
	pool *pgxpool.Pool
}

func (s *lineageStore) Record(ctx context.Context, edge *model.LineageEdge) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lineage (item_id, item_type, derived_from, derived_by, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT(item_id) DO UPDATE SET item_type = excluded.item_type, derived_from = excluded.derived_from, derived_by = excluded.derived_by, created_at = excluded.created_at`,
		edge.ItemID, edge.ItemType, edge.DerivedFrom, edge.DerivedBy, edge.CreatedAt,
	)
	return err
}

func (s *lineageStore) Get(ctx context.Context, itemID string) (*model.LineageEdge, error) {
	row := s.pool.QueryRow(ctx, lineageSelect+` WHERE item_id = $1`, itemID)
	e, err := scanLineageEdge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "lineage", ID: itemID}
	}
	return e, err
}

func (s *lineageStore) GetByParent(ctx context.Context, parentID string) ([]*model.LineageEdge, error) {
	rows, err := s.pool.Query(ctx, lineageSelect+` WHERE $1 = ANY(derived_from)`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLineageEdges(rows)
}

func (s *lineageStore) List(ctx context.Context) ([]*model.LineageEdge, error) {
	rows, err := s.pool.Query(ctx, lineageSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLineageEdges(rows)
}

const lineageSelect = `SELECT item_id, item_type, derived_from, derived_by, created_at FROM lineage`

func scanLineageEdge(row rowScanner) (*model.LineageEdge, error) {
	var e model.LineageEdge
	if err := row.Scan(&e.ItemID, &e.ItemType, &e.DerivedFrom, &e.DerivedBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanLineageEdges(rows pgx.Rows) ([]*model.LineageEdge, error) {
	var out []*model.LineageEdge
	for rows.Next() {
		e, err := scanLineageEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
