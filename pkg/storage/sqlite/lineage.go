package sqlite

import (
	"context"
	"database/sql"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type lineageStore struct {
	db *sql.DB
}

func (s *lineageStore) Record(ctx context.Context, edge *model.LineageEdge) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lineage (item_id, item_type, derived_from, derived_by, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(item_id) DO UPDATE SET item_type = excluded.item_type, derived_from = excluded.derived_from, derived_by = excluded.derived_by, created_at = excluded.created_at`,
		edge.ItemID, edge.ItemType, encodeStrings(edge.DerivedFrom), edge.DerivedBy, sqliteTime(edge.CreatedAt),
	)
	return err
}

func (s *lineageStore) Get(ctx context.Context, itemID string) (*model.LineageEdge, error) {
	row := s.db.QueryRowContext(ctx, lineageSelect+` WHERE item_id = ?`, itemID)
	e, err := scanLineageEdge(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "lineage", ID: itemID}
	}
	return e, err
}

func (s *lineageStore) GetByParent(ctx context.Context, parentID string) ([]*model.LineageEdge, error) {
	// derived_from is a JSON array column; SQLite has no native JSON
	// containment operator available without the json1 extension being
	// loaded, so this scans and filters in Go, matching the reference
	// lexical scan pattern Hybrid Retrieval already uses elsewhere.
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []*model.LineageEdge
	for _, e := range all {
		for _, p := range e.DerivedFrom {
			if p == parentID {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (s *lineageStore) List(ctx context.Context) ([]*model.LineageEdge, error) {
	rows, err := s.db.QueryContext(ctx, lineageSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

const lineageSelect = `SELECT item_id, item_type, derived_from, derived_by, created_at FROM lineage`

func scanLineageEdge(row scanner) (*model.LineageEdge, error) {
	var e model.LineageEdge
	var derivedFromJSON, createdAt string
	if err := row.Scan(&e.ItemID, &e.ItemType, &derivedFromJSON, &e.DerivedBy, &createdAt); err != nil {
		return nil, err
	}
	e.DerivedFrom = decodeStrings(derivedFromJSON)
	e.CreatedAt = fromSqliteTime(createdAt)
	return &e, nil
}
