package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type usageStatStore struct {
	pool *pgxpool.Pool
}

func (s *usageStatStore) Bump(ctx context.Context, itemID string, itemType model.ItemType, topics []string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var existing []string
	err = tx.QueryRow(ctx, `SELECT topics FROM usage_stats WHERE item_id = $1`, itemID).Scan(&existing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		merged := mergeDeduped(nil, topics, len(topics)+1)
		if _, err := tx.Exec(ctx,
			`INSERT INTO usage_stats (item_id, item_type, usage_count, first_used, last_used, topics) VALUES ($1, $2, 1, $3, $3, $4)`,
			itemID, itemType, at, merged,
		); err != nil {
			return err
		}
	case err == nil:
		merged := mergeDeduped(existing, topics, len(existing)+len(topics)+1)
		if _, err := tx.Exec(ctx,
			`UPDATE usage_stats SET usage_count = usage_count + 1, last_used = $1, topics = $2 WHERE item_id = $3`,
			at, merged, itemID,
		); err != nil {
			return err
		}
	default:
		return err
	}

	return tx.Commit(ctx)
}

func (s *usageStatStore) Get(ctx context.Context, itemID string) (*model.UsageStat, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT item_id, item_type, usage_count, first_used, last_used, topics FROM usage_stats WHERE item_id = $1`, itemID)

	var stat model.UsageStat
	err := row.Scan(&stat.ItemID, &stat.ItemType, &stat.UsageCount, &stat.FirstUsed, &stat.LastUsed, &stat.Topics)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "usageStats", ID: itemID}
	}
	if err != nil {
		return nil, err
	}
	return &stat, nil
}
