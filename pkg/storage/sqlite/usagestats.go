package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type usageStatStore struct {
	db *sql.DB
}

func (s *usageStatStore) Bump(ctx context.Context, itemID string, itemType model.ItemType, topics []string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingTopicsJSON string
	err = tx.QueryRowContext(ctx, `SELECT topics FROM usage_stats WHERE item_id = ?`, itemID).Scan(&existingTopicsJSON)
	switch err {
	case sql.ErrNoRows:
		merged := mergeDeduped(nil, topics, len(topics)+1)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO usage_stats (item_id, item_type, usage_count, first_used, last_used, topics) VALUES (?, ?, 1, ?, ?, ?)`,
			itemID, itemType, sqliteTime(at), sqliteTime(at), encodeStrings(merged),
		); err != nil {
			return err
		}
	case nil:
		existing := decodeStrings(existingTopicsJSON)
		merged := mergeDeduped(existing, topics, len(existing)+len(topics)+1)
		if _, err := tx.ExecContext(ctx,
			`UPDATE usage_stats SET usage_count = usage_count + 1, last_used = ?, topics = ? WHERE item_id = ?`,
			sqliteTime(at), encodeStrings(merged), itemID,
		); err != nil {
			return err
		}
	default:
		return err
	}

	return tx.Commit()
}

func (s *usageStatStore) Get(ctx context.Context, itemID string) (*model.UsageStat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT item_id, item_type, usage_count, first_used, last_used, topics FROM usage_stats WHERE item_id = ?`, itemID)

	var stat model.UsageStat
	var firstUsed, lastUsed, topicsJSON string
	err := row.Scan(&stat.ItemID, &stat.ItemType, &stat.UsageCount, &firstUsed, &lastUsed, &topicsJSON)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "usageStats", ID: itemID}
	}
	if err != nil {
		return nil, err
	}
	stat.FirstUsed = fromSqliteTime(firstUsed)
	stat.LastUsed = fromSqliteTime(lastUsed)
	stat.Topics = decodeStrings(topicsJSON)
	return &stat, nil
}
