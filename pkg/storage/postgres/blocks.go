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

type blockStore struct {
	pool *pgxpool.Pool
}

func (s *blockStore) Create(ctx context.Context, block *model.BridgeBlock) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE bridge_blocks SET status = $1, updated_at = $2 WHERE day_id = $3 AND status = $4`,
		model.BlockPaused, block.CreatedAt, block.DayID, model.BlockActive,
	); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO bridge_blocks (block_id, day_id, topic_label, summary, keywords, status, prev_block_id, open_loops, decisions_made, turn_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		block.BlockID, block.DayID, block.TopicLabel, block.Summary, block.Keywords, block.Status,
		block.PrevBlockID, block.OpenLoops, block.DecisionsMade, block.TurnCount, block.CreatedAt, block.UpdatedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *blockStore) Get(ctx context.Context, blockID string) (*model.BridgeBlock, error) {
	row := s.pool.QueryRow(ctx, blockSelect+` WHERE block_id = $1`, blockID)
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
	}
	return b, err
}

func (s *blockStore) GetByDay(ctx context.Context, dayID string) ([]*model.BridgeBlock, error) {
	rows, err := s.pool.Query(ctx, blockSelect+` WHERE day_id = $1`, dayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.BridgeBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *blockStore) GetActive(ctx context.Context, dayID string) (*model.BridgeBlock, error) {
	row := s.pool.QueryRow(ctx, blockSelect+` WHERE day_id = $1 AND status = $2 LIMIT 1`, dayID, model.BlockActive)
	b, err := scanBlock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "bridgeBlocks", ID: "active:" + dayID}
	}
	return b, err
}

func (s *blockStore) UpdateStatus(ctx context.Context, blockID string, status model.BlockStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var dayID string
	if err := tx.QueryRow(ctx, `SELECT day_id FROM bridge_blocks WHERE block_id = $1`, blockID).Scan(&dayID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
		}
		return err
	}

	now := time.Now()

	if status == model.BlockActive {
		if _, err := tx.Exec(ctx,
			`UPDATE bridge_blocks SET status = $1, updated_at = $2 WHERE day_id = $3 AND status = $4 AND block_id != $5`,
			model.BlockPaused, now, dayID, model.BlockActive, blockID,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE bridge_blocks SET status = $1, updated_at = $2 WHERE block_id = $3`, status, now, blockID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *blockStore) UpdateMetadata(ctx context.Context, blockID string, patch storage.BlockMetadataPatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var topicLabel, summary string
	var keywords, openLoops, decisions []string
	err = tx.QueryRow(ctx, `SELECT topic_label, summary, keywords, open_loops, decisions_made FROM bridge_blocks WHERE block_id = $1`, blockID).
		Scan(&topicLabel, &summary, &keywords, &openLoops, &decisions)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
	}
	if err != nil {
		return err
	}

	if patch.TopicLabel != nil {
		topicLabel = *patch.TopicLabel
	}
	if patch.Summary != nil {
		summary = *patch.Summary
	}
	keywords = mergeDeduped(keywords, patch.Keywords, model.MaxKeywords)
	openLoops = mergeDeduped(openLoops, patch.OpenLoops, model.MaxOpenLoops)
	decisions = mergeDeduped(decisions, patch.DecisionsMade, model.MaxDecisions)

	if _, err := tx.Exec(ctx,
		`UPDATE bridge_blocks SET topic_label = $1, summary = $2, keywords = $3, open_loops = $4, decisions_made = $5, updated_at = $6 WHERE block_id = $7`,
		topicLabel, summary, keywords, openLoops, decisions, time.Now(), blockID,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *blockStore) AppendTurn(ctx context.Context, blockID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bridge_blocks SET turn_count = turn_count + 1,
		 updated_at = CASE WHEN $1 > updated_at THEN $1 ELSE updated_at END
		 WHERE block_id = $2`,
		at, blockID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
	}
	return nil
}

// mergeDeduped mirrors pkg/storage/inmemory's merge semantics for
// UpdateMetadata's deduped-ordered-set fields.
func mergeDeduped(existing, incoming []string, max int) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))

	for _, v := range existing {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	for _, v := range incoming {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) >= max {
			break
		}
	}

	if len(out) > max {
		out = out[:max]
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

const blockSelect = `SELECT block_id, day_id, topic_label, summary, keywords, status, prev_block_id, open_loops, decisions_made, turn_count, created_at, updated_at FROM bridge_blocks`

func scanBlock(row rowScanner) (*model.BridgeBlock, error) {
	var b model.BridgeBlock
	err := row.Scan(&b.BlockID, &b.DayID, &b.TopicLabel, &b.Summary, &b.Keywords, &b.Status,
		&b.PrevBlockID, &b.OpenLoops, &b.DecisionsMade, &b.TurnCount, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
