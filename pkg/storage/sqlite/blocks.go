package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type blockStore struct {
	db *sql.DB
}

func (s *blockStore) Create(ctx context.Context, block *model.BridgeBlock) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE bridge_blocks SET status = ?, updated_at = ? WHERE day_id = ? AND status = ?`,
		model.BlockPaused, sqliteTime(block.CreatedAt), block.DayID, model.BlockActive,
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bridge_blocks (block_id, day_id, topic_label, summary, keywords, status, prev_block_id, open_loops, decisions_made, turn_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		block.BlockID, block.DayID, block.TopicLabel, block.Summary, encodeStrings(block.Keywords),
		block.Status, block.PrevBlockID, encodeStrings(block.OpenLoops), encodeStrings(block.DecisionsMade),
		block.TurnCount, sqliteTime(block.CreatedAt), sqliteTime(block.UpdatedAt),
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *blockStore) Get(ctx context.Context, blockID string) (*model.BridgeBlock, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT block_id, day_id, topic_label, summary, keywords, status, prev_block_id, open_loops, decisions_made, turn_count, created_at, updated_at
		 FROM bridge_blocks WHERE block_id = ?`, blockID)
	b, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
	}
	return b, err
}

func (s *blockStore) GetByDay(ctx context.Context, dayID string) ([]*model.BridgeBlock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT block_id, day_id, topic_label, summary, keywords, status, prev_block_id, open_loops, decisions_made, turn_count, created_at, updated_at
		 FROM bridge_blocks WHERE day_id = ?`, dayID)
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
	row := s.db.QueryRowContext(ctx,
		`SELECT block_id, day_id, topic_label, summary, keywords, status, prev_block_id, open_loops, decisions_made, turn_count, created_at, updated_at
		 FROM bridge_blocks WHERE day_id = ? AND status = ? LIMIT 1`, dayID, model.BlockActive)
	b, err := scanBlock(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "bridgeBlocks", ID: "active:" + dayID}
	}
	return b, err
}

func (s *blockStore) UpdateStatus(ctx context.Context, blockID string, status model.BlockStatus) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var dayID string
	if err := tx.QueryRowContext(ctx, `SELECT day_id FROM bridge_blocks WHERE block_id = ?`, blockID).Scan(&dayID); err != nil {
		if err == sql.ErrNoRows {
			return storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
		}
		return err
	}

	now := sqliteTime(time.Now())

	if status == model.BlockActive {
		if _, err := tx.ExecContext(ctx,
			`UPDATE bridge_blocks SET status = ?, updated_at = ? WHERE day_id = ? AND status = ? AND block_id != ?`,
			model.BlockPaused, now, dayID, model.BlockActive, blockID,
		); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bridge_blocks SET status = ?, updated_at = ? WHERE block_id = ?`, status, now, blockID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *blockStore) UpdateMetadata(ctx context.Context, blockID string, patch storage.BlockMetadataPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var topicLabel, summary, keywordsJSON, openLoopsJSON, decisionsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT topic_label, summary, keywords, open_loops, decisions_made FROM bridge_blocks WHERE block_id = ?`, blockID,
	).Scan(&topicLabel, &summary, &keywordsJSON, &openLoopsJSON, &decisionsJSON)
	if err == sql.ErrNoRows {
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
	keywords := mergeDeduped(decodeStrings(keywordsJSON), patch.Keywords, model.MaxKeywords)
	openLoops := mergeDeduped(decodeStrings(openLoopsJSON), patch.OpenLoops, model.MaxOpenLoops)
	decisions := mergeDeduped(decodeStrings(decisionsJSON), patch.DecisionsMade, model.MaxDecisions)

	if _, err := tx.ExecContext(ctx,
		`UPDATE bridge_blocks SET topic_label = ?, summary = ?, keywords = ?, open_loops = ?, decisions_made = ?, updated_at = ? WHERE block_id = ?`,
		topicLabel, summary, encodeStrings(keywords), encodeStrings(openLoops), encodeStrings(decisions), sqliteTime(time.Now()), blockID,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *blockStore) AppendTurn(ctx context.Context, blockID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bridge_blocks SET turn_count = turn_count + 1,
		 updated_at = CASE WHEN ? > updated_at THEN ? ELSE updated_at END
		 WHERE block_id = ?`,
		sqliteTime(at), sqliteTime(at), blockID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
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

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(row scanner) (*model.BridgeBlock, error) {
	var (
		b                                                         model.BridgeBlock
		keywordsJSON, openLoopsJSON, decisionsJSON                string
		createdAt, updatedAt                                      string
	)
	err := row.Scan(&b.BlockID, &b.DayID, &b.TopicLabel, &b.Summary, &keywordsJSON, &b.Status,
		&b.PrevBlockID, &openLoopsJSON, &decisionsJSON, &b.TurnCount, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.Keywords = decodeStrings(keywordsJSON)
	b.OpenLoops = decodeStrings(openLoopsJSON)
	b.DecisionsMade = decodeStrings(decisionsJSON)
	b.CreatedAt = fromSqliteTime(createdAt)
	b.UpdatedAt = fromSqliteTime(updatedAt)
	return &b, nil
}
