package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type turnStore struct {
	db *sql.DB
}

func (s *turnStore) Append(ctx context.Context, turn *model.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, block_id, user_message, ai_response, keywords, affect, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.TurnID, turn.BlockID, turn.UserMessage, turn.AIResponse, encodeStrings(turn.Keywords), turn.Affect, sqliteTime(turn.Timestamp),
	)
	return err
}

func (s *turnStore) Get(ctx context.Context, turnID string) (*model.Turn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT turn_id, block_id, user_message, ai_response, keywords, affect, timestamp, evicted FROM turns WHERE turn_id = ?`, turnID)
	t, err := scanTurn(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "turns", ID: turnID}
	}
	return t, err
}

func (s *turnStore) GetByBlock(ctx context.Context, blockID string) ([]*model.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT turn_id, block_id, user_message, ai_response, keywords, affect, timestamp, evicted FROM turns WHERE block_id = ? ORDER BY timestamp ASC`, blockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *turnStore) GetByDay(ctx context.Context, _ string, blockIDs []string) ([]*model.Turn, error) {
	if len(blockIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(blockIDs))
	args := make([]any, len(blockIDs))
	for i, id := range blockIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `SELECT turn_id, block_id, user_message, ai_response, keywords, affect, timestamp, evicted FROM turns WHERE block_id IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY timestamp ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *turnStore) MarkEvicted(ctx context.Context, turnID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE turns SET evicted = 1 WHERE turn_id = ?`, turnID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound{Collection: "turns", ID: turnID}
	}
	return nil
}

func (s *turnStore) Remove(ctx context.Context, turnID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE turn_id = ?`, turnID)
	return err
}

func scanTurn(row scanner) (*model.Turn, error) {
	var t model.Turn
	var keywordsJSON, timestamp string
	var evicted int
	if err := row.Scan(&t.TurnID, &t.BlockID, &t.UserMessage, &t.AIResponse, &keywordsJSON, &t.Affect, &timestamp, &evicted); err != nil {
		return nil, err
	}
	t.Keywords = decodeStrings(keywordsJSON)
	t.Timestamp = fromSqliteTime(timestamp)
	t.Evicted = evicted != 0
	return &t, nil
}

func scanTurns(rows *sql.Rows) ([]*model.Turn, error) {
	var out []*model.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
