package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type turnStore struct {
	pool *pgxpool.Pool
}

func (s *turnStore) Append(ctx context.Context, turn *model.Turn) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (turn_id, block_id, user_message, ai_response, keywords, affect, timestamp) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		turn.TurnID, turn.BlockID, turn.UserMessage, turn.AIResponse, turn.Keywords, turn.Affect, turn.Timestamp,
	)
	return err
}

func (s *turnStore) Get(ctx context.Context, turnID string) (*model.Turn, error) {
	row := s.pool.QueryRow(ctx, turnSelect+` WHERE turn_id = $1`, turnID)
	t, err := scanTurn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "turns", ID: turnID}
	}
	return t, err
}

func (s *turnStore) GetByBlock(ctx context.Context, blockID string) ([]*model.Turn, error) {
	rows, err := s.pool.Query(ctx, turnSelect+` WHERE block_id = $1 ORDER BY timestamp ASC`, blockID)
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
	rows, err := s.pool.Query(ctx, turnSelect+` WHERE block_id = ANY($1) ORDER BY timestamp ASC`, blockIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

func (s *turnStore) MarkEvicted(ctx context.Context, turnID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE turns SET evicted = TRUE WHERE turn_id = $1`, turnID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound{Collection: "turns", ID: turnID}
	}
	return nil
}

func (s *turnStore) Remove(ctx context.Context, turnID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM turns WHERE turn_id = $1`, turnID)
	return err
}

const turnSelect = `SELECT turn_id, block_id, user_message, ai_response, keywords, affect, timestamp, evicted FROM turns`

func scanTurn(row rowScanner) (*model.Turn, error) {
	var t model.Turn
	if err := row.Scan(&t.TurnID, &t.BlockID, &t.UserMessage, &t.AIResponse, &t.Keywords, &t.Affect, &t.Timestamp, &t.Evicted); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTurns(rows pgx.Rows) ([]*model.Turn, error) {
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
