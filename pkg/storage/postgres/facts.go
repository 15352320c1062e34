package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type factStore struct {
	pool *pgxpool.Pool
}

func (s *factStore) Get(ctx context.Context, key string) (*model.Fact, error) {
	row := s.pool.QueryRow(ctx, factSelect+` WHERE key = $1 AND superseded_by = '' LIMIT 1`, key)
	f, err := scanFact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

func (s *factStore) GetByBlock(ctx context.Context, blockID string) ([]*model.Fact, error) {
	rows, err := s.pool.Query(ctx, factSelect+` WHERE block_id = $1 ORDER BY created_at DESC`, blockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *factStore) GetByCategory(ctx context.Context, category model.FactCategory) ([]*model.Fact, error) {
	rows, err := s.pool.Query(ctx, factSelect+` WHERE category = $1 AND superseded_by = ''`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *factStore) SearchByKeyPrefix(ctx context.Context, prefix string) ([]*model.Fact, error) {
	rows, err := s.pool.Query(ctx, factSelect+` WHERE superseded_by = '' AND LOWER(key) LIKE $1`, strings.ToLower(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *factStore) Store(ctx context.Context, fact *model.Fact) (*model.Fact, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE facts SET superseded_by = $1 WHERE key = $2 AND superseded_by = ''`, fact.FactID, fact.Key); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO facts (fact_id, key, value, category, block_id, turn_id, evidence_snippet, source_chunk_id, source_paragraph_id, confidence, superseded_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, '', $11)`,
		fact.FactID, fact.Key, fact.Value, fact.Category, fact.BlockID, fact.TurnID, fact.EvidenceSnippet,
		fact.SourceChunkID, fact.SourceParagraphID, fact.Confidence, fact.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return fact, nil
}

func (s *factStore) Remove(ctx context.Context, factID string) (*model.Fact, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	target, err := scanFact(tx.QueryRow(ctx, factSelect+` WHERE fact_id = $1`, factID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "facts", ID: factID}
	}
	if err != nil {
		return nil, err
	}

	if target.SupersededBy != "" {
		successor, err := scanFact(tx.QueryRow(ctx, factSelect+` WHERE fact_id = $1`, target.SupersededBy))
		if err != nil {
			return nil, err
		}
		return successor, tx.Commit(ctx)
	}

	successor := &model.Fact{
		FactID:    target.FactID + "_del_" + time.Now().Format("150405.000000000"),
		Key:       target.Key,
		Value:     model.DeletedValue,
		Category:  target.Category,
		BlockID:   target.BlockID,
		TurnID:    target.TurnID,
		CreatedAt: time.Now(),
	}

	if _, err := tx.Exec(ctx, `UPDATE facts SET superseded_by = $1 WHERE fact_id = $2`, successor.FactID, factID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO facts (fact_id, key, value, category, block_id, turn_id, evidence_snippet, source_chunk_id, source_paragraph_id, confidence, superseded_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, '', '', '', 0, '', $7)`,
		successor.FactID, successor.Key, successor.Value, successor.Category, successor.BlockID, successor.TurnID, successor.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return successor, nil
}

func (s *factStore) List(ctx context.Context) ([]*model.Fact, error) {
	rows, err := s.pool.Query(ctx, factSelect+` WHERE superseded_by = ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *factStore) UpdateBlockID(ctx context.Context, turnID, blockID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE facts SET block_id = $1 WHERE turn_id = $2`, blockID, turnID)
	return err
}

const factSelect = `SELECT fact_id, key, value, category, block_id, turn_id, evidence_snippet, source_chunk_id, source_paragraph_id, confidence, superseded_by, created_at FROM facts`

func scanFact(row rowScanner) (*model.Fact, error) {
	var f model.Fact
	if err := row.Scan(&f.FactID, &f.Key, &f.Value, &f.Category, &f.BlockID, &f.TurnID, &f.EvidenceSnippet,
		&f.SourceChunkID, &f.SourceParagraphID, &f.Confidence, &f.SupersededBy, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanFacts(rows pgx.Rows) ([]*model.Fact, error) {
	var out []*model.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
