package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type factStore struct {
	db *sql.DB
}

func (s *factStore) Get(ctx context.Context, key string) (*model.Fact, error) {
	row := s.db.QueryRowContext(ctx, factSelect+` WHERE key = ? AND superseded_by = '' LIMIT 1`, key)
	f, err := scanFact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return f, err
}

func (s *factStore) GetByBlock(ctx context.Context, blockID string) ([]*model.Fact, error) {
	rows, err := s.db.QueryContext(ctx, factSelect+` WHERE block_id = ? ORDER BY created_at DESC`, blockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *factStore) GetByCategory(ctx context.Context, category model.FactCategory) ([]*model.Fact, error) {
	rows, err := s.db.QueryContext(ctx, factSelect+` WHERE category = ? AND superseded_by = ''`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *factStore) SearchByKeyPrefix(ctx context.Context, prefix string) ([]*model.Fact, error) {
	rows, err := s.db.QueryContext(ctx,
		factSelect+` WHERE superseded_by = '' AND LOWER(key) LIKE ? ESCAPE '\'`,
		strings.ToLower(escapeLike(prefix))+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

// Store inserts fact, atomically superseding every previously
// non-superseded row with the same key inside one transaction.
func (s *factStore) Store(ctx context.Context, fact *model.Fact) (*model.Fact, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE facts SET superseded_by = ? WHERE key = ? AND superseded_by = ''`, fact.FactID, fact.Key,
	); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO facts (fact_id, key, value, category, block_id, turn_id, evidence_snippet, source_chunk_id, source_paragraph_id, confidence, superseded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)`,
		fact.FactID, fact.Key, fact.Value, fact.Category, fact.BlockID, fact.TurnID, fact.EvidenceSnippet,
		fact.SourceChunkID, fact.SourceParagraphID, fact.Confidence, sqliteTime(fact.CreatedAt),
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fact, nil
}

func (s *factStore) Remove(ctx context.Context, factID string) (*model.Fact, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	target, err := scanFact(tx.QueryRowContext(ctx, factSelect+` WHERE fact_id = ?`, factID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "facts", ID: factID}
	}
	if err != nil {
		return nil, err
	}

	if target.SupersededBy != "" {
		successor, err := scanFact(tx.QueryRowContext(ctx, factSelect+` WHERE fact_id = ?`, target.SupersededBy))
		if err != nil {
			return nil, err
		}
		return successor, tx.Commit()
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

	if _, err := tx.ExecContext(ctx, `UPDATE facts SET superseded_by = ? WHERE fact_id = ?`, successor.FactID, factID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO facts (fact_id, key, value, category, block_id, turn_id, evidence_snippet, source_chunk_id, source_paragraph_id, confidence, superseded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, '', '', '', 0, '', ?)`,
		successor.FactID, successor.Key, successor.Value, successor.Category, successor.BlockID, successor.TurnID, sqliteTime(successor.CreatedAt),
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return successor, nil
}

func (s *factStore) List(ctx context.Context) ([]*model.Fact, error) {
	rows, err := s.db.QueryContext(ctx, factSelect+` WHERE superseded_by = ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFacts(rows)
}

func (s *factStore) UpdateBlockID(ctx context.Context, turnID, blockID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE facts SET block_id = ? WHERE turn_id = ?`, blockID, turnID)
	return err
}

const factSelect = `SELECT fact_id, key, value, category, block_id, turn_id, evidence_snippet, source_chunk_id, source_paragraph_id, confidence, superseded_by, created_at FROM facts`

func scanFact(row scanner) (*model.Fact, error) {
	var f model.Fact
	var createdAt string
	if err := row.Scan(&f.FactID, &f.Key, &f.Value, &f.Category, &f.BlockID, &f.TurnID, &f.EvidenceSnippet,
		&f.SourceChunkID, &f.SourceParagraphID, &f.Confidence, &f.SupersededBy, &createdAt); err != nil {
		return nil, err
	}
	f.CreatedAt = fromSqliteTime(createdAt)
	return &f, nil
}

func scanFacts(rows *sql.Rows) ([]*model.Fact, error) {
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

// escapeLike escapes SQLite LIKE metacharacters in a user-supplied
// prefix so SearchByKeyPrefix treats it as a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
