package sqlite

import (
	"context"
	"database/sql"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type chunkStore struct {
	db *sql.DB
}

func (s *chunkStore) StoreBatch(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (chunk_id, chunk_type, text_verbatim, lexical_filters, parent_chunk_id, turn_id, block_id, embedding, token_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, c.ChunkType, c.TextVerbatim, encodeStrings(c.LexicalFilters),
			c.ParentChunkID, c.TurnID, c.BlockID, encodeEmbedding(c.Embedding), c.TokenCount); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *chunkStore) Get(ctx context.Context, chunkID string) (*model.Chunk, error) {
	row := s.db.QueryRowContext(ctx, chunkSelect+` WHERE chunk_id = ?`, chunkID)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "chunks", ID: chunkID}
	}
	return c, err
}

func (s *chunkStore) GetByTurn(ctx context.Context, turnID string) ([]*model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, chunkSelect+` WHERE turn_id = ?`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *chunkStore) GetByBlock(ctx context.Context, blockID string) ([]*model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, chunkSelect+` WHERE block_id = ?`, blockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *chunkStore) List(ctx context.Context) ([]*model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, chunkSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *chunkStore) PatchBlockID(ctx context.Context, turnID, blockID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chunks SET block_id = ? WHERE turn_id = ?`, blockID, turnID)
	return err
}

const chunkSelect = `SELECT chunk_id, chunk_type, text_verbatim, lexical_filters, parent_chunk_id, turn_id, block_id, embedding, token_count FROM chunks`

func scanChunk(row scanner) (*model.Chunk, error) {
	var c model.Chunk
	var filtersJSON string
	var embedding []byte
	if err := row.Scan(&c.ChunkID, &c.ChunkType, &c.TextVerbatim, &filtersJSON, &c.ParentChunkID,
		&c.TurnID, &c.BlockID, &embedding, &c.TokenCount); err != nil {
		return nil, err
	}
	c.LexicalFilters = decodeStrings(filtersJSON)
	c.Embedding = decodeEmbedding(embedding)
	return &c, nil
}

func scanChunks(rows *sql.Rows) ([]*model.Chunk, error) {
	var out []*model.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
