package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type chunkStore struct {
	pool *pgxpool.Pool
}

func (s *chunkStore) StoreBatch(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO chunks (chunk_id, chunk_type, text_verbatim, lexical_filters, parent_chunk_id, turn_id, block_id, embedding, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			c.ChunkID, c.ChunkType, c.TextVerbatim, c.LexicalFilters, c.ParentChunkID, c.TurnID, c.BlockID,
			pgvector.NewVector(c.Embedding), c.TokenCount,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *chunkStore) Get(ctx context.Context, chunkID string) (*model.Chunk, error) {
	row := s.pool.QueryRow(ctx, chunkSelect+` WHERE chunk_id = $1`, chunkID)
	c, err := scanChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "chunks", ID: chunkID}
	}
	return c, err
}

func (s *chunkStore) GetByTurn(ctx context.Context, turnID string) ([]*model.Chunk, error) {
	rows, err := s.pool.Query(ctx, chunkSelect+` WHERE turn_id = $1`, turnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *chunkStore) GetByBlock(ctx context.Context, blockID string) ([]*model.Chunk, error) {
	rows, err := s.pool.Query(ctx, chunkSelect+` WHERE block_id = $1`, blockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *chunkStore) List(ctx context.Context) ([]*model.Chunk, error) {
	rows, err := s.pool.Query(ctx, chunkSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunks(rows)
}

func (s *chunkStore) PatchBlockID(ctx context.Context, turnID, blockID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE chunks SET block_id = $1 WHERE turn_id = $2`, blockID, turnID)
	return err
}

const chunkSelect = `SELECT chunk_id, chunk_type, text_verbatim, lexical_filters, parent_chunk_id, turn_id, block_id, embedding, token_count FROM chunks`

func scanChunk(row rowScanner) (*model.Chunk, error) {
	var c model.Chunk
	var vec pgvector.Vector
	if err := row.Scan(&c.ChunkID, &c.ChunkType, &c.TextVerbatim, &c.LexicalFilters, &c.ParentChunkID,
		&c.TurnID, &c.BlockID, &vec, &c.TokenCount); err != nil {
		return nil, err
	}
	c.Embedding = vec.Slice()
	return &c, nil
}

func scanChunks(rows pgx.Rows) ([]*model.Chunk, error) {
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
