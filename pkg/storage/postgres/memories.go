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

type memoryStore struct {
	pool *pgxpool.Pool
}

func (s *memoryStore) Store(ctx context.Context, memory *model.Memory) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO memories (memory_id, turn_id, block_id, content, chunk_index, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		memory.MemoryID, memory.TurnID, memory.BlockID, memory.Content, memory.ChunkIndex,
		pgvector.NewVector(memory.Embedding), memory.CreatedAt,
	)
	return err
}

func (s *memoryStore) Get(ctx context.Context, memoryID string) (*model.Memory, error) {
	row := s.pool.QueryRow(ctx, memorySelect+` WHERE memory_id = $1`, memoryID)
	m, err := scanMemory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "memories", ID: memoryID}
	}
	return m, err
}

func (s *memoryStore) GetByBlock(ctx context.Context, blockID string) ([]*model.Memory, error) {
	rows, err := s.pool.Query(ctx, memorySelect+` WHERE block_id = $1`, blockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *memoryStore) List(ctx context.Context) ([]*model.Memory, error) {
	rows, err := s.pool.Query(ctx, memorySelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

const memorySelect = `SELECT memory_id, turn_id, block_id, content, chunk_index, embedding, created_at FROM memories`

func scanMemory(row rowScanner) (*model.Memory, error) {
	var m model.Memory
	var vec pgvector.Vector
	if err := row.Scan(&m.MemoryID, &m.TurnID, &m.BlockID, &m.Content, &m.ChunkIndex, &vec, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Embedding = vec.Slice()
	return &m, nil
}

func scanMemories(rows pgx.Rows) ([]*model.Memory, error) {
	var out []*model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
