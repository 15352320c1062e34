package sqlite

import (
	"context"
	"database/sql"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type memoryStore struct {
	db *sql.DB
}

func (s *memoryStore) Store(ctx context.Context, memory *model.Memory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (memory_id, turn_id, block_id, content, chunk_index, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		memory.MemoryID, memory.TurnID, memory.BlockID, memory.Content, memory.ChunkIndex,
		encodeEmbedding(memory.Embedding), sqliteTime(memory.CreatedAt),
	)
	return err
}

func (s *memoryStore) Get(ctx context.Context, memoryID string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx, memorySelect+` WHERE memory_id = ?`, memoryID)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "memories", ID: memoryID}
	}
	return m, err
}

func (s *memoryStore) GetByBlock(ctx context.Context, blockID string) ([]*model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, memorySelect+` WHERE block_id = ?`, blockID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

func (s *memoryStore) List(ctx context.Context) ([]*model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, memorySelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMemories(rows)
}

const memorySelect = `SELECT memory_id, turn_id, block_id, content, chunk_index, embedding, created_at FROM memories`

func scanMemory(row scanner) (*model.Memory, error) {
	var m model.Memory
	var embedding []byte
	var createdAt string
	if err := row.Scan(&m.MemoryID, &m.TurnID, &m.BlockID, &m.Content, &m.ChunkIndex, &embedding, &createdAt); err != nil {
		return nil, err
	}
	m.Embedding = decodeEmbedding(embedding)
	m.CreatedAt = fromSqliteTime(createdAt)
	return &m, nil
}

func scanMemories(rows *sql.Rows) ([]*model.Memory, error) {
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
