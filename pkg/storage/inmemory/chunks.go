package inmemory

import (
	"context"
	"sync"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type chunkStore struct {
	mu     sync.RWMutex
	chunks map[string]*model.Chunk
}

func newChunkStore() *chunkStore {
	return &chunkStore{chunks: make(map[string]*model.Chunk)}
}

func (s *chunkStore) StoreBatch(_ context.Context, chunks []*model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chunks {
		s.chunks[c.ChunkID] = c
	}
	return nil
}

func (s *chunkStore) Get(_ context.Context, chunkID string) (*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.chunks[chunkID]
	if !ok {
		return nil, storage.ErrNotFound{Collection: "chunks", ID: chunkID}
	}
	return c, nil
}

func (s *chunkStore) GetByTurn(_ context.Context, turnID string) ([]*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Chunk
	for _, c := range s.chunks {
		if c.TurnID == turnID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *chunkStore) GetByBlock(_ context.Context, blockID string) ([]*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Chunk
	for _, c := range s.chunks {
		if c.BlockID == blockID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *chunkStore) List(_ context.Context) ([]*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	return out, nil
}

func (s *chunkStore) PatchBlockID(_ context.Context, turnID, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.chunks {
		if c.TurnID == turnID {
			c.BlockID = blockID
		}
	}
	return nil
}
