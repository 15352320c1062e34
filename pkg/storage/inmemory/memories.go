package inmemory

import (
	"context"
	"sync"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type memoryStore struct {
	mu       sync.RWMutex
	memories map[string]*model.Memory
}

func newMemoryStore() *memoryStore {
	return &memoryStore{memories: make(map[string]*model.Memory)}
}

func (s *memoryStore) Store(_ context.Context, memory *model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[memory.MemoryID] = memory
	return nil
}

func (s *memoryStore) Get(_ context.Context, memoryID string) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memories[memoryID]
	if !ok {
		return nil, storage.ErrNotFound{Collection: "memories", ID: memoryID}
	}
	return m, nil
}

func (s *memoryStore) GetByBlock(_ context.Context, blockID string) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Memory
	for _, m := range s.memories {
		if m.BlockID == blockID {
			out = append(out, m)
		}
	}
	return out, nil
}

// List returns every memory in the store, used by vector-backend
// seeding and by the gardened-memory search path to join block
// metadata outside the vector index.
func (s *memoryStore) List(_ context.Context) ([]*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		out = append(out, m)
	}
	return out, nil
}
