package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type turnStore struct {
	mu    sync.RWMutex
	turns map[string]*model.Turn
}

func newTurnStore() *turnStore {
	return &turnStore{turns: make(map[string]*model.Turn)}
}

func (s *turnStore) Append(_ context.Context, turn *model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[turn.TurnID] = turn
	return nil
}

func (s *turnStore) Get(_ context.Context, turnID string) (*model.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.turns[turnID]
	if !ok {
		return nil, storage.ErrNotFound{Collection: "turns", ID: turnID}
	}
	return t, nil
}

func (s *turnStore) GetByBlock(_ context.Context, blockID string) ([]*model.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Turn
	for _, t := range s.turns {
		if t.BlockID == blockID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *turnStore) MarkEvicted(_ context.Context, turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.turns[turnID]
	if !ok {
		return storage.ErrNotFound{Collection: "turns", ID: turnID}
	}
	t.Evicted = true
	return nil
}

func (s *turnStore) Remove(_ context.Context, turnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, turnID)
	return nil
}

func (s *turnStore) GetByDay(_ context.Context, _ string, blockIDs []string) ([]*model.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	blockSet := make(map[string]struct{}, len(blockIDs))
	for _, b := range blockIDs {
		blockSet[b] = struct{}{}
	}

	var out []*model.Turn
	for _, t := range s.turns {
		if _, ok := blockSet[t.BlockID]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
