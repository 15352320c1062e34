package inmemory

import (
	"context"
	"sync"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type lineageStore struct {
	mu    sync.RWMutex
	edges map[string]*model.LineageEdge
}

func newLineageStore() *lineageStore {
	return &lineageStore{edges: make(map[string]*model.LineageEdge)}
}

func (s *lineageStore) Record(_ context.Context, edge *model.LineageEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edge.ItemID] = edge
	return nil
}

func (s *lineageStore) Get(_ context.Context, itemID string) (*model.LineageEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.edges[itemID]
	if !ok {
		return nil, storage.ErrNotFound{Collection: "lineage", ID: itemID}
	}
	return e, nil
}

func (s *lineageStore) GetByParent(_ context.Context, parentID string) ([]*model.LineageEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.LineageEdge
	for _, e := range s.edges {
		for _, p := range e.DerivedFrom {
			if p == parentID {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

func (s *lineageStore) List(_ context.Context) ([]*model.LineageEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.LineageEdge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	return out, nil
}
