package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bridgeware/hmlr/pkg/lockset"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

// factStore guards the facts collection. Store and Remove serialize
// per key via a lockset so the supersession chain invariant (at most
// one non-superseded row per key) holds even under concurrent writers,
// mirroring the per-key lock the spec requires when the driver lacks
// multi-row transactions.
type factStore struct {
	mu    sync.RWMutex
	facts map[string]*model.Fact
	locks *lockset.Set
}

func newFactStore() *factStore {
	return &factStore{
		facts: make(map[string]*model.Fact),
		locks: lockset.New(),
	}
}

func (s *factStore) Get(_ context.Context, key string) (*model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.facts {
		if f.Key == key && f.SupersededBy == "" {
			return f, nil
		}
	}
	return nil, nil
}

func (s *factStore) GetByBlock(_ context.Context, blockID string) ([]*model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Fact
	for _, f := range s.facts {
		if f.BlockID == blockID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *factStore) GetByCategory(_ context.Context, category model.FactCategory) ([]*model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Fact
	for _, f := range s.facts {
		if f.Category == category && f.SupersededBy == "" {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *factStore) SearchByKeyPrefix(_ context.Context, prefix string) ([]*model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowerPrefix := strings.ToLower(prefix)
	var out []*model.Fact
	for _, f := range s.facts {
		if f.SupersededBy == "" && strings.HasPrefix(strings.ToLower(f.Key), lowerPrefix) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Store inserts fact as a new row, atomically superseding every
// previously non-superseded row with the same key.
func (s *factStore) Store(_ context.Context, fact *model.Fact) (*model.Fact, error) {
	unlock := s.locks.Lock(fact.Key)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.facts {
		if existing.Key == fact.Key && existing.SupersededBy == "" {
			existing.SupersededBy = fact.FactID
		}
	}

	s.facts[fact.FactID] = fact
	return fact, nil
}

// Remove inserts a [DELETED] successor row and links the target to
// it, idempotent if the target is already superseded.
func (s *factStore) Remove(ctx context.Context, factID string) (*model.Fact, error) {
	s.mu.RLock()
	target, ok := s.facts[factID]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrNotFound{Collection: "facts", ID: factID}
	}

	if target.SupersededBy != "" {
		s.mu.RLock()
		successor := s.facts[target.SupersededBy]
		s.mu.RUnlock()
		return successor, nil
	}

	unlock := s.locks.Lock(target.Key)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if target.SupersededBy != "" {
		return s.facts[target.SupersededBy], nil
	}

	successor := &model.Fact{
		FactID:    target.FactID + "_del_" + nowSuffix(),
		Key:       target.Key,
		Value:     model.DeletedValue,
		Category:  target.Category,
		BlockID:   target.BlockID,
		TurnID:    target.TurnID,
		CreatedAt: time.Now(),
	}

	target.SupersededBy = successor.FactID
	s.facts[successor.FactID] = successor
	return successor, nil
}

func (s *factStore) List(_ context.Context) ([]*model.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Fact, 0, len(s.facts))
	for _, f := range s.facts {
		if f.SupersededBy == "" {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *factStore) UpdateBlockID(_ context.Context, turnID, blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.facts {
		if f.TurnID == turnID {
			f.BlockID = blockID
		}
	}
	return nil
}

func nowSuffix() string {
	return time.Now().Format("150405.000000000")
}
