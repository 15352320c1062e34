package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type usageStatStore struct {
	mu    sync.RWMutex
	stats map[string]*model.UsageStat
}

func newUsageStatStore() *usageStatStore {
	return &usageStatStore{stats: make(map[string]*model.UsageStat)}
}

func (s *usageStatStore) Bump(_ context.Context, itemID string, itemType model.ItemType, topics []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stat, ok := s.stats[itemID]
	if !ok {
		stat = &model.UsageStat{
			ItemID:    itemID,
			ItemType:  itemType,
			FirstUsed: at,
		}
		s.stats[itemID] = stat
	}

	stat.UsageCount++
	stat.LastUsed = at
	stat.Topics = mergeDeduped(stat.Topics, topics, len(stat.Topics)+len(topics)+1)
	return nil
}

func (s *usageStatStore) Get(_ context.Context, itemID string) (*model.UsageStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stat, ok := s.stats[itemID]
	if !ok {
		return nil, storage.ErrNotFound{Collection: "usageStats", ID: itemID}
	}
	return stat, nil
}
