package inmemory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type topicAffinityStore struct {
	mu     sync.Mutex
	topics map[string]*model.TopicAffinity
}

func newTopicAffinityStore() *topicAffinityStore {
	return &topicAffinityStore{topics: make(map[string]*model.TopicAffinity)}
}

func (s *topicAffinityStore) Upsert(_ context.Context, topic string, addedTs, evictedTs time.Time) error {
	key := strings.ToLower(topic)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[key]
	if !ok {
		t = &model.TopicAffinity{Topic: key}
		s.topics[key] = t
	}

	t.TotalTimeInWindow += evictedTs.Sub(addedTs)
	t.EvictionCount++
	t.AvgTimeInWindow = t.TotalTimeInWindow / time.Duration(t.EvictionCount)
	return nil
}

func (s *topicAffinityStore) Get(_ context.Context, topic string) (*model.TopicAffinity, error) {
	key := strings.ToLower(topic)

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.topics[key]
	if !ok {
		return nil, storage.ErrNotFound{Collection: "topicAffinity", ID: key}
	}
	return t, nil
}
