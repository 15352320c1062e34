package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type topicAffinityStore struct {
	pool *pgxpool.Pool
}

func (s *topicAffinityStore) Upsert(ctx context.Context, topic string, addedTs, evictedTs time.Time) error {
	key := strings.ToLower(topic)
	delta := evictedTs.Sub(addedTs).Nanoseconds()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO topic_affinity (topic, eviction_count, total_time_in_window, avg_time_in_window)
		 VALUES ($1, 1, $2, $2)
		 ON CONFLICT(topic) DO UPDATE SET
		   eviction_count = topic_affinity.eviction_count + 1,
		   total_time_in_window = topic_affinity.total_time_in_window + $2,
		   avg_time_in_window = (topic_affinity.total_time_in_window + $2) / (topic_affinity.eviction_count + 1)`,
		key, delta,
	)
	return err
}

func (s *topicAffinityStore) Get(ctx context.Context, topic string) (*model.TopicAffinity, error) {
	key := strings.ToLower(topic)
	row := s.pool.QueryRow(ctx,
		`SELECT topic, eviction_count, total_time_in_window, avg_time_in_window FROM topic_affinity WHERE topic = $1`, key)

	var t model.TopicAffinity
	var total, avg int64
	err := row.Scan(&t.Topic, &t.EvictionCount, &total, &avg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound{Collection: "topicAffinity", ID: key}
	}
	if err != nil {
		return nil, err
	}
	t.TotalTimeInWindow = time.Duration(total)
	t.AvgTimeInWindow = time.Duration(avg)
	return &t, nil
}
