package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

type topicAffinityStore struct {
	db *sql.DB
}

func (s *topicAffinityStore) Upsert(ctx context.Context, topic string, addedTs, evictedTs time.Time) error {
	key := strings.ToLower(topic)
	delta := evictedTs.Sub(addedTs).Nanoseconds()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO topic_affinity (topic, eviction_count, total_time_in_window, avg_time_in_window)
		 VALUES (?, 1, ?, ?)
		 ON CONFLICT(topic) DO UPDATE SET
		   eviction_count = eviction_count + 1,
		   total_time_in_window = total_time_in_window + ?,
		   avg_time_in_window = (total_time_in_window + ?) / (eviction_count + 1)`,
		key, delta, delta, delta, delta,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *topicAffinityStore) Get(ctx context.Context, topic string) (*model.TopicAffinity, error) {
	key := strings.ToLower(topic)
	row := s.db.QueryRowContext(ctx,
		`SELECT topic, eviction_count, total_time_in_window, avg_time_in_window FROM topic_affinity WHERE topic = ?`, key)

	var t model.TopicAffinity
	var total, avg int64
	err := row.Scan(&t.Topic, &t.EvictionCount, &total, &avg)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Collection: "topicAffinity", ID: key}
	}
	if err != nil {
		return nil, err
	}
	t.TotalTimeInWindow = time.Duration(total)
	t.AvgTimeInWindow = time.Duration(avg)
	return &t, nil
}
