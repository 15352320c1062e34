// Package factstore implements the Fact Store operation surface over
// a storage.FactStore, minting fact ids and filling in timestamps.
// Supersession-chain atomicity itself is owned by the storage driver
// (see pkg/storage/inmemory's per-key lockset), following the
// concurrency shape of the teacher's pkg/memory/local.Driver
// (sync.RWMutex-guarded map) generalized from append-only facts to a
// keyed, versioned supersession chain.
package factstore

import (
	"context"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

// Store is the domain-level Fact Store API described in spec §4.2.
type Store struct {
	driver storage.FactStore
	nowFn  func() time.Time
	idFn   func(prefix string) string
}

// New constructs a Store over driver. idFn mints fact ids (typically
// model.NewID("fact", time.Now().UnixNano(), 0) pinned per call site);
// nowFn defaults to time.Now if nil.
func New(driver storage.FactStore, idFn func(prefix string) string, nowFn func() time.Time) *Store {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Store{driver: driver, idFn: idFn, nowFn: nowFn}
}

func (s *Store) Get(ctx context.Context, key string) (*model.Fact, error) {
	return s.driver.Get(ctx, key)
}

func (s *Store) GetByBlock(ctx context.Context, blockID string) ([]*model.Fact, error) {
	return s.driver.GetByBlock(ctx, blockID)
}

func (s *Store) GetByCategory(ctx context.Context, category model.FactCategory) ([]*model.Fact, error) {
	return s.driver.GetByCategory(ctx, category)
}

func (s *Store) SearchByKeyPrefix(ctx context.Context, prefix string) ([]*model.Fact, error) {
	return s.driver.SearchByKeyPrefix(ctx, prefix)
}

// StoreInput carries the arguments to Store's store operation.
type StoreInput struct {
	Key             string
	Value           string
	Category        model.FactCategory
	BlockID         string
	TurnID          string
	EvidenceSnippet string
	Confidence      float64
}

// StoreFact inserts a new fact row, atomically superseding any prior
// non-superseded row with the same key (enforced by the driver).
func (s *Store) StoreFact(ctx context.Context, in StoreInput) (*model.Fact, error) {
	confidence := in.Confidence
	if confidence == 0 {
		confidence = 1.0
	}

	fact := &model.Fact{
		FactID:          s.idFn("fact"),
		Key:             in.Key,
		Value:           in.Value,
		Category:        in.Category,
		BlockID:         in.BlockID,
		TurnID:          in.TurnID,
		EvidenceSnippet: in.EvidenceSnippet,
		Confidence:      confidence,
		CreatedAt:       s.nowFn(),
	}

	return s.driver.Store(ctx, fact)
}

// StoreBatch stores each input in order, preserving order in the
// returned slice. A failure aborts the remaining batch.
func (s *Store) StoreBatch(ctx context.Context, ins []StoreInput) ([]*model.Fact, error) {
	out := make([]*model.Fact, 0, len(ins))
	for _, in := range ins {
		fact, err := s.StoreFact(ctx, in)
		if err != nil {
			return out, err
		}
		out = append(out, fact)
	}
	return out, nil
}

// Remove soft-deletes factID by inserting a [DELETED] successor,
// idempotent on an already-superseded row.
func (s *Store) Remove(ctx context.Context, factID string) (*model.Fact, error) {
	return s.driver.Remove(ctx, factID)
}

func (s *Store) UpdateBlockID(ctx context.Context, turnID, blockID string) error {
	return s.driver.UpdateBlockID(ctx, turnID, blockID)
}
