package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

// blockStore guards the bridgeBlocks collection. The "at most one
// ACTIVE block" invariant is enforced here, under a single mutex, so
// Create and UpdateStatus(ACTIVE) are atomic per spec §4.3 — the core
// never needs its own locking around routing scenarios against this
// driver.
type blockStore struct {
	mu     sync.RWMutex
	blocks map[string]*model.BridgeBlock
}

func newBlockStore() *blockStore {
	return &blockStore{blocks: make(map[string]*model.BridgeBlock)}
}

func (s *blockStore) Create(_ context.Context, block *model.BridgeBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.blocks {
		if b.DayID == block.DayID && b.Status == model.BlockActive {
			b.Status = model.BlockPaused
			b.UpdatedAt = block.CreatedAt
		}
	}

	s.blocks[block.BlockID] = block
	return nil
}

func (s *blockStore) Get(_ context.Context, blockID string) (*model.BridgeBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[blockID]
	if !ok {
		return nil, storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
	}
	return b, nil
}

func (s *blockStore) GetByDay(_ context.Context, dayID string) ([]*model.BridgeBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.BridgeBlock
	for _, b := range s.blocks {
		if b.DayID == dayID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *blockStore) GetActive(_ context.Context, dayID string) (*model.BridgeBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.blocks {
		if b.DayID == dayID && b.Status == model.BlockActive {
			return b, nil
		}
	}
	return nil, storage.ErrNotFound{Collection: "bridgeBlocks", ID: "active:" + dayID}
}

func (s *blockStore) UpdateStatus(_ context.Context, blockID string, status model.BlockStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.blocks[blockID]
	if !ok {
		return storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
	}

	now := time.Now()

	if status == model.BlockActive {
		for _, b := range s.blocks {
			if b.BlockID != blockID && b.DayID == target.DayID && b.Status == model.BlockActive {
				b.Status = model.BlockPaused
				b.UpdatedAt = now
			}
		}
	}

	target.Status = status
	target.UpdatedAt = now
	return nil
}

func (s *blockStore) UpdateMetadata(_ context.Context, blockID string, patch storage.BlockMetadataPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[blockID]
	if !ok {
		return storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
	}

	if patch.TopicLabel != nil {
		b.TopicLabel = *patch.TopicLabel
	}
	if patch.Summary != nil {
		b.Summary = *patch.Summary
	}
	b.Keywords = mergeDeduped(b.Keywords, patch.Keywords, model.MaxKeywords)
	b.OpenLoops = mergeDeduped(b.OpenLoops, patch.OpenLoops, model.MaxOpenLoops)
	b.DecisionsMade = mergeDeduped(b.DecisionsMade, patch.DecisionsMade, model.MaxDecisions)
	b.UpdatedAt = time.Now()
	return nil
}

func (s *blockStore) AppendTurn(_ context.Context, blockID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[blockID]
	if !ok {
		return storage.ErrNotFound{Collection: "bridgeBlocks", ID: blockID}
	}

	b.TurnCount++
	if at.After(b.UpdatedAt) {
		b.UpdatedAt = at
	}
	return nil
}

// mergeDeduped appends incoming to existing as a deduped ordered set,
// clamped to max, per UpdateMetadata's merge semantics.
func mergeDeduped(existing, incoming []string, max int) []string {
	seen := make(map[string]struct{}, len(existing))
	out := make([]string, 0, len(existing)+len(incoming))

	for _, v := range existing {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	for _, v := range incoming {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) >= max {
			break
		}
	}

	if len(out) > max {
		out = out[:max]
	}
	return out
}
