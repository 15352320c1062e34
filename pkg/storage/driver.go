// Package storage defines the persistence contract for the eight
// typed collections named in the data model, generalized from the
// teacher's single-collection merkle-node Driver interface. Atomicity
// of multi-step mutations (the Bridge Block "at most one ACTIVE"
// invariant, the Fact Store's supersession chain) is owned by the
// driver implementation, not by callers.
package storage

import (
	"context"
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
)

// BlockStore persists Bridge Blocks.
type BlockStore interface {
	Create(ctx context.Context, block *model.BridgeBlock) error
	Get(ctx context.Context, blockID string) (*model.BridgeBlock, error)
	GetByDay(ctx context.Context, dayID string) ([]*model.BridgeBlock, error)
	GetActive(ctx context.Context, dayID string) (*model.BridgeBlock, error)
	UpdateStatus(ctx context.Context, blockID string, status model.BlockStatus) error
	UpdateMetadata(ctx context.Context, blockID string, patch BlockMetadataPatch) error
	AppendTurn(ctx context.Context, blockID string, at time.Time) error
}

// BlockMetadataPatch carries the mergeable fields of UpdateMetadata.
type BlockMetadataPatch struct {
	TopicLabel    *string
	Summary       *string
	Keywords      []string
	OpenLoops     []string
	DecisionsMade []string
}

// TurnStore persists Turns, append-only. Eviction never deletes a row
// (see MarkEvicted); Remove exists for callers that genuinely need a
// hard delete, e.g. GDPR-style erasure.
type TurnStore interface {
	Append(ctx context.Context, turn *model.Turn) error
	Get(ctx context.Context, turnID string) (*model.Turn, error)
	GetByBlock(ctx context.Context, blockID string) ([]*model.Turn, error)
	GetByDay(ctx context.Context, dayID string, blockIDs []string) ([]*model.Turn, error)
	// MarkEvicted flags a turn as dropped from the sliding window
	// without deleting it, so turnCount(block) stays equal to the
	// number of persisted rows and Rehydration can still find it.
	MarkEvicted(ctx context.Context, turnID string) error
	Remove(ctx context.Context, turnID string) error
}

// FactStore persists Facts with the supersession chain invariant.
type FactStore interface {
	Get(ctx context.Context, key string) (*model.Fact, error)
	GetByBlock(ctx context.Context, blockID string) ([]*model.Fact, error)
	GetByCategory(ctx context.Context, category model.FactCategory) ([]*model.Fact, error)
	SearchByKeyPrefix(ctx context.Context, prefix string) ([]*model.Fact, error)
	Store(ctx context.Context, fact *model.Fact) (*model.Fact, error)
	Remove(ctx context.Context, factID string) (*model.Fact, error)
	UpdateBlockID(ctx context.Context, turnID, blockID string) error
	// List returns every non-superseded fact, used by Hybrid
	// Retrieval's lexical fact search.
	List(ctx context.Context) ([]*model.Fact, error)
}

// MemoryStore persists embedded Memory units.
type MemoryStore interface {
	Store(ctx context.Context, memory *model.Memory) error
	Get(ctx context.Context, memoryID string) (*model.Memory, error)
	GetByBlock(ctx context.Context, blockID string) ([]*model.Memory, error)
	// List returns every memory in the store. Used by Hybrid
	// Retrieval's lexical scan and by vector-backend seeding; backends
	// with large corpora may page internally but must still satisfy
	// this signature for the reference lexical path.
	List(ctx context.Context) ([]*model.Memory, error)
}

// ChunkStore persists hierarchical Chunks.
type ChunkStore interface {
	StoreBatch(ctx context.Context, chunks []*model.Chunk) error
	Get(ctx context.Context, chunkID string) (*model.Chunk, error)
	GetByTurn(ctx context.Context, turnID string) ([]*model.Chunk, error)
	GetByBlock(ctx context.Context, blockID string) ([]*model.Chunk, error)
	PatchBlockID(ctx context.Context, turnID, blockID string) error
	// List returns every chunk in the store, used by Hybrid Retrieval's
	// lexical chunk search.
	List(ctx context.Context) ([]*model.Chunk, error)
}

// UsageStatStore tracks retrieval frequency accounting.
type UsageStatStore interface {
	Bump(ctx context.Context, itemID string, itemType model.ItemType, topics []string, at time.Time) error
	Get(ctx context.Context, itemID string) (*model.UsageStat, error)
}

// LineageStore persists derivation edges.
type LineageStore interface {
	Record(ctx context.Context, edge *model.LineageEdge) error
	Get(ctx context.Context, itemID string) (*model.LineageEdge, error)
	GetByParent(ctx context.Context, parentID string) ([]*model.LineageEdge, error)
	List(ctx context.Context) ([]*model.LineageEdge, error)
}

// TopicAffinityStore tracks eviction-window statistics per topic.
type TopicAffinityStore interface {
	Upsert(ctx context.Context, topic string, addedTs, evictedTs time.Time) error
	Get(ctx context.Context, topic string) (*model.TopicAffinity, error)
}

// Driver aggregates every typed collection a storage backend must
// provide. Implementations: pkg/storage/inmemory, pkg/storage/sqlite,
// pkg/storage/postgres.
type Driver interface {
	Blocks() BlockStore
	Turns() TurnStore
	Facts() FactStore
	Memories() MemoryStore
	Chunks() ChunkStore
	UsageStats() UsageStatStore
	Lineage() LineageStore
	TopicAffinities() TopicAffinityStore
	Close() error
}
