// Package inmemory implements storage.Driver over plain Go maps
// guarded by sync.RWMutex, following the concurrency shape of the
// teacher's pkg/storage/inmemory.Driver (one RWMutex-guarded map per
// collection, generalized from one collection to eight).
package inmemory

import (
	"github.com/bridgeware/hmlr/pkg/storage"
)

// Driver is an in-process, non-persistent storage.Driver suitable for
// tests and single-process deployments.
type Driver struct {
	blocks     *blockStore
	turns      *turnStore
	facts      *factStore
	memories   *memoryStore
	chunks     *chunkStore
	usageStats *usageStatStore
	lineage    *lineageStore
	topics     *topicAffinityStore
}

// NewDriver constructs an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		blocks:     newBlockStore(),
		turns:      newTurnStore(),
		facts:      newFactStore(),
		memories:   newMemoryStore(),
		chunks:     newChunkStore(),
		usageStats: newUsageStatStore(),
		lineage:    newLineageStore(),
		topics:     newTopicAffinityStore(),
	}
}

func (d *Driver) Blocks() storage.BlockStore                 { return d.blocks }
func (d *Driver) Turns() storage.TurnStore                   { return d.turns }
func (d *Driver) Facts() storage.FactStore                   { return d.facts }
func (d *Driver) Memories() storage.MemoryStore               { return d.memories }
func (d *Driver) Chunks() storage.ChunkStore                 { return d.chunks }
func (d *Driver) UsageStats() storage.UsageStatStore         { return d.usageStats }
func (d *Driver) Lineage() storage.LineageStore               { return d.lineage }
func (d *Driver) TopicAffinities() storage.TopicAffinityStore { return d.topics }

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error { return nil }
