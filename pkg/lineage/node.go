// Package lineage tracks derivation edges between memory objects as a
// directed acyclic graph: a memory, chunk, or synthesis can be derived
// from more than one parent (a fact superseding two prior facts, a day
// synthesis rolling up many turns), so unlike a hash chain this graph
// is multi-parent by construction.
package lineage

import "time"

// Kind identifies what sort of object a lineage node represents.
type Kind string

const (
	KindTurn      Kind = "turn"
	KindFact      Kind = "fact"
	KindMemory    Kind = "memory"
	KindChunk     Kind = "chunk"
	KindSynthesis Kind = "synthesis"
)

// Node is a single entry in the derivation graph.
type Node struct {
	// ID is the identifier of the object this node represents (turnId,
	// factId, memoryId, chunkId, or synthesisId).
	ID string `json:"id"`

	// Kind names the object type ID belongs to.
	Kind Kind `json:"kind"`

	// Parents lists the ids this object was derived from. Empty for
	// objects with no derivation history (e.g. a raw turn).
	Parents []string `json:"parents"`

	// CreatedAt is when the edge was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// NewNode constructs a lineage node for id, recording parents as its
// immediate derivation sources. Duplicate parents are collapsed.
func NewNode(id string, kind Kind, parents []string, createdAt time.Time) *Node {
	seen := make(map[string]struct{}, len(parents))
	deduped := make([]string, 0, len(parents))
	for _, p := range parents {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		deduped = append(deduped, p)
	}

	return &Node{
		ID:        id,
		Kind:      kind,
		Parents:   deduped,
		CreatedAt: createdAt,
	}
}

// IsRoot reports whether the node has no recorded parents.
func (n *Node) IsRoot() bool {
	return len(n.Parents) == 0
}
