package eventstream

import (
	"time"

	"github.com/bridgeware/hmlr/pkg/model"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeTurnPersisted is emitted after a conversation turn is persisted.
	EventTypeTurnPersisted = "hmlr.turn.persisted"
)

// TurnPersistedEvent is a transport-neutral event payload emitted once
// a Turn has been appended and its Memory/Chunk/Fact/Lineage rows
// written, carrying the same model.Turn the orchestrator just
// persisted rather than a wire-protocol request/response pair.
type TurnPersistedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Source        EventSource     `json:"source"`
	RequestMeta   TurnRequestMeta `json:"request_meta"`
	Lineage       TurnLineageMeta `json:"lineage"`
	Turn          model.Turn      `json:"turn"`
}

// EventSource identifies where the turn originated.
type EventSource struct {
	Project   string `json:"project,omitempty"`
	AgentName string `json:"agent_name,omitempty"`
	Provider  string `json:"provider"`
}

// TurnRequestMeta captures request lifecycle metadata for the event.
type TurnRequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Streaming   bool      `json:"streaming"`
	HTTPStatus  int       `json:"http_status"`
}

// TurnLineageMeta mirrors the lineage edges the orchestrator recorded
// for this turn (spec §4.9), replacing the teacher's Merkle-DAG hash
// set with the ids of the rows actually derived from the turn.
type TurnLineageMeta struct {
	BlockID   string   `json:"block_id"`
	MemoryIDs []string `json:"memory_ids,omitempty"`
	ChunkIDs  []string `json:"chunk_ids,omitempty"`
	FactIDs   []string `json:"fact_ids,omitempty"`
}
