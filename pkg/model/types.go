// Package model defines the persisted entity types shared across every
// collection in the memory engine. All entities carry a creation
// timestamp and an opaque, time-sortable identifier; see NewID in
// pkg/model/id.go for how those are generated.
package model

import "time"

// BlockStatus is the Bridge Block state machine value.
type BlockStatus string

const (
	BlockActive BlockStatus = "ACTIVE"
	BlockPaused BlockStatus = "PAUSED"
	BlockClosed BlockStatus = "CLOSED"
)

// FactCategory classifies a Fact row.
type FactCategory string

const (
	CategoryCredential FactCategory = "credential"
	CategoryPreference FactCategory = "preference"
	CategoryPolicy     FactCategory = "policy"
	CategoryDecision   FactCategory = "decision"
	CategoryContact    FactCategory = "contact"
	CategoryDate       FactCategory = "date"
	CategoryGeneral    FactCategory = "general"
)

// ChunkType distinguishes the two levels of the Chunker's hierarchy.
type ChunkType string

const (
	ChunkParagraph ChunkType = "paragraph"
	ChunkSentence  ChunkType = "sentence"
)

// ItemType is the discriminator used by Lineage Edges and Usage Stats.
type ItemType string

const (
	ItemTurn    ItemType = "turn"
	ItemFact    ItemType = "fact"
	ItemMemory  ItemType = "memory"
	ItemBlock   ItemType = "block"
	ItemSummary ItemType = "summary"
	ItemChunk   ItemType = "chunk"
)

// Bridge Block is a topic container: at most one is ACTIVE at any time.
type BridgeBlock struct {
	BlockID       string      `json:"blockId"`
	DayID         string      `json:"dayId"`
	TopicLabel    string      `json:"topicLabel"`
	Summary       string      `json:"summary"`
	Keywords      []string    `json:"keywords"`
	Status        BlockStatus `json:"status"`
	PrevBlockID   string      `json:"prevBlockId,omitempty"`
	OpenLoops     []string    `json:"openLoops"`
	DecisionsMade []string    `json:"decisionsMade"`
	TurnCount     int         `json:"turnCount"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// MaxKeywords, MaxOpenLoops, and MaxDecisions bound the deduped-set
// fields on a BridgeBlock per the data model's cardinality limits.
const (
	MaxKeywords  = 20
	MaxOpenLoops = 10
	MaxDecisions = 10
)

// Turn is one immutable user/assistant exchange.
type Turn struct {
	TurnID      string    `json:"turnId"`
	BlockID     string    `json:"blockId"`
	UserMessage string    `json:"userMessage"`
	AIResponse  string    `json:"aiResponse"`
	Keywords    []string  `json:"keywords"`
	Affect      string    `json:"affect"`
	Timestamp   time.Time `json:"timestamp"`
	// Evicted marks a turn dropped from the sliding window by
	// checkAndEvict. The row survives so BridgeBlock.TurnCount stays
	// accurate and Rehydration can still promote it back to verbatim
	// context.
	Evicted bool `json:"evicted,omitempty"`
}

// Fact is a keyed, versioned value with a supersession chain.
type Fact struct {
	FactID            string       `json:"factId"`
	Key               string       `json:"key"`
	Value             string       `json:"value"`
	Category          FactCategory `json:"category,omitempty"`
	BlockID           string       `json:"blockId"`
	TurnID            string       `json:"turnId,omitempty"`
	EvidenceSnippet   string       `json:"evidenceSnippet,omitempty"`
	SourceChunkID     string       `json:"sourceChunkId,omitempty"`
	SourceParagraphID string       `json:"sourceParagraphId,omitempty"`
	Confidence        float64      `json:"confidence"`
	SupersededBy      string       `json:"supersededBy,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// DeletedValue marks a fact row inserted by Remove as a soft delete.
const DeletedValue = "[DELETED]"

// Memory is an embedded text unit for semantic recall.
type Memory struct {
	MemoryID   string    `json:"memoryId"`
	TurnID     string    `json:"turnId"`
	BlockID    string    `json:"blockId"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunkIndex"`
	Embedding  []float32 `json:"embedding"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Chunk is a hierarchical, immutable sub-unit of a turn's text.
type Chunk struct {
	ChunkID        string    `json:"chunkId"`
	ChunkType      ChunkType `json:"chunkType"`
	TextVerbatim   string    `json:"textVerbatim"`
	LexicalFilters []string  `json:"lexicalFilters"`
	ParentChunkID  string    `json:"parentChunkId,omitempty"`
	TurnID         string    `json:"turnId"`
	BlockID        string    `json:"blockId,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
	TokenCount     int       `json:"tokenCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UsageStat tracks retrieval frequency for any addressable item.
type UsageStat struct {
	ItemID     string    `json:"itemId"`
	ItemType   ItemType  `json:"itemType"`
	UsageCount int       `json:"usageCount"`
	FirstUsed  time.Time `json:"firstUsed"`
	LastUsed   time.Time `json:"lastUsed"`
	Topics     []string  `json:"topics"`
}

// LineageEdge is one derivation record in the lineage table.
type LineageEdge struct {
	ItemID      string    `json:"itemId"`
	ItemType    ItemType  `json:"itemType"`
	DerivedFrom []string  `json:"derivedFrom"`
	DerivedBy   string    `json:"derivedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TopicAffinity accumulates eviction statistics per lowercase topic.
type TopicAffinity struct {
	Topic             string        `json:"topic"`
	EvictionCount     int           `json:"evictionCount"`
	TotalTimeInWindow time.Duration `json:"totalTimeInWindow"`
	AvgTimeInWindow   time.Duration `json:"avgTimeInWindow"`
}

// DaySynthesis is a rolled-up summary of a calendar day's blocks.
type DaySynthesis struct {
	DayID        string    `json:"dayId"`
	Summary      string    `json:"summary"`
	TopicsCoverd []string  `json:"topicsCovered"`
	CreatedAt    time.Time `json:"createdAt"`
}

// WeekSynthesis is a rolled-up summary of seven DaySyntheses.
type WeekSynthesis struct {
	WeekID       string    `json:"weekId"`
	Summary      string    `json:"summary"`
	DaySummaries []string  `json:"daySummaries"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserProfile is the narrative "Scribe" context hydrated into prompts.
type UserProfile struct {
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DebugLogEntry is a non-fatal diagnostic emitted by a swallowed-error
// code path (chunking, fact extraction, Scribe scheduling, profile load).
type DebugLogEntry struct {
	Step    string    `json:"step"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
	At      time.Time `json:"at"`
}
