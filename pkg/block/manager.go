// Package block implements the Bridge Block Manager: the topic
// container lifecycle (create/pause/resume/close) and its metadata
// merges. The "at most one ACTIVE block per day" invariant is enforced
// by the storage driver's atomic Create/UpdateStatus, consistent with
// the teacher's instruction in pkg/storage/driver.go that the driver,
// not the core, owns mutation atomicity.
package block

import (
	"context"
	"fmt"
	"time"

	"github.com/bridgeware/hmlr/pkg/lexical"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

// Manager is the Bridge Block Manager described in spec §4.3.
type Manager struct {
	driver storage.BlockStore
	idFn   func(prefix string) string
	nowFn  func() time.Time
}

// New constructs a Manager over driver.
func New(driver storage.BlockStore, idFn func(prefix string) string, nowFn func() time.Time) *Manager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{driver: driver, idFn: idFn, nowFn: nowFn}
}

// CreateInput carries the arguments to Create.
type CreateInput struct {
	DayID       string
	TopicLabel  string
	Keywords    []string
	PrevBlockID string
}

// Create atomically pauses any currently ACTIVE block for the day
// (handled by the driver) and inserts a new ACTIVE block.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*model.BridgeBlock, error) {
	now := m.nowFn()
	block := &model.BridgeBlock{
		BlockID:     m.idFn("block"),
		DayID:       in.DayID,
		TopicLabel:  in.TopicLabel,
		Keywords:    lexical.Take(in.Keywords, model.MaxKeywords),
		Status:      model.BlockActive,
		PrevBlockID: in.PrevBlockID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.driver.Create(ctx, block); err != nil {
		return nil, fmt.Errorf("creating block: %w", err)
	}
	return block, nil
}

func (m *Manager) Get(ctx context.Context, blockID string) (*model.BridgeBlock, error) {
	return m.driver.Get(ctx, blockID)
}

func (m *Manager) GetByDay(ctx context.Context, dayID string) ([]*model.BridgeBlock, error) {
	return m.driver.GetByDay(ctx, dayID)
}

// GetActive returns the single ACTIVE block for dayID, if any.
func (m *Manager) GetActive(ctx context.Context, dayID string) (*model.BridgeBlock, error) {
	block, err := m.driver.GetActive(ctx, dayID)
	if _, ok := err.(storage.ErrNotFound); ok {
		return nil, nil
	}
	return block, err
}

// BlockMetadata is the lightweight projection returned by
// GetMetadataByDay, including the isLastActive tie-break.
type BlockMetadata struct {
	BlockID      string
	TopicLabel   string
	Status       model.BlockStatus
	Summary      string
	Keywords     []string
	TurnCount    int
	UpdatedAt    time.Time
	IsLastActive bool
}

// GetMetadataByDay projects every block for dayID into BlockMetadata,
// marking the single block with the maximum UpdatedAt (ties broken by
// descending blockId, since ids are time-sortable strings) as
// isLastActive.
func (m *Manager) GetMetadataByDay(ctx context.Context, dayID string) ([]BlockMetadata, error) {
	blocks, err := m.driver.GetByDay(ctx, dayID)
	if err != nil {
		return nil, err
	}

	out := make([]BlockMetadata, len(blocks))
	lastIdx := -1
	for i, b := range blocks {
		out[i] = BlockMetadata{
			BlockID:    b.BlockID,
			TopicLabel: b.TopicLabel,
			Status:     b.Status,
			Summary:    b.Summary,
			Keywords:   b.Keywords,
			TurnCount:  b.TurnCount,
			UpdatedAt:  b.UpdatedAt,
		}

		if lastIdx == -1 {
			lastIdx = i
			continue
		}
		if b.UpdatedAt.After(blocks[lastIdx].UpdatedAt) {
			lastIdx = i
		} else if b.UpdatedAt.Equal(blocks[lastIdx].UpdatedAt) && b.BlockID > blocks[lastIdx].BlockID {
			lastIdx = i
		}
	}

	if lastIdx != -1 {
		out[lastIdx].IsLastActive = true
	}

	return out, nil
}

func (m *Manager) UpdateStatus(ctx context.Context, blockID string, status model.BlockStatus) error {
	return m.driver.UpdateStatus(ctx, blockID, status)
}

// MetadataUpdate carries the mergeable fields accepted by UpdateMetadata.
type MetadataUpdate struct {
	TopicLabel    *string
	Summary       *string
	Keywords      []string
	OpenLoops     []string
	DecisionsMade []string
}

func (m *Manager) UpdateMetadata(ctx context.Context, blockID string, update MetadataUpdate) error {
	return m.driver.UpdateMetadata(ctx, blockID, storage.BlockMetadataPatch{
		TopicLabel:    update.TopicLabel,
		Summary:       update.Summary,
		Keywords:      update.Keywords,
		OpenLoops:     update.OpenLoops,
		DecisionsMade: update.DecisionsMade,
	})
}

func (m *Manager) AppendTurn(ctx context.Context, blockID string) error {
	return m.driver.AppendTurn(ctx, blockID, m.nowFn())
}

// PauseWithSummary pauses blockID; if summary is empty, synthesizes a
// heuristic one from the block's first and last turn.
func (m *Manager) PauseWithSummary(ctx context.Context, blockID, summary string, turns []*model.Turn) error {
	if summary == "" && len(turns) > 0 {
		summary = heuristicSummary(turns)
	}

	if summary != "" {
		if err := m.driver.UpdateMetadata(ctx, blockID, storage.BlockMetadataPatch{Summary: &summary}); err != nil {
			return err
		}
	}

	return m.driver.UpdateStatus(ctx, blockID, model.BlockPaused)
}

// heuristicSummary implements the "N exchanges. Started with: ...
// Ended with: ..." fallback, with the single-turn shortcut using the
// first 100 chars instead of 50+50.
func heuristicSummary(turns []*model.Turn) string {
	if len(turns) == 1 {
		return fmt.Sprintf("1 exchange. %s", lexical.Truncate(turns[0].UserMessage, 100))
	}

	first := turns[0]
	last := turns[len(turns)-1]
	return fmt.Sprintf(
		"%d exchanges. Started with: \"%s…\" Ended with: \"%s…\"",
		len(turns),
		lexical.Truncate(first.UserMessage, 50),
		lexical.Truncate(last.UserMessage, 50),
	)
}
