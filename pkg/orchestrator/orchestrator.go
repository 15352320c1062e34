// Package orchestrator implements the Chat Orchestrator of spec §4.10:
// the per-message pipeline that chunks, embeds, routes through the
// Governor, hydrates a budgeted prompt, calls the Chat LLM, and
// persists the resulting turn, memory, facts, and lineage edges.
// Grounded on the teacher's proxy request-handling pipeline shape
// (parse request -> call upstream -> build DAG nodes -> persist ->
// emit event), generalized from a single linear pass to the
// concurrent fan-out/fan-in and non-fatal/fatal error split spec'd
// for this engine.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/block"
	"github.com/bridgeware/hmlr/pkg/chunker"
	"github.com/bridgeware/hmlr/pkg/compressor"
	"github.com/bridgeware/hmlr/pkg/embeddings"
	"github.com/bridgeware/hmlr/pkg/eventstream"
	"github.com/bridgeware/hmlr/pkg/factstore"
	"github.com/bridgeware/hmlr/pkg/governor"
	"github.com/bridgeware/hmlr/pkg/hydrator"
	"github.com/bridgeware/hmlr/pkg/jobqueue"
	"github.com/bridgeware/hmlr/pkg/lineage"
	"github.com/bridgeware/hmlr/pkg/llm/client"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
	"github.com/bridgeware/hmlr/pkg/tabularasa"
	"github.com/bridgeware/hmlr/pkg/vector"
)

// ChatMaxTokens and ChatTemperature are the fixed Chat LLM call
// parameters named in spec §4.10 step 10.
const (
	ChatMaxTokens   = 2000
	ChatTemperature = 0.7

	// ProfileTokenBudget bounds the profile context loaded in step 8.
	ProfileTokenBudget = 300
)

// ProfileLoader loads the narrative Scribe profile for a user. Profile
// load is non-fatal (spec §7): a nil loader or a returning error both
// degrade to an empty profile section.
type ProfileLoader interface {
	LoadProfile(ctx context.Context, userID string) (string, error)
}

// ScribeScheduler enqueues the fire-and-forget background Scribe
// invocation of spec §4.10 step 16. Deliberately interface-only: the
// engine core only needs to know a job was handed off, not how it
// runs.
type ScribeScheduler interface {
	ScheduleTurn(ctx context.Context, userID, turnID, blockID string) error
}

// NewTurnCommittedHandler adapts a ScribeScheduler and an
// eventstream.Publisher into the jobqueue.Handler run by a
// jobqueue.Scheduler's workers for TypeTurnCommitted jobs. By the time
// this runs, the job already survived the durable queue (spec §9), so
// scribe/events failures here are logged and swallowed rather than
// retried or re-enqueued, matching their prior best-effort contract.
// Either collaborator may be nil to skip its half of the fan-out.
func NewTurnCommittedHandler(scribe ScribeScheduler, events eventstream.Publisher, logger *zap.Logger) jobqueue.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job jobqueue.Job) {
		if job.Type != jobqueue.TypeTurnCommitted || job.Event == nil {
			logger.Warn("turn-committed handler received unexpected job", zap.String("type", string(job.Type)))
			return
		}

		if events != nil {
			if err := events.PublishTurn(ctx, job.Event); err != nil {
				logger.Warn("turn event publish failed", zap.Error(err), zap.String("turnId", job.Event.Turn.TurnID))
			}
		}

		if scribe != nil {
			turn := job.Event.Turn
			if err := scribe.ScheduleTurn(ctx, job.UserID, turn.TurnID, turn.BlockID); err != nil {
				logger.Warn("scribe scheduling failed", zap.Error(err), zap.String("turnId", turn.TurnID))
			}
		}
	}
}

// DefaultSystemPrompt is the fixed system-budget text prepended to every Chat
// LLM call; callers may override via Orchestrator.SystemPrompt.
const DefaultSystemPrompt = "You are a helpful assistant with long-term memory of this conversation. Use the provided context faithfully and concisely."

// Orchestrator wires every core component into the single pipeline
// described in spec §4.10.
type Orchestrator struct {
	llm          client.Client
	DefaultModel string
	NanoModel    string

	embedder embeddings.Embedder
	vec      vector.VectorDriver

	blocks   *block.Manager
	driver   storage.Driver
	facts    *factstore.Store
	governor *governor.Governor
	hydrator *hydrator.Hydrator
	lineage  *lineage.Tracker
	compress *compressor.Compressor

	profiles ProfileLoader
	jobs     jobqueue.Scheduler

	logger *zap.Logger
	nowFn  func() time.Time
	idFn   func(prefix string) string

	SystemPrompt string
}

// New constructs an Orchestrator. vec may be nil; profiles and jobs
// (attached later via WithProfiles/WithJobs) may also be nil, but a
// nil jobs after WithJobs was never called simply skips the outbox
// enqueue rather than degrading it, since there is nothing to fail.
func New(
	llm client.Client,
	defaultModel, nanoModel string,
	embedder embeddings.Embedder,
	vec vector.VectorDriver,
	blocks *block.Manager,
	driver storage.Driver,
	facts *factstore.Store,
	gov *governor.Governor,
	hyd *hydrator.Hydrator,
	lin *lineage.Tracker,
	comp *compressor.Compressor,
	idFn func(prefix string) string,
	nowFn func() time.Time,
	logger *zap.Logger,
) *Orchestrator {
	if nowFn == nil {
		nowFn = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		llm:          llm,
		DefaultModel: defaultModel,
		NanoModel:    nanoModel,
		embedder:     embedder,
		vec:          vec,
		blocks:       blocks,
		driver:       driver,
		facts:        facts,
		governor:     gov,
		hydrator:     hyd,
		lineage:      lin,
		compress:     comp,
		idFn:         idFn,
		nowFn:        nowFn,
		logger:       logger,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// WithProfiles attaches the optional, non-fatal profile collaborator.
func (o *Orchestrator) WithProfiles(p ProfileLoader) *Orchestrator { o.profiles = p; return o }

// WithJobs attaches the outbox Scheduler that SendMessage enqueues the
// turn-committed job to. Unlike WithProfiles, a nil Scheduler is only
// safe if the caller genuinely wants no Scribe/event fan-out at all:
// once set, a failed Enqueue aborts the request (spec §9's outbox
// invariant), since the alternative is silently losing the job.
func (o *Orchestrator) WithJobs(js jobqueue.Scheduler) *Orchestrator { o.jobs = js; return o }

// SendMessageInput carries one incoming turn.
type SendMessageInput struct {
	UserID  string
	DayID   string
	Message string
}

// SendMessageResult is the ChatResponse shape named in spec §4.10.
type SendMessageResult struct {
	Response       string
	BlockID        string
	TurnID         string
	IsNewTopic     bool
	TopicLabel     string
	MemoriesUsed   int
	FactsUsed      int
	ChunksCreated  int
	FactsExtracted int
	Scenario       int
}

// SendMessage runs the full per-message pipeline of spec §4.10.
// Fatal steps (Embedder, Governor, Chat LLM, Memory insert, Turn
// append) return an error that aborts the turn; non-fatal steps
// (chunking, fact extraction, profile load, metadata merge, lineage
// emission, Scribe scheduling) are logged and swallowed, with their
// absence reflected in the returned counts.
func (o *Orchestrator) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error) {
	now := o.nowFn()
	turnID := o.idFn("turn")

	chunks := chunker.Chunk(in.Message, turnID, func(prefix string, idx int) string {
		return fmt.Sprintf("%s_%s_%d", prefix, turnID, idx)
	})
	if len(chunks) > 0 {
		if err := o.driver.Chunks().StoreBatch(ctx, chunks); err != nil {
			o.logger.Warn("chunk store failed, continuing without chunks", zap.Error(err), zap.String("turnId", turnID))
			chunks = nil
		}
	}

	queryEmbedding, err := o.embedder.Embed(ctx, in.Message)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	govResult, err := o.governor.Govern(ctx, in.Message, queryEmbedding, in.DayID)
	if err != nil {
		return nil, fmt.Errorf("governor: %w", err)
	}

	blockID, isNewTopic, topicLabel, scenario, err := o.resolveScenario(ctx, in.DayID, in.Message, govResult.Routing)
	if err != nil {
		return nil, fmt.Errorf("routing scenario: %w", err)
	}

	if len(chunks) > 0 {
		if err := o.driver.Chunks().PatchBlockID(ctx, turnID, blockID); err != nil {
			o.logger.Warn("chunk blockId patch failed", zap.Error(err), zap.String("turnId", turnID))
		}
	}

	var (
		extractedWG sync.WaitGroup
		extracted   []factstore.StoreInput
	)
	extractedWG.Add(1)
	go func() {
		defer extractedWG.Done()
		facts, err := o.extractFacts(ctx, in.Message)
		if err != nil {
			o.logger.Warn("fact extraction failed, continuing without facts", zap.Error(err), zap.String("turnId", turnID))
			return
		}
		extracted = facts
	}()

	blockFacts, err := o.facts.GetByBlock(ctx, blockID)
	if err != nil {
		o.logger.Warn("block fact load failed", zap.Error(err), zap.String("blockId", blockID))
	}
	profile := o.loadProfile(ctx, in.UserID)
	blockTurns, err := o.driver.Turns().GetByBlock(ctx, blockID)
	if err != nil {
		o.logger.Warn("block turn load failed", zap.Error(err), zap.String("blockId", blockID))
	}

	taskInstructions := in.Message + "\n\n" + hydrator.MetadataInstructions(isNewTopic)
	hydrated := o.hydrator.Hydrate(hydrator.Input{
		Turns:    blockTurns,
		Memories: govResult.Memories,
		Facts:    append(blockFacts, govResult.Facts...),
		Profile:  profile,
		System:   o.SystemPrompt,
		Task:     taskInstructions,
	})

	userContent := hydrated.Prompt + "\n\n" + taskInstructions
	response, err := o.llm.Chat(ctx, client.Request{
		Model:       o.DefaultModel,
		System:      o.SystemPrompt,
		Messages:    []client.Message{{Role: "user", Text: userContent}},
		MaxTokens:   ChatMaxTokens,
		Temperature: ChatTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chat llm call: %w", err)
	}

	var keywords []string
	var affect string
	if meta, ok := hydrator.ExtractMetadata(response); ok {
		keywords = meta.Keywords
		affect = meta.Affect
		update := block.MetadataUpdate{Keywords: meta.Keywords, OpenLoops: meta.OpenLoops, DecisionsMade: meta.DecisionsMade}
		if meta.Summary != "" {
			update.Summary = &meta.Summary
		}
		if meta.TopicLabel != "" {
			update.TopicLabel = &meta.TopicLabel
			topicLabel = meta.TopicLabel
		}
		if err := o.blocks.UpdateMetadata(ctx, blockID, update); err != nil {
			o.logger.Warn("block metadata merge failed", zap.Error(err), zap.String("blockId", blockID))
		}
	} else {
		o.logger.Debug("no metadata block found in chat response", zap.String("turnId", turnID))
	}

	turn := &model.Turn{
		TurnID:      turnID,
		BlockID:     blockID,
		UserMessage: in.Message,
		AIResponse:  response,
		Keywords:    keywords,
		Affect:      affect,
		Timestamp:   now,
	}
	if err := o.driver.Turns().Append(ctx, turn); err != nil {
		return nil, fmt.Errorf("appending turn: %w", err)
	}
	if err := o.blocks.AppendTurn(ctx, blockID); err != nil {
		o.logger.Warn("block turn count bump failed", zap.Error(err), zap.String("blockId", blockID))
	}

	memoryID := o.idFn("memory")
	memory := &model.Memory{
		MemoryID:  memoryID,
		TurnID:    turnID,
		BlockID:   blockID,
		Content:   fmt.Sprintf("User: %s\nAssistant: %s", in.Message, response),
		Embedding: queryEmbedding,
		CreatedAt: now,
	}
	if err := o.driver.Memories().Store(ctx, memory); err != nil {
		return nil, fmt.Errorf("storing memory: %w", err)
	}
	if o.vec != nil {
		if err := o.vec.Add(ctx, []vector.Document{{ID: memoryID, Hash: memoryID, Embedding: queryEmbedding}}); err != nil {
			o.logger.Warn("vector index add failed", zap.Error(err), zap.String("memoryId", memoryID))
		}
	}

	o.emitLineage(ctx, turnID, memoryID, blockID, chunks, now)

	extractedWG.Wait()
	factsExtracted := 0
	if len(extracted) > 0 {
		for i := range extracted {
			extracted[i].BlockID = blockID
			extracted[i].TurnID = turnID
		}
		stored, err := o.facts.StoreBatch(ctx, extracted)
		if err != nil {
			o.logger.Warn("fact persist failed partway", zap.Error(err), zap.String("turnId", turnID))
		}
		factsExtracted = len(stored)
		for _, f := range stored {
			if err := o.lineage.RecordLineage(ctx, f.FactID, model.ItemFact, []string{turnID, blockID}, "fact_scrubber_v1", now); err != nil {
				o.logger.Warn("fact lineage emit failed", zap.Error(err), zap.String("factId", f.FactID))
			}
		}
	}

	if err := o.compress.CheckAndEvict(ctx, in.DayID, now); err != nil {
		o.logger.Warn("eviction sweep failed", zap.Error(err), zap.String("dayId", in.DayID))
	}

	if o.jobs != nil {
		event := &eventstream.TurnPersistedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeTurnPersisted,
			EventID:       o.idFn("evt"),
			EmittedAt:     now,
			Source:        eventstream.EventSource{AgentName: "hmlr", Provider: o.DefaultModel},
			Lineage:       eventstream.TurnLineageMeta{BlockID: blockID, MemoryIDs: []string{memoryID}},
			Turn:          *turn,
		}
		// Durable enqueue, not best-effort: the turn append already
		// committed above, so losing this job here would silently drop
		// the Scribe/event fan-out with no trace (spec §9's outbox
		// invariant). A failure here is fatal to the request.
		if err := o.jobs.Enqueue(ctx, jobqueue.Job{Type: jobqueue.TypeTurnCommitted, UserID: in.UserID, Event: event}); err != nil {
			return nil, fmt.Errorf("enqueuing turn-committed job: %w", err)
		}
	}

	return &SendMessageResult{
		Response:       response,
		BlockID:        blockID,
		TurnID:         turnID,
		IsNewTopic:     isNewTopic,
		TopicLabel:     topicLabel,
		MemoriesUsed:   hydrated.MemoriesUsed,
		FactsUsed:      hydrated.FactsUsed,
		ChunksCreated:  len(chunks),
		FactsExtracted: factsExtracted,
		Scenario:       scenario,
	}, nil
}

// resolveScenario applies the four routing scenarios of spec §4.7,
// derived solely from the Governor's routing result. Tabula Rasa's
// CheckForShift runs alongside it purely as a logged diagnostic signal
// (spec §4.6 gives it no role gating orchestrator dispatch), so an
// LLM-detected topic shift the heuristic disagrees with still routes
// correctly.
func (o *Orchestrator) resolveScenario(ctx context.Context, dayID, query string, routing governor.RoutingResult) (blockID string, isNewTopic bool, topicLabel string, scenario int, err error) {
	lastActive, err := o.blocks.GetActive(ctx, dayID)
	if err != nil {
		return "", false, "", 0, err
	}

	if lastActive != nil {
		shift := tabularasa.CheckForShift(query, lastActive.Keywords)
		o.logger.Debug("tabula rasa shift check",
			zap.Bool("isShift", shift.IsShift),
			zap.Bool("governorIsNewTopic", routing.IsNewTopic),
			zap.String("blockId", lastActive.BlockID),
		)
	}

	switch {
	// Scenario 1 keys purely on matched-block == last-active-block, per
	// spec §4's literal scenario table, even when the Governor's
	// IsNewTopic flag disagrees with its own MatchedBlockID. Trusting
	// the block match here keeps a self-contradictory Governor result
	// from pausing and re-creating a block it just said the turn
	// belongs to.
	case lastActive != nil && routing.MatchedBlockID == lastActive.BlockID:
		return lastActive.BlockID, false, lastActive.TopicLabel, 1, nil

	case routing.MatchedBlockID != "" && !routing.IsNewTopic:
		if lastActive != nil {
			if err := o.pauseWithHeuristicSummary(ctx, lastActive.BlockID); err != nil {
				return "", false, "", 0, err
			}
		}
		if err := o.blocks.UpdateStatus(ctx, routing.MatchedBlockID, model.BlockActive); err != nil {
			return "", false, "", 0, err
		}
		matched, err := o.blocks.Get(ctx, routing.MatchedBlockID)
		if err != nil {
			return "", false, "", 0, err
		}
		return matched.BlockID, false, matched.TopicLabel, 2, nil

	case routing.IsNewTopic && lastActive == nil:
		newBlock, err := o.blocks.Create(ctx, block.CreateInput{DayID: dayID, TopicLabel: routing.SuggestedLabel})
		if err != nil {
			return "", false, "", 0, err
		}
		return newBlock.BlockID, true, newBlock.TopicLabel, 3, nil

	case routing.IsNewTopic && lastActive != nil:
		if err := o.pauseWithHeuristicSummary(ctx, lastActive.BlockID); err != nil {
			return "", false, "", 0, err
		}
		newBlock, err := o.blocks.Create(ctx, block.CreateInput{DayID: dayID, TopicLabel: routing.SuggestedLabel, PrevBlockID: lastActive.BlockID})
		if err != nil {
			return "", false, "", 0, err
		}
		return newBlock.BlockID, true, newBlock.TopicLabel, 4, nil

	default:
		// Fallback path on inconsistent Governor output (spec §4.7).
		newBlock, err := o.blocks.Create(ctx, block.CreateInput{DayID: dayID, TopicLabel: routing.SuggestedLabel})
		if err != nil {
			return "", false, "", 0, err
		}
		return newBlock.BlockID, true, newBlock.TopicLabel, 3, nil
	}
}

func (o *Orchestrator) pauseWithHeuristicSummary(ctx context.Context, blockID string) error {
	turns, err := o.driver.Turns().GetByBlock(ctx, blockID)
	if err != nil {
		return err
	}
	return o.blocks.PauseWithSummary(ctx, blockID, "", turns)
}

// loadProfile is non-fatal: a missing loader or a load error both
// collapse to an empty profile string.
func (o *Orchestrator) loadProfile(ctx context.Context, userID string) string {
	if o.profiles == nil {
		return ""
	}
	profile, err := o.profiles.LoadProfile(ctx, userID)
	if err != nil {
		o.logger.Warn("profile load failed, continuing without profile", zap.Error(err), zap.String("userId", userID))
		return ""
	}
	return profile
}

type extractedFact struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
}

// extractFacts runs the nano model over the user message alone,
// asking it to return any durable facts worth remembering. Malformed
// or absent output yields no facts rather than an error, consistent
// with fact extraction being a non-fatal subtask.
func (o *Orchestrator) extractFacts(ctx context.Context, message string) ([]factstore.StoreInput, error) {
	prompt := "Extract any durable facts worth remembering from this message (preferences, credentials, " +
		"policies, decisions, contacts, dates). Return JSON: " +
		`{"facts": [{"key": string, "value": string, "category": string, "confidence": number, "evidence": string}]}` +
		" with an empty array if there are none.\n\nMessage: " + message

	text, err := o.llm.Chat(ctx, client.Request{
		Model:       o.NanoModel,
		Messages:    []client.Message{{Role: "user", Text: prompt}},
		MaxTokens:   500,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	raw, ok := hydrator.ExtractFencedJSON(text)
	if !ok {
		raw = stripFactFence(text)
	}

	var decoded struct {
		Facts []extractedFact `json:"facts"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, err
	}

	out := make([]factstore.StoreInput, 0, len(decoded.Facts))
	for _, f := range decoded.Facts {
		if f.Key == "" || f.Value == "" {
			continue
		}
		out = append(out, factstore.StoreInput{
			Key:             f.Key,
			Value:           f.Value,
			Category:        model.FactCategory(f.Category),
			Confidence:      f.Confidence,
			EvidenceSnippet: f.Evidence,
		})
	}
	return out, nil
}

// stripFactFence removes a surrounding ``` fence (with or without a
// "json" tag) when the nano model's fact-extraction response carries
// no object for ExtractFencedJSON to anchor on.
func stripFactFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// emitLineage records the required edges of spec §4.9 for this turn's
// newly created rows. Emission is non-fatal: integrity is checked
// eventually by ValidateIntegrity, not synchronously (spec §5).
func (o *Orchestrator) emitLineage(ctx context.Context, turnID, memoryID, blockID string, chunks []*model.Chunk, at time.Time) {
	if err := o.lineage.RecordLineage(ctx, turnID, model.ItemTurn, []string{blockID}, "chat.sendMessage", at); err != nil {
		o.logger.Warn("turn lineage emit failed", zap.Error(err), zap.String("turnId", turnID))
	}
	if err := o.lineage.RecordLineage(ctx, memoryID, model.ItemMemory, []string{turnID}, "chat.sendMessage", at); err != nil {
		o.logger.Warn("memory lineage emit failed", zap.Error(err), zap.String("memoryId", memoryID))
	}
	for _, c := range chunks {
		derived := []string{turnID, blockID}
		if c.ParentChunkID != "" {
			derived = append(derived, c.ParentChunkID)
		}
		if err := o.lineage.RecordLineage(ctx, c.ChunkID, model.ItemChunk, derived, "chunk_engine_v1", at); err != nil {
			o.logger.Warn("chunk lineage emit failed", zap.Error(err), zap.String("chunkId", c.ChunkID))
		}
	}
}
