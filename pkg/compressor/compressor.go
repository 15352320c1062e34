// Package compressor implements the Adaptive Compressor, Eviction, and
// Rehydration subsystem of spec §4.5. Cosine distance and Jaccard word
// distance are shared with Hybrid Retrieval and Tabula Rasa via
// pkg/lexical rather than reimplemented here.
package compressor

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bridgeware/hmlr/pkg/lexical"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
)

// Level is the compression decision level returned by DecideCompression.
type Level string

const (
	NoCompression   Level = "NO_COMPRESSION"
	CompressPartial Level = "COMPRESS_PARTIAL"
	CompressAll     Level = "COMPRESS_ALL"
)

// Thresholds, defaults, and caps named in spec §4.5. These are
// compile-time constants; pkg/config has no keys that override them.
const (
	VeryDifferentThreshold  = 0.8
	SomewhatDifferentThresh = 0.6
	LongGapHours            = 12.0
	VerbatimHardCap         = 15
	CompressAllKeep         = 5
	CompressPartialKeep     = 10
	TimeEvictionHours       = 24.0
	MaxTier2Turns           = 30
	MaxTier2Tokens          = 5000
	MaxRehydrationTurns     = 10
	PrefetchWindow          = 3
)

var explicitReferencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)we discussed`),
	regexp.MustCompile(`(?i)you mentioned`),
	regexp.MustCompile(`(?i)you said`),
	regexp.MustCompile(`(?i)as i said`),
	regexp.MustCompile(`(?i)earlier you`),
	regexp.MustCompile(`(?i)previously`),
	regexp.MustCompile(`(?i)going back to`),
}

// Compressor bundles the three spec §4.5 operations over a storage.Driver.
type Compressor struct {
	driver storage.Driver
	nowFn  func() time.Time
}

// New constructs a Compressor. nowFn defaults to time.Now if nil.
func New(driver storage.Driver, nowFn func() time.Time) *Compressor {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Compressor{driver: driver, nowFn: nowFn}
}

// Decision is the result of DecideCompression.
type Decision struct {
	Level                Level
	KeepVerbatimCount    int
	Reason               string
	HasExplicitReference bool
	SemanticDistance     float64
	TimeGapHours         float64
}

// DecideCompression implements the five-rule cascade of spec §4.5.
// queryEmbedding and recentEmbeddings may be nil, in which case the
// Jaccard word-distance fallback is used instead of cosine distance.
// now defaults to c.nowFn() when the zero time.Time is passed.
func (c *Compressor) DecideCompression(query string, recentQueries []string, queryEmbedding []float32, recentEmbeddings [][]float32, lastTurnTimestamp time.Time, now time.Time) Decision {
	if now.IsZero() {
		now = c.nowFn()
	}
	// Rule 1: no recent turns.
	if len(recentQueries) == 0 {
		return Decision{Level: NoCompression, KeepVerbatimCount: 0, Reason: "no_recent_turns"}
	}

	// Rule 2: explicit reference pattern.
	for _, pat := range explicitReferencePatterns {
		if pat.MatchString(query) {
			return Decision{
				Level:                NoCompression,
				KeepVerbatimCount:    len(recentQueries),
				Reason:               "explicit_reference",
				HasExplicitReference: true,
			}
		}
	}

	// Rule 3: semantic distance + time gap.
	distance := semanticDistance(query, recentQueries, queryEmbedding, recentEmbeddings)
	timeGapHours := 0.0
	if !lastTurnTimestamp.IsZero() {
		timeGapHours = now.Sub(lastTurnTimestamp).Hours()
	}

	veryDifferent := distance > VeryDifferentThreshold
	somewhatDifferent := distance > SomewhatDifferentThresh
	longGap := timeGapHours > LongGapHours

	var level Level
	var keep int
	switch {
	case veryDifferent && longGap:
		level, keep = CompressAll, CompressAllKeep
	case veryDifferent && !longGap:
		level, keep = CompressPartial, CompressPartialKeep
	case somewhatDifferent && longGap:
		level, keep = CompressPartial, CompressPartialKeep
	case somewhatDifferent && !longGap:
		level, keep = NoCompression, len(recentQueries)
	default:
		level, keep = NoCompression, len(recentQueries)
	}

	if keep > VerbatimHardCap {
		keep = VerbatimHardCap
	}

	return Decision{
		Level:             level,
		KeepVerbatimCount: keep,
		Reason:            "semantic_distance_time_gap",
		SemanticDistance:  distance,
		TimeGapHours:      timeGapHours,
	}
}

// semanticDistance computes cosine distance between queryEmbedding and
// the mean of recentEmbeddings when available, else the Jaccard
// word-distance fallback over the last three recent queries.
func semanticDistance(query string, recentQueries []string, queryEmbedding []float32, recentEmbeddings [][]float32) float64 {
	if len(queryEmbedding) > 0 && len(recentEmbeddings) > 0 {
		mean := lexical.MeanVector(recentEmbeddings)
		return 1 - lexical.CosineSimilarity(queryEmbedding, mean)
	}

	tail := recentQueries
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	return lexical.WordDistance(query, strings.Join(tail, " "))
}

// CheckAndEvict runs the time-based and FIFO space-based eviction
// policies over dayID's turns and updates topic affinity for each
// evicted turn.
func (c *Compressor) CheckAndEvict(ctx context.Context, dayID string, now time.Time) error {
	if now.IsZero() {
		now = c.nowFn()
	}
	driver := c.driver
	blocks, err := driver.Blocks().GetByDay(ctx, dayID)
	if err != nil {
		return err
	}

	blockIDs := make([]string, len(blocks))
	topicByBlock := make(map[string]string, len(blocks))
	for i, b := range blocks {
		blockIDs[i] = b.BlockID
		topic := b.TopicLabel
		if topic == "" && len(b.Keywords) > 0 {
			topic = b.Keywords[0]
		}
		topicByBlock[b.BlockID] = strings.ToLower(topic)
	}

	allTurns, err := driver.Turns().GetByDay(ctx, dayID, blockIDs)
	if err != nil {
		return err
	}

	turns := make([]*model.Turn, 0, len(allTurns))
	for _, t := range allTurns {
		if !t.Evicted {
			turns = append(turns, t)
		}
	}

	evicted := make(map[string]bool)

	// Time-based: anything older than TimeEvictionHours.
	for _, t := range turns {
		if now.Sub(t.Timestamp).Hours() > TimeEvictionHours {
			evicted[t.TurnID] = true
			if err := evictTurn(ctx, driver, t, topicByBlock[t.BlockID], now); err != nil {
				return err
			}
		}
	}

	// Space-based FIFO: sort remaining turns oldest-first and evict
	// until both the count and token bounds hold.
	remaining := make([]*model.Turn, 0, len(turns))
	for _, t := range turns {
		if !evicted[t.TurnID] {
			remaining = append(remaining, t)
		}
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].Timestamp.Before(remaining[j].Timestamp) })

	totalTokens := 0
	for _, t := range remaining {
		totalTokens += tokenEstimate(t)
	}

	for (len(remaining) > MaxTier2Turns || totalTokens > MaxTier2Tokens) && len(remaining) > 0 {
		t := remaining[0]
		totalTokens -= tokenEstimate(t)
		if err := evictTurn(ctx, driver, t, topicByBlock[t.BlockID], now); err != nil {
			return err
		}
		remaining = remaining[1:]
	}

	return nil
}

func tokenEstimate(t *model.Turn) int {
	return lexical.TokenEstimate(t.UserMessage) + lexical.TokenEstimate(t.AIResponse)
}

// evictTurn drops t from the sliding window without deleting its row:
// the row must survive for turnCount(block) to keep matching the
// persisted turn count, and for RehydrateInBlocks to still be able to
// promote it back to verbatim context later.
func evictTurn(ctx context.Context, driver storage.Driver, t *model.Turn, topic string, evictedAt time.Time) error {
	if topic == "" {
		topic = "general"
	}
	if err := driver.TopicAffinities().Upsert(ctx, topic, t.Timestamp, evictedAt); err != nil {
		return err
	}
	return driver.Turns().MarkEvicted(ctx, t.TurnID)
}

// RehydrationCandidate is one turn surfaced by Rehydrate, scored by
// keyword overlap with the query's non-current blocks.
type RehydrationCandidate struct {
	Turn  *model.Turn
	Score int
}

// RehydrateInBlocks locates candidate turns by lowercase-keyword
// overlap with any non-current block in blockIDs, scored by
// turnMatches+blockMatches, ties broken by Timestamp descending,
// clipped to MaxRehydrationTurns. storage.Driver has no "all turns"
// primitive by design (spec §6), so the orchestrator supplies the set
// of candidate block ids from the day's ledger.
func (c *Compressor) RehydrateInBlocks(ctx context.Context, queryKeywords []string, blockIDs []string, currentBlockID string, now time.Time) ([]RehydrationCandidate, error) {
	if now.IsZero() {
		now = c.nowFn()
	}
	driver := c.driver
	querySet := toLowerSet(queryKeywords)

	var candidates []RehydrationCandidate
	for _, blockID := range blockIDs {
		if blockID == currentBlockID {
			continue
		}

		block, err := driver.Blocks().Get(ctx, blockID)
		if err != nil {
			continue
		}
		blockMatches := overlapCount(querySet, block.Keywords)

		turns, err := driver.Turns().GetByBlock(ctx, blockID)
		if err != nil {
			return nil, err
		}

		for _, t := range turns {
			turnMatches := overlapCount(querySet, t.Keywords)
			score := turnMatches + blockMatches
			if score == 0 {
				continue
			}
			candidates = append(candidates, RehydrationCandidate{Turn: t, Score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Turn.Timestamp.After(candidates[j].Turn.Timestamp)
	})

	if len(candidates) > MaxRehydrationTurns {
		candidates = candidates[:MaxRehydrationTurns]
	}

	for _, cand := range candidates {
		if err := driver.UsageStats().Bump(ctx, cand.Turn.TurnID, model.ItemTurn, cand.Turn.Keywords, now); err != nil {
			return nil, err
		}
	}

	return candidates, nil
}

// PrefetchByAffinity scores blocks from blockIDs by keyword overlap
// with currentTopic and returns the turn ids of the best-scoring blocks
// in order, capped at 5 total turn ids per spec §4.5. There is no
// per-block limit; PrefetchWindow is not used here.
func (c *Compressor) PrefetchByAffinity(ctx context.Context, currentTopic string, blockIDs []string) ([]string, error) {
	driver := c.driver
	topicTokens := lexical.Extract(currentTopic)
	topicSet := toLowerSet(topicTokens)

	type scoredBlock struct {
		blockID string
		score   int
	}
	var scored []scoredBlock
	for _, blockID := range blockIDs {
		block, err := driver.Blocks().Get(ctx, blockID)
		if err != nil {
			continue
		}
		score := overlapCount(topicSet, block.Keywords)
		if score > 0 {
			scored = append(scored, scoredBlock{blockID, score})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	const maxTurnIDs = 5
	var turnIDs []string
	for _, sb := range scored {
		turns, err := driver.Turns().GetByBlock(ctx, sb.blockID)
		if err != nil {
			return nil, err
		}
		for _, t := range turns {
			turnIDs = append(turnIDs, t.TurnID)
			if len(turnIDs) >= maxTurnIDs {
				return turnIDs, nil
			}
		}
	}

	return turnIDs, nil
}

func overlapCount(querySet map[string]struct{}, keywords []string) int {
	count := 0
	for _, k := range keywords {
		if _, ok := querySet[strings.ToLower(k)]; ok {
			count++
		}
	}
	return count
}

func toLowerSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}
