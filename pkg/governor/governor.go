// Package governor implements the Governor described in spec §4.7: a
// fan-out/fan-in of three independent subtasks — block routing, memory
// filtering, and fact lookup — run concurrently over the small ("nano")
// Chat LLM tier and the storage driver, grounded on the
// goroutine/sync.WaitGroup fan-out idiom the teacher uses for its
// worker pool, generalized here from a bounded pool to a fixed
// three-way fan-out with no queueing required.
package governor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bridgeware/hmlr/pkg/block"
	"github.com/bridgeware/hmlr/pkg/factstore"
	"github.com/bridgeware/hmlr/pkg/lexical"
	"github.com/bridgeware/hmlr/pkg/llm/client"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
	"github.com/bridgeware/hmlr/pkg/vector"
)

// Defaults named in spec §4.7.
const (
	DefaultMemoryFilterLimit = 20
	DefaultFactKeyLimit      = 10
	DefaultRouteBlockWindow  = 10
	DefaultSummaryPreview    = 150
	DefaultMemoryPreview     = 300
	DefaultMemoryFallback    = 5
)

// RoutingResult is the outcome of the Route subtask.
type RoutingResult struct {
	MatchedBlockID string
	IsNewTopic     bool
	Reasoning      string
	SuggestedLabel string
}

// MemoryCandidate is one memory surfaced by the vector search and
// judged by the memory filter subtask.
type MemoryCandidate struct {
	Memory *model.Memory
	Score  float64
}

// Result bundles the three subtask outcomes; it is only produced once
// all three complete (spec §4.7: "the result struct is produced only
// after all three complete").
type Result struct {
	Routing  RoutingResult
	Memories []MemoryCandidate
	Facts    []*model.Fact
}

// Governor fans out route/filter/lookup over the block manager, the
// storage driver, and the small Chat LLM tier.
type Governor struct {
	llm    client.Client
	model  string
	blocks *block.Manager
	driver storage.Driver
	facts  *factstore.Store
	vec    vector.VectorDriver

	MemoryFilterLimit int
	FactKeyLimit      int
	RouteBlockWindow  int
}

// New constructs a Governor. model is the small/"nano" Chat LLM tier
// (spec §6's governorModel) used for routing and memory filtering.
// vec may be nil, in which case filterMemories
// falls back to an in-process cosine-similarity scan over
// driver.Memories().List, same as pkg/retrieval does when no vector
// index is configured.
func New(llm client.Client, model string, blocks *block.Manager, driver storage.Driver, facts *factstore.Store, vec vector.VectorDriver) *Governor {
	return &Governor{
		llm:               llm,
		model:             model,
		blocks:            blocks,
		driver:            driver,
		facts:             facts,
		vec:               vec,
		MemoryFilterLimit: DefaultMemoryFilterLimit,
		FactKeyLimit:      DefaultFactKeyLimit,
		RouteBlockWindow:  DefaultRouteBlockWindow,
	}
}

// Govern runs the three Governor subtasks concurrently and returns
// their combined result. Any subtask failure aborts the call: per the
// error taxonomy (spec §7) the Governor itself is a critical subtask,
// but each individual path already applies its own documented
// fallback for transient/parse failures so this only returns an error
// when something more fundamental (context cancellation, driver
// failure) occurred.
func (g *Governor) Govern(ctx context.Context, query string, queryEmbedding []float32, dayID string) (*Result, error) {
	var (
		wg        sync.WaitGroup
		routing   RoutingResult
		memories  []MemoryCandidate
		facts     []*model.Fact

		routingErr, memoriesErr, factsErr error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		routing, routingErr = g.route(ctx, query, dayID)
	}()
	go func() {
		defer wg.Done()
		memories, memoriesErr = g.filterMemories(ctx, query, queryEmbedding)
	}()
	go func() {
		defer wg.Done()
		facts, factsErr = g.lookupFacts(ctx, query)
	}()
	wg.Wait()

	if routingErr != nil {
		return nil, fmt.Errorf("governor route: %w", routingErr)
	}
	if memoriesErr != nil {
		return nil, fmt.Errorf("governor filter memories: %w", memoriesErr)
	}
	if factsErr != nil {
		return nil, fmt.Errorf("governor lookup facts: %w", factsErr)
	}

	return &Result{Routing: routing, Memories: memories, Facts: facts}, nil
}

type routeDecision struct {
	MatchedBlockID string `json:"matchedBlockId"`
	IsNewTopic     bool   `json:"isNewTopic"`
	Reasoning      string `json:"reasoning"`
	SuggestedLabel string `json:"suggestedLabel"`
}

// route implements the Route subtask of spec §4.7.
func (g *Governor) route(ctx context.Context, query, dayID string) (RoutingResult, error) {
	metas, err := g.blocks.GetMetadataByDay(ctx, dayID)
	if err != nil {
		return RoutingResult{}, err
	}

	if len(metas) == 0 {
		return RoutingResult{
			MatchedBlockID: "",
			IsNewTopic:     true,
			Reasoning:      "first_query_of_day",
			SuggestedLabel: "Initial Conversation",
		}, nil
	}

	var lastActive block.BlockMetadata
	for _, m := range metas {
		if m.IsLastActive {
			lastActive = m
		}
	}

	prompt := buildRoutePrompt(query, metas, g.RouteBlockWindow)
	text, err := g.llm.Chat(ctx, client.Request{
		Model:       g.model,
		Messages:    []client.Message{{Role: "user", Text: prompt}},
		MaxTokens:   500,
		Temperature: 0,
	})
	if err != nil {
		// Transient external failure: fall back to last-active, not new topic.
		return RoutingResult{MatchedBlockID: lastActive.BlockID, IsNewTopic: false, Reasoning: "llm_unavailable_fallback"}, nil
	}

	var decision routeDecision
	if jsonErr := json.Unmarshal([]byte(stripFence(text)), &decision); jsonErr != nil {
		// Parse failure: default to the last-active block, not a new topic.
		return RoutingResult{MatchedBlockID: lastActive.BlockID, IsNewTopic: false, Reasoning: "parse_failure_fallback"}, nil
	}

	return RoutingResult{
		MatchedBlockID: decision.MatchedBlockID,
		IsNewTopic:     decision.IsNewTopic,
		Reasoning:      decision.Reasoning,
		SuggestedLabel: decision.SuggestedLabel,
	}, nil
}

func buildRoutePrompt(query string, metas []block.BlockMetadata, window int) string {
	if window <= 0 || window > len(metas) {
		window = len(metas)
	}

	var b strings.Builder
	b.WriteString("You are routing a new user query to one of today's topic blocks.\n")
	b.WriteString("Query: " + query + "\n\n")
	b.WriteString("Blocks:\n")
	for i, m := range metas[:window] {
		marker := ""
		if m.IsLastActive {
			marker = " [LAST-ACTIVE]"
		}
		kw := lexical.Take(m.Keywords, 5)
		fmt.Fprintf(&b, "%d. id=%s topic=%q status=%s%s summary=%q keywords=%v turns=%d\n",
			i+1, m.BlockID, m.TopicLabel, m.Status, marker, lexical.Truncate(m.Summary, DefaultSummaryPreview), kw, m.TurnCount)
	}
	b.WriteString("\nReturn JSON: {\"matchedBlockId\": string|null, \"isNewTopic\": bool, \"reasoning\": string, \"suggestedLabel\": string}")
	return b.String()
}

// filterMemories implements the memory-filter subtask of spec §4.7:
// a vector search over memories, then an LLM pass to drop
// semantically-close-but-opposite matches.
func (g *Governor) filterMemories(ctx context.Context, query string, queryEmbedding []float32) ([]MemoryCandidate, error) {
	limit := g.MemoryFilterLimit
	if limit <= 0 {
		limit = DefaultMemoryFilterLimit
	}

	scored, err := g.rankMemories(ctx, queryEmbedding, limit)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, nil
	}

	prompt := buildFilterPrompt(query, scored)
	text, err := g.llm.Chat(ctx, client.Request{
		Model:       g.model,
		Messages:    []client.Message{{Role: "user", Text: prompt}},
		MaxTokens:   500,
		Temperature: 0,
	})
	if err != nil {
		return topN(scored, DefaultMemoryFallback), nil
	}

	var decision struct {
		RelevantIndices []int  `json:"relevantIndices"`
		Reasoning       string `json:"reasoning"`
	}
	if jsonErr := json.Unmarshal([]byte(stripFence(text)), &decision); jsonErr != nil {
		return topN(scored, DefaultMemoryFallback), nil
	}

	out := make([]MemoryCandidate, 0, len(decision.RelevantIndices))
	for _, idx := range decision.RelevantIndices {
		if idx < 0 || idx >= len(scored) {
			continue
		}
		out = append(out, scored[idx])
	}
	return out, nil
}

// rankMemories scores memories against queryEmbedding and returns the
// top `limit`, descending. When a vector index is configured this
// goes through it (vector.VectorDriver.Query), the same external
// similarity search pkg/retrieval.SemanticSearchMemories uses, rather
// than a second, divergent in-process ranking path; memory rows are
// then joined back in by id. With no vector index configured it falls
// back to an in-process cosine-similarity scan over
// driver.Memories().List, matching pkg/retrieval's own no-vector
// fallback.
func (g *Governor) rankMemories(ctx context.Context, queryEmbedding []float32, limit int) ([]MemoryCandidate, error) {
	if g.vec == nil {
		return g.rankMemoriesInProcess(ctx, queryEmbedding, limit)
	}

	vectorResults, err := g.vec.Query(ctx, queryEmbedding, limit)
	if err != nil {
		return nil, err
	}
	if len(vectorResults) == 0 {
		return nil, nil
	}

	memories, err := g.driver.Memories().List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Memory, len(memories))
	for _, m := range memories {
		byID[m.MemoryID] = m
	}

	out := make([]MemoryCandidate, 0, len(vectorResults))
	for _, vr := range vectorResults {
		m, ok := byID[vr.Document.ID]
		if !ok {
			continue
		}
		out = append(out, MemoryCandidate{Memory: m, Score: float64(vr.Score)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// rankMemoriesInProcess is the no-vector-index fallback: cosine
// similarity scored in-process against every stored memory.
func (g *Governor) rankMemoriesInProcess(ctx context.Context, queryEmbedding []float32, limit int) ([]MemoryCandidate, error) {
	memories, err := g.driver.Memories().List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]MemoryCandidate, 0, len(memories))
	for _, m := range memories {
		score := lexical.CosineSimilarity(queryEmbedding, m.Embedding)
		out = append(out, MemoryCandidate{Memory: m, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func buildFilterPrompt(query string, candidates []MemoryCandidate) string {
	var b strings.Builder
	b.WriteString("Given the query, select only the memories that are actually relevant ")
	b.WriteString("(drop memories that are topically close but semantically opposite, e.g. ")
	b.WriteString("\"I love X\" vs \"I hate X\").\n")
	b.WriteString("Query: " + query + "\n\nCandidates:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", i, lexical.Truncate(c.Memory.Content, DefaultMemoryPreview))
	}
	b.WriteString("\nReturn JSON: {\"relevantIndices\": [int,...], \"reasoning\": string}")
	return b.String()
}

func topN(candidates []MemoryCandidate, n int) []MemoryCandidate {
	if len(candidates) > n {
		return candidates[:n]
	}
	return candidates
}

var acronymPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9_]+\b`)

// lookupFacts implements the fact-lookup subtask of spec §4.7.
func (g *Governor) lookupFacts(ctx context.Context, query string) ([]*model.Fact, error) {
	keys := extractCandidateKeys(query, g.FactKeyLimit)

	var out []*model.Fact
	for _, key := range keys {
		fact, err := g.facts.Get(ctx, key)
		if err != nil {
			if _, ok := err.(storage.ErrNotFound); ok {
				continue
			}
			return nil, err
		}
		if fact == nil || fact.Value == model.DeletedValue {
			continue
		}
		out = append(out, fact)
	}
	return out, nil
}

// extractCandidateKeys matches capitalized acronyms first, then bare
// word tokens, deduping while preserving order, and takes the first
// limit entries.
func extractCandidateKeys(query string, limit int) []string {
	if limit <= 0 {
		limit = DefaultFactKeyLimit
	}

	seen := make(map[string]struct{})
	var out []string

	add := func(tok string) bool {
		if tok == "" {
			return false
		}
		if _, ok := seen[tok]; ok {
			return false
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		return len(out) >= limit
	}

	for _, m := range acronymPattern.FindAllString(query, -1) {
		if add(m) {
			return out
		}
	}
	for _, tok := range lexical.Extract(query) {
		if add(tok) {
			return out
		}
	}

	return out
}

// stripFence removes a surrounding ```json ... ``` (or bare ```) fence
// from an LLM response so the remainder can be parsed as JSON
// directly. Nano-model responses are prompted to return raw JSON but
// frequently wrap it in a fence regardless.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
