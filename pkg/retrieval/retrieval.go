// Package retrieval implements Hybrid Retrieval (spec §4.4): lexical
// search over memories/chunks/facts, vector + hybrid scoring for
// memories, and the gardened-memory semantic search path. The lexical
// extract/score function is shared with the Chunker and Tabula Rasa
// via pkg/lexical, grounded on api/search/search.go's embed-query-format
// pipeline shape.
package retrieval

import (
	"context"
	"sort"
	"time"

	"github.com/bridgeware/hmlr/pkg/lexical"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
	"github.com/bridgeware/hmlr/pkg/vector"
)

// Defaults named in spec §4.4 and §6's Configurable options.
const (
	DefaultVectorWeight        = 0.7
	DefaultLexicalWeight       = 0.3
	DefaultHybridMinScore      = 0.3
	DefaultTopK                = 10
	DefaultGardenedMinSimilarity = 0.4
)

// Retriever bundles the lexical and vector search surfaces over a
// storage.Driver and an optional vector index.
type Retriever struct {
	driver storage.Driver
	vec    vector.VectorDriver

	VectorWeight         float64
	LexicalWeight        float64
	HybridMinScore       float64
	TopK                 int
	GardenedMinSimilarity float64
	// GardenedExcludeCurrentDay gates the Open-Question exclusion of
	// today's memories from gardened search behind a config flag, per
	// spec §9 ("leave the exclusion behind a config flag").
	GardenedExcludeCurrentDay bool
}

// New constructs a Retriever with spec-default weights/thresholds;
// callers override fields directly from pkg/config.
func New(driver storage.Driver, vec vector.VectorDriver) *Retriever {
	return &Retriever{
		driver:                    driver,
		vec:                       vec,
		VectorWeight:              DefaultVectorWeight,
		LexicalWeight:             DefaultLexicalWeight,
		HybridMinScore:            DefaultHybridMinScore,
		TopK:                      DefaultTopK,
		GardenedMinSimilarity:     DefaultGardenedMinSimilarity,
		GardenedExcludeCurrentDay: true,
	}
}

// Result is one scored item returned by a search operation.
type Result struct {
	ItemID      string
	Score       float64
	Matched     []string
	ChunkType   model.ChunkType
	Metadata    []string // e.g. block keywords attached as global meta-tags
}

// SearchMemories performs a lexical search over every stored memory,
// scoring by lexical.LexicalScore, sorted descending, clipped to topK.
func (r *Retriever) SearchMemories(ctx context.Context, keywords []string, topK int) ([]Result, error) {
	memories, err := r.driver.Memories().List(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = r.TopK
	}

	out := make([]Result, 0, len(memories))
	for _, m := range memories {
		score, matched := lexical.LexicalScore(keywords, m.Content)
		if score <= 0 {
			continue
		}
		out = append(out, Result{ItemID: m.MemoryID, Score: score, Matched: matched})
	}

	sortAndClip(out, memories, func(id string) (time.Time, string) {
		return lookupMemory(memories, id)
	}, topK)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// SearchChunks performs a lexical search over every stored chunk,
// optionally restricted to chunkType.
func (r *Retriever) SearchChunks(ctx context.Context, keywords []string, chunkType model.ChunkType, topK int) ([]Result, error) {
	chunks, err := r.driver.Chunks().List(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = r.TopK
	}

	out := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		if chunkType != "" && c.ChunkType != chunkType {
			continue
		}
		score, matched := lexical.LexicalScore(keywords, c.TextVerbatim)
		if score <= 0 {
			continue
		}
		out = append(out, Result{ItemID: c.ChunkID, Score: score, Matched: matched, ChunkType: c.ChunkType})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// SearchFacts performs a lexical search over every non-superseded
// fact's key+value, optionally restricted to category.
func (r *Retriever) SearchFacts(ctx context.Context, keywords []string, category model.FactCategory, topK int) ([]*model.Fact, error) {
	facts, err := r.driver.Facts().List(ctx)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = r.TopK
	}

	type scored struct {
		fact  *model.Fact
		score float64
	}
	var out []scored
	for _, f := range facts {
		if category != "" && f.Category != category {
			continue
		}
		score, _ := lexical.LexicalScore(keywords, f.Key+" "+f.Value)
		if score <= 0 {
			continue
		}
		out = append(out, scored{f, score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].fact.CreatedAt.After(out[j].fact.CreatedAt)
	})

	if len(out) > topK {
		out = out[:topK]
	}

	facts2 := make([]*model.Fact, len(out))
	for i, s := range out {
		facts2[i] = s.fact
	}
	return facts2, nil
}

// SemanticSearchMemories runs a pure vector search over the configured
// vector index, returning raw cosine-similarity scores.
func (r *Retriever) SemanticSearchMemories(ctx context.Context, queryEmbedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = r.TopK
	}
	if r.vec == nil {
		return nil, nil
	}
	return r.vec.Query(ctx, queryEmbedding, topK)
}

// HybridResult is one memory scored by the combined vector+lexical formula.
type HybridResult struct {
	Memory  *model.Memory
	Score   float64
	Matched []string
}

// HybridSearchMemories combines vector similarity and lexical overlap
// per spec §4.4: combined = w_v*vectorScore + w_l*lexicalScore, dropped
// below HybridMinScore, sorted descending, clipped to topK. Ties are
// broken by descending createdAt then lexicographic id.
func (r *Retriever) HybridSearchMemories(ctx context.Context, queryEmbedding []float32, keywords []string, topK int) ([]HybridResult, error) {
	if topK <= 0 {
		topK = r.TopK
	}

	vectorResults, err := r.SemanticSearchMemories(ctx, queryEmbedding, topK*2)
	if err != nil {
		return nil, err
	}

	vectorScores := make(map[string]float64, len(vectorResults))
	for _, vr := range vectorResults {
		vectorScores[vr.Document.ID] = float64(vr.Score)
	}

	memories, err := r.driver.Memories().List(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*model.Memory, len(memories))
	for _, m := range memories {
		byID[m.MemoryID] = m
	}

	var out []HybridResult
	for memID, vScore := range vectorScores {
		m, ok := byID[memID]
		if !ok {
			continue
		}
		lScore, matched := lexical.LexicalScore(keywords, m.Content)
		combined := r.VectorWeight*vScore + r.LexicalWeight*lScore
		if combined < r.HybridMinScore {
			continue
		}
		out = append(out, HybridResult{Memory: m, Score: combined, Matched: matched})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Memory.CreatedAt.Equal(out[j].Memory.CreatedAt) {
			return out[i].Memory.CreatedAt.After(out[j].Memory.CreatedAt)
		}
		return out[i].Memory.MemoryID < out[j].Memory.MemoryID
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// GardenedResult is one long-term memory surfaced by GardenedSearch.
type GardenedResult struct {
	Memory    *model.Memory
	Score     float64
	ChunkType model.ChunkType
	Metadata  []string // the owning block's keywords
}

// GardenedSearch implements the "gardened memory" path of spec §4.4:
// vector search limited to topK*2, dropping results below minSimilarity,
// excluding memories whose block.dayId equals currentDayID (when
// r.GardenedExcludeCurrentDay is set), classifying chunkType by content
// length, and attaching the owning block's keywords as meta-tags.
func (r *Retriever) GardenedSearch(ctx context.Context, queryEmbedding []float32, currentDayID string, topK int) ([]GardenedResult, error) {
	if topK <= 0 {
		topK = r.TopK
	}

	vectorResults, err := r.SemanticSearchMemories(ctx, queryEmbedding, topK*2)
	if err != nil {
		return nil, err
	}

	memories, err := r.driver.Memories().List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Memory, len(memories))
	for _, m := range memories {
		byID[m.MemoryID] = m
	}

	blockCache := make(map[string]*model.BridgeBlock)

	var out []GardenedResult
	for _, vr := range vectorResults {
		if len(out) >= topK {
			break
		}
		score := float64(vr.Score)
		if score < r.GardenedMinSimilarity {
			continue
		}

		m, ok := byID[vr.Document.ID]
		if !ok {
			continue
		}

		block, ok := blockCache[m.BlockID]
		if !ok {
			block, err = r.driver.Blocks().Get(ctx, m.BlockID)
			if err != nil {
				continue
			}
			blockCache[m.BlockID] = block
		}

		if r.GardenedExcludeCurrentDay && block.DayID == currentDayID {
			continue
		}

		out = append(out, GardenedResult{
			Memory:    m,
			Score:     score,
			ChunkType: classifyChunkType(m.Content),
			Metadata:  block.Keywords,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// classifyChunkType buckets content by length per spec §4.4: <200
// sentence, <500 paragraph, else "turn" (represented here as
// model.ChunkParagraph with no dedicated "turn" ChunkType constant,
// since turn-length content has no chunk counterpart in the data
// model — callers inspect length directly when they need the
// three-way distinction).
func classifyChunkType(content string) model.ChunkType {
	switch {
	case len(content) < 200:
		return model.ChunkSentence
	case len(content) < 500:
		return model.ChunkParagraph
	default:
		return model.ChunkParagraph
	}
}

func sortAndClip(out []Result, memories []*model.Memory, lookup func(string) (time.Time, string), topK int) {
	byID := make(map[string]*model.Memory, len(memories))
	for _, m := range memories {
		byID[m.MemoryID] = m
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		mi, mj := byID[out[i].ItemID], byID[out[j].ItemID]
		if mi == nil || mj == nil {
			return out[i].ItemID < out[j].ItemID
		}
		if !mi.CreatedAt.Equal(mj.CreatedAt) {
			return mi.CreatedAt.After(mj.CreatedAt)
		}
		return out[i].ItemID < out[j].ItemID
	})
}

func lookupMemory(memories []*model.Memory, id string) (time.Time, string) {
	for _, m := range memories {
		if m.MemoryID == id {
			return m.CreatedAt, m.MemoryID
		}
	}
	return time.Time{}, id
}
