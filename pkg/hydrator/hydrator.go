// Package hydrator implements the context hydrator of spec §4.8: a
// priority-weighted token budget split across recent turns, retrieved
// memories, facts, and the user profile, assembled into a single
// prompt string, grounded on api/search/search.go's
// accumulate-and-format pipeline shape (embed/query upstream, format
// downstream) generalized from one result list to four budgeted
// sections.
package hydrator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bridgeware/hmlr/pkg/governor"
	"github.com/bridgeware/hmlr/pkg/lexical"
	"github.com/bridgeware/hmlr/pkg/model"
)

// Defaults named in spec §6's Configurable options.
const (
	DefaultMaxContextTokens = 8000
	DefaultSystemTokens     = 500
	DefaultTaskTokens       = 500
)

// Bucket shares of the remaining (non-system, non-task) budget, per
// spec §4.8's allocation table.
const (
	TurnShare    = 0.50
	MemoryShare  = 0.30
	FactShare    = 0.10
	ProfileShare = 0.10
)

// Budget is the token allocation produced by AllocateTokenBudget.
type Budget struct {
	System      int
	Task        int
	BridgeBlock int
	Memories    int
	Facts       int
	Profile     int
	Total       int
}

// AllocateTokenBudget splits total into the four variable buckets
// proportionally to their default share of the remainder
// R = total - system - task, per spec §4.8 and example 4.
//
// systemUsed and taskUsed are the tokens the system prompt and task
// instructions actually consumed; whatever system and task reserved
// but didn't use is folded back into R before the four-way split, per
// spec §4.8's dynamic reallocation rule, proportional to each bucket's
// initial share of R rather than dumped onto one bucket.
func AllocateTokenBudget(total, system, task, systemUsed, taskUsed int) Budget {
	remaining := total - system - task
	if remaining < 0 {
		remaining = 0
	}

	unusedSystem := system - systemUsed
	if unusedSystem < 0 {
		unusedSystem = 0
	}
	unusedTask := task - taskUsed
	if unusedTask < 0 {
		unusedTask = 0
	}
	pool := remaining + unusedSystem + unusedTask

	b := Budget{
		System:      system,
		Task:        task,
		BridgeBlock: int(float64(pool) * TurnShare),
		Memories:    int(float64(pool) * MemoryShare),
		Facts:       int(float64(pool) * FactShare),
		Profile:     int(float64(pool) * ProfileShare),
		Total:       total,
	}

	// Rounding remainder goes to the largest (turn) bucket so the four
	// variable buckets sum exactly to pool.
	allocated := b.BridgeBlock + b.Memories + b.Facts + b.Profile
	b.BridgeBlock += pool - allocated

	return b
}

// Input bundles everything Hydrate needs to assemble one prompt.
// System and Task are the actual text the caller will send in the
// system and task-instruction portions of the Chat LLM call; their
// token cost is measured against the Hydrator's SystemTokens/TaskTokens
// reservations so any slack flows back into the variable buckets.
type Input struct {
	Turns    []*model.Turn
	Memories []governor.MemoryCandidate
	Facts    []*model.Fact
	Profile  string
	System   string
	Task     string
}

// Hydrator assembles the budgeted prompt described in spec §4.8.
type Hydrator struct {
	MaxContextTokens int
	SystemTokens     int
	TaskTokens       int
}

// New constructs a Hydrator with spec defaults; callers override from
// pkg/config.
func New() *Hydrator {
	return &Hydrator{
		MaxContextTokens: DefaultMaxContextTokens,
		SystemTokens:     DefaultSystemTokens,
		TaskTokens:       DefaultTaskTokens,
	}
}

// Result is the assembled prompt plus the accounting needed by the
// orchestrator to report memoriesUsed/factsUsed.
type Result struct {
	Prompt        string
	Budget        Budget
	TurnsUsed     int
	MemoriesUsed  int
	FactsUsed     int
	ProfileUsed   bool
}

// Hydrate assembles the full prompt: recent turns (newest-first
// greedy selection, reversed to chronological order), memories
// (score-descending greedy selection), facts, and the user profile,
// each clipped to its budget bucket.
func (h *Hydrator) Hydrate(in Input) Result {
	systemUsed := lexical.TokenEstimate(in.System)
	taskUsed := lexical.TokenEstimate(in.Task)
	budget := AllocateTokenBudget(h.MaxContextTokens, h.SystemTokens, h.TaskTokens, systemUsed, taskUsed)

	turnSection, turnsUsed := formatTurns(in.Turns, budget.BridgeBlock)
	memSection, memsUsed := formatMemories(in.Memories, budget.Memories)
	factSection, factsUsed := formatFacts(in.Facts, budget.Facts)
	profileSection, profileUsed := formatProfile(in.Profile, budget.Profile)

	var b strings.Builder
	if turnSection != "" {
		b.WriteString(turnSection)
		b.WriteString("\n\n")
	}
	if memSection != "" {
		b.WriteString(memSection)
		b.WriteString("\n\n")
	}
	if factSection != "" {
		b.WriteString(factSection)
		b.WriteString("\n\n")
	}
	if profileSection != "" {
		b.WriteString(profileSection)
		b.WriteString("\n\n")
	}

	return Result{
		Prompt:       strings.TrimSpace(b.String()),
		Budget:       budget,
		TurnsUsed:    turnsUsed,
		MemoriesUsed: memsUsed,
		FactsUsed:    factsUsed,
		ProfileUsed:  profileUsed,
	}
}

// formatTurns sorts turns newest-first, greedily takes turns while
// cumulative tokens stay within budget, then reverses to chronological
// order, per spec §4.8.
func formatTurns(turns []*model.Turn, budget int) (string, int) {
	if len(turns) == 0 || budget <= 0 {
		return "", 0
	}

	sorted := make([]*model.Turn, len(turns))
	copy(sorted, turns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.After(sorted[j].Timestamp) })

	var kept []*model.Turn
	used := 0
	for _, t := range sorted {
		rendered := renderTurn(t)
		cost := lexical.TokenEstimate(rendered)
		if used+cost > budget && len(kept) > 0 {
			break
		}
		kept = append(kept, t)
		used += cost
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	var b strings.Builder
	b.WriteString("=== Recent Conversation ===\n")
	for _, t := range kept {
		b.WriteString(renderTurn(t))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), len(kept)
}

func renderTurn(t *model.Turn) string {
	return fmt.Sprintf("[%s]\nUser: %s\nAssistant: %s", t.Timestamp.Format(time.RFC3339), t.UserMessage, t.AIResponse)
}

// formatMemories sorts memories by score descending, greedily takes
// memories within budget, per spec §4.8.
func formatMemories(memories []governor.MemoryCandidate, budget int) (string, int) {
	if len(memories) == 0 || budget <= 0 {
		return "", 0
	}

	sorted := make([]governor.MemoryCandidate, len(memories))
	copy(sorted, memories)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var b strings.Builder
	b.WriteString("=== Relevant History ===\n")
	used := 0
	count := 0
	for i, m := range sorted {
		line := fmt.Sprintf("[Memory %d] (relevance: %d%%)\n%s\n", i+1, int(m.Score*100), m.Memory.Content)
		cost := lexical.TokenEstimate(line)
		if used+cost > budget && count > 0 {
			break
		}
		b.WriteString(line)
		used += cost
		count++
	}
	return strings.TrimRight(b.String(), "\n"), count
}

// formatFacts renders facts as "key[<category>]: value", clipped to budget.
func formatFacts(facts []*model.Fact, budget int) (string, int) {
	if len(facts) == 0 || budget <= 0 {
		return "", 0
	}

	var b strings.Builder
	b.WriteString("=== Known Facts ===\n")
	used := 0
	count := 0
	for _, f := range facts {
		line := formatFact(f) + "\n"
		cost := lexical.TokenEstimate(line)
		if used+cost > budget && count > 0 {
			break
		}
		b.WriteString(line)
		used += cost
		count++
	}
	return strings.TrimRight(b.String(), "\n"), count
}

func formatFact(f *model.Fact) string {
	if f.Category == "" {
		return fmt.Sprintf("%s: %s", f.Key, f.Value)
	}
	return fmt.Sprintf("%s[%s]: %s", f.Key, f.Category, f.Value)
}

// formatProfile truncates profile to fit budget (approximated by the
// token estimator) and headers it, per spec §4.8.
func formatProfile(profile string, budget int) (string, bool) {
	profile = strings.TrimSpace(profile)
	if profile == "" || budget <= 0 {
		return "", false
	}

	maxChars := budget * 4
	if lexical.TokenEstimate(profile) > budget {
		profile = lexical.Truncate(profile, maxChars)
	}

	return "=== User Profile ===\n" + profile, true
}
