// Package tabularasa implements the topic-shift detector described in
// spec §4.6: an ordered pattern-match-then-fallback decision, mirroring
// the teacher's pkg/llm/provider/detector.go Detector.Detect idiom (a
// list of matchers tried in sequence, falling back to a default — there
// besteffort, here the Jaccard heuristic).
package tabularasa

import (
	"regexp"
	"strings"

	"github.com/bridgeware/hmlr/pkg/lexical"
)

// Result is the outcome of CheckForShift.
type Result struct {
	IsShift       bool
	Reason        string
	NewTopicLabel string
	Confidence    float64
}

// ShiftThreshold is the Jaccard-derived shiftConfidence above which the
// heuristic path (step 4) declares a shift.
const ShiftThreshold = 0.7

var explicitShiftPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)let'?s talk about (.+?)(?:\s+instead)?[.!?]?$`),
	regexp.MustCompile(`(?i)changing topics? to (.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)moving on to (.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)new topic:\s*(.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)can we discuss (.+?)[.!?]?$`),
	regexp.MustCompile(`(?i)switching to (.+?)[.!?]?$`),
}

var continuationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(so|and|but|also|additionally|furthermore)\b`),
	regexp.MustCompile(`(?i)^as we discussed\b`),
	regexp.MustCompile(`(?i)^going back to\b`),
	regexp.MustCompile(`(?i)^regarding that\b`),
}

// CheckForShift runs the four-step heuristic cascade of spec §4.6.
func CheckForShift(query string, activeBlockKeywords []string) Result {
	query = strings.TrimSpace(query)

	// Step 1: no active keywords means there is nothing to continue.
	if len(activeBlockKeywords) == 0 {
		label := "General Conversation"
		if topics := lexical.Extract(query); len(topics) > 0 {
			label = topics[0]
		}
		return Result{IsShift: true, Reason: "no_active_topic", NewTopicLabel: label, Confidence: 1.0}
	}

	// Step 2: explicit shift pattern.
	for _, pat := range explicitShiftPatterns {
		if m := pat.FindStringSubmatch(query); m != nil {
			label := strings.TrimSpace(m[1])
			return Result{IsShift: true, Reason: "explicit_shift_pattern", NewTopicLabel: label, Confidence: 1.0}
		}
	}

	// Step 3: continuation pattern at start.
	for _, pat := range continuationPatterns {
		if pat.MatchString(query) {
			return Result{IsShift: false, Reason: "continuation_pattern", Confidence: 0.1}
		}
	}

	// Step 4: Jaccard similarity between query topics and active keywords.
	queryTopics := lexical.Extract(query)
	similarity := lexical.Jaccard(queryTopics, activeBlockKeywords)
	shiftConfidence := 1 - similarity

	if shiftConfidence > ShiftThreshold {
		label := ""
		if len(queryTopics) > 0 {
			label = queryTopics[0]
		}
		return Result{IsShift: true, Reason: "low_keyword_overlap", NewTopicLabel: label, Confidence: shiftConfidence}
	}

	return Result{IsShift: false, Reason: "keyword_overlap", Confidence: 1 - shiftConfidence}
}

// Metadata carries LLM-nano-supplied topic-shift signal, trusted by
// CheckForShiftWithMetadata when non-nil.
type Metadata struct {
	IsTopicShift  bool
	NewTopicLabel string
	Confidence    float64
}

// CheckForShiftWithMetadata trusts meta when present, falling back to
// the heuristic CheckForShift otherwise.
func CheckForShiftWithMetadata(query string, activeBlockKeywords []string, meta *Metadata) Result {
	if meta == nil {
		return CheckForShift(query, activeBlockKeywords)
	}

	return Result{
		IsShift:       meta.IsTopicShift,
		Reason:        "llm_nano_metadata",
		NewTopicLabel: meta.NewTopicLabel,
		Confidence:    meta.Confidence,
	}
}
