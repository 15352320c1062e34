package hydrator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata is the JSON block the Chat LLM is instructed to emit
// alongside its response, per spec §4.8.
type Metadata struct {
	TopicLabel    string   `json:"topic_label"`
	Keywords      []string `json:"keywords"`
	Summary       string   `json:"summary"`
	OpenLoops     []string `json:"open_loops"`
	DecisionsMade []string `json:"decisions_made"`
	Affect        string   `json:"affect"`
}

const newTopicInstructions = "At the end of your response, emit a fenced JSON block:\n```json\n{\"topic_label\": string, \"keywords\": [string,...], \"summary\": string, \"open_loops\": [string,...], \"decisions_made\": [string,...], \"affect\": string}\n```"

const continuationInstructions = "At the end of your response, emit a fenced JSON block with only the fields that changed (continuation update):\n```json\n{\"keywords\": [string,...], \"summary\": string, \"open_loops\": [string,...], \"decisions_made\": [string,...], \"affect\": string}\n```"

// MetadataInstructions returns the appendix text the orchestrator
// appends to the user prompt: the full-field variant for a new topic,
// the update-only variant for a continuation.
func MetadataInstructions(isNewTopic bool) string {
	if isNewTopic {
		return newTopicInstructions
	}
	return continuationInstructions
}

// ExtractMetadata implements the strict outermost-brace scan
// recommended by spec §9's Open Question on fenced-JSON extraction:
// locate the ```json fence header, then scan forward tracking
// string-literal state and brace depth to find the matching close
// brace for the outermost object, so a nested fenced block inside a
// quoted string value does not truncate the match early.
func ExtractMetadata(response string) (*Metadata, bool) {
	raw, ok := ExtractFencedJSON(response)
	if !ok {
		return nil, false
	}

	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, false
	}
	return &meta, true
}

// ExtractFencedJSON returns the raw JSON object text found after the
// first ```json fence in response, using brace-depth scanning (not a
// regex) so braces inside quoted strings never affect the matched
// depth.
func ExtractFencedJSON(response string) (string, bool) {
	fenceIdx := strings.Index(response, "```json")
	if fenceIdx < 0 {
		return "", false
	}
	body := response[fenceIdx+len("```json"):]

	start := strings.IndexByte(body, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(body); i++ {
		c := body[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return body[start : i+1], true
			}
		}
	}

	return "", false
}

// String renders every Metadata field on one line, for logs and debugging.
func (m *Metadata) String() string {
	return fmt.Sprintf("topic=%q keywords=%v summary=%q open_loops=%v decisions=%v affect=%q",
		m.TopicLabel, m.Keywords, m.Summary, m.OpenLoops, m.DecisionsMade, m.Affect)
}
