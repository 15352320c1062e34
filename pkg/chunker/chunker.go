// Package chunker splits turn text into a hierarchical sequence of
// paragraph and sentence chunks, grounded on the teacher's
// merkle.Bucket.ExtractText text-handling convention and its general
// preference for small, pure, testable functions.
package chunker

import (
	"regexp"
	"strings"

	"github.com/bridgeware/hmlr/pkg/lexical"
	"github.com/bridgeware/hmlr/pkg/model"
)

var (
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
	sentenceSplit  = regexp.MustCompile(`[.!?]\s+`)
)

// IDFunc mints a fresh chunk id for the given prefix and index, so
// callers can inject determinism under test.
type IDFunc func(prefix string, idx int) string

// Chunk splits text into paragraph chunks, each further split into
// sentence chunks linked via ParentChunkID. The sequence emitted is
// stable for a given input and monotonic in (paragraph index,
// sentence index within paragraph).
func Chunk(text, turnID string, newID IDFunc) []*model.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	paragraphs := splitParagraphs(text)
	var out []*model.Chunk

	for pIdx, para := range paragraphs {
		paraID := newID("para", pIdx)
		paraChunk := &model.Chunk{
			ChunkID:        paraID,
			ChunkType:      model.ChunkParagraph,
			TextVerbatim:   para,
			LexicalFilters: lexical.Take(lexical.Extract(para), model.MaxKeywords),
			TurnID:         turnID,
			TokenCount:     lexical.TokenEstimate(para),
		}
		out = append(out, paraChunk)

		for sIdx, sent := range splitSentences(para) {
			sentChunk := &model.Chunk{
				ChunkID:        newID("sent", pIdx*1000+sIdx),
				ChunkType:      model.ChunkSentence,
				TextVerbatim:   sent,
				LexicalFilters: lexical.Take(lexical.Extract(sent), model.MaxKeywords),
				ParentChunkID:  paraID,
				TurnID:         turnID,
				TokenCount:     lexical.TokenEstimate(sent),
			}
			out = append(out, sentChunk)
		}
	}

	return out
}

// splitParagraphs splits on blank-line boundaries, trimming each
// paragraph. If no separators are found and text is non-empty, the
// whole text is treated as one paragraph.
func splitParagraphs(text string) []string {
	parts := paragraphSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 && text != "" {
		out = append(out, text)
	}
	return out
}

// splitSentences splits a paragraph into sentences on a terminator
// followed by whitespace.
func splitSentences(paragraph string) []string {
	parts := sentenceSplit.Split(paragraph, -1)
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
