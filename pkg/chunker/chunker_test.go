package chunker_test

import (
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/chunker"
	"github.com/bridgeware/hmlr/pkg/model"
)

func TestChunker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Chunker Suite")
}

func sequentialIDs() chunker.IDFunc {
	return func(prefix string, idx int) string {
		return fmt.Sprintf("%s_%d", prefix, idx)
	}
}

var _ = Describe("Chunk", func() {
	It("returns nil for empty text", func() {
		Expect(chunker.Chunk("   ", "turn_1", sequentialIDs())).To(BeNil())
	})

	It("emits one paragraph chunk and its sentence children for single-paragraph text", func() {
		chunks := chunker.Chunk("First sentence. Second sentence.", "turn_1", sequentialIDs())

		var paragraphs, sentences []*model.Chunk
		for _, c := range chunks {
			switch c.ChunkType {
			case model.ChunkParagraph:
				paragraphs = append(paragraphs, c)
			case model.ChunkSentence:
				sentences = append(sentences, c)
			}
		}

		Expect(paragraphs).To(HaveLen(1))
		Expect(sentences).To(HaveLen(2))
		for _, s := range sentences {
			Expect(s.ParentChunkID).To(Equal(paragraphs[0].ChunkID))
			Expect(s.TurnID).To(Equal("turn_1"))
		}
	})

	It("splits on blank lines into multiple paragraphs", func() {
		text := "Paragraph one.\n\nParagraph two has two sentences. Right here."
		chunks := chunker.Chunk(text, "turn_2", sequentialIDs())

		var paragraphCount int
		for _, c := range chunks {
			if c.ChunkType == model.ChunkParagraph {
				paragraphCount++
			}
		}
		Expect(paragraphCount).To(Equal(2))
	})

	It("sets TurnID on every emitted chunk", func() {
		chunks := chunker.Chunk("One. Two. Three.", "turn_3", sequentialIDs())
		Expect(chunks).NotTo(BeEmpty())
		for _, c := range chunks {
			Expect(c.TurnID).To(Equal("turn_3"))
		}
	})
})
