package hydrator_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/governor"
	"github.com/bridgeware/hmlr/pkg/hydrator"
	"github.com/bridgeware/hmlr/pkg/model"
)

func TestHydrator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Hydrator Suite")
}

var _ = Describe("AllocateTokenBudget", func() {
	It("matches the spec's degenerate fully-consumed example", func() {
		b := hydrator.AllocateTokenBudget(4000, 500, 500, 500, 500)
		Expect(b.System).To(Equal(500))
		Expect(b.Task).To(Equal(500))
		Expect(b.BridgeBlock).To(Equal(1500))
		Expect(b.Memories).To(Equal(900))
		Expect(b.Facts).To(Equal(300))
		Expect(b.Profile).To(Equal(300))
	})

	It("folds unused system/task budget back into the four buckets proportionally", func() {
		b := hydrator.AllocateTokenBudget(4000, 500, 500, 100, 100)
		Expect(b.System).To(Equal(500))
		Expect(b.Task).To(Equal(500))
		Expect(b.BridgeBlock).To(Equal(1900))
		Expect(b.Memories).To(Equal(1140))
		Expect(b.Facts).To(Equal(380))
		Expect(b.Profile).To(Equal(380))
	})

	It("never lets unused budget go negative when usage exceeds the reservation", func() {
		b := hydrator.AllocateTokenBudget(4000, 500, 500, 900, 900)
		Expect(b.BridgeBlock + b.Memories + b.Facts + b.Profile).To(Equal(3000))
	})
})

var _ = Describe("Hydrator.Hydrate", func() {
	It("grows the variable buckets when the system/task text is shorter than reserved", func() {
		h := &hydrator.Hydrator{MaxContextTokens: 4000, SystemTokens: 500, TaskTokens: 500}

		turns := []*model.Turn{
			{TurnID: "t1", UserMessage: "hello", AIResponse: "hi there", Timestamp: time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)},
		}

		full := h.Hydrate(hydrator.Input{Turns: turns, System: fill(500), Task: fill(500)})
		Expect(full.Budget.BridgeBlock).To(Equal(1500))

		slack := h.Hydrate(hydrator.Input{Turns: turns, System: "hi", Task: "hi"})
		Expect(slack.Budget.BridgeBlock).To(BeNumerically(">", full.Budget.BridgeBlock))
	})
})

var _ = Describe("memory formatting", func() {
	It("sorts memories by score descending before taking any", func() {
		h := hydrator.New()
		in := hydrator.Input{
			Memories: []governor.MemoryCandidate{
				{Memory: &model.Memory{Content: "low"}, Score: 0.1},
				{Memory: &model.Memory{Content: "high"}, Score: 0.9},
			},
		}
		result := h.Hydrate(in)
		Expect(result.MemoriesUsed).To(Equal(2))
		Expect(result.Prompt).To(ContainSubstring("high"))
	})
})

func fill(tokens int) string {
	out := make([]byte, tokens*4)
	for i := range out {
		out[i] = 'x'
	}
	return string(out)
}
