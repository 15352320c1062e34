package governor_test

import (
	"context"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/block"
	"github.com/bridgeware/hmlr/pkg/factstore"
	"github.com/bridgeware/hmlr/pkg/governor"
	"github.com/bridgeware/hmlr/pkg/llm/client"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
	testutils "github.com/bridgeware/hmlr/pkg/utils/test"
	"github.com/bridgeware/hmlr/pkg/vector"
)

func TestGovernor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Governor Suite")
}

// stubClient returns a fixed chat response regardless of the request,
// and errors when FailOn is non-empty.
type stubClient struct {
	response string
	failOn   string
}

func (s *stubClient) Chat(_ context.Context, req client.Request) (string, error) {
	if s.failOn != "" {
		return "", fmt.Errorf("stub client failure: %s", s.failOn)
	}
	return s.response, nil
}

func (s *stubClient) Close() error { return nil }

var _ = Describe("Governor", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		blocks *block.Manager
		facts  *factstore.Store
		idFn   func(string) string
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		idFn = func(prefix string) string { return prefix + "_1" }
		blocks = block.New(driver.Blocks(), idFn, nil)
		facts = factstore.New(driver.Facts(), idFn, nil)
	})

	Describe("filterMemories routing", func() {
		It("routes through the configured vector driver instead of scanning every memory", func() {
			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_1", Content: "invoice dispute"})).To(Succeed())
			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_2", Content: "weather today"})).To(Succeed())

			vec := testutils.NewMockVectorDriver()
			vec.Results = []vector.QueryResult{
				{Document: vector.Document{ID: "mem_1"}, Score: 0.9},
			}

			llm := &stubClient{response: `{"relevantIndices": [0], "reasoning": "ok"}`}
			gov := governor.New(llm, "nano", blocks, driver, facts, vec)

			result, err := gov.Govern(ctx, "invoice question", []float32{0.1, 0.2}, "2026-08-06")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Memories).To(HaveLen(1))
			Expect(result.Memories[0].Memory.MemoryID).To(Equal("mem_1"))
		})

		It("falls back to an in-process cosine scan when no vector driver is configured", func() {
			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_1", Content: "invoice dispute", Embedding: []float32{1, 0}})).To(Succeed())
			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_2", Content: "weather today", Embedding: []float32{0, 1}})).To(Succeed())

			llm := &stubClient{response: `{"relevantIndices": [0], "reasoning": "ok"}`}
			gov := governor.New(llm, "nano", blocks, driver, facts, nil)

			result, err := gov.Govern(ctx, "invoice question", []float32{1, 0}, "2026-08-06")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Memories).To(HaveLen(1))
			Expect(result.Memories[0].Memory.MemoryID).To(Equal("mem_1"))
		})
	})

	Describe("routing the first query of the day", func() {
		It("returns a first-query-of-day routing result with no existing blocks", func() {
			llm := &stubClient{response: `{}`}
			gov := governor.New(llm, "nano", blocks, driver, facts, nil)

			result, err := gov.Govern(ctx, "hello", []float32{0.1}, "2026-08-06")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Routing.IsNewTopic).To(BeTrue())
			Expect(result.Routing.Reasoning).To(Equal("first_query_of_day"))
		})
	})
})
