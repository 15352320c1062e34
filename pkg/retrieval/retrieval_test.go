package retrieval_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/retrieval"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
	testutils "github.com/bridgeware/hmlr/pkg/utils/test"
	"github.com/bridgeware/hmlr/pkg/vector"
)

func TestRetrieval(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Retrieval Suite")
}

var _ = Describe("Retriever", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		vec    *testutils.MockVectorDriver
		r      *retrieval.Retriever
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		vec = testutils.NewMockVectorDriver()
		r = retrieval.New(driver, vec)
	})

	Describe("SearchMemories", func() {
		It("scores and ranks memories by lexical overlap", func() {
			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_1", Content: "the invoice total is past due"})).To(Succeed())
			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_2", Content: "weather is nice today"})).To(Succeed())

			results, err := r.SearchMemories(ctx, []string{"invoice", "due"}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ItemID).To(Equal("mem_1"))
		})
	})

	Describe("SearchFacts", func() {
		It("restricts results to the given category", func() {
			_, err := driver.Facts().Store(ctx, &model.Fact{FactID: "fact_1", Key: "color", Value: "blue", Category: model.CategoryPreference, CreatedAt: time.Now()})
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Facts().Store(ctx, &model.Fact{FactID: "fact_2", Key: "email", Value: "a@b.com blue", Category: model.CategoryContact, CreatedAt: time.Now()})
			Expect(err).NotTo(HaveOccurred())

			results, err := r.SearchFacts(ctx, []string{"blue"}, model.CategoryPreference, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].FactID).To(Equal("fact_1"))
		})
	})

	Describe("HybridSearchMemories", func() {
		It("combines vector and lexical scores and drops results below HybridMinScore", func() {
			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_1", Content: "invoice dispute resolution", CreatedAt: time.Now()})).To(Succeed())
			vec.Results = []vector.QueryResult{
				{Document: vector.Document{ID: "mem_1"}, Score: 0.9},
			}

			results, err := r.HybridSearchMemories(ctx, []float32{0.1, 0.2}, []string{"invoice"}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Memory.MemoryID).To(Equal("mem_1"))
			Expect(results[0].Score).To(BeNumerically(">", 0))
		})

		It("returns nothing when the vector query fails to surface any candidate", func() {
			vec.Results = nil
			results, err := r.HybridSearchMemories(ctx, []float32{0.1}, []string{"invoice"}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("GardenedSearch", func() {
		It("excludes memories belonging to the current day's block", func() {
			Expect(driver.Blocks().Create(ctx, &model.BridgeBlock{BlockID: "block_today", DayID: "2026-08-06", Status: model.BlockActive, Keywords: []string{"billing"}})).To(Succeed())
			Expect(driver.Blocks().Create(ctx, &model.BridgeBlock{BlockID: "block_prior", DayID: "2026-08-01", Status: model.BlockClosed, Keywords: []string{"travel"}})).To(Succeed())

			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_today", BlockID: "block_today", Content: "today's content"})).To(Succeed())
			Expect(driver.Memories().Store(ctx, &model.Memory{MemoryID: "mem_prior", BlockID: "block_prior", Content: "older content"})).To(Succeed())

			vec.Results = []vector.QueryResult{
				{Document: vector.Document{ID: "mem_today"}, Score: 0.8},
				{Document: vector.Document{ID: "mem_prior"}, Score: 0.7},
			}

			results, err := r.GardenedSearch(ctx, []float32{0.1}, "2026-08-06", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Memory.MemoryID).To(Equal("mem_prior"))
			Expect(results[0].Metadata).To(ContainElement("travel"))
		})
	})
})
