package lineage_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/lineage"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
)

func TestLineage(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Lineage Suite")
}

var _ = Describe("Tracker", func() {
	var (
		ctx     context.Context
		tracker *lineage.Tracker
		now     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
		driver := inmemory.NewDriver()
		tracker = lineage.NewTracker(driver.Lineage())
	})

	Describe("RecordLineage", func() {
		It("accepts repeated parent ids that have no lineage rows of their own", func() {
			Expect(tracker.RecordLineage(ctx, "memory_1", model.ItemMemory, []string{"turn_1", "turn_1", "turn_1"}, "orchestrator", now)).To(Succeed())

			ancestors, err := tracker.GetAncestors(ctx, "memory_1", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(ancestors).To(BeEmpty()) // turn_1 has no lineage row of its own
		})
	})

	Describe("GetAncestors", func() {
		It("walks the DerivedFrom chain breadth-first", func() {
			Expect(tracker.RecordLineage(ctx, "fact_1", model.ItemFact, []string{"chunk_1"}, "governor", now)).To(Succeed())
			Expect(tracker.RecordLineage(ctx, "chunk_1", model.ItemChunk, []string{"turn_1"}, "chunker", now)).To(Succeed())

			ancestors, err := tracker.GetAncestors(ctx, "fact_1", 0)
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, 0, len(ancestors))
			for _, a := range ancestors {
				ids = append(ids, a.ItemID)
			}
			Expect(ids).To(ContainElement("chunk_1"))
		})

		It("errors when the starting id has no lineage row", func() {
			_, err := tracker.GetAncestors(ctx, "missing", 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GetDescendants", func() {
		It("finds every item that derives from id", func() {
			Expect(tracker.RecordLineage(ctx, "memory_1", model.ItemMemory, []string{"turn_1"}, "orchestrator", now)).To(Succeed())
			Expect(tracker.RecordLineage(ctx, "fact_1", model.ItemFact, []string{"turn_1"}, "governor", now)).To(Succeed())

			descendants, err := tracker.GetDescendants(ctx, "turn_1", 0)
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, 0, len(descendants))
			for _, d := range descendants {
				ids = append(ids, d.ItemID)
			}
			Expect(ids).To(ConsistOf("memory_1", "fact_1"))
		})
	})

	Describe("ValidateIntegrity", func() {
		It("flags a DerivedFrom id that resolves to no lineage row as broken", func() {
			Expect(tracker.RecordLineage(ctx, "memory_1", model.ItemMemory, []string{"ghost_parent"}, "orchestrator", now)).To(Succeed())

			report, err := tracker.ValidateIntegrity(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.BrokenReferences).To(ContainElement("ghost_parent"))
		})

		It("flags an item with no parents and no children as orphaned", func() {
			Expect(tracker.RecordLineage(ctx, "memory_1", model.ItemMemory, nil, "orchestrator", now)).To(Succeed())

			report, err := tracker.ValidateIntegrity(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.OrphanedItems).To(ContainElement("memory_1"))
		})
	})
})
