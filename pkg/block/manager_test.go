package block_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/block"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
)

func TestBlock(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Block Suite")
}

func idSeq() func(prefix string) string {
	var n atomic.Int64
	return func(prefix string) string {
		return fmt.Sprintf("%s_%d", prefix, n.Add(1))
	}
}

var _ = Describe("Manager", func() {
	var (
		ctx context.Context
		mgr *block.Manager
		now time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
		driver := inmemory.NewDriver()
		mgr = block.New(driver.Blocks(), idSeq(), func() time.Time { return now })
	})

	Describe("Create", func() {
		It("creates an ACTIVE block with a fresh id", func() {
			b, err := mgr.Create(ctx, block.CreateInput{DayID: "2026-08-06", TopicLabel: "billing", Keywords: []string{"invoice"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(b.BlockID).NotTo(BeEmpty())
			Expect(b.Status).To(Equal(model.BlockActive))
			Expect(b.TopicLabel).To(Equal("billing"))
		})
	})

	Describe("Get and GetActive", func() {
		It("round-trips a created block", func() {
			created, err := mgr.Create(ctx, block.CreateInput{DayID: "2026-08-06", TopicLabel: "billing"})
			Expect(err).NotTo(HaveOccurred())

			fetched, err := mgr.Get(ctx, created.BlockID)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched.BlockID).To(Equal(created.BlockID))

			active, err := mgr.GetActive(ctx, "2026-08-06")
			Expect(err).NotTo(HaveOccurred())
			Expect(active).NotTo(BeNil())
			Expect(active.BlockID).To(Equal(created.BlockID))
		})

		It("returns nil, not an error, when no block is active for the day", func() {
			active, err := mgr.GetActive(ctx, "2026-08-06")
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeNil())
		})
	})

	Describe("UpdateMetadata", func() {
		It("merges the topic label without clearing other fields", func() {
			created, err := mgr.Create(ctx, block.CreateInput{DayID: "2026-08-06", TopicLabel: "billing", Keywords: []string{"invoice"}})
			Expect(err).NotTo(HaveOccurred())

			newLabel := "billing disputes"
			Expect(mgr.UpdateMetadata(ctx, created.BlockID, block.MetadataUpdate{TopicLabel: &newLabel})).To(Succeed())

			fetched, err := mgr.Get(ctx, created.BlockID)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched.TopicLabel).To(Equal("billing disputes"))
			Expect(fetched.Keywords).To(ContainElement("invoice"))
		})
	})

	Describe("PauseWithSummary", func() {
		It("synthesizes a heuristic summary from the turns when none is given", func() {
			created, err := mgr.Create(ctx, block.CreateInput{DayID: "2026-08-06", TopicLabel: "billing"})
			Expect(err).NotTo(HaveOccurred())

			turns := []*model.Turn{
				{UserMessage: "What is my invoice total?"},
				{UserMessage: "Can you email me a copy?"},
			}
			Expect(mgr.PauseWithSummary(ctx, created.BlockID, "", turns)).To(Succeed())

			fetched, err := mgr.Get(ctx, created.BlockID)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched.Status).To(Equal(model.BlockPaused))
			Expect(fetched.Summary).To(ContainSubstring("2 exchanges"))
		})

		It("keeps an explicitly supplied summary instead of synthesizing one", func() {
			created, err := mgr.Create(ctx, block.CreateInput{DayID: "2026-08-06", TopicLabel: "billing"})
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.PauseWithSummary(ctx, created.BlockID, "closed out the invoice dispute", nil)).To(Succeed())

			fetched, err := mgr.Get(ctx, created.BlockID)
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched.Summary).To(Equal("closed out the invoice dispute"))
		})
	})

	Describe("GetMetadataByDay", func() {
		It("marks the most recently updated block as IsLastActive", func() {
			_, err := mgr.Create(ctx, block.CreateInput{DayID: "2026-08-06", TopicLabel: "first"})
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(time.Minute)
			second, err := mgr.Create(ctx, block.CreateInput{DayID: "2026-08-06", TopicLabel: "second"})
			Expect(err).NotTo(HaveOccurred())

			metas, err := mgr.GetMetadataByDay(ctx, "2026-08-06")
			Expect(err).NotTo(HaveOccurred())
			Expect(metas).To(HaveLen(2))

			var lastActiveID string
			for _, meta := range metas {
				if meta.IsLastActive {
					lastActiveID = meta.BlockID
				}
			}
			Expect(lastActiveID).To(Equal(second.BlockID))
		})
	})
})
