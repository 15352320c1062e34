package compressor_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/compressor"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
)

func TestCompressor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Compressor Suite")
}

var _ = Describe("CheckAndEvict", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		comp   *compressor.Compressor
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
		driver = inmemory.NewDriver()
		comp = compressor.New(driver, func() time.Time { return now })

		b := &model.BridgeBlock{BlockID: "b1", DayID: "2026-08-06", Status: model.BlockActive, CreatedAt: now, UpdatedAt: now}
		Expect(driver.Blocks().Create(ctx, b)).To(Succeed())
	})

	It("marks stale turns evicted rather than deleting the row", func() {
		old := &model.Turn{TurnID: "t1", BlockID: "b1", UserMessage: "hi", Timestamp: now.Add(-25 * time.Hour)}
		Expect(driver.Turns().Append(ctx, old)).To(Succeed())
		Expect(driver.Blocks().AppendTurn(ctx, "b1", now)).To(Succeed())

		Expect(comp.CheckAndEvict(ctx, "2026-08-06", now)).To(Succeed())

		got, err := driver.Turns().Get(ctx, "t1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Evicted).To(BeTrue())

		blk, err := driver.Blocks().Get(ctx, "b1")
		Expect(err).NotTo(HaveOccurred())
		Expect(blk.TurnCount).To(Equal(1))

		turns, err := driver.Turns().GetByBlock(ctx, "b1")
		Expect(err).NotTo(HaveOccurred())
		Expect(turns).To(HaveLen(1), "the row must survive eviction for turnCount to stay accurate")
	})

	It("does not re-process an already-evicted turn on a later call", func() {
		old := &model.Turn{TurnID: "t1", BlockID: "b1", UserMessage: "hi", Timestamp: now.Add(-25 * time.Hour)}
		Expect(driver.Turns().Append(ctx, old)).To(Succeed())
		Expect(driver.Blocks().AppendTurn(ctx, "b1", now)).To(Succeed())

		Expect(comp.CheckAndEvict(ctx, "2026-08-06", now)).To(Succeed())
		Expect(comp.CheckAndEvict(ctx, "2026-08-06", now.Add(time.Hour))).To(Succeed())

		affinity, err := driver.TopicAffinities().Get(ctx, "general")
		Expect(err).NotTo(HaveOccurred())
		Expect(affinity.EvictionCount).To(Equal(1), "the second call must skip the already-evicted turn")
	})

	It("evicts oldest-first once the 30-turn FIFO cap is exceeded", func() {
		for i := 0; i < 31; i++ {
			ts := now.Add(-time.Duration(31-i) * time.Minute)
			turn := &model.Turn{TurnID: model.NewID("turn", ts.UnixNano(), i), BlockID: "b1", UserMessage: "hi", Timestamp: ts}
			Expect(driver.Turns().Append(ctx, turn)).To(Succeed())
			Expect(driver.Blocks().AppendTurn(ctx, "b1", now)).To(Succeed())
		}

		Expect(comp.CheckAndEvict(ctx, "2026-08-06", now)).To(Succeed())

		turns, err := driver.Turns().GetByBlock(ctx, "b1")
		Expect(err).NotTo(HaveOccurred())

		active := 0
		for _, t := range turns {
			if !t.Evicted {
				active++
			}
		}
		Expect(active).To(BeNumerically("<=", compressor.MaxTier2Turns))

		blk, err := driver.Blocks().Get(ctx, "b1")
		Expect(err).NotTo(HaveOccurred())
		Expect(blk.TurnCount).To(Equal(31), "turnCount must still match every persisted turn row, evicted or not")
	})
})

var _ = Describe("RehydrateInBlocks", func() {
	It("surfaces an evicted turn whose keywords match the query", func() {
		ctx := context.Background()
		now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
		driver := inmemory.NewDriver()
		comp := compressor.New(driver, func() time.Time { return now })

		other := &model.BridgeBlock{BlockID: "b-old", DayID: "2026-08-06", Status: model.BlockPaused, Keywords: []string{"invoice"}, CreatedAt: now, UpdatedAt: now}
		Expect(driver.Blocks().Create(ctx, other)).To(Succeed())

		t := &model.Turn{TurnID: "t-old", BlockID: "b-old", UserMessage: "the invoice is overdue", Keywords: []string{"invoice"}, Timestamp: now.Add(-48 * time.Hour), Evicted: true}
		Expect(driver.Turns().Append(ctx, t)).To(Succeed())

		candidates, err := comp.RehydrateInBlocks(ctx, []string{"invoice"}, []string{"b-old"}, "b-current", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].Turn.TurnID).To(Equal("t-old"))
	})
})
