package sqlite_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
	"github.com/bridgeware/hmlr/pkg/storage/sqlite"
)

func TestSqlite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Sqlite Suite")
}

var _ = Describe("Driver", func() {
	var (
		ctx context.Context
		drv *sqlite.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		drv, err = sqlite.NewDriver(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(drv.Close()).To(Succeed())
	})

	It("enforces at most one ACTIVE block per day across Create", func() {
		now := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
		first := &model.BridgeBlock{BlockID: "b1", DayID: "2026-08-06", Status: model.BlockActive, CreatedAt: now, UpdatedAt: now}
		Expect(drv.Blocks().Create(ctx, first)).To(Succeed())

		second := &model.BridgeBlock{BlockID: "b2", DayID: "2026-08-06", Status: model.BlockActive, CreatedAt: now.Add(time.Minute), UpdatedAt: now.Add(time.Minute)}
		Expect(drv.Blocks().Create(ctx, second)).To(Succeed())

		got, err := drv.Blocks().Get(ctx, "b1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(model.BlockPaused))

		active, err := drv.Blocks().GetActive(ctx, "2026-08-06")
		Expect(err).NotTo(HaveOccurred())
		Expect(active.BlockID).To(Equal("b2"))
	})

	It("round-trips turns with keywords and timestamp ordering", func() {
		t1 := &model.Turn{TurnID: "t1", BlockID: "b1", UserMessage: "hi", AIResponse: "hello", Keywords: []string{"greeting"}, Timestamp: time.Now()}
		t2 := &model.Turn{TurnID: "t2", BlockID: "b1", UserMessage: "bye", AIResponse: "later", Timestamp: time.Now().Add(time.Second)}
		Expect(drv.Turns().Append(ctx, t1)).To(Succeed())
		Expect(drv.Turns().Append(ctx, t2)).To(Succeed())

		turns, err := drv.Turns().GetByBlock(ctx, "b1")
		Expect(err).NotTo(HaveOccurred())
		Expect(turns).To(HaveLen(2))
		Expect(turns[0].TurnID).To(Equal("t1"))
		Expect(turns[1].Keywords).To(BeEmpty())
	})

	It("supersedes facts atomically on Store and soft-deletes via Remove", func() {
		now := time.Now()
		f1 := &model.Fact{FactID: "f1", Key: "project_alpha_deadline", Value: "Friday", BlockID: "b1", CreatedAt: now}
		_, err := drv.Facts().Store(ctx, f1)
		Expect(err).NotTo(HaveOccurred())

		f2 := &model.Fact{FactID: "f2", Key: "project_alpha_deadline", Value: "Monday", BlockID: "b2", CreatedAt: now.Add(time.Minute)}
		_, err = drv.Facts().Store(ctx, f2)
		Expect(err).NotTo(HaveOccurred())

		current, err := drv.Facts().Get(ctx, "project_alpha_deadline")
		Expect(err).NotTo(HaveOccurred())
		Expect(current.Value).To(Equal("Monday"))

		superseded, err := drv.Facts().SearchByKeyPrefix(ctx, "project_alpha")
		Expect(err).NotTo(HaveOccurred())
		Expect(superseded).To(HaveLen(1))

		successor, err := drv.Facts().Remove(ctx, "f2")
		Expect(err).NotTo(HaveOccurred())
		Expect(successor.Value).To(Equal(model.DeletedValue))

		gone, err := drv.Facts().Get(ctx, "project_alpha_deadline")
		Expect(err).NotTo(HaveOccurred())
		Expect(gone.Value).To(Equal(model.DeletedValue))
	})

	It("round-trips memory embeddings through the BLOB codec", func() {
		m := &model.Memory{MemoryID: "m1", TurnID: "t1", BlockID: "b1", Content: "hello world", Embedding: []float32{0.1, 0.2, 0.3}, CreatedAt: time.Now()}
		Expect(drv.Memories().Store(ctx, m)).To(Succeed())

		got, err := drv.Memories().Get(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Embedding).To(HaveLen(3))
		Expect(got.Embedding[1]).To(BeNumerically("~", 0.2, 1e-6))
	})

	It("returns ErrNotFound for a missing block", func() {
		_, err := drv.Blocks().Get(ctx, "missing")
		Expect(err).To(BeAssignableToTypeOf(storage.ErrNotFound{}))
	})

	It("accumulates topic affinity across repeated Upserts", func() {
		now := time.Now()
		Expect(drv.TopicAffinities().Upsert(ctx, "Billing", now, now.Add(10*time.Minute))).To(Succeed())
		Expect(drv.TopicAffinities().Upsert(ctx, "billing", now, now.Add(20*time.Minute))).To(Succeed())

		aff, err := drv.TopicAffinities().Get(ctx, "BILLING")
		Expect(err).NotTo(HaveOccurred())
		Expect(aff.EvictionCount).To(Equal(2))
		Expect(aff.AvgTimeInWindow).To(Equal(15 * time.Minute))
	})
})
