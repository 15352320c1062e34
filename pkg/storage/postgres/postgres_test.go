package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage"
	"github.com/bridgeware/hmlr/pkg/storage/postgres"
)

func TestPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Postgres Suite")
}

// connString returns the PostgreSQL connection string from the
// environment or skips the test. The suite runs only when a live
// database is reachable; no DSN means no coverage, not a failure.
func connString() string {
	dsn := os.Getenv("HMLR_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("HMLR_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	var (
		ctx context.Context
		drv *postgres.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		dsn := connString()

		var err error
		drv, err = postgres.NewDriver(ctx, postgres.Config{ConnString: dsn, Dimensions: 8})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if drv != nil {
			Expect(drv.Close()).To(Succeed())
		}
	})

	It("enforces at most one ACTIVE block per day across Create", func() {
		now := time.Now()
		first := &model.BridgeBlock{BlockID: "pg-b1", DayID: "2026-08-06", Status: model.BlockActive, CreatedAt: now, UpdatedAt: now}
		Expect(drv.Blocks().Create(ctx, first)).To(Succeed())

		second := &model.BridgeBlock{BlockID: "pg-b2", DayID: "2026-08-06", Status: model.BlockActive, CreatedAt: now.Add(time.Minute), UpdatedAt: now.Add(time.Minute)}
		Expect(drv.Blocks().Create(ctx, second)).To(Succeed())

		got, err := drv.Blocks().Get(ctx, "pg-b1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(model.BlockPaused))

		active, err := drv.Blocks().GetActive(ctx, "2026-08-06")
		Expect(err).NotTo(HaveOccurred())
		Expect(active.BlockID).To(Equal("pg-b2"))
	})

	It("supersedes facts atomically on Store and soft-deletes via Remove", func() {
		now := time.Now()
		f1 := &model.Fact{FactID: "pg-f1", Key: "pg_project_deadline", Value: "Friday", BlockID: "pg-b1", CreatedAt: now}
		_, err := drv.Facts().Store(ctx, f1)
		Expect(err).NotTo(HaveOccurred())

		f2 := &model.Fact{FactID: "pg-f2", Key: "pg_project_deadline", Value: "Monday", BlockID: "pg-b2", CreatedAt: now.Add(time.Minute)}
		_, err = drv.Facts().Store(ctx, f2)
		Expect(err).NotTo(HaveOccurred())

		current, err := drv.Facts().Get(ctx, "pg_project_deadline")
		Expect(err).NotTo(HaveOccurred())
		Expect(current.Value).To(Equal("Monday"))

		successor, err := drv.Facts().Remove(ctx, "pg-f2")
		Expect(err).NotTo(HaveOccurred())
		Expect(successor.Value).To(Equal(model.DeletedValue))
	})

	It("round-trips memory embeddings through pgvector", func() {
		m := &model.Memory{MemoryID: "pg-m1", TurnID: "pg-t1", BlockID: "pg-b1", Content: "hello world",
			Embedding: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}, CreatedAt: time.Now()}
		Expect(drv.Memories().Store(ctx, m)).To(Succeed())

		got, err := drv.Memories().Get(ctx, "pg-m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Embedding).To(HaveLen(8))
		Expect(got.Embedding[1]).To(BeNumerically("~", 0.2, 1e-6))
	})

	It("returns ErrNotFound for a missing block", func() {
		_, err := drv.Blocks().Get(ctx, "pg-missing")
		Expect(err).To(BeAssignableToTypeOf(storage.ErrNotFound{}))
	})

	It("finds lineage edges by parent via array containment", func() {
		edge := &model.LineageEdge{ItemID: "pg-summary-1", ItemType: model.ItemSummary, DerivedFrom: []string{"pg-t1", "pg-t2"}, CreatedAt: time.Now()}
		Expect(drv.Lineage().Record(ctx, edge)).To(Succeed())

		children, err := drv.Lineage().GetByParent(ctx, "pg-t2")
		Expect(err).NotTo(HaveOccurred())
		Expect(children).To(HaveLen(1))
		Expect(children[0].ItemID).To(Equal("pg-summary-1"))
	})
})
