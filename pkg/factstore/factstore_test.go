package factstore_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/factstore"
	"github.com/bridgeware/hmlr/pkg/model"
	"github.com/bridgeware/hmlr/pkg/storage/inmemory"
)

func TestFactstore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Factstore Suite")
}

func idSeq() func(prefix string) string {
	var n atomic.Int64
	return func(prefix string) string {
		return fmt.Sprintf("%s_%d", prefix, n.Add(1))
	}
}

var _ = Describe("Store", func() {
	var (
		ctx context.Context
		s   *factstore.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver := inmemory.NewDriver()
		s = factstore.New(driver.Facts(), idSeq(), func() time.Time { return time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC) })
	})

	Describe("StoreFact", func() {
		It("defaults confidence to 1.0 when unset", func() {
			fact, err := s.StoreFact(ctx, factstore.StoreInput{Key: "favorite_color", Value: "blue", Category: model.CategoryPreference})
			Expect(err).NotTo(HaveOccurred())
			Expect(fact.Confidence).To(Equal(1.0))
		})

		It("supersedes the prior row for the same key", func() {
			first, err := s.StoreFact(ctx, factstore.StoreInput{Key: "favorite_color", Value: "blue"})
			Expect(err).NotTo(HaveOccurred())

			second, err := s.StoreFact(ctx, factstore.StoreInput{Key: "favorite_color", Value: "green"})
			Expect(err).NotTo(HaveOccurred())

			fetched, err := s.Get(ctx, "favorite_color")
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched.FactID).To(Equal(second.FactID))
			Expect(fetched.Value).To(Equal("green"))
			Expect(first.FactID).NotTo(Equal(second.FactID))
		})
	})

	Describe("StoreBatch", func() {
		It("stores every input and preserves order", func() {
			facts, err := s.StoreBatch(ctx, []factstore.StoreInput{
				{Key: "a", Value: "1"},
				{Key: "b", Value: "2"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(facts).To(HaveLen(2))
			Expect(facts[0].Key).To(Equal("a"))
			Expect(facts[1].Key).To(Equal("b"))
		})
	})

	Describe("Remove", func() {
		It("soft-deletes a fact by superseding it with a [DELETED] row", func() {
			fact, err := s.StoreFact(ctx, factstore.StoreInput{Key: "favorite_color", Value: "blue"})
			Expect(err).NotTo(HaveOccurred())

			successor, err := s.Remove(ctx, fact.FactID)
			Expect(err).NotTo(HaveOccurred())
			Expect(successor.Value).To(Equal(model.DeletedValue))

			fetched, err := s.Get(ctx, "favorite_color")
			Expect(err).NotTo(HaveOccurred())
			Expect(fetched).NotTo(BeNil())
			Expect(fetched.Value).To(Equal(model.DeletedValue))
		})
	})

	Describe("GetByCategory", func() {
		It("returns only non-superseded facts in the category", func() {
			_, err := s.StoreFact(ctx, factstore.StoreInput{Key: "color", Value: "blue", Category: model.CategoryPreference})
			Expect(err).NotTo(HaveOccurred())
			_, err = s.StoreFact(ctx, factstore.StoreInput{Key: "email", Value: "a@b.com", Category: model.CategoryContact})
			Expect(err).NotTo(HaveOccurred())

			prefs, err := s.GetByCategory(ctx, model.CategoryPreference)
			Expect(err).NotTo(HaveOccurred())
			Expect(prefs).To(HaveLen(1))
			Expect(prefs[0].Key).To(Equal("color"))
		})
	})
})
