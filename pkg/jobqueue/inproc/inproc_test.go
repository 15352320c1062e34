package inproc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/jobqueue"
	"github.com/bridgeware/hmlr/pkg/jobqueue/inproc"
)

func TestInproc(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Inproc Scheduler Suite")
}

var _ = Describe("Pool", func() {
	It("runs the handler for every enqueued job", func() {
		var mu sync.Mutex
		var seen []string

		pool := inproc.NewPool(func(_ context.Context, job jobqueue.Job) {
			mu.Lock()
			seen = append(seen, job.UserID)
			mu.Unlock()
		}, inproc.Config{NumWorkers: 2, QueueSize: 4})
		defer pool.Close()

		ctx := context.Background()
		Expect(pool.Enqueue(ctx, jobqueue.Job{Type: jobqueue.TypeTurnCommitted, UserID: "user_1"})).To(Succeed())
		Expect(pool.Enqueue(ctx, jobqueue.Job{Type: jobqueue.TypeTurnCommitted, UserID: "user_2"})).To(Succeed())

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string{}, seen...)
		}).Should(ConsistOf("user_1", "user_2"))
	})

	It("rejects further enqueues once closed", func() {
		pool := inproc.NewPool(func(context.Context, jobqueue.Job) {}, inproc.Config{})
		Expect(pool.Close()).To(Succeed())

		err := pool.Enqueue(context.Background(), jobqueue.Job{Type: jobqueue.TypeTurnCommitted})
		Expect(err).To(HaveOccurred())
	})

	It("drains buffered jobs before a worker exits on Close", func() {
		var mu sync.Mutex
		processed := 0

		pool := inproc.NewPool(func(context.Context, jobqueue.Job) {
			mu.Lock()
			processed++
			mu.Unlock()
		}, inproc.Config{NumWorkers: 1, QueueSize: 8})

		ctx := context.Background()
		for i := 0; i < 5; i++ {
			Expect(pool.Enqueue(ctx, jobqueue.Job{Type: jobqueue.TypeTurnCommitted})).To(Succeed())
		}
		Expect(pool.Close()).To(Succeed())

		mu.Lock()
		defer mu.Unlock()
		Expect(processed).To(Equal(5))
	})

	It("honors ctx cancellation when the queue is full", func() {
		pool := inproc.NewPool(func(context.Context, jobqueue.Job) {
			time.Sleep(50 * time.Millisecond)
		}, inproc.Config{NumWorkers: 1, QueueSize: 1})
		defer pool.Close()

		ctx := context.Background()
		Expect(pool.Enqueue(ctx, jobqueue.Job{})).To(Succeed())
		Expect(pool.Enqueue(ctx, jobqueue.Job{})).To(Succeed())

		cancelCtx, cancel := context.WithCancel(context.Background())
		cancel()
		err := pool.Enqueue(cancelCtx, jobqueue.Job{})
		Expect(err).To(HaveOccurred())
	})
})
