// Package inproc implements jobqueue.Scheduler as an in-process
// buffered-channel worker pool, grounded on the teacher's
// proxy/worker/pool.go: the same Job/Pool/Enqueue/Close shape,
// generalized from LLM-turn storage jobs to the outbox's
// turn-committed jobs.
//
// Unlike the teacher's Pool.Enqueue (which drops a job and logs when
// the queue is full), Enqueue here blocks until the job is queued or
// ctx is done, since a dropped job is exactly the loss the outbox
// pattern exists to prevent.
package inproc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/jobqueue"
)

const (
	defaultNumWorkers uint = 3
	defaultQueueSize  uint = 256
)

// Config configures NewPool.
type Config struct {
	// NumWorkers is the number of background workers draining the
	// queue. Defaults to 3.
	NumWorkers uint
	// QueueSize is the capacity of the buffered job channel. Defaults
	// to 256.
	QueueSize uint
	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool processes jobqueue.Jobs asynchronously via a fixed worker pool.
type Pool struct {
	queue   chan jobqueue.Job
	handler jobqueue.Handler
	wg      sync.WaitGroup
	logger  *zap.Logger
	closed  chan struct{}
}

// NewPool creates a Pool and starts its worker goroutines. handler is
// called once per dequeued job; it must not block indefinitely, since
// a stuck handler starves the rest of the pool's workers.
func NewPool(handler jobqueue.Handler, cfg Config) *Pool {
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = defaultNumWorkers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	p := &Pool{
		queue:   make(chan jobqueue.Job, cfg.QueueSize),
		handler: handler,
		logger:  cfg.Logger,
		closed:  make(chan struct{}),
	}

	p.wg.Add(int(cfg.NumWorkers))
	for i := uint(0); i < cfg.NumWorkers; i++ {
		go p.worker(i)
	}

	return p
}

// Enqueue blocks until job is accepted onto the queue or ctx is done,
// or the pool has been closed. The queue channel itself is never
// closed (closing it concurrently with a send would race), so
// readiness is always decided by selecting against p.closed instead.
func (p *Pool) Enqueue(ctx context.Context, job jobqueue.Job) error {
	select {
	case p.queue <- job:
		p.logger.Debug("job queued", zap.String("type", string(job.Type)))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobqueue/inproc: enqueue canceled: %w", ctx.Err())
	case <-p.closed:
		return fmt.Errorf("jobqueue/inproc: pool closed")
	}
}

// Close signals workers to stop and waits for in-flight jobs to
// drain. Safe to call once; a second call panics, matching close()'s
// own semantics.
func (p *Pool) Close() error {
	close(p.closed)
	p.wg.Wait()
	return nil
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("jobqueue worker started", zap.Uint("worker_id", id))

	for {
		select {
		case job := <-p.queue:
			p.handler(context.Background(), job)
		case <-p.closed:
			// Drain whatever is already buffered before exiting.
			for {
				select {
				case job := <-p.queue:
					p.handler(context.Background(), job)
				default:
					p.logger.Debug("jobqueue worker stopped", zap.Uint("worker_id", id))
					return
				}
			}
		}
	}
}
