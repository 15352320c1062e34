// Package kafka implements jobqueue.Scheduler over a Kafka topic,
// grounded on pkg/eventstream/kafka's Writer usage for the producer
// side, adding a consumer-group Reader loop so enqueued jobs are
// actually processed by this or another instance rather than only
// published. This is the crash-safe outbox adapter: once Enqueue
// returns, the job survived the broker, independent of this process.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/jobqueue"
)

// Config configures NewScheduler.
type Config struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string
	// Topic is the topic jobs are produced to and consumed from.
	Topic string
	// GroupID is the consumer group id for the Reader. Defaults to
	// "hmlr-jobqueue" when empty, so multiple server instances share
	// the workload instead of each reprocessing every job.
	GroupID string
}

// Scheduler produces jobqueue.Jobs to a Kafka topic and runs a
// background consumer that calls handler for each job a consumer
// group member reads.
type Scheduler struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler opens a Kafka writer and starts the consumer loop.
// handler is called once per job read from the topic.
func NewScheduler(cfg Config, handler jobqueue.Handler, logger *zap.Logger) (*Scheduler, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("jobqueue/kafka: at least one broker address is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("jobqueue/kafka: topic is required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "hmlr-jobqueue"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		writer: writer,
		reader: reader,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go s.consume(ctx, handler)

	return s, nil
}

// Enqueue marshals job as JSON and produces it to the configured
// topic, keyed by turn id so retries/ordering stay per-turn.
func (s *Scheduler) Enqueue(ctx context.Context, job jobqueue.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("jobqueue/kafka: marshaling job: %w", err)
	}

	key := ""
	if job.Event != nil {
		key = job.Event.Turn.TurnID
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "job_type", Value: []byte(job.Type)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("jobqueue/kafka: enqueuing job: %w", err)
	}
	return nil
}

// consume runs the read loop until ctx is canceled, calling handler
// for every job successfully decoded off the topic. Decode failures
// are logged and skipped rather than retried, since a malformed
// message will never decode on a later attempt either.
func (s *Scheduler) consume(ctx context.Context, handler jobqueue.Handler) {
	defer close(s.done)

	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("jobqueue/kafka read failed", zap.Error(err))
			continue
		}

		var job jobqueue.Job
		if err := json.Unmarshal(msg.Value, &job); err != nil {
			s.logger.Warn("jobqueue/kafka job decode failed", zap.Error(err))
			continue
		}

		handler(ctx, job)
	}
}

// Close stops the consumer loop and closes the writer and reader.
func (s *Scheduler) Close() error {
	s.cancel()
	<-s.done
	writeErr := s.writer.Close()
	readErr := s.reader.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}
