// Package scribe provides the Orchestrator's ScribeScheduler
// collaborator. Spec §14 describes the user-profile Scribe only by
// its I/O contract (it consumes a turn and produces a narrative
// profile update); this package supplies a minimal in-process runner
// of that contract, fire-and-forget, bounded by a worker pool.
//
// Grounded on the teacher's FacetWorker (pkg/deck/facets_worker.go):
// same bounded-concurrency semaphore + WaitGroup shape, generalized
// from "process all pending sessions once" to "enqueue one turn at a
// time, forever".
package scribe

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/llm/client"
	"github.com/bridgeware/hmlr/pkg/storage"
)

// maxConcurrency bounds simultaneous Scribe runs against the Chat LLM,
// mirroring the teacher's rate-limit-avoidance choice for FacetWorker.
const maxConcurrency = 2

// InProcessScheduler runs Scribe turns as background goroutines within
// the serving process. It satisfies orchestrator.ScribeScheduler.
type InProcessScheduler struct {
	llm    client.Client
	model  string
	driver storage.Driver
	logger *zap.Logger

	sem chan struct{}
}

// NewInProcessScheduler builds a Scribe scheduler bounded by
// maxConcurrency simultaneous runs.
func NewInProcessScheduler(llm client.Client, model string, driver storage.Driver, logger *zap.Logger) *InProcessScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InProcessScheduler{
		llm:    llm,
		model:  model,
		driver: driver,
		logger: logger,
		sem:    make(chan struct{}, maxConcurrency),
	}
}

// ScheduleTurn enqueues one turn for narrative profile update. It never
// blocks the caller and never returns an error for failures occurring
// inside the background run — those are logged and swallowed, per the
// Scribe's fire-and-forget contract.
func (s *InProcessScheduler) ScheduleTurn(ctx context.Context, userID, turnID, blockID string) error {
	go func() {
		s.sem <- struct{}{}
		defer func() { <-s.sem }()

		runCtx := context.WithoutCancel(ctx)
		if err := s.run(runCtx, userID, turnID, blockID); err != nil {
			s.logger.Warn("scribe run failed",
				zap.String("user_id", userID),
				zap.String("turn_id", turnID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// run loads the turn just persisted and asks the Chat LLM to fold it
// into a short narrative profile update. Spec §6 leaves UserProfile
// storage out of the core's scope, so the result is logged rather
// than persisted until a profile store exists.
func (s *InProcessScheduler) run(ctx context.Context, userID, turnID, blockID string) error {
	turn, err := s.driver.Turns().Get(ctx, turnID)
	if err != nil {
		return fmt.Errorf("scribe: loading turn %s: %w", turnID, err)
	}

	resp, err := s.llm.Chat(ctx, client.Request{
		Model: s.model,
		System: "You maintain a short running narrative profile of a user " +
			"based on their conversation turns. Given one new turn, emit a " +
			"single updated paragraph capturing durable facts, preferences, " +
			"and open threads. Do not include anything ephemeral.",
		Messages: []client.Message{
			{Role: "user", Text: fmt.Sprintf("User message: %s\nAssistant response: %s", turn.UserMessage, turn.AIResponse)},
		},
		MaxTokens:   300,
		Temperature: 0.3,
	})
	if err != nil {
		return fmt.Errorf("scribe: chat call: %w", err)
	}

	s.logger.Info("scribe profile update",
		zap.String("user_id", userID),
		zap.String("block_id", blockID),
		zap.String("turn_id", turnID),
		zap.String("update", resp),
	)
	return nil
}
