// Package jobqueue defines the background job outbox named in spec §9's
// Design Notes: Scribe/day/week synthesis scheduling must be enqueued in
// the same call as the triggering turn append, durably, rather than
// invoked as a best-effort side call after the fact. pkg/jobqueue/inproc
// and pkg/jobqueue/kafka are the two Scheduler adapters.
package jobqueue

import (
	"context"

	"github.com/bridgeware/hmlr/pkg/eventstream"
)

// Type identifies what a Job asks a consumer to do. Only
// TypeTurnCommitted is produced by the orchestrator today; day/week
// synthesis scheduling (spec §4.10's longer-horizon Scribe work) is a
// documented future producer of the same queue.
type Type string

const (
	// TypeTurnCommitted is enqueued once per SendMessage call,
	// immediately after the turn append commits.
	TypeTurnCommitted Type = "turn_committed"
)

// Job is one unit of outbox work. Event carries the turn-committed
// payload; UserID is carried alongside it since model.Turn itself has
// no user reference.
type Job struct {
	Type   Type
	UserID string
	Event  *eventstream.TurnPersistedEvent
}

// Handler processes one dequeued Job. It never returns an error:
// processing failures are the consumer's concern (logged and
// swallowed, matching the Scribe's fire-and-forget contract) — once a
// job is durably enqueued, losing it to a downstream failure is no
// longer the correctness problem Enqueue exists to prevent.
type Handler func(ctx context.Context, job Job)

// Scheduler is the outbox port: Enqueue must not return until job is
// durably queued for processing, so the orchestrator can call it in
// the same breath as the turn append and treat a failure as fatal to
// the request.
type Scheduler interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}
