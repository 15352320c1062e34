// Package llm wraps a client.Client with the retry, timeout, and
// circuit-breaking behavior spec §9's Design Note assigns to this
// layer ("Multiple LLM roles sharing one client... Retries, timeouts,
// and circuit breaking live here, not duplicated per-role"), so
// anthropic/openai/ollama stay thin SDK adapters and every caller
// (Orchestrator, Governor, block synthesis, Scribe) gets the same
// resilience regardless of which role's model they called with.
//
// The circuit breaker's closed/open/half-open state machine is
// adapted from RedClaus-cortex's internal/brain.CircuitBreaker; the
// retry loop is built on github.com/cenkalti/backoff/v4, already
// present in the retrieval pack's dependency graph.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/bridgeware/hmlr/pkg/llm/client"
)

// CircuitState is the breaker's current disposition toward new calls.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// circuitBreaker trips after FailureThreshold consecutive failures and
// rejects calls until RecoveryTimeout has elapsed, then lets calls
// through in the half-open state: successThreshold consecutive
// successes close it again, and any failure reopens it.
type circuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration

	state           CircuitState
	failures        int
	consecutiveSucc int
	lastStateChange time.Time
}

func newCircuitBreaker(failureThreshold, successThreshold int, recoveryTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            CircuitClosed,
		lastStateChange:  time.Now(),
	}
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(cb.lastStateChange) >= cb.recoveryTimeout {
			cb.transitionTo(CircuitHalfOpen)
			return true
		}
		return false
	case CircuitHalfOpen:
		return true
	default:
		return false
	}
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.consecutiveSucc++
		if cb.consecutiveSucc >= cb.successThreshold {
			cb.transitionTo(CircuitClosed)
		}
	}
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.consecutiveSucc = 0

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.failureThreshold {
			cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen)
	}
}

func (cb *circuitBreaker) transitionTo(next CircuitState) {
	if cb.state == next {
		return
	}
	cb.state = next
	cb.lastStateChange = time.Now()
	if next == CircuitClosed {
		cb.failures = 0
		cb.consecutiveSucc = 0
	}
}

func (cb *circuitBreaker) currentState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ErrCircuitOpen is returned when a call is rejected without reaching
// the wrapped client because the breaker has tripped.
var ErrCircuitOpen = errors.New("llm: circuit breaker open")

// Policy configures ResilientClient.
type Policy struct {
	// MaxAttempts bounds retries, including the first attempt.
	// Defaults to 3.
	MaxAttempts int
	// InitialBackoff is the first retry delay; later delays grow
	// exponentially per backoff.ExponentialBackOff. Defaults to 250ms.
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential growth. Defaults to 5s.
	MaxBackoff time.Duration
	// PerCallTimeout bounds a single attempt's context. Zero disables
	// the timeout and defers entirely to the caller's context.
	PerCallTimeout time.Duration
	// FailureThreshold is consecutive failures before the circuit
	// opens. Defaults to 5.
	FailureThreshold int
	// SuccessThreshold is consecutive half-open successes before the
	// circuit closes again. Defaults to 2.
	SuccessThreshold int
	// RecoveryTimeout is how long the circuit stays open before
	// allowing a probe call. Defaults to 30s.
	RecoveryTimeout time.Duration
}

// DefaultPolicy returns the Policy ResilientClient uses when none is
// given.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		InitialBackoff:   250 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		PerCallTimeout:   30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = def.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.FailureThreshold <= 0 {
		p.FailureThreshold = def.FailureThreshold
	}
	if p.SuccessThreshold <= 0 {
		p.SuccessThreshold = def.SuccessThreshold
	}
	if p.RecoveryTimeout <= 0 {
		p.RecoveryTimeout = def.RecoveryTimeout
	}
	return p
}

// ResilientClient wraps a client.Client with retries, a per-call
// timeout, and a circuit breaker, so every role (default, nano) that
// shares the underlying SDK client gets the same failure handling
// without each provider adapter reimplementing it.
type ResilientClient struct {
	inner  client.Client
	policy Policy
	breaker *circuitBreaker
	logger *zap.Logger
}

// NewResilientClient wraps inner with policy. Zero-valued retry and
// breaker fields take DefaultPolicy()'s values; a zero PerCallTimeout
// stays zero, so no per-call timeout is applied.
func NewResilientClient(inner client.Client, policy Policy, logger *zap.Logger) *ResilientClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy = policy.withDefaults()
	return &ResilientClient{
		inner:  inner,
		policy: policy,
		breaker: newCircuitBreaker(policy.FailureThreshold, policy.SuccessThreshold, policy.RecoveryTimeout),
		logger: logger,
	}
}

// Chat retries req against the wrapped client with exponential
// backoff, short-circuiting immediately when the breaker is open.
func (r *ResilientClient) Chat(ctx context.Context, req client.Request) (string, error) {
	if !r.breaker.allow() {
		return "", ErrCircuitOpen
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.policy.InitialBackoff
	bo.MaxInterval = r.policy.MaxBackoff
	limited := backoff.WithMaxRetries(bo, uint64(r.policy.MaxAttempts-1))

	var response string
	attempt := 0
	op := func() error {
		attempt++
		callCtx := ctx
		var cancel context.CancelFunc
		if r.policy.PerCallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.policy.PerCallTimeout)
			defer cancel()
		}

		text, err := r.inner.Chat(callCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				// Caller-level cancellation/deadline: stop retrying.
				return backoff.Permanent(err)
			}
			r.logger.Warn("chat llm call failed, retrying", zap.Error(err), zap.Int("attempt", attempt))
			return err
		}
		response = text
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(limited, ctx))
	if err != nil {
		r.breaker.recordFailure()
		return "", fmt.Errorf("llm chat after %d attempt(s): %w", attempt, err)
	}

	r.breaker.recordSuccess()
	return response, nil
}

// Close closes the wrapped client.
func (r *ResilientClient) Close() error { return r.inner.Close() }

// State reports the breaker's current disposition, exposed for
// health/readiness reporting.
func (r *ResilientClient) State() CircuitState { return r.breaker.currentState() }
