package llm_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bridgeware/hmlr/pkg/llm"
	"github.com/bridgeware/hmlr/pkg/llm/client"
)

func TestLLM(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Resilient Client Suite")
}

// flakyClient fails the first failUntil calls, then succeeds.
type flakyClient struct {
	failUntil int
	calls     int
}

func (f *flakyClient) Chat(_ context.Context, _ client.Request) (string, error) {
	f.calls++
	if f.calls <= f.failUntil {
		return "", fmt.Errorf("transient failure %d", f.calls)
	}
	return "ok", nil
}

func (f *flakyClient) Close() error { return nil }

type alwaysFailClient struct{ calls int }

func (a *alwaysFailClient) Chat(_ context.Context, _ client.Request) (string, error) {
	a.calls++
	return "", fmt.Errorf("permanent failure")
}

func (a *alwaysFailClient) Close() error { return nil }

var _ = Describe("ResilientClient", func() {
	It("retries a transient failure and succeeds within MaxAttempts", func() {
		inner := &flakyClient{failUntil: 1}
		rc := llm.NewResilientClient(inner, llm.Policy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		}, nil)

		resp, err := rc.Chat(context.Background(), client.Request{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp).To(Equal("ok"))
		Expect(inner.calls).To(Equal(2))
	})

	It("gives up after MaxAttempts and reports the final error", func() {
		inner := &alwaysFailClient{}
		rc := llm.NewResilientClient(inner, llm.Policy{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		}, nil)

		_, err := rc.Chat(context.Background(), client.Request{})
		Expect(err).To(HaveOccurred())
		Expect(inner.calls).To(Equal(2))
	})

	It("opens the circuit after FailureThreshold consecutive failures and short-circuits further calls", func() {
		inner := &alwaysFailClient{}
		rc := llm.NewResilientClient(inner, llm.Policy{
			MaxAttempts:      1,
			FailureThreshold: 2,
			RecoveryTimeout:  time.Hour,
		}, nil)

		_, err := rc.Chat(context.Background(), client.Request{})
		Expect(err).To(HaveOccurred())
		_, err = rc.Chat(context.Background(), client.Request{})
		Expect(err).To(HaveOccurred())
		Expect(rc.State()).To(Equal(llm.CircuitOpen))

		callsBeforeTrip := inner.calls
		_, err = rc.Chat(context.Background(), client.Request{})
		Expect(err).To(MatchError(llm.ErrCircuitOpen))
		Expect(inner.calls).To(Equal(callsBeforeTrip))
	})

	It("stops retrying once the caller's context is done", func() {
		inner := &alwaysFailClient{}
		rc := llm.NewResilientClient(inner, llm.Policy{
			MaxAttempts:    5,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := rc.Chat(ctx, client.Request{})
		Expect(err).To(HaveOccurred())
	})
})
