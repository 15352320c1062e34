// Package client defines the outbound Chat LLM contract (spec §6):
// chat(model, messages, max_tokens, temperature) -> string. Unlike the
// teacher's pkg/llm/provider (which parses *inbound* proxied wire
// payloads), this is an outbound caller the orchestrator, governor,
// and block manager invoke directly, grounded on real provider SDKs
// found elsewhere in the retrieval pack (github.com/anthropics/anthropic-sdk-go,
// github.com/sashabaranov/go-openai) rather than the teacher's
// hand-rolled wire-format detection, since the teacher never acts as
// an outbound LLM caller itself.
package client

import "context"

// Request is a single chat completion call.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Message is a minimal role/text pair; the Chat LLM contract only
// needs text in and text out.
type Message struct {
	Role string
	Text string
}

// Tier selects which configured model a caller wants: Default is the
// large response-generation model, Nano is the small routing/filtering/
// metadata model used by the Governor and block synthesis.
type Tier string

const (
	TierDefault Tier = "default"
	TierNano    Tier = "governor"
)

// Client is the outbound Chat LLM port.
type Client interface {
	Chat(ctx context.Context, req Request) (string, error)
	Close() error
}
