// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to
// the client.Client port, grounded on the message-construction pattern
// in TheApeMachine-a2a-go's pkg/provider/anthropic.go (role-to-message
// mapping, non-streaming Messages.New call).
package anthropic

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bridgeware/hmlr/pkg/llm/client"
)

// Client implements client.Client over the official Anthropic SDK.
type Client struct {
	api *anthropicsdk.Client
}

// New constructs a Client. apiKey may be empty to fall back to the
// SDK's ANTHROPIC_API_KEY environment lookup.
func New(apiKey string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	api := anthropicsdk.NewClient(opts...)
	return &Client{api: &api}
}

func (c *Client) Chat(ctx context.Context, req client.Request) (string, error) {
	messages := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Text)))
		default:
			messages = append(messages, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Text)))
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(req.Model),
		Messages:    messages,
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropicsdk.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic chat: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			text += tb.Text
		}
	}

	return text, nil
}

func (c *Client) Close() error { return nil }
