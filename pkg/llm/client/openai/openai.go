// Package openai adapts github.com/sashabaranov/go-openai to the
// client.Client port.
package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/bridgeware/hmlr/pkg/llm/client"
)

// Client implements client.Client over sashabaranov/go-openai.
type Client struct {
	api *openaisdk.Client
}

// New constructs a Client for the given API key.
func New(apiKey string) *Client {
	return &Client{api: openaisdk.NewClient(apiKey)}
}

func (c *Client) Chat(ctx context.Context, req client.Request) (string, error) {
	messages := make([]openaisdk.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openaisdk.ChatCompletionMessage{
			Role:    openaisdk.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openaisdk.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openaisdk.ChatMessageRoleAssistant
		}
		messages = append(messages, openaisdk.ChatCompletionMessage{Role: role, Content: m.Text})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openaisdk.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) Close() error { return nil }
