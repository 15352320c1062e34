// Package ollama implements client.Client over Ollama's REST chat
// endpoint, adapted near-verbatim from the teacher's
// pkg/embeddings/ollama.Embedder (default base URL, bare net/http
// client, no SDK — Ollama has no official Go client in the retrieval
// pack, so this keeps the teacher's own hand-rolled-HTTP idiom rather
// than reaching for a third-party wrapper).
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bridgeware/hmlr/pkg/llm/client"
)

const DefaultBaseURL = "http://localhost:11434"

// Client implements client.Client over Ollama's /api/chat endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config configures the Ollama client.
type Config struct {
	BaseURL string
}

// New constructs a Client, applying DefaultBaseURL if unset.
func New(c Config) *Client {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string               `json:"model"`
	Messages []ollamaChatMessage  `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  ollamaChatOptionsDoc `json:"options,omitempty"`
}

type ollamaChatOptionsDoc struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
}

func (c *Client) Chat(ctx context.Context, req client.Request) (string, error) {
	messages := make([]ollamaChatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, ollamaChatMessage{Role: m.Role, Content: m.Text})
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Options: ollamaChatOptionsDoc{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling ollama chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating ollama chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending ollama chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama chat returned status %d", resp.StatusCode)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding ollama chat response: %w", err)
	}

	return out.Message.Content, nil
}

func (c *Client) Close() error { return nil }
