package openai_provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/provider"
	"github.com/sashabaranov/go-openai"
)

// Config for the OpenAI-compatible backend. BaseURL allows pointing at any
// API-compatible gateway.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
}

// Client implements provider.Provider on top of the chat completions and
// embeddings endpoints.
type Client struct {
	api *openai.Client
	cfg Config
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	return &Client{api: openai.NewClientWithConfig(oc), cfg: cfg}
}

func (c *Client) Name() string { return string(provider.OpenAI) }

// Complete sends the rendered messages as one chat completion.
func (c *Client) Complete(ctx context.Context, messages []provider.Message, opts provider.Options) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    toChatMessages(messages),
		Temperature: requestTemperature(c.cfg.Temperature, opts.Temperature),
		MaxTokens:   c.cfg.MaxTokens,
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &provider.ServiceError{Provider: c.Name(), Err: describe(err)}
	}
	if len(resp.Choices) == 0 {
		return "", &provider.ServiceError{Provider: c.Name(), Err: provider.ErrEmptyCompletion}
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed generates embeddings for the given texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
	})
	if err != nil {
		return nil, &provider.ServiceError{Provider: c.Name(), Err: describe(err)}
	}
	if len(resp.Data) != len(texts) {
		return nil, &provider.ServiceError{Provider: c.Name(), Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))}
	}
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

func toChatMessages(messages []provider.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case provider.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case provider.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// describe keeps the HTTP status of API errors in the message.
func describe(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, err)
	}
	return err
}

// requestTemperature picks the per-request temperature over the client
// default. The request field is omitempty, so 0 is sent as the smallest
// positive float32 to keep it from falling back to the API default.
func requestTemperature(def float64, override *float64) float32 {
	t := def
	if override != nil {
		t = *override
	}
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}
