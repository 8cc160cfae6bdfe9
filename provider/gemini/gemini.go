package gemini_provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/lessonplanner/provider"
	"google.golang.org/genai"
)

type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float64
	MaxTokens      int
}

// Client implements provider.Provider with the Gemini API.
type Client struct {
	client *genai.Client
	cfg    Config
}

func NewGeminiClient(ctx context.Context, cfg Config) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "gemini-embedding-001"
	}
	return &Client{client: client, cfg: cfg}, nil
}

func (c *Client) Name() string { return string(provider.Gemini) }

// Complete folds system messages into the system instruction and sends the
// remaining turns as contents.
func (c *Client) Complete(ctx context.Context, messages []provider.Message, opts provider.Options) (string, error) {
	model := c.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}
	contents, cfg := c.request(messages, opts)
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", &provider.ServiceError{Provider: c.Name(), Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &provider.ServiceError{Provider: c.Name(), Err: provider.ErrEmptyCompletion}
	}
	return text, nil
}

func (c *Client) request(messages []provider.Message, opts provider.Options) ([]*genai.Content, *genai.GenerateContentConfig) {
	temperature := c.cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	cfg := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(temperature))}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if opts.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case provider.RoleSystem:
			system = append(system, m.Content)
		case provider.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, cfg
}

// Embed generates embeddings for multiple texts in one request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	result, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbeddingModel, contents, nil)
	if err != nil {
		return nil, &provider.ServiceError{Provider: c.Name(), Err: fmt.Errorf("GenAI batch embed failed: %w", err)}
	}
	out, err := embeddingValues(len(texts), result)
	if err != nil {
		return nil, &provider.ServiceError{Provider: c.Name(), Err: err}
	}
	return out, nil
}

func embeddingValues(want int, result *genai.EmbedContentResponse) ([][]float32, error) {
	if result == nil || len(result.Embeddings) != want {
		got := 0
		if result != nil {
			got = len(result.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, got)
	}
	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("embedding %d is empty", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
