package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/lessonplanner/internal/helpers"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Client names a supported LLM backend.
type Client string

const (
	OpenAI Client = "openai"
	Gemini Client = "gemini"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a rendered prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tune a single completion request. Zero values fall back to the
// backend defaults; a nil Temperature does too, so 0 can be requested.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	// JSON asks the backend for a JSON-only response where supported.
	JSON bool
}

// Provider is the interface that all LLM implementations must satisfy.
type Provider interface {
	// Complete issues a single completion request and returns the raw text.
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

var (
	ErrUnsupportedProvider = errors.New("unsupported LLM provider")
	ErrEmptyCompletion     = errors.New("empty completion")
	ErrNoJSON              = errors.New("no JSON object in completion")
)

// ServiceError reports a transport or backend failure.
type ServiceError struct {
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: llm service error: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ParseError reports a completion that arrived but could not be turned into the
// declared output shape.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("structured output parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CompleteStructured runs a JSON-mode completion and validates the extracted
// object against schema. Backend failures are returned as *ServiceError and
// unusable output as *ParseError.
func CompleteStructured(ctx context.Context, p Provider, messages []Message, opts Options, schema *jsonschema.Schema) (map[string]any, error) {
	opts.JSON = true
	raw, err := p.Complete(ctx, messages, opts)
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &ServiceError{Provider: p.Name(), Err: err}
	}
	obj, ok := helpers.ExtractJSONObject(raw)
	if !ok {
		return nil, &ParseError{Raw: raw, Err: ErrNoJSON}
	}
	if schema != nil {
		if err := schema.Validate(obj); err != nil {
			return nil, &ParseError{Raw: raw, Err: fmt.Errorf("schema validation: %w", err)}
		}
	}
	return obj, nil
}

// Temperature returns a pointer for Options.Temperature.
func Temperature(v float64) *float64 { return &v }
