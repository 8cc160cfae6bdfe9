package core

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/provider"
)

// llmClient renders a stage prompt and runs it against the provider. Every
// call is counted per stage.
type llmClient struct {
	provider provider.Provider
	prompts  *prompts.Registry
	metrics  *telemetry.Metrics
}

func (c llmClient) structured(ctx context.Context, stage prompts.Stage, step prompts.StepType, vars prompts.Vars, opts provider.Options, schemaName string) (map[string]any, error) {
	msgs, err := c.prompts.Render(stage, step, vars)
	if err != nil {
		return nil, err
	}
	schema, err := outputSchema(schemaName)
	if err != nil {
		return nil, err
	}
	out, err := provider.CompleteStructured(ctx, c.provider, msgs, opts, schema)
	c.metrics.RecordLLMCall(string(stage), err)
	return out, err
}

func (c llmClient) text(ctx context.Context, stage prompts.Stage, step prompts.StepType, vars prompts.Vars, opts provider.Options) (string, error) {
	msgs, err := c.prompts.Render(stage, step, vars)
	if err != nil {
		return "", err
	}
	raw, err := c.provider.Complete(ctx, msgs, opts)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = provider.ErrEmptyCompletion
	}
	c.metrics.RecordLLMCall(string(stage), err)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}
