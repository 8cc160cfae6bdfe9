package core

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/provider"
)

// TaskProcessor turns a wizard request into a routing decision. It never
// invents a default decision: any failure is a *RoutingError.
type TaskProcessor struct {
	llm  llmClient
	opts provider.Options
}

func NewTaskProcessor(p provider.Provider, reg *prompts.Registry, opts provider.Options, metrics *telemetry.Metrics) *TaskProcessor {
	return &TaskProcessor{llm: llmClient{provider: p, prompts: reg, metrics: metrics}, opts: opts}
}

func (t *TaskProcessor) Process(ctx context.Context, task string, step prompts.StepType, sessionData map[string]any, extra string) (TaskAnalysis, error) {
	vars := prompts.Vars{
		"task":         task,
		"context":      extra,
		"session_data": toJSON(sessionData),
	}
	obj, err := t.llm.structured(ctx, prompts.StageTaskAnalysis, step, vars, t.opts, schemaTaskAnalysis)
	if err != nil {
		return TaskAnalysis{}, &RoutingError{Stage: StepTaskAnalysis, Err: err}
	}
	return parseTaskAnalysis(obj), nil
}

func parseTaskAnalysis(obj map[string]any) TaskAnalysis {
	a := TaskAnalysis{
		ProcessedTask:          stringFromAny(obj["processedTask"]),
		NextActions:            extractStringSlice(obj["nextActions"]),
		NeedsDocumentSearch:    asBool(obj["needsDocumentSearch"]),
		NeedsInformationSearch: asBool(obj["needsInformationSearch"]),
		ResponseFormat:         FormatText,
		DocumentCategory:       CategoryCurriculum,
		SearchType:             SearchEducational,
	}
	if strings.EqualFold(stringFromAny(obj["responseFormat"]), string(FormatJSON)) {
		a.ResponseFormat = FormatJSON
	}
	if c := DocumentCategory(strings.ToLower(stringFromAny(obj["documentCategory"]))); c != "" {
		a.DocumentCategory = c
	}
	if s := SearchType(strings.ToLower(stringFromAny(obj["searchType"]))); s != "" {
		a.SearchType = s
	}
	return a
}
