package prompts

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mohammad-safakhou/lessonplanner/provider"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// Stage identifies which agent a prompt is rendered for.
type Stage string

const (
	StageTaskAnalysis   Stage = "task_analysis"
	StageDocumentAnswer Stage = "document_answer"
	StageSearchQuery    Stage = "search_query"
	StageSearchSummary  Stage = "search_summary"
	StageFinalSynthesis Stage = "final_synthesis"
)

var (
	ErrUnknownStage    = errors.New("unknown prompt stage")
	ErrMissingVariable = errors.New("missing prompt variable")
)

// Vars are the values interpolated into a template.
type Vars map[string]any

type template struct {
	chat prompts.ChatPromptTemplate
	vars []string
	// stepScoped templates receive step_type, step_title and step_guidance.
	stepScoped bool
}

// Registry holds the chat templates for every stage.
type Registry struct {
	templates map[Stage]template
}

// NewRegistry builds the registry. Template definitions are static, so the
// constructor cannot fail.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[Stage]template, len(definitions))}
	for stage, def := range definitions {
		vars := append([]string(nil), def.vars...)
		if def.stepScoped {
			vars = append(vars, "step_type", "step_title", "step_guidance")
		}
		sort.Strings(vars)
		r.templates[stage] = template{
			chat: prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
				prompts.NewSystemMessagePromptTemplate(def.system, vars),
				prompts.NewHumanMessagePromptTemplate(def.human, vars),
			}),
			vars:       vars,
			stepScoped: def.stepScoped,
		}
	}
	return r
}

// Variables lists the values a stage expects, step variables included.
func (r *Registry) Variables(stage Stage) ([]string, error) {
	tpl, ok := r.templates[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	return append([]string(nil), tpl.vars...), nil
}

// Render formats the (stage, step) prompt into provider messages. Step-scoped
// stages require a valid step; other stages ignore it.
func (r *Registry) Render(stage Stage, step StepType, vars Vars) ([]provider.Message, error) {
	tpl, ok := r.templates[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	values := make(map[string]any, len(vars)+3)
	for k, v := range vars {
		values[k] = v
	}
	if tpl.stepScoped {
		spec, err := Spec(step)
		if err != nil {
			return nil, err
		}
		values["step_type"] = string(spec.Type)
		values["step_title"] = spec.Title
		values["step_guidance"] = spec.Guidance
	}
	for _, name := range tpl.vars {
		if _, ok := values[name]; !ok {
			return nil, fmt.Errorf("%w: %s requires %q", ErrMissingVariable, stage, name)
		}
	}

	msgs, err := tpl.chat.FormatMessages(values)
	if err != nil {
		return nil, fmt.Errorf("render %s prompt: %w", stage, err)
	}
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.Message{Role: roleOf(m.GetType()), Content: m.GetContent()})
	}
	return out, nil
}

func roleOf(t llms.ChatMessageType) provider.Role {
	switch t {
	case llms.ChatMessageTypeSystem:
		return provider.RoleSystem
	case llms.ChatMessageTypeAI:
		return provider.RoleAssistant
	default:
		return provider.RoleUser
	}
}
