package core

import (
	"context"

	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/provider"
)

const noEvidence = "None gathered for this step."

// Synthesizer composes the final step answer from the evidence and session
// context.
type Synthesizer struct {
	llm  llmClient
	opts provider.Options
}

func NewSynthesizer(p provider.Provider, reg *prompts.Registry, opts provider.Options, metrics *telemetry.Metrics) *Synthesizer {
	return &Synthesizer{llm: llmClient{provider: p, prompts: reg, metrics: metrics}, opts: opts}
}

// Compose returns the answer text. doc and search are nil when the agent did
// not run.
func (s *Synthesizer) Compose(ctx context.Context, in WorkflowInput, step prompts.StepType, analysis TaskAnalysis, doc, search *EvidenceResult) (string, error) {
	instruction := prompts.FormatInstructionText
	if analysis.ResponseFormat == FormatJSON {
		instruction = prompts.FormatInstructionJSON
	}
	vars := prompts.Vars{
		"format_instruction": instruction,
		"task":               in.Task,
		"processed_task":     analysis.ProcessedTask,
		"document_evidence":  evidenceJSON(doc),
		"search_evidence":    evidenceJSON(search),
		"session_data":       toJSON(in.SessionData),
	}
	out, err := s.llm.text(ctx, prompts.StageFinalSynthesis, step, vars, s.opts)
	if err != nil {
		return "", &SynthesisError{Err: err}
	}
	return out, nil
}

func evidenceJSON(ev *EvidenceResult) string {
	if ev == nil {
		return noEvidence
	}
	return toJSON(ev)
}
