package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/internal/retrieval"
	"github.com/mohammad-safakhou/lessonplanner/provider"
)

// Logical knowledge sources the categories resolve to.
const (
	SourceCurriculumGuideline = "curriculum_guideline"
	SourceLessonTemplate      = "lesson_template"
)

var categorySources = map[DocumentCategory]string{
	CategoryCurriculum: SourceCurriculumGuideline,
	CategoryStandard:   SourceCurriculumGuideline,
	CategoryGuideline:  SourceCurriculumGuideline,
	CategoryTemplate:   SourceLessonTemplate,
}

// FallbackConfidence is reported by evidence agents that degraded.
const FallbackConfidence = 0.1

var (
	ErrUnknownCategory = errors.New("unknown document category")
	ErrNoPassages      = errors.New("no passages retrieved")
)

// PassageRetriever is the slice of the document retriever the agent needs.
type PassageRetriever interface {
	Query(ctx context.Context, source, query, column string) ([]retrieval.Passage, error)
	Source(name string) (retrieval.Source, bool)
}

// DocumentQueryAgent answers from curriculum documents only. It never fails:
// errors become fallback evidence with Degraded set.
type DocumentQueryAgent struct {
	llm       llmClient
	retriever PassageRetriever
	opts      provider.Options
	log       *logger.Logger
}

func NewDocumentQueryAgent(p provider.Provider, reg *prompts.Registry, r PassageRetriever, opts provider.Options, metrics *telemetry.Metrics, log *logger.Logger) *DocumentQueryAgent {
	if log == nil {
		log = logger.Nop()
	}
	return &DocumentQueryAgent{
		llm:       llmClient{provider: p, prompts: reg, metrics: metrics},
		retriever: r,
		opts:      opts,
		log:       log,
	}
}

func (a *DocumentQueryAgent) Query(ctx context.Context, refinedTask string, category DocumentCategory, extra string) EvidenceOutcome {
	sourceName, ok := categorySources[category]
	if !ok {
		return a.fallback("category", fmt.Errorf("%w: %q", ErrUnknownCategory, category))
	}
	if a.retriever == nil {
		return a.fallback("retrieval", retrieval.ErrUnknownSource)
	}
	label := sourceName
	if src, ok := a.retriever.Source(sourceName); ok && src.Label != "" {
		label = src.Label
	}

	passages, err := a.retriever.Query(ctx, sourceName, refinedTask, "")
	if err != nil {
		return a.fallback("retrieval", err)
	}
	if len(passages) == 0 {
		return a.fallback("retrieval", ErrNoPassages)
	}

	vars := prompts.Vars{
		"category": string(category),
		"task":     refinedTask,
		"context":  extra,
		"passages": formatPassages(passages),
	}
	obj, err := a.llm.structured(ctx, prompts.StageDocumentAnswer, "", vars, a.opts, schemaDocumentAnswer)
	if err != nil {
		return a.fallback("answer", err)
	}

	ev := EvidenceResult{
		Kind:               EvidenceDocument,
		Source:             label,
		Passages:           passages,
		Answer:             stringFromAny(obj["answer"]),
		Sources:            extractStringSlice(obj["sources"]),
		Confidence:         clamp(asFloat(obj["confidence"]), 0, 1),
		NeedsMoreDocuments: asBool(obj["needsMoreDocuments"]),
		KeyFindings:        extractStringSlice(obj["keyPoints"]),
	}
	if len(ev.Sources) == 0 {
		ev.Sources = []string{label}
	}
	return EvidenceOutcome{Evidence: ev}
}

func (a *DocumentQueryAgent) fallback(stage string, err error) EvidenceOutcome {
	a.log.Warn("document query degraded", "stage", stage, "error", err)
	return EvidenceOutcome{
		Evidence: EvidenceResult{
			Kind:               EvidenceDocument,
			Passages:           []retrieval.Passage{},
			Sources:            []string{},
			Confidence:         FallbackConfidence,
			NeedsMoreDocuments: true,
		},
		Degraded: &Degradation{Agent: "document_query", Stage: stage, Err: err},
	}
}

func formatPassages(ps []retrieval.Passage) string {
	var b strings.Builder
	for i, p := range ps {
		fmt.Fprintf(&b, "[%d] (%s, score %.3f)\n%s\n\n", i+1, p.Source, p.Score, strings.TrimSpace(p.Text))
	}
	return strings.TrimSpace(b.String())
}
