package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/config"
	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/internal/retrieval"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var orchestratorTracer trace.Tracer = otel.Tracer("lessonplanner/internal/agent/orchestrator")

// DocumentQuerier runs the document evidence stage.
type DocumentQuerier interface {
	Query(ctx context.Context, refinedTask string, category DocumentCategory, extra string) EvidenceOutcome
}

// InformationSearcher runs the web evidence stage.
type InformationSearcher interface {
	Search(ctx context.Context, refinedTask, extra string, searchType SearchType) EvidenceOutcome
	Label() string
}

// Options tune a workflow run.
type Options struct {
	AgentTimeout     time.Duration
	ParallelEvidence bool
	ConfidenceFloor  float64
	Locale           string
	// FallbackMessage replaces the localized apology when set.
	FallbackMessage string
}

// OptionsFromConfig maps the workflow section onto orchestrator options.
func OptionsFromConfig(cfg config.WorkflowConfig) Options {
	cfg = cfg.Normalize()
	return Options{
		AgentTimeout:     cfg.AgentTimeout,
		ParallelEvidence: cfg.ParallelEvidence,
		ConfidenceFloor:  cfg.ConfidenceFloor,
		Locale:           cfg.Locale,
		FallbackMessage:  cfg.FallbackMessage,
	}
}

var apologies = map[string]string{
	"en": "Sorry, something went wrong while preparing this step. Please try again in a moment.",
	"ko": "죄송합니다. 이 단계를 처리하는 중 문제가 발생했습니다. 잠시 후 다시 시도해 주세요.",
}

// Apology returns the fallback answer for a locale, English when unknown.
func Apology(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	if msg, ok := apologies[locale]; ok {
		return msg
	}
	return apologies["en"]
}

// Orchestrator sequences the agents for one wizard step. Run never fails:
// every failure, panics included, ends in the ERROR state.
type Orchestrator struct {
	tasks   *TaskProcessor
	docs    DocumentQuerier
	search  InformationSearcher
	synth   *Synthesizer
	opts    Options
	metrics *telemetry.Metrics
	log     *logger.Logger
}

func NewOrchestrator(tasks *TaskProcessor, docs DocumentQuerier, search InformationSearcher, synth *Synthesizer, opts Options, metrics *telemetry.Metrics, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = 60 * time.Second
	}
	if opts.ConfidenceFloor <= 0 {
		opts.ConfidenceFloor = 0.5
	}
	return &Orchestrator{
		tasks:   tasks,
		docs:    docs,
		search:  search,
		synth:   synth,
		opts:    opts,
		metrics: metrics,
		log:     log,
	}
}

// run holds the accumulators of one workflow invocation.
type run struct {
	state      State
	stage      string
	steps      []string
	sources    []string
	confidence float64
}

func (r *run) observe(o EvidenceOutcome, marker, degradedMarker string) {
	if o.Evidence.Confidence > r.confidence {
		r.confidence = o.Evidence.Confidence
	}
	if o.Degraded != nil {
		r.steps = append(r.steps, degradedMarker)
		return
	}
	r.steps = append(r.steps, marker)
	r.sources = appendUnique(r.sources, o.Evidence.Source)
}

// Run executes ANALYZE, the optional evidence stages and SYNTHESIZE.
func (o *Orchestrator) Run(ctx context.Context, in WorkflowInput) (res WorkflowResult) {
	started := time.Now()
	ctx, span := orchestratorTracer.Start(ctx, "workflow.run",
		trace.WithAttributes(attribute.String("workflow.step_type", in.StepType)))
	defer span.End()

	r := &run{state: StateAnalyze, stage: StepTaskAnalysis, steps: []string{}, sources: []string{}}
	defer func() {
		if p := recover(); p != nil {
			res = o.fail(span, r, fmt.Errorf("panic: %v", p))
		}
		o.metrics.RecordRun(string(res.State), res.Confidence)
		span.SetAttributes(
			attribute.String("workflow.state", string(res.State)),
			attribute.Float64("workflow.confidence", res.Confidence),
		)
		o.log.Info("workflow finished",
			"step_type", in.StepType,
			"state", res.State,
			"confidence", res.Confidence,
			"steps", strings.Join(res.ProcessingSteps, ","),
			"duration_ms", time.Since(started).Milliseconds())
	}()

	// ANALYZE
	step, err := prompts.ParseStepType(in.StepType)
	if err != nil {
		return o.fail(span, r, &RoutingError{Stage: StepTaskAnalysis, Err: err})
	}
	if err := ctx.Err(); err != nil {
		return o.fail(span, r, &RoutingError{Stage: StepTaskAnalysis, Err: err})
	}
	var analysis TaskAnalysis
	err = o.stage(ctx, StepTaskAnalysis, func(ctx context.Context) error {
		var err error
		analysis, err = o.tasks.Process(ctx, in.Task, step, in.SessionData, in.Context)
		return err
	})
	if err != nil {
		return o.fail(span, r, err)
	}
	r.steps = append(r.steps, StepTaskAnalysis)

	// DOCUMENT_SEARCH / INFORMATION_SEARCH
	doc, web := o.gather(ctx, r, in, analysis)

	// SYNTHESIZE
	r.state, r.stage = StateSynthesize, StepSynthesis
	if err := ctx.Err(); err != nil {
		return o.fail(span, r, &SynthesisError{Err: err})
	}
	var answer string
	err = o.stage(ctx, StepSynthesis, func(ctx context.Context) error {
		var err error
		answer, err = o.synth.Compose(ctx, in, step, analysis, doc, web)
		return err
	})
	if err != nil {
		return o.fail(span, r, err)
	}
	r.steps = append(r.steps, StepSynthesis)

	r.state = StateDone
	span.SetStatus(codes.Ok, "")
	return WorkflowResult{
		Result:          answer,
		Confidence:      clamp(max(r.confidence, o.opts.ConfidenceFloor), FallbackConfidence, 1),
		SourcesUsed:     r.sources,
		ProcessingSteps: r.steps,
		State:           StateDone,
	}
}

// gather runs the evidence agents the analysis asked for. Outcomes are
// merged document first, so parallel and sequential runs produce the same
// result. Evidence never fails the run: an agent that panics is replaced by
// fallback evidence degraded at the "panic" stage.
func (o *Orchestrator) gather(ctx context.Context, r *run, in WorkflowInput, a TaskAnalysis) (doc, web *EvidenceResult) {
	runDoc := a.NeedsDocumentSearch && o.docs != nil
	runWeb := a.NeedsInformationSearch && o.search != nil
	var docOut, webOut EvidenceOutcome

	queryDocs := func(ctx context.Context) {
		err := o.stage(ctx, StepDocumentSearch, func(ctx context.Context) error {
			docOut = o.docs.Query(ctx, a.ProcessedTask, a.DocumentCategory, in.Context)
			return nil
		})
		if err != nil {
			docOut = o.panicked(EvidenceDocument, "document_query", err)
		}
	}
	searchWeb := func(ctx context.Context) {
		err := o.stage(ctx, StepInformationSearch, func(ctx context.Context) error {
			webOut = o.search.Search(ctx, a.ProcessedTask, in.Context, a.SearchType)
			return nil
		})
		if err != nil {
			webOut = o.panicked(EvidenceSearch, "information_search", err)
		}
	}

	if o.opts.ParallelEvidence && runDoc && runWeb {
		r.state, r.stage = StateDocumentSearch, StepDocumentSearch
		var g errgroup.Group
		g.Go(func() error { queryDocs(ctx); return nil })
		g.Go(func() error { searchWeb(ctx); return nil })
		_ = g.Wait()
	} else {
		if runDoc {
			r.state, r.stage = StateDocumentSearch, StepDocumentSearch
			queryDocs(ctx)
		}
		if runWeb {
			r.state, r.stage = StateInformationSearch, StepInformationSearch
			searchWeb(ctx)
		}
	}

	if runDoc {
		r.observe(docOut, StepDocumentSearch, StepDocumentSearchDegraded)
		o.degraded(docOut)
		doc = &docOut.Evidence
	}
	if runWeb {
		r.observe(webOut, StepInformationSearch, StepInformationSearchDegraded)
		o.degraded(webOut)
		web = &webOut.Evidence
	}
	return doc, web
}

func (o *Orchestrator) panicked(kind EvidenceKind, agent string, err error) EvidenceOutcome {
	o.log.Error("evidence agent panicked", "agent", agent, "error", err)
	return EvidenceOutcome{
		Evidence: EvidenceResult{
			Kind:               kind,
			Passages:           []retrieval.Passage{},
			Sources:            []string{},
			Confidence:         FallbackConfidence,
			NeedsMoreDocuments: true,
		},
		Degraded: &Degradation{Agent: agent, Stage: "panic", Err: err},
	}
}

func (o *Orchestrator) degraded(out EvidenceOutcome) {
	if d := out.Degraded; d != nil {
		o.metrics.RecordDegradation(d.Agent, d.Stage)
	}
}

// stageError carries a recovered panic out of an agent call.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s: %v", e.stage, e.err) }

func (e *stageError) Unwrap() error { return e.err }

// stage runs fn under the per-agent timeout inside its own span. Panics are
// turned into a *stageError.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.AgentTimeout)
	defer cancel()
	ctx, span := orchestratorTracer.Start(ctx, "workflow."+name)
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = &stageError{stage: name, err: fmt.Errorf("panic: %v", p)}
		}
		o.metrics.ObserveStage(name, time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return fn(ctx)
}

func (o *Orchestrator) fail(span trace.Span, r *run, err error) WorkflowResult {
	var se *stageError
	if errors.As(err, &se) {
		r.stage = se.stage
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.log.Error("workflow failed", "state", r.state, "stage", r.stage, "error", err)

	msg := o.opts.FallbackMessage
	if strings.TrimSpace(msg) == "" {
		msg = Apology(o.opts.Locale)
	}
	steps := append(r.steps, errorMarkerPrefix+r.stage)
	r.state = StateError
	return WorkflowResult{
		Result:          msg,
		Confidence:      FallbackConfidence,
		SourcesUsed:     []string{},
		ProcessingSteps: steps,
		State:           StateError,
	}
}
