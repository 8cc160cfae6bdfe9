package core

import (
	"fmt"

	"github.com/mohammad-safakhou/lessonplanner/internal/retrieval"
)

// WorkflowInput is one wizard-step submission.
type WorkflowInput struct {
	Task        string         `json:"task" validate:"required"`
	StepType    string         `json:"stepType" validate:"required"`
	SessionData map[string]any `json:"sessionData,omitempty"`
	Context     string         `json:"context,omitempty"`
}

// ResponseFormat tells synthesis whether the step stores JSON or prose.
type ResponseFormat string

const (
	FormatJSON ResponseFormat = "JSON"
	FormatText ResponseFormat = "TEXT"
)

// DocumentCategory selects the knowledge source for document queries.
type DocumentCategory string

const (
	CategoryCurriculum DocumentCategory = "curriculum"
	CategoryStandard   DocumentCategory = "standard"
	CategoryGuideline  DocumentCategory = "guideline"
	CategoryTemplate   DocumentCategory = "template"
)

// SearchType tunes how the web search query is phrased.
type SearchType string

const (
	SearchEducational SearchType = "educational"
	SearchResearch    SearchType = "research"
	SearchGeneral     SearchType = "general"
	SearchNews        SearchType = "news"
)

// TaskAnalysis is the routing decision produced by the task processor.
type TaskAnalysis struct {
	ProcessedTask          string           `json:"processedTask"`
	NextActions            []string         `json:"nextActions"`
	NeedsDocumentSearch    bool             `json:"needsDocumentSearch"`
	NeedsInformationSearch bool             `json:"needsInformationSearch"`
	ResponseFormat         ResponseFormat   `json:"responseFormat"`
	DocumentCategory       DocumentCategory `json:"documentCategory"`
	SearchType             SearchType       `json:"searchType"`
}

// EvidenceKind distinguishes the two evidence variants.
type EvidenceKind string

const (
	EvidenceDocument EvidenceKind = "document"
	EvidenceSearch   EvidenceKind = "search"
)

// EvidenceResult is what an evidence agent hands to synthesis.
type EvidenceResult struct {
	Kind               EvidenceKind        `json:"kind"`
	Source             string              `json:"source,omitempty"`
	Passages           []retrieval.Passage `json:"passages"`
	Answer             string              `json:"answer"`
	Sources            []string            `json:"sources"`
	Confidence         float64             `json:"confidence"`
	NeedsMoreDocuments bool                `json:"needsMoreDocuments"`
	KeyFindings        []string            `json:"keyFindings,omitempty"`
}

// Degradation records why an evidence agent fell back. It is not an error
// path; the run continues with the fallback evidence.
type Degradation struct {
	Agent string
	Stage string
	Err   error
}

func (d *Degradation) String() string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("%s degraded at %s: %v", d.Agent, d.Stage, d.Err)
}

// EvidenceOutcome is either usable evidence or fallback evidence with the
// reason attached.
type EvidenceOutcome struct {
	Evidence EvidenceResult
	Degraded *Degradation
}

// OK reports whether the evidence came from a successful agent run.
func (o EvidenceOutcome) OK() bool { return o.Degraded == nil }

// State is a workflow state machine state.
type State string

const (
	StateAnalyze           State = "ANALYZE"
	StateDocumentSearch    State = "DOCUMENT_SEARCH"
	StateInformationSearch State = "INFORMATION_SEARCH"
	StateSynthesize        State = "SYNTHESIZE"
	StateDone              State = "DONE"
	StateError             State = "ERROR"
)

// WorkflowResult is returned to the caller for every run, including failed
// ones. It is built fresh per call.
type WorkflowResult struct {
	Result          string   `json:"result"`
	Confidence      float64  `json:"confidence"`
	SourcesUsed     []string `json:"sourcesUsed"`
	ProcessingSteps []string `json:"processingSteps"`
	State           State    `json:"-"`
}

// Processing step markers.
const (
	StepTaskAnalysis              = "task_analysis"
	StepDocumentSearch            = "document_search"
	StepDocumentSearchDegraded    = "document_search:degraded"
	StepInformationSearch         = "information_search"
	StepInformationSearchDegraded = "information_search:degraded"
	StepSynthesis                 = "synthesis"
	errorMarkerPrefix             = "error:"
)

// RoutingError is a task processor failure. It is fatal to the run.
type RoutingError struct {
	Stage string
	Err   error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed at %s: %v", e.Stage, e.Err)
}

func (e *RoutingError) Unwrap() error { return e.Err }

// SynthesisError is a final synthesis failure.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
