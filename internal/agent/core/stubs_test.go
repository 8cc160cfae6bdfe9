package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/internal/retrieval"
	"github.com/mohammad-safakhou/lessonplanner/provider"
	fetchmodels "github.com/mohammad-safakhou/lessonplanner/tools/web_fetch/models"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_search/models"
)

// stubLLM answers by stage, recognised from the system prompt.
type stubLLM struct {
	mu      sync.Mutex
	replies map[prompts.Stage]string
	errs    map[prompts.Stage]error
	block   map[prompts.Stage]bool
	calls   []prompts.Stage
}

func newStubLLM() *stubLLM {
	return &stubLLM{
		replies: map[prompts.Stage]string{
			prompts.StageTaskAnalysis:   analysisJSON(false, false),
			prompts.StageDocumentAnswer: `{"answer":"Objectives follow standard [2슬01-01].","confidence":0.8,"sources":["curriculum-style source"],"keyPoints":["observe seasons"],"needsMoreDocuments":false}`,
			prompts.StageSearchQuery:    `{"query":"grade 1 science seasons inclusive activities"}`,
			prompts.StageSearchSummary:  `{"summary":"Hands-on sorting games work well.","confidence":0.7,"keyFindings":["sorting games"],"sources":["https://edu.example.org/seasons"]}`,
			prompts.StageFinalSynthesis: `{"0":{"objective":"Describe the four seasons","support":"picture cards"}}`,
		},
		errs:  map[prompts.Stage]error{},
		block: map[prompts.Stage]bool{},
	}
}

func analysisJSON(doc, search bool) string {
	b := func(v bool) string {
		if v {
			return "true"
		}
		return "false"
	}
	return `Here is the plan: {"processedTask":"Design 3 observable learning objectives for grade 1 science topic X","nextActions":["document_query"],"needsDocumentSearch":` +
		b(doc) + `,"needsInformationSearch":` + b(search) + `,"responseFormat":"JSON"}`
}

func stageOf(msgs []provider.Message) prompts.Stage {
	if len(msgs) == 0 {
		return ""
	}
	sys := msgs[0].Content
	switch {
	case strings.HasPrefix(sys, "You are the task analysis agent"):
		return prompts.StageTaskAnalysis
	case strings.HasPrefix(sys, "You answer questions for teachers"):
		return prompts.StageDocumentAnswer
	case strings.HasPrefix(sys, "You turn a teacher's request"):
		return prompts.StageSearchQuery
	case strings.HasPrefix(sys, "You summarise web search results"):
		return prompts.StageSearchSummary
	case strings.HasPrefix(sys, "You are the lesson planning assistant"):
		return prompts.StageFinalSynthesis
	}
	return ""
}

func (s *stubLLM) Complete(ctx context.Context, msgs []provider.Message, _ provider.Options) (string, error) {
	stage := stageOf(msgs)
	s.mu.Lock()
	s.calls = append(s.calls, stage)
	reply, err, block := s.replies[stage], s.errs[stage], s.block[stage]
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (s *stubLLM) Embed(context.Context, []string) ([][]float32, error) { return nil, nil }

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) set(stage prompts.Stage, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[stage] = reply
}

func (s *stubLLM) fail(stage prompts.Stage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[stage] = err
}

func (s *stubLLM) callCount(stage prompts.Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if stage == "" || c == stage {
			n++
		}
	}
	return n
}

type stubRetriever struct {
	mu       sync.Mutex
	passages []retrieval.Passage
	err      error
	queries  []string
}

func (r *stubRetriever) Query(_ context.Context, source, query, _ string) ([]retrieval.Passage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, source+"|"+query)
	if r.err != nil {
		return nil, r.err
	}
	return r.passages, nil
}

func (r *stubRetriever) Source(name string) (retrieval.Source, bool) {
	if name == SourceCurriculumGuideline {
		return retrieval.Source{Name: name, Label: "curriculum-style source"}, true
	}
	return retrieval.Source{Name: name, Label: name}, true
}

func (r *stubRetriever) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queries)
}

func curriculumPassages() []retrieval.Passage {
	return []retrieval.Passage{
		{Text: "[2슬01-01] Students observe the changes of the seasons.", Source: SourceCurriculumGuideline, Score: 0.9},
		{Text: "Provide picture cards for learners who need visual support.", Source: SourceCurriculumGuideline, Score: 0.5},
	}
}

type stubSearcher struct {
	results []models.Result
	err     error
	delay   time.Duration
}

func (s stubSearcher) Discover(ctx context.Context, _ string, _ int, _ []string, _ int) ([]models.Result, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.results, s.err
}

func searchResults() []models.Result {
	return []models.Result{
		{Title: "Seasons <b>activities</b>", URL: "https://edu.example.org/seasons", Snippet: "Sorting games for the four seasons."},
		{Title: "Duplicate", URL: "https://EDU.example.org/seasons#top", Snippet: "same page"},
		{Title: "Blocked", URL: "https://ads.example.com/x", Snippet: "buy now"},
	}
}

type stubFetcher struct {
	pages map[string]fetchmodels.Result
}

func (f stubFetcher) Exec(_ context.Context, url string) (fetchmodels.Result, error) {
	if p, ok := f.pages[url]; ok {
		return p, nil
	}
	return fetchmodels.Result{URL: url, Status: 404}, nil
}

type panickingDocs struct{}

func (panickingDocs) Query(context.Context, string, DocumentCategory, string) EvidenceOutcome {
	panic("index corrupted")
}
