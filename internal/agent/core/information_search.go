package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/lessonplanner/config"
	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/helpers"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/internal/retrieval"
	"github.com/mohammad-safakhou/lessonplanner/provider"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_fetch"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_search"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_search/models"
	"github.com/mohammad-safakhou/lessonplanner/utils"
)

var (
	ErrSearchUnavailable = errors.New("web search is not configured")
	ErrNoResults         = errors.New("web search returned no usable results")
)

const fetchedExcerptChars = 1500

// SearchOptions configure the information search agent.
type SearchOptions struct {
	// Provider names the search backend; sources are labelled web_search:<provider>.
	Provider   string
	MaxResults int
	// FetchTop pages are fetched to enrich the snippets. Zero disables fetching.
	FetchTop int
	Domains  config.DomainPolicyConfig
	// QueryOptions is used for the query rewrite, SummaryOptions for the summary.
	QueryOptions   provider.Options
	SummaryOptions provider.Options
}

// InformationSearchAgent answers from the web. Like the document agent it
// never fails; errors become fallback evidence.
type InformationSearchAgent struct {
	llm      llmClient
	searcher web_search.WebSearcher
	fetcher  web_fetch.WebFetcher
	opts     SearchOptions
	log      *logger.Logger
}

func NewInformationSearchAgent(p provider.Provider, reg *prompts.Registry, searcher web_search.WebSearcher, fetcher web_fetch.WebFetcher, opts SearchOptions, metrics *telemetry.Metrics, log *logger.Logger) *InformationSearchAgent {
	if log == nil {
		log = logger.Nop()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 5
	}
	if opts.Provider == "" {
		opts.Provider = "web"
	}
	return &InformationSearchAgent{
		llm:      llmClient{provider: p, prompts: reg, metrics: metrics},
		searcher: searcher,
		fetcher:  fetcher,
		opts:     opts,
		log:      log,
	}
}

// Label is the sourcesUsed entry for search evidence.
func (a *InformationSearchAgent) Label() string {
	return "web_search:" + a.opts.Provider
}

func (a *InformationSearchAgent) Search(ctx context.Context, refinedTask, extra string, searchType SearchType) EvidenceOutcome {
	if a.searcher == nil {
		return a.fallback("search", ErrSearchUnavailable)
	}
	if searchType == "" {
		searchType = SearchEducational
	}

	qobj, err := a.llm.structured(ctx, prompts.StageSearchQuery, "", prompts.Vars{
		"search_type": string(searchType),
		"task":        refinedTask,
		"context":     extra,
	}, a.opts.QueryOptions, schemaSearchQuery)
	if err != nil {
		return a.fallback("query", err)
	}
	query := stringFromAny(qobj["query"])

	raw, err := a.searcher.Discover(ctx, query, a.opts.MaxResults, a.opts.Domains.Allow, recencyDays(searchType))
	if err != nil {
		return a.fallback("search", err)
	}
	results := a.permitted(web_search.Clean(raw))
	if len(results) == 0 {
		return a.fallback("search", ErrNoResults)
	}
	passages := a.enrich(ctx, results)

	sobj, err := a.llm.structured(ctx, prompts.StageSearchSummary, "", prompts.Vars{
		"task":    refinedTask,
		"query":   query,
		"results": formatResults(passages),
	}, a.opts.SummaryOptions, schemaSearchSummary)
	if err != nil {
		return a.fallback("summary", err)
	}

	ev := EvidenceResult{
		Kind:        EvidenceSearch,
		Source:      a.Label(),
		Passages:    passages,
		Answer:      stringFromAny(sobj["summary"]),
		Sources:     extractStringSlice(sobj["sources"]),
		Confidence:  clamp(asFloat(sobj["confidence"]), 0, 1),
		KeyFindings: extractStringSlice(sobj["keyFindings"]),
	}
	if len(ev.Sources) == 0 {
		for _, p := range passages {
			ev.Sources = appendUnique(ev.Sources, p.Metadata["url"])
		}
	}
	return EvidenceOutcome{Evidence: ev}
}

func (a *InformationSearchAgent) permitted(results []models.Result) []models.Result {
	out := results[:0:0]
	for _, r := range results {
		if a.opts.Domains.Permits(r.URL) {
			out = append(out, r)
		}
	}
	if len(out) > a.opts.MaxResults {
		out = out[:a.opts.MaxResults]
	}
	return out
}

// enrich converts results into passages and replaces the snippet of the
// first FetchTop results with the fetched article text. Fetch failures keep
// the snippet.
func (a *InformationSearchAgent) enrich(ctx context.Context, results []models.Result) []retrieval.Passage {
	passages := make([]retrieval.Passage, 0, len(results))
	for i, r := range results {
		text := r.Snippet
		if a.fetcher != nil && i < a.opts.FetchTop {
			page, err := a.fetcher.Exec(ctx, r.URL)
			if err == nil && page.OK() && strings.TrimSpace(page.Text) != "" {
				text = utils.Truncate(strings.TrimSpace(page.Text), fetchedExcerptChars)
			} else if err != nil {
				a.log.Debug("search result fetch failed", "url", r.URL, "error", err)
			}
		}
		meta := map[string]string{"url": r.URL, "title": r.Title}
		if r.Published != "" {
			meta["published"] = r.Published
		}
		if attr := a.opts.Domains.AttributionFor(r.URL); attr != "" {
			meta["attribution"] = attr
		}
		passages = append(passages, retrieval.Passage{
			Text:     text,
			Source:   a.Label(),
			Score:    1 / float64(i+1),
			ChunkID:  fmt.Sprintf("result-%02d", i+1),
			Metadata: meta,
		})
	}
	return passages
}

func (a *InformationSearchAgent) fallback(stage string, err error) EvidenceOutcome {
	a.log.Warn("information search degraded", "stage", stage, "error", err)
	return EvidenceOutcome{
		Evidence: EvidenceResult{
			Kind:               EvidenceSearch,
			Passages:           []retrieval.Passage{},
			Sources:            []string{},
			Confidence:         FallbackConfidence,
			NeedsMoreDocuments: true,
		},
		Degraded: &Degradation{Agent: "information_search", Stage: stage, Err: err},
	}
}

func recencyDays(t SearchType) int {
	if t == SearchNews {
		return 30
	}
	return 0
}

func formatResults(ps []retrieval.Passage) string {
	cites := make([]helpers.Citation, 0, len(ps))
	for i, p := range ps {
		cites = append(cites, helpers.Citation{
			Ref:         i + 1,
			Title:       p.Metadata["title"],
			URL:         p.Metadata["url"],
			Excerpt:     p.Text,
			Published:   p.Metadata["published"],
			Attribution: p.Metadata["attribution"],
		})
	}
	return helpers.FormatCitations(cites, helpers.WithMaxExcerpt(fetchedExcerptChars))
}
