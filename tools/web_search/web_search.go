package web_search

import (
	"context"
	"strings"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/internal/helpers"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_search/brave"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_search/models"
	"github.com/mohammad-safakhou/lessonplanner/tools/web_search/serper"
	"github.com/mohammad-safakhou/lessonplanner/utils"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

type Error struct{ msg string }

func (e *Error) Error() string { return "web_search: " + e.msg }

var ErrUnsupportedProvider = &Error{"unsupported provider"}

// Options tune the HTTP client shared by the providers.
type Options struct {
	Timeout time.Duration
	Retries int
	// BaseURL overrides the provider endpoint, mainly for tests.
	BaseURL string
}

func NewWebSearcher(provider Provider, apiKey string, opts Options) (WebSearcher, error) {
	client := utils.NewHTTPClient(opts.Timeout, opts.Retries, 0)
	switch provider {
	case SerperProvider:
		return serper.Search{ApiKey: apiKey, BaseURL: opts.BaseURL, Client: client}, nil
	case BraveProvider:
		return brave.Search{ApiKey: apiKey, BaseURL: opts.BaseURL, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}

// Clean strips markup from titles and snippets and drops results whose URL is
// empty or canonically equal to an earlier one. Order is preserved.
func Clean(results []models.Result) []models.Result {
	seen := make(map[string]struct{}, len(results))
	out := make([]models.Result, 0, len(results))
	for _, r := range results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		key, err := helpers.CanonicalURL(r.URL)
		if err != nil {
			key = r.URL
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, models.Result{
			Title:     helpers.PlainText(r.Title),
			URL:       strings.TrimSpace(r.URL),
			Snippet:   helpers.PlainText(r.Snippet),
			Published: strings.TrimSpace(r.Published),
		})
	}
	return out
}
