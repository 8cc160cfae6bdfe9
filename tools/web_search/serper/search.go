package serper

import (
	"context"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/lessonplanner/tools/web_search/models"
	"github.com/mohammad-safakhou/lessonplanner/utils"
)

const defaultURL = "https://google.serper.dev/search"

type Search struct {
	ApiKey  string
	BaseURL string
	Client  *utils.HTTPClient
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error) {
	// https://serper.dev/ docs
	if len(sites) > 0 {
		filters := make([]string, 0, len(sites))
		for _, site := range sites {
			filters = append(filters, "site:"+site)
		}
		q += " (" + strings.Join(filters, " OR ") + ")"
	}
	payload := map[string]any{"q": q, "num": k}
	if tbs := tbsFor(recency); tbs != "" {
		payload["tbs"] = tbs
	}

	endpoint := s.BaseURL
	if endpoint == "" {
		endpoint = defaultURL
	}
	client := s.Client
	if client == nil {
		client = utils.NewHTTPClient(0, 1, 0)
	}
	var raw map[string]any
	headers := map[string]string{"X-API-KEY": s.ApiKey}
	if err := client.DoJSON(ctx, http.MethodPost, endpoint, headers, payload, &raw); err != nil {
		return nil, err
	}

	var out []models.Result
	if items, ok := raw["organic"].([]any); ok {
		for _, it := range items {
			if len(out) >= k {
				break
			}
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, models.Result{
				Title: utils.Str(m["title"]), URL: utils.Str(m["link"]), Snippet: utils.Str(m["snippet"]), Published: utils.Str(m["date"]),
			})
		}
	}
	return out, nil
}

// tbsFor maps a recency window in days onto Google's qdr filter.
func tbsFor(days int) string {
	switch {
	case days <= 0:
		return ""
	case days <= 1:
		return "qdr:d"
	case days <= 7:
		return "qdr:w"
	case days <= 31:
		return "qdr:m"
	default:
		return "qdr:y"
	}
}
