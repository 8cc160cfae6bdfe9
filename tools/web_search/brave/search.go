package brave

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/lessonplanner/tools/web_search/models"
	"github.com/mohammad-safakhou/lessonplanner/utils"
)

const defaultURL = "https://api.search.brave.com/res/v1/web/search"

// Brave caps count at 20.
const maxCount = 20

type Search struct {
	ApiKey  string
	BaseURL string
	Client  *utils.HTTPClient
}

func (s Search) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	if len(sites) > 0 {
		filters := make([]string, 0, len(sites))
		for _, site := range sites {
			filters = append(filters, "site:"+site)
		}
		q += " (" + strings.Join(filters, " OR ") + ")"
	}
	count := k
	if count <= 0 || count > maxCount {
		count = maxCount
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(count))
	params.Set("safesearch", "strict")
	params.Set("text_decorations", "false")
	if f := freshnessFor(recency); f != "" {
		params.Set("freshness", f)
	}

	endpoint := s.BaseURL
	if endpoint == "" {
		endpoint = defaultURL
	}
	client := s.Client
	if client == nil {
		client = utils.NewHTTPClient(0, 1, 0)
	}
	headers := map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": s.ApiKey,
	}
	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
				Age     string `json:"age"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := client.DoJSON(ctx, http.MethodGet, endpoint+"?"+params.Encode(), headers, nil, &raw); err != nil {
		return nil, err
	}
	var out []models.Result
	for i, r := range raw.Web.Results {
		if k > 0 && i >= k {
			break
		}
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet, Published: r.Age})
	}
	return out, nil
}

func freshnessFor(days int) string {
	switch {
	case days <= 0:
		return ""
	case days <= 1:
		return "pd"
	case days <= 7:
		return "pw"
	case days <= 31:
		return "pm"
	default:
		return "py"
	}
}
