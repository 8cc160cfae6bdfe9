package web_search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/tools/web_search/models"
)

func TestSerperDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "k" {
			t.Errorf("missing api key header")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["tbs"] != "qdr:w" {
			t.Errorf("tbs = %v", body["tbs"])
		}
		if !strings.Contains(body["q"].(string), "site:edu.example") {
			t.Errorf("q = %v", body["q"])
		}
		_, _ = w.Write([]byte(`{"organic":[
			{"title":"Fraction strips","link":"https://a.example/x","snippet":"hands-on","date":"Mar 4, 2025"},
			{"title":"Second","link":"https://b.example/y","snippet":"more"},
			{"title":"Third","link":"https://c.example/z","snippet":"extra"}]}`))
	}))
	defer srv.Close()

	s, err := NewWebSearcher(SerperProvider, "k", Options{BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewWebSearcher: %v", err)
	}
	res, err := s.Discover(context.Background(), "fractions", 2, []string{"edu.example"}, 7)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res) != 2 || res[0].URL != "https://a.example/x" || res[0].Published != "Mar 4, 2025" {
		t.Fatalf("unexpected results %+v", res)
	}
}

func TestBraveDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "k" {
			t.Errorf("missing subscription token")
		}
		q := r.URL.Query()
		if q.Get("q") != "fractions" || q.Get("count") != "3" || q.Get("freshness") != "" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"T","url":"https://a.example","description":"<b>D</b>","age":"2 days ago"}]}}`))
	}))
	defer srv.Close()

	s, _ := NewWebSearcher(BraveProvider, "k", Options{BaseURL: srv.URL})
	res, err := s.Discover(context.Background(), "fractions", 3, nil, 0)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res) != 1 || res[0].Snippet != "<b>D</b>" || res[0].Published != "2 days ago" {
		t.Fatalf("unexpected results %+v", res)
	}
}

func TestDiscoverReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer srv.Close()

	s, _ := NewWebSearcher(BraveProvider, "k", Options{BaseURL: srv.URL})
	if _, err := s.Discover(context.Background(), "q", 3, nil, 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewWebSearcherUnsupported(t *testing.T) {
	if _, err := NewWebSearcher("bing", "k", Options{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestCleanSanitisesAndDeduplicates(t *testing.T) {
	in := []models.Result{
		{Title: "<b>One</b>", URL: "https://Example.com/a?utm_source=x", Snippet: "<script>x()</script>safe"},
		{Title: "Dup", URL: "https://example.com/a"},
		{Title: "No url"},
		{Title: "Two", URL: "https://example.com/b"},
	}
	out := Clean(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %+v", out)
	}
	if out[0].Title != "One" || out[0].Snippet != "safe" {
		t.Fatalf("not sanitised: %+v", out[0])
	}
	if out[1].Title != "Two" {
		t.Fatalf("order not preserved: %+v", out)
	}
}
