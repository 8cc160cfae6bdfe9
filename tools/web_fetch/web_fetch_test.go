package web_fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const page = `<!doctype html><html><head><title>Fraction strips for every learner</title></head>
<body><nav>menu</nav><article><h1>Fraction strips for every learner</h1>
<p>Fraction strips let students compare parts of a whole by folding paper into halves, thirds and quarters.
Learners with fine motor difficulties can use pre-cut strips with tactile edges.</p>
<p>Ask pairs to line up strips and describe which fraction is larger, using sentence frames for emerging readers.
The activity works for whole class teaching and small group intervention alike.</p>
</article></body></html>`

func TestHTTPFetcherExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	f, err := NewWebFetcher(HTTPFetcherType, time.Second, 60)
	if err != nil {
		t.Fatalf("NewWebFetcher: %v", err)
	}
	res, err := f.Exec(context.Background(), srv.URL+"/strips")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected readable page, got %+v", res)
	}
	if !strings.Contains(res.Text, "Fraction strips") {
		t.Fatalf("text = %q", res.Text)
	}
	if len([]rune(res.Text)) > 60 {
		t.Fatalf("text not truncated: %d", len(res.Text))
	}
	if res.HTMLHash == "" {
		t.Fatalf("missing html hash")
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, _ := NewWebFetcher(HTTPFetcherType, time.Second, 0)
	res, err := f.Exec(context.Background(), srv.URL)
	if err == nil {
		t.Fatalf("expected error")
	}
	if res.Status != http.StatusNotFound || res.OK() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestNewWebFetcherUnsupported(t *testing.T) {
	if _, err := NewWebFetcher("curl", 0, 0); !errors.Is(err, ErrUnsupportedFetcher) {
		t.Fatalf("expected ErrUnsupportedFetcher, got %v", err)
	}
}
