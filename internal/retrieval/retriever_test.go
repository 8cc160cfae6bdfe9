package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/config"
	"go.uber.org/goleak"
)

const guidelineCSV = `id,subject,grade,content,notes
1,math,4,Students compare fractions with the same denominator using fraction strips.,core
2,math,4,Students add and subtract decimals to the hundredths place.,core
3,science,4,Students describe how plants use sunlight water and air to grow.,extension
4,math,4,Visual fraction models support learners who struggle with symbolic notation.,inclusion
`

func writeSource(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestRetriever(t *testing.T, embedder Embedder) *Retriever {
	t.Helper()
	cfg := config.RetrievalConfig{
		Sources: map[string]config.SourceConfig{
			"curriculum_guideline": {Path: writeSource(t, "guideline.csv", guidelineCSV), Label: "Curriculum guideline"},
			"lesson_template":      {Path: writeSource(t, "template.md", "# Lesson template\n\nIntroduction, development and wrap-up.")},
		},
		TopK: 2,
	}
	return NewRetriever(cfg, embedder, nil)
}

func countLoads(r *Retriever, n *int64, delay time.Duration) {
	r.load = func(src Source, column string) ([]Document, error) {
		atomic.AddInt64(n, 1)
		time.Sleep(delay)
		return LoadDocuments(src, column)
	}
}

func TestQueryRanksKeywordMatches(t *testing.T) {
	r := newTestRetriever(t, nil)
	got, err := r.Query(context.Background(), "curriculum_guideline", "fractions same denominator", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) == 0 || len(got) > 2 {
		t.Fatalf("expected 1..2 passages, got %d", len(got))
	}
	if got[0].Metadata["id"] != "1" {
		t.Fatalf("expected row 1 first, got %+v", got[0])
	}
	if got[0].Source != "Curriculum guideline" {
		t.Fatalf("source label = %q", got[0].Source)
	}
	if got[0].Metadata["subject"] != "math" {
		t.Fatalf("metadata not carried: %+v", got[0].Metadata)
	}
}

func TestQueryMemoizesSameSlice(t *testing.T) {
	r := newTestRetriever(t, nil)
	var loads int64
	countLoads(r, &loads, 0)
	ctx := context.Background()

	a, err := r.Query(ctx, "curriculum_guideline", "fractions", "content")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	b, err := r.Query(ctx, "curriculum_guideline", "fractions", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(a) == 0 || &a[0] != &b[0] {
		t.Fatalf("expected the same backing array on repeat queries")
	}
	if _, err := r.Query(ctx, "curriculum_guideline", "decimals", ""); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected the index to be built once, got %d", loads)
	}
}

func TestConcurrentQueriesBuildOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newTestRetriever(t, nil)
	var loads int64
	countLoads(r, &loads, 20*time.Millisecond)

	var wg sync.WaitGroup
	results := make([][]Passage, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Query(context.Background(), "curriculum_guideline", "fractions", "")
			if err != nil {
				t.Errorf("Query: %v", err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()
	if loads != 1 {
		t.Fatalf("expected exactly one build, got %d", loads)
	}
	for i := 1; i < len(results); i++ {
		if len(results[i]) != len(results[0]) {
			t.Fatalf("result %d differs", i)
		}
	}
}

func TestMissingColumnIsLoadErrorAndNotCached(t *testing.T) {
	r := newTestRetriever(t, nil)
	var loads int64
	countLoads(r, &loads, 0)

	for i := 0; i < 2; i++ {
		_, err := r.Query(context.Background(), "curriculum_guideline", "fractions", "body")
		var le *LoadError
		if !errors.As(err, &le) || !errors.Is(err, ErrColumnNotFound) {
			t.Fatalf("expected LoadError for missing column, got %v", err)
		}
	}
	if loads != 2 {
		t.Fatalf("failed builds must not be cached, loads=%d", loads)
	}
}

func TestQueryUnknownSource(t *testing.T) {
	r := newTestRetriever(t, nil)
	if _, err := r.Query(context.Background(), "policies", "x", ""); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestMarkdownSourceLoadsAsOneDocument(t *testing.T) {
	r := newTestRetriever(t, nil)
	n, err := r.Warm(context.Background(), "lesson_template", "")
	if err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one chunk, got %d", n)
	}
	got, err := r.Query(context.Background(), "lesson_template", "development", "")
	if err != nil || len(got) != 1 || got[0].Source != "lesson_template" {
		t.Fatalf("unexpected passages %+v err=%v", got, err)
	}
}

func TestInvalidateRebuilds(t *testing.T) {
	r := newTestRetriever(t, nil)
	var loads int64
	countLoads(r, &loads, 0)
	ctx := context.Background()

	a, _ := r.Query(ctx, "curriculum_guideline", "fractions", "")
	r.Invalidate("lesson_template")
	b, _ := r.Query(ctx, "curriculum_guideline", "fractions", "")
	if &a[0] != &b[0] || loads != 1 {
		t.Fatalf("invalidating another source must keep this cache")
	}

	r.Invalidate("curriculum_guideline")
	c, _ := r.Query(ctx, "curriculum_guideline", "fractions", "")
	if &a[0] == &c[0] || loads != 2 {
		t.Fatalf("expected a rebuild after Invalidate, loads=%d", loads)
	}

	r.InvalidateAll()
	_, _ = r.Query(ctx, "curriculum_guideline", "fractions", "")
	if loads != 3 {
		t.Fatalf("expected a rebuild after InvalidateAll, loads=%d", loads)
	}
}

func TestCancelledCallerDoesNotFailSharedBuild(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	r := newTestRetriever(t, nil)
	var loads int64
	entered := make(chan struct{})
	release := make(chan struct{})
	r.load = func(src Source, column string) ([]Document, error) {
		if atomic.AddInt64(&loads, 1) == 1 {
			close(entered)
		}
		<-release
		return LoadDocuments(src, column)
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := r.Query(ctxA, "curriculum_guideline", "fractions", "")
		errA <- err
	}()
	<-entered

	type result struct {
		passages []Passage
		err      error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := r.Query(context.Background(), "curriculum_guideline", "fractions", "")
		resB <- result{p, err}
	}()

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: expected context.Canceled, got %v", err)
	}
	close(release)

	got := <-resB
	if got.err != nil {
		t.Fatalf("waiting caller failed with %v", got.err)
	}
	if len(got.passages) == 0 {
		t.Fatalf("waiting caller got no passages")
	}
	if n := atomic.LoadInt64(&loads); n != 1 {
		t.Fatalf("expected one shared build, got %d", n)
	}
}

func TestInvalidateClosesDroppedIndex(t *testing.T) {
	r := newTestRetriever(t, nil)
	ctx := context.Background()
	if _, err := r.Query(ctx, "curriculum_guideline", "fractions", ""); err != nil {
		t.Fatalf("Query: %v", err)
	}
	old := r.indexes[indexKey{source: "curriculum_guideline", column: DefaultColumn}]
	if old == nil {
		t.Fatalf("expected a cached index")
	}

	r.Invalidate("curriculum_guideline")
	if _, err := old.Search("fractions", nil, 2); !errors.Is(err, ErrIndexClosed) {
		t.Fatalf("expected dropped index to be closed, got %v", err)
	}
	if err := old.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	got, err := r.Query(ctx, "curriculum_guideline", "fractions", "")
	if err != nil || len(got) == 0 {
		t.Fatalf("Query after invalidate: %v (%d passages)", err, len(got))
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(r.indexes) != 0 {
		t.Fatalf("expected Close to drop every index")
	}
}

// keywordEmbedder maps texts onto a two-dimensional space: plants vs maths.
type keywordEmbedder struct {
	calls int64
	fail  bool
}

func (e *keywordEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	atomic.AddInt64(&e.calls, 1)
	if e.fail {
		return nil, errors.New("rate limited")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		switch {
		case strings.Contains(t, "plants"), strings.Contains(t, "botany"):
			out[i] = []float32{1, 0}
		default:
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func TestHybridSearchUsesVectors(t *testing.T) {
	emb := &keywordEmbedder{}
	r := newTestRetriever(t, emb)
	// No keyword overlap with the science row; only the vector match finds it.
	got, err := r.Query(context.Background(), "curriculum_guideline", "botany", "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) == 0 || got[0].Metadata["subject"] != "science" {
		t.Fatalf("expected the science row first, got %+v", got)
	}
}

func TestEmbeddingFailureIsTyped(t *testing.T) {
	r := newTestRetriever(t, &keywordEmbedder{fail: true})
	_, err := r.Query(context.Background(), "curriculum_guideline", "fractions", "")
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
}

func TestRefresherInvalidatesChangedSources(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	if _, err := NewRefresher("not a cron", nil, nil); err == nil {
		t.Fatalf("expected parse error")
	}

	r := newTestRetriever(t, nil)
	ctx := context.Background()
	for _, name := range r.Sources() {
		if _, err := r.Warm(ctx, name, ""); err != nil {
			t.Fatalf("Warm %s: %v", name, err)
		}
	}

	// Seven-field expressions start with seconds; fire every second.
	f, err := NewRefresher("* * * * * * *", r, nil)
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	f.Start(ctx)
	src, _ := r.Source("curriculum_guideline")
	if err := os.WriteFile(src.Path, []byte(guidelineCSV+"5,art,4,Colour wheels.,core\n"), 0o644); err != nil {
		t.Fatalf("rewrite source: %v", err)
	}

	cached := func(source string) bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for k := range r.indexes {
			if k.source == source {
				return true
			}
		}
		return false
	}
	deadline := time.Now().Add(3 * time.Second)
	for cached("curriculum_guideline") {
		if time.Now().After(deadline) {
			f.Stop()
			t.Fatalf("refresher never invalidated the edited source")
		}
		time.Sleep(20 * time.Millisecond)
	}
	f.Stop()
	f.Stop()
	if !cached("lesson_template") {
		t.Fatalf("unchanged source must keep its index")
	}
}

func TestRefresherMaxAge(t *testing.T) {
	r := newTestRetriever(t, nil)
	f, err := NewRefresher("@daily", r, nil, WithMaxAge(time.Hour))
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	if got := f.scan(false); len(got) != 0 {
		t.Fatalf("priming must not invalidate, got %v", got)
	}
	now = now.Add(30 * time.Minute)
	if got := f.scan(true); len(got) != 0 {
		t.Fatalf("fresh sources invalidated: %v", got)
	}
	now = now.Add(time.Hour)
	if got := f.scan(true); len(got) != 2 {
		t.Fatalf("expected both stale sources invalidated, got %v", got)
	}

	f.read = func(string) ([]byte, error) { return nil, os.ErrNotExist }
	if got := f.scan(true); len(got) != 2 {
		t.Fatalf("unreadable sources must be invalidated, got %v", got)
	}
}

func TestRefresherStopWithoutStart(t *testing.T) {
	f, err := NewRefresher("@daily", newTestRetriever(t, nil), nil)
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	f.Stop()
}
