package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/lessonplanner/config"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("lessonplanner/retrieval")

const DefaultColumn = "content"

const defaultBuildTimeout = 2 * time.Minute

var ErrUnknownSource = errors.New("unknown document source")

// Source is a named document collection.
type Source struct {
	Name   string
	Path   string
	Column string
	Label  string
}

// Passage is one ranked chunk returned by a query.
type Passage struct {
	Text     string            `json:"text"`
	Source   string            `json:"source"`
	Score    float64           `json:"score"`
	ChunkID  string            `json:"chunkId,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PassageKey identifies a memoized query result.
type PassageKey struct {
	Source string
	Query  string
	Column string
}

type indexKey struct {
	source string
	column string
}

type loadFunc func(src Source, column string) ([]Document, error)

// Retriever answers passage queries against configured sources. Indexes and
// ranked passages are memoized; concurrent misses on the same key share one
// build. Failed builds are not cached.
type Retriever struct {
	sources  map[string]Source
	embedder Embedder
	splitter Splitter
	topK     int
	timeout  time.Duration
	log      *logger.Logger
	load     loadFunc

	group singleflight.Group

	mu       sync.RWMutex
	gen      uint64
	indexes  map[indexKey]*Index
	passages map[PassageKey][]Passage
}

// NewRetriever builds a retriever from config. embedder may be nil, in which
// case ranking is keyword only.
func NewRetriever(cfg config.RetrievalConfig, embedder Embedder, log *logger.Logger) *Retriever {
	cfg = cfg.Normalize()
	if log == nil {
		log = logger.Nop()
	}
	sources := make(map[string]Source, len(cfg.Sources))
	for name, sc := range cfg.Sources {
		sources[name] = Source{Name: name, Path: sc.Path, Column: sc.Column, Label: sc.Label}
	}
	return &Retriever{
		sources:  sources,
		embedder: embedder,
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		topK:     cfg.TopK,
		timeout:  cfg.BuildTimeout,
		log:      log,
		load:     LoadDocuments,
		indexes:  make(map[indexKey]*Index),
		passages: make(map[PassageKey][]Passage),
	}
}

// Source returns the named source.
func (r *Retriever) Source(name string) (Source, bool) {
	s, ok := r.sources[name]
	return s, ok
}

// Sources lists configured source names in sorted order.
func (r *Retriever) Sources() []string {
	out := make([]string, 0, len(r.sources))
	for name := range r.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Retriever) column(src Source, column string) string {
	if column = strings.TrimSpace(column); column != "" {
		return column
	}
	if src.Column != "" {
		return src.Column
	}
	return DefaultColumn
}

// Query returns the top passages for query in source. Repeated calls with the
// same key return the same slice, so callers must not modify it.
func (r *Retriever) Query(ctx context.Context, source, query, column string) ([]Passage, error) {
	src, ok := r.sources[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	key := PassageKey{Source: source, Query: query, Column: r.column(src, column)}

	r.mu.RLock()
	cached, ok := r.passages[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	ctx, span := tracer.Start(ctx, "retrieval.Query")
	defer span.End()
	span.SetAttributes(attribute.String("source", source), attribute.String("column", key.Column))

	v, err := r.shared(ctx, "q\x00"+key.Source+"\x00"+key.Column+"\x00"+key.Query, func(ctx context.Context) (interface{}, error) {
		r.mu.RLock()
		gen := r.gen
		if p, ok := r.passages[key]; ok {
			r.mu.RUnlock()
			return p, nil
		}
		r.mu.RUnlock()

		passages, err := r.search(ctx, src, key)
		// An invalidation can close the index between lookup and search.
		if errors.Is(err, ErrIndexClosed) {
			passages, err = r.search(ctx, src, key)
		}
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.gen == gen {
			r.passages[key] = passages
		}
		r.mu.Unlock()
		return passages, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return v.([]Passage), nil
}

func (r *Retriever) search(ctx context.Context, src Source, key PassageKey) ([]Passage, error) {
	idx, err := r.index(ctx, src, key.Column)
	if err != nil {
		return nil, err
	}
	if !r.cachedIndex(src.Name, key.Column, idx) {
		defer idx.Close()
	}
	var qvec []float32
	if idx.Semantic() && strings.TrimSpace(key.Query) != "" {
		vecs, err := r.embedder.EmbedMany(ctx, []string{key.Query})
		if err != nil || len(vecs) != 1 {
			if err == nil {
				err = fmt.Errorf("got %d query vectors", len(vecs))
			}
			return nil, &EmbeddingError{Source: src.Name, Err: err}
		}
		qvec = vecs[0]
	}
	return idx.Search(key.Query, qvec, r.topK)
}

// cachedIndex reports whether idx is the live cached index for the key. An
// index built across an invalidation is never cached and belongs to its
// caller.
func (r *Retriever) cachedIndex(source, column string, idx *Index) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexes[indexKey{source: source, column: column}] == idx
}

// shared runs fn once per key on a context detached from any single caller
// and returns when fn finishes or ctx is done. A caller giving up does not
// fail the others waiting on the same key.
func (r *Retriever) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = defaultBuildTimeout
	}
	ch := r.group.DoChan(key, func() (interface{}, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return fn(bctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// index returns the memoized index for (src, column), building it at most once
// concurrently.
func (r *Retriever) index(ctx context.Context, src Source, column string) (*Index, error) {
	key := indexKey{source: src.Name, column: column}
	r.mu.RLock()
	idx, ok := r.indexes[key]
	gen := r.gen
	r.mu.RUnlock()
	if ok {
		return idx, nil
	}

	v, err := r.shared(ctx, "i\x00"+key.source+"\x00"+key.column, func(ctx context.Context) (interface{}, error) {
		r.mu.RLock()
		if idx, ok := r.indexes[key]; ok {
			r.mu.RUnlock()
			return idx, nil
		}
		r.mu.RUnlock()

		docs, err := r.load(src, column)
		if err != nil {
			return nil, err
		}
		chunks, err := r.splitter.Split(docs)
		if err != nil {
			return nil, &LoadError{Source: src.Name, Path: src.Path, Err: err}
		}
		idx, err := BuildIndex(ctx, src, column, chunks, r.embedder)
		if err != nil {
			return nil, err
		}
		r.log.Info("document index built", "source", src.Name, "column", column, "documents", len(docs), "chunks", idx.Len())

		r.mu.Lock()
		if r.gen == gen {
			r.indexes[key] = idx
		}
		r.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Index), nil
}

// Warm builds the index for (source, column) ahead of the first query.
func (r *Retriever) Warm(ctx context.Context, source, column string) (int, error) {
	src, ok := r.sources[source]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	column = r.column(src, column)
	idx, err := r.index(ctx, src, column)
	if err != nil {
		return 0, err
	}
	if !r.cachedIndex(src.Name, column, idx) {
		defer idx.Close()
	}
	return idx.Len(), nil
}

// Invalidate drops and closes the cached indexes and passages of source.
// Searches already running on a dropped index finish before it closes.
func (r *Retriever) Invalidate(source string) {
	r.mu.Lock()
	r.gen++
	var dropped []*Index
	for k, idx := range r.indexes {
		if k.source == source {
			dropped = append(dropped, idx)
			delete(r.indexes, k)
		}
	}
	for k := range r.passages {
		if k.Source == source {
			delete(r.passages, k)
		}
	}
	r.mu.Unlock()
	r.closeAll(dropped)
}

// InvalidateAll drops and closes every cached index and passage list.
func (r *Retriever) InvalidateAll() {
	r.mu.Lock()
	r.gen++
	dropped := make([]*Index, 0, len(r.indexes))
	for _, idx := range r.indexes {
		dropped = append(dropped, idx)
	}
	r.indexes = make(map[indexKey]*Index)
	r.passages = make(map[PassageKey][]Passage)
	r.mu.Unlock()
	r.closeAll(dropped)
}

// Close releases every cached index.
func (r *Retriever) Close() error {
	r.InvalidateAll()
	return nil
}

func (r *Retriever) closeAll(indexes []*Index) {
	for _, idx := range indexes {
		if err := idx.Close(); err != nil {
			r.log.Warn("close document index", "source", idx.source.Name, "column", idx.column, "error", err)
		}
	}
}
