package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/blevesearch/bleve"
)

const rrfK = 60 // reciprocal-rank-fusion constant

// candidateFactor widens each ranked list before fusion.
const candidateFactor = 3

// ErrIndexClosed is returned by Search on an index dropped by invalidation.
var ErrIndexClosed = errors.New("index closed")

// Embedder turns texts into vectors, one per input.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingError reports a failure to embed chunks or the query.
type EmbeddingError struct {
	Source string
	Err    error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed %s: %v", e.Source, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

type hit struct {
	id    string
	score float64
	rank  int
}

// Index is an immutable hybrid index over the chunks of one (source, column).
// Lexical scoring uses an in-memory bleve index; semantic scoring uses cosine
// similarity over vectors held in memory.
type Index struct {
	source  Source
	column  string
	bleve   bleve.Index
	chunks  map[string]Chunk
	ids     []string
	vectors map[string][]float32

	mu     sync.RWMutex
	closed bool
}

// BuildIndex indexes chunks and, when embedder is non-nil, embeds them.
func BuildIndex(ctx context.Context, src Source, column string, chunks []Chunk, embedder Embedder) (_ *Index, err error) {
	bi, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	idx := &Index{
		source: src,
		column: column,
		bleve:  bi,
		chunks: make(map[string]Chunk, len(chunks)),
		ids:    make([]string, 0, len(chunks)),
	}
	defer func() {
		if err != nil {
			_ = bi.Close()
		}
	}()
	batch := bi.NewBatch()
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if err := batch.Index(c.ID, map[string]interface{}{"text": c.Text}); err != nil {
			return nil, fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
		idx.chunks[c.ID] = c
		idx.ids = append(idx.ids, c.ID)
		texts = append(texts, c.Text)
	}
	if err := bi.Batch(batch); err != nil {
		return nil, fmt.Errorf("index batch: %w", err)
	}

	if embedder != nil && len(texts) > 0 {
		var vecs [][]float32
		vecs, err = embedder.EmbedMany(ctx, texts)
		if err != nil {
			return nil, &EmbeddingError{Source: src.Name, Err: err}
		}
		if len(vecs) != len(texts) {
			return nil, &EmbeddingError{Source: src.Name, Err: fmt.Errorf("got %d vectors for %d chunks", len(vecs), len(texts))}
		}
		idx.vectors = make(map[string][]float32, len(vecs))
		for i, id := range idx.ids {
			idx.vectors[id] = vecs[i]
		}
	}
	return idx, nil
}

// Len is the number of indexed chunks.
func (x *Index) Len() int { return len(x.ids) }

// Semantic reports whether the index carries vectors.
func (x *Index) Semantic() bool { return x.vectors != nil }

func (x *Index) keywordSearch(q string, k int) ([]hit, error) {
	query := bleve.NewMatchQuery(q)
	query.SetField("text")
	req := bleve.NewSearchRequestOptions(query, k, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	res, err := x.bleve.Search(req)
	if err != nil {
		return nil, err
	}
	out := make([]hit, 0, len(res.Hits))
	for i, h := range res.Hits {
		out = append(out, hit{id: h.ID, score: h.Score, rank: i + 1})
	}
	return out, nil
}

func (x *Index) vectorSearch(q []float32, k int) []hit {
	if len(q) == 0 || x.vectors == nil {
		return nil
	}
	out := make([]hit, 0, len(x.ids))
	for _, id := range x.ids {
		out = append(out, hit{id: id, score: cosine(q, x.vectors[id])})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	if len(out) > k {
		out = out[:k]
	}
	for i := range out {
		out[i].rank = i + 1
	}
	return out
}

// Search ranks chunks for the query text and optional query vector and returns
// the top k passages. Equal fused scores are ordered by chunk id.
func (x *Index) Search(q string, qvec []float32, k int) ([]Passage, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrIndexClosed
	}
	if k <= 0 || len(x.ids) == 0 {
		return []Passage{}, nil
	}
	lexical, err := x.keywordSearch(q, k*candidateFactor)
	if err != nil {
		return nil, fmt.Errorf("keyword search %s: %w", x.source.Name, err)
	}
	fused := fuseRRF(lexical, x.vectorSearch(qvec, k*candidateFactor))
	if len(fused) > k {
		fused = fused[:k]
	}
	out := make([]Passage, 0, len(fused))
	for _, h := range fused {
		c := x.chunks[h.id]
		out = append(out, Passage{
			Text:     c.Text,
			Source:   x.source.Label,
			Score:    h.score,
			ChunkID:  c.ID,
			Metadata: c.Metadata,
		})
	}
	return out, nil
}

// Close releases the bleve index once in-flight searches finish. It is safe
// to call more than once.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return x.bleve.Close()
}

func fuseRRF(lists ...[]hit) []hit {
	scores := map[string]float64{}
	for _, list := range lists {
		for _, h := range list {
			scores[h.id] += 1.0 / float64(rrfK+h.rank)
		}
	}
	out := make([]hit, 0, len(scores))
	for id, s := range scores {
		out = append(out, hit{id: id, score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].id < out[j].id
	})
	for i := range out {
		out[i].rank = i + 1
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		na += ai * ai
		nb += bi * bi
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
