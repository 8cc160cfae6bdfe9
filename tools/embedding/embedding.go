package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mohammad-safakhou/lessonplanner/provider"
)

const DefaultBatchSize = 64

// Cache stores vectors by content key. Misses are simply absent from the
// returned map.
type Cache interface {
	GetVectors(ctx context.Context, keys []string) (map[string][]float32, error)
	SetVectors(ctx context.Context, vecs map[string][]float32) error
}

type Embedding struct {
	provider  provider.Provider
	cache     Cache
	batchSize int
}

type EmbedVec struct {
	DocID string
	Vec   []float32
}

type Option func(*Embedding)

// WithCache puts cache in front of the provider. Cache failures are ignored.
func WithCache(c Cache) Option {
	return func(e *Embedding) { e.cache = c }
}

func WithBatchSize(n int) Option {
	return func(e *Embedding) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

func NewEmbedding(provider provider.Provider, opts ...Option) *Embedding {
	e := &Embedding{
		provider:  provider,
		batchSize: DefaultBatchSize,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Key identifies text embedded by a given provider.
func (e *Embedding) Key(text string) string {
	sum := sha256.Sum256([]byte(e.provider.Name() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// EmbedMany returns one vector per text, in input order.
func (e *Embedding) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = e.Key(t)
	}
	if e.cache != nil {
		if hits, err := e.cache.GetVectors(ctx, keys); err == nil {
			for i, k := range keys {
				if v, ok := hits[k]; ok {
					out[i] = v
				}
			}
		}
	}

	var missing []int
	for i := range out {
		if out[i] == nil {
			missing = append(missing, i)
		}
	}
	fresh := make(map[string][]float32, len(missing))
	for start := 0; start < len(missing); start += e.batchSize {
		end := start + e.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := make([]string, 0, end-start)
		for _, idx := range missing[start:end] {
			batch = append(batch, texts[idx])
		}
		vecs, err := e.provider.Embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedding: provider returned %d vectors for %d inputs", len(vecs), len(batch))
		}
		for j, idx := range missing[start:end] {
			out[idx] = vecs[j]
			fresh[keys[idx]] = vecs[j]
		}
	}
	if e.cache != nil && len(fresh) > 0 {
		_ = e.cache.SetVectors(ctx, fresh)
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (e *Embedding) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
