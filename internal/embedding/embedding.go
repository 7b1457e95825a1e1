// Package embedding defines the embedder provider boundary: the retriever
// and the memory lifecycle build query/document embeddings through a
// narrow Provider interface, keeping models pluggable.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openviking/openviking/internal/ovterrors"
)

// Embedding is one dense+sparse pair for a single input text.
type Embedding struct {
	Dense  []float32
	Sparse map[uint32]float32
}

// Provider turns text into embeddings. Implementations must be safe for
// concurrent use; every call is a suspension point.
type Provider interface {
	// Embed returns one embedding per input text, in order.
	Embed(ctx context.Context, texts []string) ([]Embedding, error)
	// Dimension is the dense vector width this provider produces.
	Dimension() int
}

// HashProvider is the embedded, deterministic provider: token features
// are hashed into a fixed-width dense vector plus tf-weighted sparse
// terms. It involves no network or model weights, embeds identical texts
// identically (cosine 1.0), and keeps related texts closer than unrelated
// ones; enough for the local backend, tests, and air-gapped deployments.
type HashProvider struct {
	dim int
}

// NewHashProvider creates a HashProvider with the given dense dimension
// (minimum 8).
func NewHashProvider(dim int) *HashProvider {
	if dim < 8 {
		dim = 8
	}
	return &HashProvider{dim: dim}
}

func (p *HashProvider) Dimension() int { return p.dim }

func (p *HashProvider) Embed(_ context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	for i, text := range texts {
		out[i] = p.embedOne(text)
	}
	return out, nil
}

func (p *HashProvider) embedOne(text string) Embedding {
	tokens := tokenize(text)
	dense := make([]float32, p.dim)
	sparse := make(map[uint32]float32, len(tokens))

	for _, token := range tokens {
		term := termID(token)
		sparse[term]++

		// Each token contributes a signed pseudo-random pattern derived
		// from its digest, spread over the dense dimensions.
		sum := sha256.Sum256([]byte(token))
		for d := 0; d < p.dim; d++ {
			word := binary.LittleEndian.Uint32(sum[(d*4)%28:])
			sign := float32(1)
			if word&1 == 1 {
				sign = -1
			}
			dense[d%p.dim] += sign * float32((word>>1)%1000) / 1000
		}
	}

	normalize(dense)
	for term, count := range sparse {
		sparse[term] = float32(1 + math.Log(float64(count)))
	}
	return Embedding{Dense: dense, Sparse: sparse}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func termID(token string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(token))
	return h.Sum32()
}

func normalize(v []float32) {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// CachedProvider wraps a Provider with a bounded LRU so repeated queries
// (the common case for hot retrieval paths) skip re-embedding.
type CachedProvider struct {
	inner Provider
	cache *lru.Cache[string, Embedding]
}

// NewCachedProvider wraps inner with an LRU of the given size.
func NewCachedProvider(inner Provider, size int) (*CachedProvider, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, Embedding](size)
	if err != nil {
		return nil, ovterrors.Wrap(ovterrors.Internal, err, "creating embedding cache")
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func (p *CachedProvider) Dimension() int { return p.inner.Dimension() }

func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if emb, ok := p.cache.Get(text); ok {
			out[i] = emb
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	embedded, err := p.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, emb := range embedded {
		out[missingIdx[j]] = emb
		p.cache.Add(missing[j], emb)
	}
	return out, nil
}

// EmbedOne is a convenience for single-text call sites.
func EmbedOne(ctx context.Context, p Provider, text string) (Embedding, error) {
	embs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return embs[0], nil
}
