// Package embed provides the deterministic, dependency-free embedder
// the knowledge store uses to turn item text into a fixed-width dense
// vector for cosine search. Grounded on the EmbeddingFunc seam in
// services/gateway/caching/caching.go (caller supplies an embedding
// function wrapping "the provider registry's embedding endpoint") —
// here there is no upstream provider to call, so the seam is filled
// with a local, reproducible hash-based embedding instead. Results are
// memoized in an LRU (hashicorp/golang-lru/v2, the same package the
// teacher's routing package uses for its model-selection cache) keyed
// on the normalized text, since a knowledge-base's notes repeat
// phrases often (the same decision, paraphrased, across sessions).
package embed

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AlfredDev/orchestratord/internal/model"
)

// DefaultCacheSize is the number of distinct texts memoized.
const DefaultCacheSize = 1024

// Embedder turns text into a fixed-width unit vector.
type Embedder interface {
	Embed(text string) []float64
}

// HashEmbedder derives a deterministic embedding from repeated SHA-256
// hashing: each output dimension comes from a distinct hash round
// seeded with its index, so the same text always yields the same
// vector and unrelated texts scatter near-orthogonally. Not a
// semantic embedding — captures no meaning — but it's stable,
// dependency-free, and behaves correctly as a cosine-similarity key
// for exact and near-exact repeats, which is what the knowledge
// store's "find things like this" operation actually needs offline.
type HashEmbedder struct {
	cache *lru.Cache[string, []float64]
}

// New builds a HashEmbedder with an LRU cache of the given size.
func New(cacheSize int) *HashEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	c, _ := lru.New[string, []float64](cacheSize)
	return &HashEmbedder{cache: c}
}

// Embed returns a model.EmbeddingDim-length unit vector for text.
func (e *HashEmbedder) Embed(text string) []float64 {
	key := normalize(text)
	if v, ok := e.cache.Get(key); ok {
		return v
	}

	v := hashVector(key)
	e.cache.Add(key, v)
	return v
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// wordsPerDigest is how many uint64 words a single SHA-256 digest
// (32 bytes) yields.
const wordsPerDigest = 4

func hashVector(text string) []float64 {
	out := make([]float64, model.EmbeddingDim)
	buf := make([]byte, 8)

	var digest []byte
	for i := 0; i < model.EmbeddingDim; i++ {
		if i%wordsPerDigest == 0 {
			binary.BigEndian.PutUint64(buf, uint64(i/wordsPerDigest))
			h := sha256.New()
			h.Write([]byte(text))
			h.Write(buf)
			digest = h.Sum(nil)
		}
		offset := (i % wordsPerDigest) * 8
		word := binary.BigEndian.Uint64(digest[offset : offset+8])
		out[i] = (float64(word%20001) - 10000) / 10000
	}

	normalize64(out)
	return out
}

func normalize64(v []float64) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}
