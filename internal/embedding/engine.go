// Package embedding defines the embedding-generation interface consumed by
// the vector store. Real embedding providers are external collaborators
// (spec §1 scopes LLM/embedding providers out as invoked-through-an-
// abstraction); this package carries the interface plus a deterministic
// local engine so the rest of the system and its tests never depend on a
// network call, mirroring the teacher's embedding.EmbeddingEngine
// interface shape.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Engine generates fixed-dimension embeddings for text.
type Engine interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LocalHashEngine is a deterministic, dependency-free Engine: it FNV-hashes
// each lower-cased, whitespace-separated word into one bucket of a
// fixed-width vector and L2-normalizes it. It is not semantically rich, but it is stable (same text -> same
// vector) and gives cosine similarity a meaningful signal for near-
// duplicate and keyword-overlapping text, which is what the test suite
// and any offline/air-gapped deployment need.
type LocalHashEngine struct {
	dims int
}

// NewLocalHashEngine creates an engine with the given vector width.
func NewLocalHashEngine(dims int) *LocalHashEngine {
	if dims <= 0 {
		dims = 256
	}
	return &LocalHashEngine{dims: dims}
}

func (e *LocalHashEngine) Name() string    { return "local-hash" }
func (e *LocalHashEngine) Dimensions() int { return e.dims }

func (e *LocalHashEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	words := strings.Fields(strings.ToLower(text))
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		idx := int(h.Sum32()) % e.dims
		if idx < 0 {
			idx += e.dims
		}
		vec[idx]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}
