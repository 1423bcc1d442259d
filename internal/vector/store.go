// Package vector implements the Vector Store (V): semantic similarity
// search over orchestrations and observations (spec §4.2). Embeddings are
// stored as JSON-encoded float32 blobs in the same SQLite database the
// Memory Store uses (matching the teacher's store.LocalStore pattern of
// co-locating vectors with the relational rows they describe). The
// sqlite-vec extension is registered behind a build tag (init_vec.go),
// but Store creates no vec index: every search is a linear cosine scan.
package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sync"

	"loopctl/internal/embedding"
	"loopctl/internal/errtax"
	"loopctl/internal/logging"
)

// Record is the spec §3 Vector Record.
type Record struct {
	ID        string
	Embedding []float32
	Metadata  map[string]any
}

// Match is one hit from a similarity search.
type Match struct {
	ID         string
	Similarity float64
	Metadata   map[string]any
}

// Store holds embeddings over a shared *sql.DB (owned by memory.Store;
// callers pass it in so both packages write to the same database file
// without an import cycle between memory and vector).
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	engine embedding.Engine
	dims   int
	cb     *CircuitBreaker
}

// Open creates the vectors table (if absent) against db and returns a
// ready Store using engine for future embeddings.
func Open(db *sql.DB, engine embedding.Engine, cb CircuitBreakerConfig) (*Store, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS vectors (
		id TEXT PRIMARY KEY,
		embedding TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	)`); err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "vector.Open", err)
	}
	s := &Store{db: db, engine: engine, cb: NewCircuitBreaker(cb)}
	if engine != nil {
		s.dims = engine.Dimensions()
	}
	return s, nil
}

// AddEmbedding generates (if needed) and stores an embedding for id.
// Identifiers are unique within the collection (spec §3 invariant): a
// second call with the same id overwrites, it does not duplicate.
func (s *Store) AddEmbedding(ctx context.Context, id, text string, metadata map[string]any) error {
	if s.engine == nil {
		return errtax.Newf(errtax.PersistenceUnavailable, "vector.AddEmbedding", "no embedding engine configured")
	}
	vec, err := s.engine.Embed(ctx, text)
	if err != nil {
		return errtax.New(errtax.Transient, "vector.AddEmbedding.embed", err)
	}
	return s.storeVector(id, vec, metadata)
}

func (s *Store) storeVector(id string, vec []float32, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dims == 0 {
		s.dims = len(vec)
	} else if len(vec) != s.dims {
		return errtax.Newf(errtax.InvariantViolation, "vector.storeVector", "embedding dimension %d != collection dimension %d", len(vec), s.dims)
	}

	embJSON, _ := json.Marshal(vec)
	metaJSON, _ := json.Marshal(metadata)
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO vectors (id, embedding, metadata) VALUES (?, ?, ?)`,
		id, string(embJSON), string(metaJSON),
	)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "vector.storeVector", err)
	}
	return nil
}

// DeleteByID removes an embedding from the collection.
func (s *Store) DeleteByID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM vectors WHERE id = ?`, id)
	if err != nil {
		return errtax.New(errtax.PersistenceUnavailable, "vector.DeleteByID", err)
	}
	return nil
}

// SearchSimilar returns the top `limit` records by cosine similarity to
// queryEmbedding, filtered to similarity >= minSimilarity. When the
// circuit breaker is open, it returns (nil, ErrCircuitOpen) so the caller
// (retrieval.ContextRetriever) falls back to keyword-only results without
// ever surfacing the failure further up (spec §4.2: "every open state is
// logged but never raised to the caller").
func (s *Store) SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int, minSimilarity float64) ([]Match, error) {
	if !s.cb.Allow() {
		logging.Get(logging.CategoryVector).Warn("circuit open, skipping ANN search")
		return nil, ErrCircuitOpen
	}

	matches, err := s.searchLinear(ctx, queryEmbedding, limit, minSimilarity)
	if err != nil {
		s.cb.RecordFailure()
		logging.Get(logging.CategoryVector).Error("search failed: %v", err)
		return nil, err
	}
	s.cb.RecordSuccess()
	return matches, nil
}

func (s *Store) searchLinear(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding, metadata FROM vectors`)
	if err != nil {
		return nil, errtax.New(errtax.PersistenceUnavailable, "vector.searchLinear", err)
	}
	defer rows.Close()

	var all []Match
	for rows.Next() {
		var id, embJSON, metaJSON string
		if err := rows.Scan(&id, &embJSON, &metaJSON); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}
		sim := cosineSimilarity(query, vec)
		if sim < minSimilarity {
			continue
		}
		var meta map[string]any
		_ = json.Unmarshal([]byte(metaJSON), &meta)
		all = append(all, Match{ID: id, Similarity: sim, Metadata: meta})
	}

	sortMatchesDesc(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func sortMatchesDesc(m []Match) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j].Similarity > m[j-1].Similarity; j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Embed is a convenience passthrough so callers that already have an
// engine reference don't need to import the embedding package too.
func (s *Store) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.engine == nil {
		return nil, errtax.Newf(errtax.PersistenceUnavailable, "vector.Embed", "no embedding engine configured")
	}
	return s.engine.Embed(ctx, text)
}
