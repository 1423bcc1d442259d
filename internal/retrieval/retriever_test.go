package retrieval

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"loopctl/internal/embedding"
	"loopctl/internal/memory"
	"loopctl/internal/vector"
)

func openTestRetriever(t *testing.T) (*ContextRetriever, *memory.Store, *vector.Store) {
	t.Helper()
	mem, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	vec, err := vector.Open(mem.DB(), embedding.NewLocalHashEngine(64), vector.CircuitBreakerConfig{})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.TokenBudget = intPtr(2000)
	return New(mem, vec, cfg), mem, vec
}

func intPtr(v int) *int { return &v }

func seedOrchestration(t *testing.T, mem *memory.Store, vec *vector.Store, id, summary string, importance int) {
	t.Helper()
	require.NoError(t, mem.RecordOrchestration(&memory.Orchestration{
		ID:            id,
		Pattern:       memory.PatternParallel,
		ResultSummary: summary,
		Success:       true,
	}))
	require.NoError(t, mem.RecordObservation(&memory.Observation{
		ID:              id + "-obs",
		OrchestrationID: id,
		Type:            memory.ObsDiscovery,
		Content:         summary,
		Importance:      importance,
	}))
	if vec != nil {
		require.NoError(t, vec.AddEmbedding(context.Background(), id, summary, nil))
	}
}

func TestRetrieve_ReturnsLayer1AndLayer2_ForMatchingQuery(t *testing.T) {
	cr, mem, vecStore := openTestRetriever(t)

	seedOrchestration(t, mem, vecStore, "orch-1", "Implemented token bucket rate limiting for the API gateway", 8)
	seedOrchestration(t, mem, vecStore, "orch-2", "Refactored the authentication middleware", 4)

	ctx := context.Background()
	result, err := cr.Retrieve(ctx, Request{
		Query:           "token bucket rate limiting",
		TaskFingerprint: "fp-1",
		AgentIDs:        []string{"agent-a"},
		Pattern:         memory.PatternParallel,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Layer1)
	require.Equal(t, "orch-1", result.Layer1[0].ID)
	require.NotEmpty(t, result.Layer2)
	require.Greater(t, result.TokenCount, 0)
}

func TestRetrieve_CachesIdenticalRequests(t *testing.T) {
	cr, mem, _ := openTestRetriever(t)
	seedOrchestration(t, mem, nil, "orch-1", "Wrote integration tests for the payment gateway", 5)

	ctx := context.Background()
	req := Request{Query: "payment gateway tests", TaskFingerprint: "fp-2", Pattern: memory.PatternDebate}

	first, err := cr.Retrieve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 1, cr.cache.Len())

	second, err := cr.Retrieve(ctx, req)
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestRetrieve_TinyBudgetReturnsLayer1Only(t *testing.T) {
	cr, mem, _ := openTestRetriever(t)
	seedOrchestration(t, mem, nil, "orch-1", "Investigated flaky CI due to network timeouts in the test harness", 6)

	ctx := context.Background()
	result, err := cr.Retrieve(ctx, Request{
		Query:           "flaky CI network timeouts",
		TaskFingerprint: "fp-3",
		TokenBudget:     intPtr(50),
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Layer1)
	require.Empty(t, result.Layer2)
}

func TestRetrieve_ExplicitZeroBudgetReturnsEmptyLayer1(t *testing.T) {
	cr, mem, _ := openTestRetriever(t)
	seedOrchestration(t, mem, nil, "orch-1", "Investigated flaky CI due to network timeouts in the test harness", 6)

	ctx := context.Background()
	result, err := cr.Retrieve(ctx, Request{
		Query:           "flaky CI network timeouts",
		TaskFingerprint: "fp-zero",
		TokenBudget:     intPtr(0),
	})
	require.NoError(t, err)
	require.Empty(t, result.Layer1)
	require.Empty(t, result.Layer2)
	require.Equal(t, 0, result.TokenCount)
}

func TestRetrieve_UnsetBudgetFallsBackToConfiguredDefault(t *testing.T) {
	cr, mem, _ := openTestRetriever(t)
	seedOrchestration(t, mem, nil, "orch-1", "Implemented token bucket rate limiting for the API gateway", 8)

	ctx := context.Background()
	result, err := cr.Retrieve(ctx, Request{
		Query:           "token bucket rate limiting",
		TaskFingerprint: "fp-unset",
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Layer1)
}

func TestRetrieve_EmptyHistoryReturnsEmptyContext(t *testing.T) {
	cr, _, _ := openTestRetriever(t)
	ctx := context.Background()
	result, err := cr.Retrieve(ctx, Request{Query: "anything", TaskFingerprint: "fp-4"})
	require.NoError(t, err)
	require.Empty(t, result.Layer1)
	require.Empty(t, result.Layer2)
	require.Equal(t, 0, result.TokenCount)
}

func TestCacheKey_DiffersByPatternAndAgents(t *testing.T) {
	k1 := CacheKey("fp", []string{"a", "b"}, "debate")
	k2 := CacheKey("fp", []string{"a", "b"}, "consensus")
	k3 := CacheKey("fp", []string{"a"}, "debate")
	require.NotEqual(t, k1, k2)
	require.NotEqual(t, k1, k3)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2, time.Minute)
	c.Put("a", &Context{TokenCount: 1})
	c.Put("b", &Context{TokenCount: 2})
	_, _ = c.Get("a") // touch a, making b the LRU entry
	c.Put("c", &Context{TokenCount: 3})

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	require.True(t, aOK)
	require.False(t, bOK)
	require.True(t, cOK)
}
