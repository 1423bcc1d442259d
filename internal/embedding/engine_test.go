package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalHashEngine_SameTextProducesSameVector(t *testing.T) {
	e := NewLocalHashEngine(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "migrate the database schema")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "migrate the database schema")
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Equal(t, 64, e.Dimensions())
	require.Equal(t, "local-hash", e.Name())
}

func TestLocalHashEngine_VectorIsL2Normalized(t *testing.T) {
	e := NewLocalHashEngine(32)
	vec, err := e.Embed(context.Background(), "add a new api endpoint for user lookups")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestLocalHashEngine_EmptyTextIsTheZeroVector(t *testing.T) {
	e := NewLocalHashEngine(16)
	vec, err := e.Embed(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		require.Zero(t, v)
	}
}

func TestNewLocalHashEngine_NonPositiveDimsFallsBackToDefault(t *testing.T) {
	e := NewLocalHashEngine(0)
	require.Equal(t, 256, e.Dimensions())
}

func TestLocalHashEngine_DissimilarTextDivergesFromSimilarText(t *testing.T) {
	e := NewLocalHashEngine(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "fix typo in README")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "fix typo in README file")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "implement a complete authentication system")
	require.NoError(t, err)

	require.Greater(t, cosine(a, b), cosine(a, c))
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
