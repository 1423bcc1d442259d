package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_PrefixesTheIdentifier(t *testing.T) {
	id := New("task")
	require.True(t, strings.HasPrefix(id, "task_"))
}

func TestNew_IsGloballyUniqueAcrossCalls(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New("orch")
		require.False(t, seen[id], "collision at iteration %d: %s", i, id)
		seen[id] = true
	}
}
