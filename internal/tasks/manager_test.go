package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loopctl/internal/memory"
)

func openTestManager(t *testing.T) (*Manager, *memory.Store) {
	t.Helper()
	mem, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })
	return New(mem, 50*time.Millisecond), mem
}

func TestManager_CreateAssignsIDWhenBlank(t *testing.T) {
	m, _ := openTestManager(t)
	task, err := m.Create(&memory.Task{Title: "investigate flaky test", Priority: memory.PriorityHigh})
	require.NoError(t, err)
	require.NotEmpty(t, task.ID)

	got, err := m.Get(task.ID)
	require.NoError(t, err)
	require.Equal(t, "investigate flaky test", got.Title)
}

func TestManager_NextReturnsOnlyDependencyEligibleTasks(t *testing.T) {
	m, _ := openTestManager(t)
	_, err := m.Create(&memory.Task{ID: "t1", Title: "base", Priority: memory.PriorityMedium})
	require.NoError(t, err)
	_, err = m.Create(&memory.Task{ID: "t2", Title: "depends on t1", Priority: memory.PriorityCritical, Dependencies: []string{"t1"}})
	require.NoError(t, err)

	next, err := m.Next()
	require.NoError(t, err)
	require.Equal(t, "t1", next.ID, "t2 is higher priority but blocked on an incomplete dependency")

	_, err = m.Claim("t1", "owner-a")
	require.NoError(t, err)
	require.NoError(t, m.Complete("t1", "owner-a", "done"))

	next, err = m.Next()
	require.NoError(t, err)
	require.Equal(t, "t2", next.ID)
}

func TestManager_ClaimHeartbeatComplete(t *testing.T) {
	m, _ := openTestManager(t)
	_, err := m.Create(&memory.Task{ID: "t1", Title: "x", Priority: memory.PriorityLow})
	require.NoError(t, err)

	task, err := m.Claim("t1", "owner-a")
	require.NoError(t, err)
	require.Equal(t, memory.StatusInProgress, task.Status)

	require.NoError(t, m.Heartbeat("t1", "owner-a"))
	require.NoError(t, m.Complete("t1", "owner-a", "shipped"))

	got, err := m.Get("t1")
	require.NoError(t, err)
	require.Equal(t, memory.StatusCompleted, got.Status)
}

func TestManager_FailResetsAcceptanceCriteria(t *testing.T) {
	m, _ := openTestManager(t)
	_, err := m.Create(&memory.Task{
		ID: "t1", Title: "x", Priority: memory.PriorityMedium,
		AcceptanceCriteria: []string{"builds", "tests pass"},
	})
	require.NoError(t, err)

	_, err = m.Claim("t1", "owner-a")
	require.NoError(t, err)
	require.NoError(t, m.MarkCriterionMet("t1", 0))

	ok, err := m.AllCriteriaMet("t1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.Fail("t1", "owner-a", "build broke"))

	got, err := m.Get("t1")
	require.NoError(t, err)
	require.Equal(t, memory.StatusFailed, got.Status)
	require.Equal(t, []bool{false, false}, got.CriteriaMet)
}

func TestManager_AllCriteriaMetWhenAllMarked(t *testing.T) {
	m, _ := openTestManager(t)
	_, err := m.Create(&memory.Task{
		ID: "t1", Title: "x", Priority: memory.PriorityMedium,
		AcceptanceCriteria: []string{"builds"},
	})
	require.NoError(t, err)
	require.NoError(t, m.MarkCriterionMet("t1", 0))

	ok, err := m.AllCriteriaMet("t1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestManager_SweepExpiredClaimsRevertsLapsedLease(t *testing.T) {
	m, _ := openTestManager(t)
	_, err := m.Create(&memory.Task{ID: "t1", Title: "x", Priority: memory.PriorityMedium})
	require.NoError(t, err)
	_, err = m.Claim("t1", "owner-a")
	require.NoError(t, err)

	time.Sleep(75 * time.Millisecond)

	reverted, failed, err := m.SweepExpiredClaims()
	require.NoError(t, err)
	require.Equal(t, 1, reverted)
	require.Equal(t, 0, failed)

	got, err := m.Get("t1")
	require.NoError(t, err)
	require.Equal(t, memory.StatusPending, got.Status)
}
