package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestClaimTask_AtomicCompareAndSet(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateTask(&Task{ID: "t1", Title: "Research token bucket algorithms", Priority: PriorityMedium}))

	got, err := s.ClaimTask("t1", "owner-a", time.Minute)
	require.NoError(t, err)
	require.Equal(t, StatusClaimed, got.Status)
	require.NotNil(t, got.Claim)
	require.Equal(t, "owner-a", got.Claim.Owner)

	// A second claim attempt must fail: at most one active claim per task.
	_, err = s.ClaimTask("t1", "owner-b", time.Minute)
	require.Error(t, err)
}

func TestClaimHeartbeatComplete_LeavesNoActiveClaim(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateTask(&Task{ID: "t1", Title: "x", Priority: PriorityHigh}))

	_, err := s.ClaimTask("t1", "owner-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Heartbeat("t1", "owner-a", time.Minute))
	require.NoError(t, s.BeginWork("t1", "owner-a"))
	require.NoError(t, s.Complete("t1", "owner-a", "done"))

	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Nil(t, got.Claim)
}

func TestSweepExpiredClaims_RevertsThenFails(t *testing.T) {
	s := openTestStore(t)
	s.SetClaimFailureLimit(1)
	require.NoError(t, s.CreateTask(&Task{ID: "t1", Title: "x", Priority: PriorityLow}))

	now := time.Now()
	Now = func() time.Time { return now }
	defer func() { Now = time.Now }()

	_, err := s.ClaimTask("t1", "owner-a", -time.Second) // already expired
	require.NoError(t, err)

	reverted, failed, err := s.SweepExpiredClaims()
	require.NoError(t, err)
	require.Equal(t, 1, reverted)
	require.Equal(t, 0, failed)

	got, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 1, got.ClaimFailures)

	_, err = s.ClaimTask("t1", "owner-b", -time.Second)
	require.NoError(t, err)
	reverted, failed, err = s.SweepExpiredClaims()
	require.NoError(t, err)
	require.Equal(t, 0, reverted)
	require.Equal(t, 1, failed)

	got, err = s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.NotEmpty(t, got.FailReason)
}

func TestNextEligible_RespectsDependenciesAndPriority(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateTask(&Task{ID: "dep", Title: "dependency", Priority: PriorityLow}))
	require.NoError(t, s.CreateTask(&Task{ID: "blocked", Title: "blocked", Priority: PriorityCritical, Dependencies: []string{"dep"}}))
	require.NoError(t, s.CreateTask(&Task{ID: "ready", Title: "ready", Priority: PriorityMedium}))

	next, err := s.NextEligible()
	require.NoError(t, err)
	require.NotNil(t, next)
	// "blocked" outranks "ready" by priority but its dependency isn't done.
	require.Equal(t, "ready", next.ID)

	_, err = s.ClaimTask("dep", "owner", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.BeginWork("dep", "owner"))
	require.NoError(t, s.Complete("dep", "owner", "done"))

	next, err = s.NextEligible()
	require.NoError(t, err)
	require.Equal(t, "blocked", next.ID)
}
