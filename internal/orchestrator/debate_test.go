package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"loopctl/internal/agentrunner"
)

func TestRunDebate_StopsOnExplicitConvergence(t *testing.T) {
	fake := agentrunner.NewFakeInvoker()
	fake.Script("proposer", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "use a queue"}})
	fake.Script("critic", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "consider backpressure"}})
	fake.Script("proposer", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "use a bounded queue. CONVERGED"}})
	runner := agentrunner.New(fake)

	outputs, text, ok, detail, err := runDebate(context.Background(), runner, []string{"proposer", "critic"}, "design the pipeline", Options{DebateRounds: 5})
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, text, "bounded queue")
	require.Equal(t, 2, detail["rounds"])
	require.Equal(t, true, detail["converged"])
	require.Len(t, outputs, 3)
}

func TestRunDebate_RunsFullRoundBudgetWithoutConvergence(t *testing.T) {
	fake := agentrunner.NewFakeInvoker()
	runner := agentrunner.New(fake) // default invoker echoes "<agentID>: <instructions>", never contains CONVERGED

	_, _, ok, detail, err := runDebate(context.Background(), runner, []string{"proposer", "critic"}, "design the pipeline", Options{DebateRounds: 2})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, detail["rounds"])
	require.Equal(t, false, detail["converged"])
}

func TestRunDebate_ProposerFailureAbortsEarly(t *testing.T) {
	fake := agentrunner.NewFakeInvoker()
	fake.Script("proposer", agentrunner.ScriptedResponse{Err: context.DeadlineExceeded})
	runner := agentrunner.New(fake)

	_, _, ok, detail, err := runDebate(context.Background(), runner, []string{"proposer", "critic"}, "design", Options{RetryPolicy: agentrunner.Options{MaxAttempts: 1}})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, detail["rounds"])
}
