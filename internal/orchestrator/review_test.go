package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"loopctl/internal/agentrunner"
)

func TestRunReview_ApprovesOnFirstRoundWhenReviewersAgree(t *testing.T) {
	fake := agentrunner.NewFakeInvoker()
	fake.Script("creator", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "draft v1"}})
	fake.Script("r1", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "APPROVE looks good"}})
	fake.Script("r2", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "APPROVE ship it"}})
	runner := agentrunner.New(fake)

	_, text, ok, detail, err := runReview(context.Background(), runner, []string{"creator", "r1", "r2"}, "write the migration", Options{})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "draft v1", text)
	require.Equal(t, 2, detail["approvals"])
	require.Equal(t, 1, detail["rounds"])
}

func TestRunReview_RevisesUntilApprovedOrRoundsExhausted(t *testing.T) {
	fake := agentrunner.NewFakeInvoker()
	fake.Script("creator", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "draft v1"}})
	fake.Script("r1", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "REQUEST_CHANGES add tests"}})
	fake.Script("creator", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "draft v2 with tests"}})
	fake.Script("r1", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "APPROVE now good"}})
	runner := agentrunner.New(fake)

	_, text, ok, detail, err := runReview(context.Background(), runner, []string{"creator", "r1"}, "write the migration", Options{ReviewRounds: 3})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "draft v2 with tests", text)
	require.Equal(t, 2, detail["rounds"])
}

func TestRunReview_MinApprovalsBelowReviewerCount(t *testing.T) {
	fake := agentrunner.NewFakeInvoker()
	fake.Script("creator", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "draft v1"}})
	fake.Script("r1", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "APPROVE"}})
	fake.Script("r2", agentrunner.ScriptedResponse{Response: agentrunner.Response{OutputText: "REQUEST_CHANGES nit"}})
	runner := agentrunner.New(fake)

	_, _, ok, detail, err := runReview(context.Background(), runner, []string{"creator", "r1", "r2"}, "write the migration", Options{MinApprovals: 1})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, detail["approvals"])
}
