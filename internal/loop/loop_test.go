package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loopctl/internal/agentrunner"
	"loopctl/internal/bus"
	"loopctl/internal/checkpoint"
	"loopctl/internal/confidence"
	"loopctl/internal/hil"
	"loopctl/internal/hooks"
	"loopctl/internal/limits"
	"loopctl/internal/memory"
	"loopctl/internal/orchestrator"
	"loopctl/internal/planning"
	"loopctl/internal/quality"
	"loopctl/internal/retrieval"
	"loopctl/internal/tasks"
	"loopctl/internal/usage"
)

// testHarness bundles a Loop with every dependency a test needs direct
// access to (the fake invoker to script agent responses, the memory
// store to seed tasks, the bus to observe published events).
type testHarness struct {
	loop   *Loop
	fake   *agentrunner.FakeInvoker
	mem    *memory.Store
	tasks  *tasks.Manager
	bus    *bus.Bus
}

func newTestHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()
	mem, err := memory.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	fake := agentrunner.NewFakeInvoker()
	runner := agentrunner.New(fake)
	messageBus := bus.New()
	orch := orchestrator.New(runner, hooks.New(), messageBus, mem)
	tasksMgr := tasks.New(mem, 50*time.Millisecond)
	planningC := planning.NewCoordinator(40, 5, time.Minute, messageBus)
	retriever := retrieval.New(mem, nil, retrieval.DefaultConfig())
	gates := quality.New()
	confMon := confidence.New(confidence.DefaultWeights())
	usageT, err := usage.NewTracker(t.TempDir(), mem, usage.NewPricingTable())
	require.NoError(t, err)
	limitsT := limits.New(limits.Plan{FiveHour: 1000, Daily: 5000, Weekly: 20000, SafePace: 100})
	checkpointO := checkpoint.New()
	hilD := hil.New()

	l := New(Deps{
		Mem:          mem,
		Tasks:        tasksMgr,
		Planning:     planningC,
		Orchestrator: orch,
		Retriever:    retriever,
		Quality:      gates,
		Confidence:   confMon,
		Usage:        usageT,
		Limits:       limitsT,
		Checkpoint:   checkpointO,
		HIL:          hilD,
		Bus:          messageBus,
	}, cfg)

	return &testHarness{loop: l, fake: fake, mem: mem, tasks: tasksMgr, bus: messageBus}
}

// scriptAllPhases queues the same clean response for every agent id the
// default roster uses, across enough rounds to cover every phase.
func (h *testHarness) scriptClean(agentID string, rounds int) {
	for i := 0; i < rounds; i++ {
		h.fake.Script(agentID, agentrunner.ScriptedResponse{
			Response: agentrunner.Response{OutputText: "work completed cleanly", Model: "fake-model"},
		})
	}
}

func TestLoop_RunOnce_NoEligibleTaskReturnsEmptyOutcome(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a"})
	outcome, err := h.loop.RunOnce(context.Background())
	require.NoError(t, err)
	require.Empty(t, outcome.TaskID)
}

func validateRoster() map[quality.Phase][]string {
	return map[quality.Phase][]string{quality.PhaseValidate: {"creator", "reviewer"}}
}

func TestLoop_RunOnce_CompletesTaskThatPassesAllGates(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a", MaxIterations: 3, Roster: validateRoster()})
	h.scriptClean("generalist", 10)
	h.scriptClean("creator", 5)
	for i := 0; i < 5; i++ {
		h.fake.Script("reviewer", agentrunner.ScriptedResponse{
			Response: agentrunner.Response{OutputText: "APPROVE work completed cleanly", Model: "fake-model"},
		})
	}

	_, err := h.tasks.Create(&memory.Task{ID: "t1", Title: "ship the widget", Priority: memory.PriorityMedium})
	require.NoError(t, err)

	outcome, err := h.loop.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, "t1", outcome.TaskID)
	require.True(t, outcome.Completed)
	require.Equal(t, 1, outcome.Iterations)

	got, err := h.tasks.Get("t1")
	require.NoError(t, err)
	require.Equal(t, memory.StatusCompleted, got.Status)
}

func TestLoop_RunOnce_FailsTaskThatNeverClearsQualityGate(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a", MaxIterations: 2})
	for i := 0; i < 20; i++ {
		h.fake.Script("generalist", agentrunner.ScriptedResponse{
			Response: agentrunner.Response{OutputText: "TODO mock implementation placeholder", Model: "fake-model"},
		})
	}

	_, err := h.tasks.Create(&memory.Task{ID: "t1", Title: "ship the widget", Priority: memory.PriorityMedium})
	require.NoError(t, err)

	outcome, err := h.loop.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, outcome.Failed)

	got, err := h.tasks.Get("t1")
	require.NoError(t, err)
	require.Equal(t, memory.StatusFailed, got.Status)
}

func TestLoop_RunOnce_PublishesTaskCompletedEvent(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a", MaxIterations: 3, Roster: validateRoster()})
	h.scriptClean("generalist", 10)
	h.scriptClean("creator", 5)
	for i := 0; i < 5; i++ {
		h.fake.Script("reviewer", agentrunner.ScriptedResponse{
			Response: agentrunner.Response{OutputText: "APPROVE work completed cleanly", Model: "fake-model"},
		})
	}

	_, err := h.tasks.Create(&memory.Task{ID: "t1", Title: "ship the widget", Priority: memory.PriorityMedium})
	require.NoError(t, err)

	received := make(chan any, 1)
	h.bus.Subscribe("task:completed", func(payload any) { received <- payload })

	_, err = h.loop.RunOnce(context.Background())
	require.NoError(t, err)

	select {
	case payload := <-received:
		m, ok := payload.(map[string]any)
		require.True(t, ok)
		require.Equal(t, "t1", m["taskId"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for task:completed")
	}
}
