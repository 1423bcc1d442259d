package agentrunner

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedResponse is one canned outcome a FakeInvoker returns in
// sequence for a given agent id.
type ScriptedResponse struct {
	Response Response
	Err      error
}

// FakeInvoker is a deterministic Invoker test-double: each agent id has a
// queue of scripted responses consumed in order, falling back to a
// default success response once exhausted. Grounded on the teacher's own
// test-double pattern for its embedding engine and LLM client interfaces
// — abstract the real network call behind an interface, then hand tests
// a queue-driven fake rather than a live dependency.
type FakeInvoker struct {
	mu      sync.Mutex
	scripts map[string][]ScriptedResponse
	calls   []string
}

// NewFakeInvoker builds an empty FakeInvoker.
func NewFakeInvoker() *FakeInvoker {
	return &FakeInvoker{scripts: make(map[string][]ScriptedResponse)}
}

// Script queues one outcome for the next Invoke call against agentID.
func (f *FakeInvoker) Script(agentID string, resp ScriptedResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[agentID] = append(f.scripts[agentID], resp)
}

// Invoke implements Invoker.
func (f *FakeInvoker) Invoke(_ context.Context, agentID, instructions string, inputs map[string]any) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, agentID)

	queue := f.scripts[agentID]
	if len(queue) == 0 {
		return Response{OutputText: fmt.Sprintf("%s: %s", agentID, instructions), Model: "fake-model"}, nil
	}
	next := queue[0]
	f.scripts[agentID] = queue[1:]
	return next.Response, next.Err
}

// Calls returns every agent id Invoke was called with, in order.
func (f *FakeInvoker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
