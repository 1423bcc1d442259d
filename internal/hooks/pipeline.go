// Package hooks implements Lifecycle Hooks (LH, spec §4.12): an ordered
// synchronous pipeline run at well-defined points, contrasted with the
// Message Bus by being on the critical path rather than fire-and-forget.
package hooks

import (
	"fmt"
	"sort"
	"sync"
)

// Point names one of the well-defined pipeline points spec §4.12 lists.
type Point string

const (
	BeforeExecution Point = "beforeExecution"
	AfterExecution  Point = "afterExecution"
	OnError         Point = "onError"
)

// Handler receives the accumulated payload and returns the (possibly
// transformed) next payload, or an error to abort the pipeline.
type Handler func(payload any) (any, error)

type registration struct {
	priority int
	handler  Handler
	name     string
}

// Pipeline holds the registered handlers for every Point, run in
// ascending priority order.
type Pipeline struct {
	mu       sync.RWMutex
	handlers map[Point][]registration
}

// New builds an empty Pipeline.
func New() *Pipeline {
	return &Pipeline{handlers: make(map[Point][]registration)}
}

// Register adds handler at point with the given priority (lower runs
// first) and a name used only for error messages/logging.
func (p *Pipeline) Register(point Point, priority int, name string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	regs := append(p.handlers[point], registration{priority: priority, handler: handler, name: name})
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].priority < regs[j].priority })
	p.handlers[point] = regs
}

// Run executes every handler registered at point, in priority order,
// threading the payload through each in turn.
//
// At BeforeExecution, a handler error aborts the orchestration: Run
// returns immediately with that error (spec §4.12: "handlers that fail
// in beforeExecution abort the orchestration with the produced error").
//
// At OnError, a handler error is returned rather than swallowed, by the
// same early-return contract — the caller is expected
// to already be on its own error path and wants to know a hook itself
// also failed.
//
// At AfterExecution there's no documented abort behavior; Run applies
// the same early-return contract uniformly rather than special-casing
// a point, so the caller's error-handling code doesn't have to branch on
// which point it's driving.
func (p *Pipeline) Run(point Point, payload any) (any, error) {
	p.mu.RLock()
	regs := append([]registration(nil), p.handlers[point]...)
	p.mu.RUnlock()

	current := payload
	for _, r := range regs {
		next, err := r.handler(current)
		if err != nil {
			return current, fmt.Errorf("hook %q at %s: %w", r.name, point, err)
		}
		current = next
	}
	return current, nil
}

// Count returns how many handlers are registered at point, mostly for
// tests and dashboard introspection.
func (p *Pipeline) Count(point Point) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers[point])
}
