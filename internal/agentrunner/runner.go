package agentrunner

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"loopctl/internal/errtax"
	"loopctl/internal/logging"
)

// Usage is the agent call's token accounting (spec §6.1).
type Usage struct {
	Input       int64
	Output      int64
	CacheCreate int64
	CacheRead   int64
}

// Response is one successful agent invocation's result (spec §6.1).
type Response struct {
	OutputText string
	Usage      Usage
	Model      string
	DurationMs int64
}

// Invoker is the raw, unretried agent-call boundary: a single attempt at
// invoking one agent. Implementations classify failures as
// errtax.Transient/RateLimited (retriable) or errtax.FatalAgent (not),
// per spec §6.1's "failures surface as retriable ... or fatal" contract.
type Invoker interface {
	Invoke(ctx context.Context, agentID, instructions string, inputs map[string]any) (Response, error)
}

// Options tunes one Invoke call's retry policy.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultOptions mirrors the teacher's own backoff defaults: a handful of
// attempts with exponential spacing, since every pack repo that retries
// agent/network calls (including this teacher) uses that shape rather
// than a fixed linear delay.
func DefaultOptions() Options {
	return Options{MaxAttempts: 3, BaseDelay: time.Second}
}

// Runner wraps an Invoker with the orchestrator's retry policy:
// exponential backoff with jitter, bounded attempts, skipping retry
// entirely for fatal errors (spec §4.14's "common pre-flight: run
// AO-internal retry policy").
type Runner struct {
	invoker Invoker
	logger  *logging.Logger
}

// New builds a Runner over invoker.
func New(invoker Invoker) *Runner {
	return &Runner{invoker: invoker, logger: logging.Get(logging.CategoryOrchestrator)}
}

// Invoke calls the underlying Invoker, retrying retriable failures with
// exponential backoff+jitter up to opts.MaxAttempts. A fatal error or
// context cancellation stops retrying immediately.
func (r *Runner) Invoke(ctx context.Context, agentID, instructions string, inputs map[string]any, opts Options) (Response, error) {
	if opts.MaxAttempts <= 0 {
		opts = DefaultOptions()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.BaseDelay
	bo := backoff.WithMaxRetries(policy, uint64(opts.MaxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	var resp Response
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var invokeErr error
		resp, invokeErr = r.invoker.Invoke(ctx, agentID, instructions, inputs)
		if invokeErr == nil {
			return nil
		}
		if te, ok := invokeErr.(*errtax.Error); ok && !te.Retriable() {
			return backoff.Permanent(invokeErr)
		}
		r.logger.Warn("agent %s invoke attempt %d failed: %v", agentID, attempt, invokeErr)
		return invokeErr
	}, bo)

	if err != nil {
		return Response{}, err
	}
	return resp, nil
}
