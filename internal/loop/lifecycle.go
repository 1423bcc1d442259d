package loop

import (
	"context"
	"time"
)

// withGracefulShutdown derives a context that doesn't cancel the instant
// parent does: it starts a grace timer instead, giving whatever's running
// up to `grace` more time to wrap up before the derived context is hard-
// cancelled (spec §4.15: "cancellation ... attempt graceful wrap-up
// (budget-bounded, default 60 s); otherwise, hard-stop with failure
// record").
func withGracefulShutdown(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})

	go func() {
		select {
		case <-parent.Done():
			select {
			case <-time.After(grace):
				cancel()
			case <-stop:
			}
		case <-stop:
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		close(stop)
		cancel()
	}
}

// Run drives the loop until ctx is cancelled: each iteration selects,
// claims, and runs a task to completion/failure/pause; an idle tick
// (no eligible task) backs off before retrying (spec §4.15 step 1:
// "transition the session to idle and wait").
//
// On cancellation it wraps the in-flight (or next) cycle in a graceful
// shutdown window bounded by cfg.WrapUpBudget before hard-stopping.
func (l *Loop) Run(ctx context.Context) error {
	gctx, cancel := withGracefulShutdown(ctx, l.cfg.WrapUpBudget)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := l.RunOnce(gctx)
		if err != nil {
			return err
		}
		if outcome.TaskID == "" {
			select {
			case <-time.After(l.cfg.SelectBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
