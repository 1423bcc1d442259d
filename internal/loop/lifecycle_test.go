package loop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithGracefulShutdown_DelaysCancellationByGrace(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	gctx, cancel := withGracefulShutdown(parent, 50*time.Millisecond)
	defer cancel()

	cancelParent()

	select {
	case <-gctx.Done():
		t.Fatal("derived context cancelled immediately, grace window not honored")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-gctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("derived context never cancelled after grace window elapsed")
	}
}

func TestWithGracefulShutdown_CancelFuncStopsImmediately(t *testing.T) {
	parent := context.Background()
	gctx, cancel := withGracefulShutdown(parent, time.Minute)
	cancel()

	select {
	case <-gctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("cancel() did not stop the derived context")
	}
}

func TestLoop_Run_StopsOnContextCancellation(t *testing.T) {
	h := newTestHarness(t, Config{Owner: "owner-a", SelectBackoff: 10 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := h.loop.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
