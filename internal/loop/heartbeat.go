package loop

import (
	"time"

	"loopctl/internal/logging"
	"loopctl/internal/tasks"
)

// heartbeat posts a lease-renewal heartbeat to TM on a background timer
// (spec §4.15 step 7: "a background timer (default 30s) posts heartbeat
// to TM; missed heartbeats cause lease expiry").
type heartbeat struct {
	stopCh chan struct{}
	doneCh chan struct{}
}

func startHeartbeat(tasksMgr *tasks.Manager, taskID, owner string, every time.Duration, logger *logging.Logger) *heartbeat {
	h := &heartbeat{stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	go func() {
		defer close(h.doneCh)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := tasksMgr.Heartbeat(taskID, owner); err != nil {
					logger.Warn("heartbeat for task %s failed: %v", taskID, err)
				}
			case <-h.stopCh:
				return
			}
		}
	}()
	return h
}

// stop halts the background timer and waits for its goroutine to exit.
func (h *heartbeat) stop() {
	if h == nil {
		return
	}
	close(h.stopCh)
	<-h.doneCh
}
