package dashboard

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"loopctl/internal/logging"
)

// tailer watches one session's log file for appended lines and republishes
// each as a "log:line" SSE patch op on the hub's "logs:<sessionId>" stream,
// the same fsnotify watch-loop shape internal/config.Watcher uses for its
// hot-reload, applied here to a growing file instead of a replaced one.
type tailer struct {
	mu       sync.Mutex
	watchers map[string]*fsnotify.Watcher // sessionID -> active watch
}

func newTailer() *tailer {
	return &tailer{watchers: make(map[string]*fsnotify.Watcher)}
}

// ensure starts tailing sessionID's log file if not already watched. It is
// safe to call on every /api/logs/{sessionId} request; the first caller
// wins and later callers just attach to the existing stream via the hub.
func (t *tailer) ensure(hub *Hub, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.watchers[sessionID]; ok {
		return
	}

	path := logging.SessionLogPath(sessionID)
	f, err := os.Open(path)
	if err != nil {
		// No log file yet (session hasn't written anything); nothing to
		// tail until GetSession first opens (and so creates) it. The caller
		// still gets a live SSE connection with heartbeats in the
		// meantime and can reconnect once lines exist.
		return
	}

	offset, _ := f.Seek(0, io.SeekEnd)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		_ = f.Close()
		logging.Get(logging.CategoryDashboard).Warn("log tail: fsnotify unavailable for %s: %v", sessionID, err)
		return
	}
	if err := fw.Add(path); err != nil {
		_ = f.Close()
		_ = fw.Close()
		logging.Get(logging.CategoryDashboard).Warn("log tail: watch failed for %s: %v", sessionID, err)
		return
	}
	t.watchers[sessionID] = fw

	go t.loop(hub, sessionID, f, fw, offset)
}

func (t *tailer) loop(hub *Hub, sessionID string, f *os.File, fw *fsnotify.Watcher, offset int64) {
	defer f.Close()
	defer fw.Close()
	streamName := "logs:" + sessionID

	readNew := func() {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var read int64
		for scanner.Scan() {
			line := scanner.Bytes()
			read += int64(len(line)) + 1
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			hub.Publish(streamName, "log:line", []PatchOp{{Op: "add", Path: "/lines/-", Value: string(line)}})
		}
		offset += read
	}

	for {
		select {
		case _, ok := <-fw.Events:
			if !ok {
				return
			}
			readNew()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryDashboard).Warn("log tail: watcher error for %s: %v", sessionID, err)
		}
	}
}
