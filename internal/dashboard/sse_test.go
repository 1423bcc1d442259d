package dashboard

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// flushRecorder is a minimal http.ResponseWriter + http.Flusher pair:
// ServeStream type-asserts its writer to http.Flusher, which
// httptest.NewRecorder alone does not satisfy.
type flushRecorder struct {
	mu     sync.Mutex
	header http.Header
	status int
	buf    bytes.Buffer
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{header: make(http.Header)}
}

func (f *flushRecorder) Header() http.Header { return f.header }

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Write(p)
}

func (f *flushRecorder) WriteHeader(status int) { f.status = status }

func (f *flushRecorder) Flush() {}

func (f *flushRecorder) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

func TestHub_ServeStream_DeliversPublishedEvent(t *testing.T) {
	hub := NewHub(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := newFlushRecorder()

	done := make(chan struct{})
	go func() {
		hub.ServeStream(rec, req, "events")
		close(done)
	}()

	require.Eventually(t, func() bool {
		s := hub.streamFor("events")
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.subs) > 0
	}, time.Second, time.Millisecond)

	hub.Publish("events", "task:completed", []PatchOp{{Op: "replace", Path: "/tasks/t1", Value: "done"}})

	require.Eventually(t, func() bool {
		return strings.Contains(rec.String(), "task:completed")
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServeStream did not return after context cancellation")
	}
}

func TestHub_ServeStream_ResumesFromLastEventID(t *testing.T) {
	hub := NewHub(time.Hour)
	hub.Publish("events", "session:update", []PatchOp{{Op: "replace", Path: "/sessions/a", Value: 1}})
	hub.Publish("events", "session:update", []PatchOp{{Op: "replace", Path: "/sessions/a", Value: 2}})
	hub.Publish("events", "session:update", []PatchOp{{Op: "replace", Path: "/sessions/a", Value: 3}})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "1")
	rec := newFlushRecorder()

	done := make(chan struct{})
	go func() {
		hub.ServeStream(rec, req, "events")
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Count(rec.String(), "id: ") >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ServeStream did not return after context cancellation")
	}

	body := rec.String()
	require.NotContains(t, body, `"value":1`)
	require.Contains(t, body, `"value":2`)
	require.Contains(t, body, `"value":3`)
}
