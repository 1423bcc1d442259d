package dashboard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loopctl/internal/logging"
)

func TestTailer_Ensure_PublishesAppendedLines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, logging.Configure(dir, true, "debug"))

	sessionID := "owner-a"
	path := logging.SessionLogPath(sessionID)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))

	hub := NewHub(time.Hour)
	tail := newTailer()
	tail.ensure(hub, sessionID)

	stream := hub.streamFor("logs:" + sessionID)
	_, ch := stream.subscribe()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("agent started phase plan\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-ch:
		require.Equal(t, "log:line", ev.event)
		require.Len(t, ev.data, 1)
		require.Equal(t, "agent started phase plan", ev.data[0].Value)
	case <-time.After(2 * time.Second):
		t.Fatal("tailer did not publish appended line in time")
	}
}

func TestTailer_Ensure_NoFileYetDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, logging.Configure(dir, true, "debug"))

	hub := NewHub(time.Hour)
	tail := newTailer()
	require.NotPanics(t, func() {
		tail.ensure(hub, "no-such-session")
	})
}
