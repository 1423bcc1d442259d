package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigure_CreatesTheLogsDirectory(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Configure(ws, true, "debug"))

	info, err := os.Stat(filepath.Join(ws, ".loopctl", "logs"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
	require.Equal(t, filepath.Join(ws, ".loopctl", "logs"), LogsDir())
}

func TestLogger_WritesJSONLinesToItsOwnCategoryFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Configure(ws, true, "debug"))

	l := Get(Category("test-category-one"))
	l.Info("hello %s", "world")

	b, err := os.ReadFile(filepath.Join(ws, ".loopctl", "logs", "test-category-one.log"))
	require.NoError(t, err)

	var e Entry
	require.NoError(t, json.Unmarshal(firstLine(t, b), &e))
	require.Equal(t, "info", e.Level)
	require.Equal(t, "hello world", e.Message)
	require.Equal(t, "test-category-one", e.Category)
}

func TestLogger_LevelGateDropsBelowConfiguredMinimum(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Configure(ws, true, "warn"))

	l := Get(Category("test-category-two"))
	l.Debug("should not appear")
	l.Warn("should appear")

	b, err := os.ReadFile(filepath.Join(ws, ".loopctl", "logs", "test-category-two.log"))
	require.NoError(t, err)
	require.NotContains(t, string(b), "should not appear")
	require.Contains(t, string(b), "should appear")
}

func TestLogger_DebugModeFalseSuppressesAllWrites(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Configure(ws, false, "debug"))

	l := Get(Category("test-category-three"))
	l.Error("should not be written anywhere")

	b, err := os.ReadFile(filepath.Join(ws, ".loopctl", "logs", "test-category-three.log"))
	require.NoError(t, err)
	require.Empty(t, b)
}

func TestGetSession_WritesUnderASessionsSubdirectory(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Configure(ws, true, "debug"))

	l := GetSession("sess-123")
	l.Info("session log line")

	require.Equal(t, filepath.Join(ws, ".loopctl", "logs", "sessions", "sess-123.log"), SessionLogPath("sess-123"))
	b, err := os.ReadFile(SessionLogPath("sess-123"))
	require.NoError(t, err)
	require.Contains(t, string(b), "session log line")
}

func TestStartTimer_StopLogsDurationAtDebug(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, Configure(ws, true, "debug"))

	timer := StartTimer(Category("test-category-four"), "assemble-context")
	timer.Stop()

	b, err := os.ReadFile(filepath.Join(ws, ".loopctl", "logs", "test-category-four.log"))
	require.NoError(t, err)
	require.Contains(t, string(b), "assemble-context took")
}

func firstLine(t *testing.T, b []byte) []byte {
	t.Helper()
	scanner := bufio.NewScanner(bytes.NewReader(b))
	require.True(t, scanner.Scan())
	return scanner.Bytes()
}
