package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"loopctl/internal/config"
	"loopctl/internal/memory"
)

func TestRunExport_JSONIncludesSeededTask(t *testing.T) {
	ws := t.TempDir()
	c := config.Default()
	withGlobals(t, ws, c)

	sys, err := buildSystem(ws, c, "owner-a")
	require.NoError(t, err)
	_, err = sys.tasksMgr.Create(&memory.Task{ID: "t1", Title: "export me", Priority: memory.PriorityLow})
	require.NoError(t, err)
	require.NoError(t, sys.Close())

	exportFormat = "json"
	out := filepath.Join(t.TempDir(), "export.json")
	exportOut = out
	defer func() { exportFormat, exportOut = "json", "" }()

	require.NoError(t, runExport(nil, nil))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	var payload exportPayload
	require.NoError(t, json.Unmarshal(b, &payload))
	require.Len(t, payload.Tasks, 1)
	require.Equal(t, "export me", payload.Tasks[0].Title)
}

func TestRunExport_CSVWritesHeaderAndRow(t *testing.T) {
	ws := t.TempDir()
	c := config.Default()
	withGlobals(t, ws, c)

	sys, err := buildSystem(ws, c, "owner-a")
	require.NoError(t, err)
	_, err = sys.tasksMgr.Create(&memory.Task{ID: "t1", Title: "csv me", Priority: memory.PriorityLow})
	require.NoError(t, err)
	require.NoError(t, sys.Close())

	exportFormat = "csv"
	out := filepath.Join(t.TempDir(), "export.csv")
	exportOut = out
	defer func() { exportFormat, exportOut = "json", "" }()

	require.NoError(t, runExport(nil, nil))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	scanner := bufio.NewScanner(bytes.NewReader(b))
	require.True(t, scanner.Scan())
	require.True(t, strings.HasPrefix(scanner.Text(), "id,title,priority"))
	require.True(t, scanner.Scan())
	require.Contains(t, scanner.Text(), "csv me")
}

func TestRunExport_UnknownFormatIsAUserError(t *testing.T) {
	ws := t.TempDir()
	c := config.Default()
	withGlobals(t, ws, c)

	exportFormat = "xml"
	exportOut = filepath.Join(t.TempDir(), "out")
	defer func() { exportFormat, exportOut = "json", "" }()

	err := runExport(nil, nil)
	require.Error(t, err)
	var ue *userError
	require.ErrorAs(t, err, &ue)
}
