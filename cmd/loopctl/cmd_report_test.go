package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"loopctl/internal/config"
)

func TestRunReport_DailyWindowWithNoUsageIsZero(t *testing.T) {
	ws := t.TempDir()
	c := config.Default()
	withGlobals(t, ws, c)

	reportWindow = "daily"
	reportJSON = true
	defer func() { reportWindow, reportJSON = "daily", false }()

	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	require.NoError(t, runReport(cmd, nil))

	var out reportOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, "daily", out.Window)
	require.Zero(t, out.Counts.Total)
	require.Equal(t, "ok", string(out.Budget.Severity))
}

func TestRunReport_UnknownWindowIsAUserError(t *testing.T) {
	ws := t.TempDir()
	c := config.Default()
	withGlobals(t, ws, c)

	reportWindow = "fortnightly"
	defer func() { reportWindow = "daily" }()

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	err := runReport(cmd, nil)
	require.Error(t, err)
	var ue *userError
	require.ErrorAs(t, err, &ue)
}
