package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"loopctl/internal/memory"
	"loopctl/internal/usage"
)

var (
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "export the task backlog and usage aggregate as JSON or CSV",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", `output format: "json" or "csv"`)
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file path (default: stdout)")
}

type exportPayload struct {
	Tasks []*memory.Task        `json:"tasks"`
	Usage usage.AggregatedStats `json:"usage"`
}

func runExport(cmd *cobra.Command, args []string) error {
	dbPath := filepath.Join(workspace, ".loopctl", "loopctl.db")
	mem, err := memory.Open(dbPath)
	if err != nil {
		return newUserError(fmt.Errorf("open state: %w", err))
	}
	defer func() { _ = mem.Close() }()

	tasksList, err := mem.ListTasks("")
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	usageT, err := usage.NewTracker(workspace, mem, usage.NewPricingTable())
	if err != nil {
		return fmt.Errorf("open usage tracker: %w", err)
	}

	payload := exportPayload{Tasks: tasksList, Usage: usageT.Stats()}

	out := os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case "csv":
		return writeTasksCSV(out, tasksList)
	default:
		return newUserError(fmt.Errorf(`unknown --format %q, want "json" or "csv"`, exportFormat))
	}
}

func writeTasksCSV(f *os.File, tasksList []*memory.Task) error {
	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"id", "title", "priority", "phase", "status", "estimate_hours", "created_at", "updated_at"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range tasksList {
		row := []string{
			t.ID, t.Title, string(t.Priority), t.Phase, string(t.Status),
			strconv.FormatFloat(t.EstimateHours, 'f', 2, 64),
			t.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			t.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
