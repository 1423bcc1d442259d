package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"loopctl/internal/dashboard"
	"loopctl/internal/memory"
	"loopctl/internal/tasks"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "print a one-shot snapshot of the project's sessions",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the snapshot as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	dbPath := filepath.Join(workspace, ".loopctl", "loopctl.db")
	mem, err := memory.Open(dbPath)
	if err != nil {
		return newUserError(fmt.Errorf("open state: %w", err))
	}
	defer func() { _ = mem.Close() }()

	tasksMgr := tasks.New(mem, cfg.ClaimLease)
	registry := dashboard.NewRegistry(dashboard.Deps{Tasks: tasksMgr, Mem: mem}, nil)

	summary, err := registry.Summary()
	if err != nil {
		return fmt.Errorf("build summary: %w", err)
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	if len(summary.Sessions) == 0 {
		fmt.Println("no active sessions")
		return nil
	}
	for _, s := range summary.Sessions {
		fmt.Printf("%-20s %-10s task=%-12s phase=%-10s iter=%d\n", s.SessionID, s.Status, s.TaskID, s.Phase, s.Iterations)
	}
	return nil
}
