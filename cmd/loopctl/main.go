// Package main implements loopctl, the CLI front end for the continuous
// multi-agent loop orchestrator. It wires every internal subsystem
// (memory, vector store, context retriever, usage/limits/checkpoint/HIL,
// task manager, planning, hooks/bus, agent orchestrator) into a running
// Continuous Loop Orchestrator and its Dashboard, and exposes the five
// operator-facing subcommands spec §6.4 names.
//
// This file is the entry point and command registration hub; each
// subcommand's implementation lives in its own cmd_*.go file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"loopctl/internal/config"
	"loopctl/internal/logging"
)

var (
	workspace  string
	configPath string
	owner      string
	verbose    bool

	zlog *zap.Logger
	cfg  *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "loopctl",
	Short: "loopctl drives the continuous multi-agent task loop for a project",
	Long: `loopctl runs the Continuous Loop Orchestrator against a project's task
backlog: it selects and claims eligible tasks, plans them, dispatches each
phase through the Agent Orchestrator's collaboration patterns, checks
quality gates and safety signals between phases, and persists the outcome.

A Dashboard serves the same run's live state over HTTP for the UI and
any operator tooling.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		zlog, err = zc.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		} else if abs, err := filepath.Abs(ws); err == nil {
			ws = abs
		}
		workspace = ws

		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		if verbose {
			cfg.DebugMode = true
			cfg.LogLevel = "debug"
		}

		if err := logging.Configure(workspace, cfg.DebugMode, cfg.LogLevel); err != nil {
			zlog.Warn("file logging not available", zap.Error(err))
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if zlog != nil {
			_ = zlog.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "project directory (default: current directory)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a loopctl config YAML file")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "loop-default", "claim-owner id for this run, used as the dashboard session id")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "loopctl:", err)
		os.Exit(exitCodeFor(err))
	}
}
