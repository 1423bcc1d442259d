package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"loopctl/internal/loop"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "begin the loop for this project",
	Long: `start drives the Continuous Loop Orchestrator against the project's
task backlog and serves the Dashboard until stopped (Ctrl-C, SIGTERM, or
"loopctl stop"). It runs until the backlog is exhausted or interrupted.`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	sys, err := buildSystem(workspace, cfg, owner)
	if err != nil {
		return err
	}
	defer func() { _ = sys.Close() }()

	if err := seedTasksFromFile(sys, filepath.Join(workspace, ".loopctl", "tasks.yaml")); err != nil {
		return newUserError(fmt.Errorf("load tasks file: %w", err))
	}

	if err := writePIDFile(workspace); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer removePIDFile(workspace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	interrupted := false
	go func() {
		<-sigCh
		interrupted = true
		fmt.Fprintln(os.Stderr, "loopctl: shutting down...")
		cancel()
	}()

	dashErrCh := make(chan error, 1)
	go func() {
		if err := sys.dash.Start(); err != nil {
			dashErrCh <- err
		}
	}()

	l := loop.New(sys.loopDeps, sys.loopCfg)

	runErr := driveUntilIdleOrDone(ctx, l)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = sys.dash.Shutdown(shutdownCtx)
	shutdownCancel()

	select {
	case err := <-dashErrCh:
		if err != nil && ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, "loopctl: dashboard stopped:", err)
		}
	default:
	}

	if interrupted {
		return context.Canceled
	}
	return runErr
}

// driveUntilIdleOrDone calls RunOnce repeatedly: each call claims and
// fully drives one task. It stops once RunOnce has returned a zero
// Outcome (no eligible task) on three consecutive calls, spaced a second
// apart, when RunOnce returns an error, or when the context is cancelled.
func driveUntilIdleOrDone(ctx context.Context, l *loop.Loop) error {
	idleStreak := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		outcome, err := l.RunOnce(ctx)
		if err != nil {
			return err
		}
		if outcome.TaskID == "" {
			idleStreak++
			if idleStreak >= 3 {
				return nil
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		idleStreak = 0
	}
}

func pidFilePath(ws string) string {
	return filepath.Join(ws, ".loopctl", "loopctl.pid")
}

func writePIDFile(ws string) error {
	if err := os.MkdirAll(filepath.Dir(pidFilePath(ws)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(ws), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePIDFile(ws string) {
	_ = os.Remove(pidFilePath(ws))
}
