package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "signal a running loop to stop",
	Long: `stop sends SIGTERM to the "loopctl start" process whose pid is in
the project's .loopctl/loopctl.pid. That process cancels the context its
current task runs under and exits once RunOnce returns; no wrap-up
window is applied before the cancel.`,
	RunE: runStop,
}

func runStop(cmd *cobra.Command, args []string) error {
	b, err := os.ReadFile(pidFilePath(workspace))
	if os.IsNotExist(err) {
		return newUserError(fmt.Errorf("no running loopctl found for %s", workspace))
	}
	if err != nil {
		return fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return newUserError(fmt.Errorf("corrupt pid file: %w", err))
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	fmt.Printf("loopctl: sent wrap-up signal to pid %d\n", pid)
	return nil
}
