package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// RunHook executes the post-prune command through the platform shell with
// the run summary in its environment.
// It returns the command's exit code along with any execution error.
func RunHook(ctx context.Context, command string, report *Report, stdout, stderr io.Writer) (int, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return -1, errors.New("hook command is empty")
	}

	shell := defaultShell()
	cmd := exec.CommandContext(ctx, shell[0], append(shell[1:], command)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), hookEnv(report)...)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode := exitCodeFromSys(exitErr.Sys())
			return exitCode, err
		}

		return -1, fmt.Errorf("execute hook: %w", err)
	}

	return 0, nil
}

func hookEnv(report *Report) []string {
	if report == nil {
		return nil
	}
	return []string{
		"SFG_RUN_ID=" + report.ID,
		"SFG_DATE=" + report.Today.String(),
		"SFG_DRY_RUN=" + strconv.FormatBool(report.DryRun),
		"SFG_EXPIRED=" + strconv.Itoa(report.Expired()),
		"SFG_DELETED=" + strconv.Itoa(report.Deleted()),
		"SFG_FAILED=" + strconv.Itoa(report.Failed()),
	}
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"/bin/sh", "-c"}
}

func exitCodeFromSys(sys interface{}) int {
	status, ok := sys.(syscall.WaitStatus)
	if !ok {
		return -1
	}
	return status.ExitStatus()
}
