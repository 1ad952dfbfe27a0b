package testbed

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/specifier"
)

// Protocol flags understood by test class executables
const (
	ConfigFlag = "--config"
	LogDirFlag = "--logdir"
	CasesFlag  = "--cases"
)

const (
	eventsFileName = "events.jsonl"
	stderrFileName = "stderr.log"
)

// buildClassArgs returns the arguments for one class executable
func buildClassArgs(configPath, logDir string, spec specifier.Specifier) []string {
	args := []string{ConfigFlag, configPath, LogDirFlag, logDir}
	if !spec.RunsAllCases() {
		args = append(args, CasesFlag, strings.Join(spec.Cases, ","))
	}
	return args
}

// runClassProcess starts exe, streams its stdout into run and waits for it.
// Stdout is also kept in events.jsonl and stderr in stderr.log under logDir.
// When ctx is cancelled the process is interrupted and killed after grace.
func runClassProcess(ctx context.Context, exe string, args []string, logDir string, grace time.Duration, tailBytes int, run *classRun) error {
	eventsFile, err := os.Create(filepath.Join(logDir, eventsFileName))
	if err != nil {
		return fmt.Errorf("failed to create events log: %w", err)
	}
	defer eventsFile.Close()
	stderrFile, err := os.Create(filepath.Join(logDir, stderrFileName))
	if err != nil {
		return fmt.Errorf("failed to create stderr log: %w", err)
	}
	defer stderrFile.Close()

	stderrTail := newTailBuffer(tailBytes)

	pr, pw := io.Pipe()
	parsed := make(chan error, 1)
	go func() {
		err := run.consume(pr)
		// Drain anything left so the copying goroutine in exec never blocks.
		_, _ = io.Copy(io.Discard, pr)
		parsed <- err
	}()

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = filepath.Dir(exe)
	cmd.Stdout = io.MultiWriter(eventsFile, pw)
	cmd.Stderr = io.MultiWriter(stderrFile, stderrTail)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = grace

	runErr := cmd.Run()
	_ = pw.Close()
	if err := <-parsed; err != nil {
		run.log.Warn("Failed to read class output", "class", run.class, "err", err)
	}

	interrupted := ctx.Err() != nil
	tail := stderrTail.String()
	if stderrTail.Truncated() {
		tail = "..." + tail
	}
	run.close(runErr, interrupted, tail)
	if interrupted {
		return ctx.Err()
	}
	return nil
}
