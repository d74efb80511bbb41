// Package runner starts worker processes and bounds how many run at once.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/use-agent/jobscrape/models"
)

// Invocation describes one worker launch: `<Executable> <Script> <Args...>`.
type Invocation struct {
	Executable string
	Script     string
	Args       []string
}

func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Executable, inv.Script}, inv.Args...), " ")
}

// Outcome is what a finished worker left behind.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// LineFunc receives each stdout line, in emission order, while the worker runs.
type LineFunc func(line string)

// Launcher runs worker processes.
type Launcher struct {
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration

	// KillGrace is how long a worker gets to exit after SIGINT before it
	// is killed and its pipes are closed. SIGINT goes to the worker's whole
	// process group, and whatever is left of the group once the worker is
	// gone is killed.
	KillGrace time.Duration

	// Env is appended to the current environment of every worker.
	Env []string
}

// NewLauncher creates a Launcher.
func NewLauncher(timeout, killGrace time.Duration) *Launcher {
	if killGrace <= 0 {
		killGrace = 5 * time.Second
	}
	return &Launcher{Timeout: timeout, KillGrace: killGrace}
}

// Run starts the worker and blocks until it exits and both of its output
// streams are drained.
//
// A zero exit returns the Outcome. Anything else returns a *models.ScrapeError:
// LAUNCH_FAILED when the process never started, PROCESS_FAILED (details =
// stderr) on a nonzero exit, SCRAPE_TIMEOUT or CANCELED when ctx ended first.
func (l *Launcher) Run(ctx context.Context, inv Invocation, onLine LineFunc) (*Outcome, error) {
	return l.RunTimeout(ctx, inv, l.Timeout, onLine)
}

// RunTimeout is Run with a per-call timeout overriding l.Timeout.
func (l *Launcher) RunTimeout(ctx context.Context, inv Invocation, timeout time.Duration, onLine LineFunc) (*Outcome, error) {
	if err := checkInvocation(inv); err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	lines := &lineWriter{buf: &stdout, onLine: onLine}

	args := append([]string{inv.Script}, inv.Args...)
	cmd := exec.CommandContext(ctx, inv.Executable, args...)
	cmd.Stdout = lines
	cmd.Stderr = &stderr
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return interruptGroup(cmd.Process)
	}
	cmd.WaitDelay = l.KillGrace
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}

	if err := ctx.Err(); err != nil {
		return nil, contextError(err, timeout)
	}
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, launchError(err)
	}
	pid := cmd.Process.Pid
	slog.Debug("worker started", "pid", pid, "script", inv.Script)

	waitErr := cmd.Wait()
	if killGroup(pid) {
		slog.Debug("killed processes left behind by worker", "pid", pid)
	}
	lines.Flush()

	outcome := &Outcome{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil && waitErr != nil {
		return nil, contextError(ctxErr, timeout).WithDetails(outcome.Stderr)
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(waitErr, exec.ErrWaitDelay):
		// The worker exited 0 but something it spawned kept its pipes open.
		slog.Warn("worker output pipes held open after exit", "pid", pid)
	case errors.As(waitErr, &exitErr):
		return nil, models.NewScrapeError(models.ErrCodeProcessFailed,
			fmt.Sprintf("worker exited with code %d", exitErr.ExitCode()), waitErr).
			WithDetails(outcome.Stderr)
	case waitErr != nil:
		return nil, models.NewScrapeError(models.ErrCodeProcessFailed, "worker did not exit cleanly", waitErr).
			WithDetails(outcome.Stderr)
	}

	slog.Debug("worker exited",
		"pid", pid,
		"exit_code", outcome.ExitCode,
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	return outcome, nil
}

// lineWriter accumulates everything written to it and reports each
// complete line. exec.Cmd writes from a single goroutine, so no locking.
type lineWriter struct {
	buf     *bytes.Buffer
	pending []byte
	onLine  LineFunc
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	if len(w.pending) == 0 {
		w.pending = nil
	}
	return len(p), nil
}

// Flush delivers a trailing line that had no newline.
func (w *lineWriter) Flush() {
	if len(w.pending) > 0 {
		w.emit(w.pending)
		w.pending = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	if w.onLine != nil {
		w.onLine(strings.TrimRight(string(line), "\r"))
	}
}

func checkInvocation(inv Invocation) error {
	if inv.Executable == "" {
		return launchError(errors.New("no worker executable configured"))
	}
	if _, err := exec.LookPath(inv.Executable); err != nil {
		return launchError(err)
	}
	info, err := os.Stat(inv.Script)
	if err != nil {
		return launchError(err)
	}
	if info.IsDir() {
		return launchError(fmt.Errorf("%s is a directory", inv.Script))
	}
	return nil
}

func launchError(err error) *models.ScrapeError {
	return models.NewScrapeError(models.ErrCodeLaunchFailed,
		fmt.Sprintf("failed to start worker: %v", err), err)
}

func contextError(err error, timeout time.Duration) *models.ScrapeError {
	if errors.Is(err, context.DeadlineExceeded) {
		msg := "worker run deadline exceeded"
		if timeout > 0 {
			msg = fmt.Sprintf("worker did not finish within %s", timeout)
		}
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	}
	return models.NewScrapeError(models.ErrCodeCanceled, "worker run was canceled", err)
}
