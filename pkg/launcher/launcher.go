// Package launcher spawns external processes, captures their output streams,
// and races natural exit against the attempt timeout and the shared
// cancellation signal. It never retries; classification of its failures and
// retry decisions live in pkg/retry.
package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runbeat/runbeat/pkg/cancel"
	"github.com/runbeat/runbeat/pkg/logging"
	"github.com/runbeat/runbeat/pkg/models"
)

// Launcher performs single process launch attempts
type Launcher struct {
	log             *logging.Logger
	killGrace       time.Duration // Wait between SIGTERM and SIGKILL
	monitorInterval time.Duration
	softMemLimitMB  uint64
}

// New creates a launcher with default kill and monitor settings
func New(log *logging.Logger) *Launcher {
	return &Launcher{
		log:             log,
		killGrace:       2 * time.Second,
		monitorInterval: 5 * time.Second,
		softMemLimitMB:  2048,
	}
}

// Launch runs one attempt of the given parameters. It returns an
// ExecutionResult when the process exits naturally, regardless of exit code,
// or a classified ExecError for NotFound, LaunchFailure, Timeout and Canceled.
func (l *Launcher) Launch(ctx context.Context, params models.JobParameters, ctrl *cancel.Controller) (*models.ExecutionResult, error) {
	if err := params.Validate(); err != nil {
		return nil, models.NewExecError(models.KindLaunchFailure, err)
	}

	// Pre-flight checks run on every attempt; a transient filesystem issue
	// on one attempt must not memoize across attempts.
	exePath, err := l.preflight(params)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(exePath, params.Args...)
	cmd.Dir = params.WorkingDir
	cmd.Env = mergedEnv(params.Env)
	// Own process group, so the whole tree can be killed as a unit
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdoutLines, stderrLines []string
	var readers errgroup.Group

	if params.CaptureStdout {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return nil, models.NewExecError(models.KindLaunchFailure, fmt.Errorf("stdout pipe: %w", err))
		}
		readers.Go(func() error {
			stdoutLines = readLines(pipe)
			return nil
		})
	}
	if params.CaptureStderr {
		pipe, err := cmd.StderrPipe()
		if err != nil {
			return nil, models.NewExecError(models.KindLaunchFailure, fmt.Errorf("stderr pipe: %w", err))
		}
		readers.Go(func() error {
			stderrLines = readLines(pipe)
			return nil
		})
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.NewExecError(models.KindNotFound, err)
		}
		return nil, models.NewExecError(models.KindLaunchFailure, fmt.Errorf("failed to start process: %w", err))
	}

	pid := cmd.Process.Pid
	l.log.Debug("process started", map[string]interface{}{"pid": pid, "path": exePath})

	monitorStop := make(chan struct{})
	defer close(monitorStop)
	go l.monitor(pid, monitorStop)

	// Readers must be fully drained before Wait closes the pipes, so no
	// trailing output is lost between process exit and buffer flush.
	waitCh := make(chan error, 1)
	go func() {
		readers.Wait()
		waitCh <- cmd.Wait()
	}()

	timer := time.NewTimer(params.Timeout())
	defer timer.Stop()

	select {
	case waitErr := <-waitCh:
		return buildResult(waitErr, start, stdoutLines, stderrLines)

	case <-timer.C:
		// The process may have exited just as the timer fired; a race-free
		// exit code always wins over a kill outcome.
		select {
		case waitErr := <-waitCh:
			return buildResult(waitErr, start, stdoutLines, stderrLines)
		default:
		}
		l.killTree(pid, waitCh)
		return nil, models.NewExecError(models.KindTimeout,
			fmt.Errorf("attempt exceeded timeout of %v", params.Timeout()))

	case <-ctrl.Done():
		select {
		case waitErr := <-waitCh:
			return buildResult(waitErr, start, stdoutLines, stderrLines)
		default:
		}
		l.killTree(pid, waitCh)
		return nil, models.NewExecError(models.KindCanceled,
			errors.New("cancellation requested during execution"))

	case <-ctx.Done():
		select {
		case waitErr := <-waitCh:
			return buildResult(waitErr, start, stdoutLines, stderrLines)
		default:
		}
		l.killTree(pid, waitCh)
		return nil, models.NewExecError(models.KindCanceled, ctx.Err())
	}
}

// preflight validates that the executable and working directory exist.
// Both failures classify as NotFound.
func (l *Launcher) preflight(params models.JobParameters) (string, error) {
	path := params.ExecutablePath
	if !strings.ContainsRune(path, os.PathSeparator) {
		resolved, err := exec.LookPath(path)
		if err != nil {
			return "", models.NewExecError(models.KindNotFound,
				fmt.Errorf("executable %q not found in PATH: %w", path, err))
		}
		path = resolved
	} else {
		info, err := os.Stat(path)
		if err != nil {
			return "", models.NewExecError(models.KindNotFound,
				fmt.Errorf("executable not found: %w", err))
		}
		if info.IsDir() {
			return "", models.NewExecError(models.KindNotFound,
				fmt.Errorf("executable path %s is a directory", path))
		}
	}

	if params.WorkingDir != "" {
		info, err := os.Stat(params.WorkingDir)
		if err != nil {
			return "", models.NewExecError(models.KindNotFound,
				fmt.Errorf("working directory missing: %w", err))
		}
		if !info.IsDir() {
			return "", models.NewExecError(models.KindNotFound,
				fmt.Errorf("working directory %s is not a directory", params.WorkingDir))
		}
	}

	return path, nil
}

// buildResult turns a Wait outcome into an ExecutionResult. A nonzero exit
// code is a valid result; only failures to run at all become errors.
func buildResult(waitErr error, start time.Time, stdout, stderr []string) (*models.ExecutionResult, error) {
	end := time.Now()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, models.NewExecError(models.KindLaunchFailure, fmt.Errorf("wait: %w", waitErr))
		}
		exitCode = exitErr.ExitCode()
	}

	return &models.ExecutionResult{
		ExitCode:  exitCode,
		Stdout:    strings.Join(stdout, "\n"),
		Stderr:    strings.Join(stderr, "\n"),
		Duration:  end.Sub(start),
		StartedAt: start,
		EndedAt:   end,
	}, nil
}

// readLines drains a stream into ordered lines. Ordering is guaranteed
// within a stream, not between stdout and stderr. When a line exceeds the
// buffer cap the scanner stops, but the pipe must still be drained to EOF:
// a child blocked on a full pipe would never exit and a clean run would be
// misreported as a timeout.
func readLines(r io.Reader) []string {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		io.Copy(io.Discard, r)
		lines = append(lines, fmt.Sprintf("[capture truncated: %v]", err))
	}
	return lines
}

// mergedEnv builds the child environment from the base environment plus
// overrides; override keys take precedence (os/exec keeps the last value
// for duplicate keys).
func mergedEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
