// Package build runs a project's build command through the platform shell
// and captures its combined output.
package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"
)

// Reason explains why a build did not succeed.
type Reason string

// Failure reasons.
const (
	ReasonNone        Reason = ""
	ReasonExitStatus  Reason = "exit-status"
	ReasonLaunch      Reason = "launch"
	ReasonTimeout     Reason = "timeout"
	ReasonCanceled    Reason = "canceled"
	ReasonEnvironment Reason = "environment"
)

// Result is the outcome of one build invocation.
type Result struct {
	Success  bool
	Output   string
	ExitCode int
	Reason   Reason
	Err      error
	Duration time.Duration
}

// EnvironmentError reports a fault outside the build itself: the working
// directory is missing or the shell cannot be found.
type EnvironmentError struct {
	Dir string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("build environment for %s: %v", e.Dir, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// Options configures a Runner.
type Options struct {
	// Timeout bounds a build. Zero means unbounded.
	Timeout time.Duration

	// Shell overrides the interpreter, e.g. []string{"bash", "-c"}.
	// Defaults to "sh -c" (or "cmd /C" on windows).
	Shell []string

	// Env is appended to the inherited environment.
	Env []string

	// Stream, when set, receives output as it is produced.
	Stream io.Writer

	Logger *slog.Logger
}

// Runner executes build commands.
type Runner struct {
	opts Options
}

// NewRunner creates a runner.
func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if len(opts.Shell) == 0 {
		opts.Shell = defaultShell()
	}

	return &Runner{opts: opts}
}

// Run executes command with dir as working directory. A failed build is a
// normal Result with Success=false; only a missing directory or shell sets
// Reason to ReasonEnvironment with an *EnvironmentError in Err.
func (r *Runner) Run(ctx context.Context, dir, command string) Result {
	start := time.Now()

	if err := checkDir(dir); err != nil {
		return Result{Reason: ReasonEnvironment, Err: err, ExitCode: -1}
	}

	shell, err := exec.LookPath(r.opts.Shell[0])
	if err != nil {
		return Result{
			Reason:   ReasonEnvironment,
			Err:      &EnvironmentError{Dir: dir, Err: fmt.Errorf("shell %q: %w", r.opts.Shell[0], err)},
			ExitCode: -1,
		}
	}

	runCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, r.opts.Shell[1:]...), command)

	cmd := exec.CommandContext(runCtx, shell, args...) //nolint:gosec // the command is user configuration
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), r.opts.Env...)
	configureProcess(cmd)

	var out lockedBuffer

	var w io.Writer = &out
	if r.opts.Stream != nil {
		w = io.MultiWriter(&out, r.opts.Stream)
	}

	// A single writer for both streams keeps their interleaving.
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.WaitDelay = 2 * time.Second

	r.opts.Logger.Debug("running build",
		slog.String("dir", dir),
		slog.String("command", command),
	)

	runErr := cmd.Run()

	res := Result{
		Output:   out.String(),
		Duration: time.Since(start),
		ExitCode: exitCode(cmd, runErr),
	}

	switch {
	case runErr == nil:
		res.Success = true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.Reason = ReasonTimeout
		res.Err = fmt.Errorf("build timed out after %s", r.opts.Timeout)
	case ctx.Err() != nil:
		res.Reason = ReasonCanceled
		res.Err = fmt.Errorf("build canceled: %w", ctx.Err())
	case isExitError(runErr):
		res.Reason = ReasonExitStatus
		res.Err = fmt.Errorf("build exited with status %d", res.ExitCode)
	default:
		res.Reason = ReasonLaunch
		res.Err = fmt.Errorf("starting build: %w", runErr)
	}

	return res
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &EnvironmentError{Dir: dir, Err: err}
	}

	if !info.IsDir() {
		return &EnvironmentError{Dir: dir, Err: errors.New("not a directory")}
	}

	return nil
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}

	return []string{"sh", "-c"}
}

func isExitError(err error) bool {
	var ee *exec.ExitError

	return errors.As(err, &ee)
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}

	if err != nil {
		return -1
	}

	return 0
}

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}
