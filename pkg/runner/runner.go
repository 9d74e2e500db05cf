// Package runner executes external commands for the installer backends.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// ErrTimeout is returned when a command is killed at its wall-clock limit.
var ErrTimeout = errors.New("command timed out")

// Command describes one process invocation.
type Command struct {
	// Name is the executable; Args are passed verbatim.
	Name string
	Args []string

	// Env is added on top of the current environment.
	Env map[string]string

	// Dir is the working directory.
	Dir string

	// Timeout kills the whole process group when exceeded. Zero means no limit.
	Timeout time.Duration

	// Sudo runs the command through sudo when not already root.
	Sudo bool

	// Output, if set, receives stdout and stderr as they are produced.
	Output io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of a finished command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Success reports a zero exit code.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0 && !r.TimedOut
}

// Combined returns trimmed stdout followed by trimmed stderr.
func (r *Result) Combined() string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(r.Stdout) + "\n" + strings.TrimSpace(r.Stderr))
}

// Runner runs commands and resolves executables.
type Runner interface {
	// Run executes the command. A non-zero exit is reported through
	// Result.ExitCode with a nil error; an error means the command could not
	// be started, or ErrTimeout.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// LookPath resolves an executable on PATH.
	LookPath(name string) (string, error)
}

// ExecRunner runs commands on the local machine with os/exec.
type ExecRunner struct {
	logger zerolog.Logger
	euid   int
}

// New creates a local runner.
func New(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{
		logger: logger.With().Str("component", "runner").Logger(),
		euid:   os.Geteuid(),
	}
}

// LookPath implements Runner.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run implements Runner. Stdin is always the null device, so a command that
// prompts fails instead of hanging the run.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("command is required")
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	name, args := c.Name, c.Args
	if c.Sudo && r.euid != 0 {
		// sudo resets the environment, so variables go on its command line
		sudoArgs := make([]string, 0, len(args)+len(c.Env)+1)
		sudoArgs = append(sudoArgs, envList(c.Env)...)
		sudoArgs = append(sudoArgs, name)
		name, args = "sudo", append(sudoArgs, args...)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = c.Dir
	cmd.Stdin = nil
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(c.Env)...)
	}

	// own process group so a timeout kills children too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if c.Output != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.Output)
		cmd.Stderr = io.MultiWriter(&stderr, c.Output)
	}

	r.logger.Debug().Str("command", c.String()).Str("dir", c.Dir).Msg("Running command")

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if c.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, fmt.Errorf("%s after %s: %w", c.String(), c.Timeout, ErrTimeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s: %w", c.String(), ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}

	return result, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
