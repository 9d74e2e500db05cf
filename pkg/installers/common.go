package installers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

// outputTail is how much command output is kept in a failure reason.
const outputTail = 5

// transientMarkers are output fragments that indicate a failure worth retrying.
var transientMarkers = []string{
	"Could not get lock",
	"Temporary failure resolving",
	"Failed to fetch",
	"Connection timed out",
	"Connection reset by peer",
	"429 Too Many Requests",
	"Read timed out",
}

// base holds what every backend needs.
type base struct {
	runner runner.Runner
	logger zerolog.Logger

	mu sync.Mutex
	rc engine.RunContext
}

func newBase(r runner.Runner, logger zerolog.Logger, component string) base {
	return base{
		runner: r,
		logger: logger.With().Str("component", component).Logger(),
	}
}

// remember stores the run context for use during Install.
func (b *base) remember(rc engine.RunContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rc = rc
}

func (b *base) runContext() engine.RunContext {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rc
}

// entryLogger returns a logger tagged with the entry.
func (b *base) entryLogger(e engine.Entry) zerolog.Logger {
	return b.logger.With().
		Str("section", string(e.Section)).
		Str("entry", e.Name).
		Logger()
}

// run executes cmd with its output streamed to the entry's debug log.
func (b *base) run(ctx context.Context, e engine.Entry, cmd runner.Command) (*runner.Result, error) {
	w := runner.NewLogWriter(b.entryLogger(e), zerolog.DebugLevel)
	cmd.Output = w
	defer w.Flush()
	return b.runner.Run(ctx, cmd)
}

// has reports whether an executable is on PATH.
func (b *base) has(name string) bool {
	_, err := b.runner.LookPath(name)
	return err == nil
}

// commandError turns a runner error or a non-zero exit into a classified error.
// It returns nil when the command succeeded.
func commandError(op string, res *runner.Result, err error) *engine.EngineError {
	if err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) {
			return ee.WithOperation(op)
		}
		if errors.Is(err, runner.ErrTimeout) {
			return engine.NewTimeoutError(op+" timed out", err).WithOperation(op)
		}
		return engine.NewInstallError(op+" could not run", err).WithOperation(op)
	}
	if res.Success() {
		return nil
	}

	out := res.Combined()
	msg := fmt.Sprintf("%s exited with code %d", op, res.ExitCode)
	if tail := lastLines(out, outputTail); tail != "" {
		msg += ": " + tail
	}

	for _, m := range transientMarkers {
		if strings.Contains(out, m) {
			return engine.NewTransientError(msg, nil).
				WithCode(engine.ErrCodeInstallFailed).
				WithOperation(op).
				WithDetail("exit_code", res.ExitCode)
		}
	}
	return engine.NewInstallError(msg, nil).
		WithOperation(op).
		WithDetail("exit_code", res.ExitCode)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}

// missingTool is the failure for a backend whose executable is absent.
func missingTool(e engine.Entry, tool, hint string) engine.Outcome {
	msg := tool + " not found on PATH"
	if hint != "" {
		msg += " (" + hint + ")"
	}
	return engine.Failed(e, engine.NewPermanentError(msg, nil).
		WithCode(engine.ErrCodeDependencyUnresolved).
		WithOperation("install"))
}

// boolString renders a flag the way install scripts expect it.
func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
