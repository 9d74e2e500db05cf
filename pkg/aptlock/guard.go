// Package aptlock waits for the dpkg and apt lock files to be released before
// package operations run, and optionally breaks stale locks.
package aptlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

// DefaultLockFiles are the locks taken by dpkg, apt-get and unattended-upgrades.
var DefaultLockFiles = []string{
	"/var/lib/dpkg/lock-frontend",
	"/var/lib/dpkg/lock",
	"/var/lib/apt/lists/lock",
	"/var/cache/apt/archives/lock",
}

// DefaultTimeout bounds how long Wait polls before giving up.
const DefaultTimeout = 5 * time.Minute

var errLocked = errors.New("package manager lock is held")

// Guard serializes this process against other package-manager users.
type Guard struct {
	runner     runner.Runner
	logger     zerolog.Logger
	files      []string
	timeout    time.Duration
	newBackOff func() backoff.BackOff
}

// Option configures a Guard.
type Option func(*Guard)

// WithTimeout sets the overall wait budget.
func WithTimeout(d time.Duration) Option {
	return func(g *Guard) {
		g.timeout = d
	}
}

// WithLockFiles overrides the lock files that are checked.
func WithLockFiles(files ...string) Option {
	return func(g *Guard) {
		g.files = files
	}
}

// WithBackOff sets the polling policy.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(g *Guard) {
		g.newBackOff = fn
	}
}

// New creates a lock guard.
func New(r runner.Runner, logger zerolog.Logger, opts ...Option) *Guard {
	g := &Guard{
		runner:  r,
		logger:  logger.With().Str("component", "aptlock").Logger(),
		files:   DefaultLockFiles,
		timeout: DefaultTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 15 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Held reports whether any lock file is open by another process.
// Without fuser on PATH the locks are assumed free.
func (g *Guard) Held(ctx context.Context) (bool, error) {
	if _, err := g.runner.LookPath("fuser"); err != nil {
		g.logger.Debug().Msg("fuser not found, skipping lock check")
		return false, nil
	}

	res, err := g.runner.Run(ctx, runner.Command{Name: "fuser", Args: g.files, Sudo: true})
	if err != nil {
		return false, fmt.Errorf("failed to check package manager locks: %w", err)
	}
	// fuser exits 0 when at least one file is in use
	return res.ExitCode == 0, nil
}

// Wait blocks until the locks are free, polling with exponential backoff.
// When the wait budget runs out it fails with LOCK_TIMEOUT, unless breakLocks
// is set, in which case the holders are killed and the locks removed.
func (g *Guard) Wait(ctx context.Context, breakLocks bool) error {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		held, err := g.Held(ctx)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if held {
			if attempt == 1 {
				g.logger.Info().Msg("Waiting for another package manager process to finish")
			}
			return struct{}{}, errLocked
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(g.newBackOff()),
		backoff.WithMaxElapsedTime(g.timeout),
	)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errLocked) {
		return err
	}

	if !breakLocks {
		return engine.NewConflictError(
			fmt.Sprintf("package manager lock still held after %s (rerun with --break-stale-locks or run 'devbox unlock')", g.timeout),
			err,
		).WithCode(engine.ErrCodeLockTimeout)
	}

	g.logger.Warn().Dur("waited", g.timeout).Msg("Lock wait timed out, breaking stale locks")
	return g.Break(ctx)
}

// Break kills processes holding the locks, removes the lock files and lets
// dpkg finish any interrupted configuration.
func (g *Guard) Break(ctx context.Context) error {
	if _, err := g.runner.LookPath("fuser"); err == nil {
		args := append([]string{"-k", "-KILL"}, g.files...)
		if _, err := g.runner.Run(ctx, runner.Command{Name: "fuser", Args: args, Sudo: true}); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to kill lock holders")
		}
	}

	rmArgs := append([]string{"-f"}, g.files...)
	res, err := g.runner.Run(ctx, runner.Command{Name: "rm", Args: rmArgs, Sudo: true})
	if err != nil {
		return fmt.Errorf("failed to remove lock files: %w", err)
	}
	if !res.Success() {
		return fmt.Errorf("failed to remove lock files: %s", res.Combined())
	}

	res, err = g.runner.Run(ctx, runner.Command{
		Name: "dpkg",
		Args: []string{"--configure", "-a"},
		Env:  map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
		Sudo: true,
	})
	if err != nil {
		return fmt.Errorf("failed to run dpkg --configure -a: %w", err)
	}
	if !res.Success() {
		return fmt.Errorf("dpkg --configure -a exited with %d: %s", res.ExitCode, res.Combined())
	}

	g.logger.Info().Strs("files", g.files).Msg("Stale package manager locks removed")
	return nil
}
