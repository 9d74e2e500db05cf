package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andresrocksuk/devbox/pkg/aptlock"
	"github.com/andresrocksuk/devbox/pkg/config"
	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
	"github.com/andresrocksuk/devbox/pkg/telemetry"
	sshtransport "github.com/andresrocksuk/devbox/pkg/transports/ssh"
)

// fetchTimeout bounds a remote profile download.
const fetchTimeout = 60 * time.Second

// session is what one command invocation shares: run id, artifacts and logger.
type session struct {
	cmd       *cobra.Command
	opts      *options
	runID     string
	artifacts telemetry.Artifacts
	logger    *telemetry.Logger
	runner    runner.Runner
	home      string
}

func newSession(cmd *cobra.Command, opts *options) (*session, error) {
	if _, err := telemetry.ParseLevel(opts.logLevel); err != nil {
		return nil, err
	}

	runID, err := telemetry.ResolveRunID(opts.runID, time.Now)
	if err != nil {
		return nil, err
	}
	artifacts, err := telemetry.NewArtifacts(opts.logDir, runID)
	if err != nil {
		return nil, err
	}

	home := opts.home
	if home == "" {
		if home, err = os.UserHomeDir(); err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
	}

	s := &session{cmd: cmd, opts: opts, runID: runID, artifacts: artifacts, home: home}
	if err := s.openLogger(opts.logLevel); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) openLogger(level string) error {
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:   level,
		Console: s.cmd.ErrOrStderr(),
		NoColor: s.opts.noColor,
		File:    s.artifacts.RunLog(),
		RunID:   s.runID,
	})
	if err != nil {
		return err
	}
	s.logger = logger

	// the default runner logs through the session logger and must follow it
	s.runner = s.opts.runner
	if s.runner == nil {
		s.runner = runner.New(s.logger.Logger)
	}
	return nil
}

// applyProfileLevel switches the console to the profile's log level unless
// --log-level was given. The run log is reopened in append mode.
func (s *session) applyProfileLevel(cfg *engine.Configuration) string {
	level := strings.ToUpper(s.opts.logLevel)
	if s.cmd.Flags().Changed("log-level") || cfg.Settings.LogLevel == "" {
		return level
	}
	profileLevel := strings.ToUpper(cfg.Settings.LogLevel)
	if profileLevel == level {
		return level
	}
	if _, err := telemetry.ParseLevel(profileLevel); err != nil {
		s.logger.Warn().Str("level", cfg.Settings.LogLevel).Msg("Ignoring invalid profile log level")
		return level
	}

	_ = s.logger.Close()
	if err := s.openLogger(profileLevel); err != nil {
		// the previous level still works; fall back to it
		_ = s.openLogger(level)
		return level
	}
	return profileLevel
}

func (s *session) close() {
	if s.logger != nil {
		_ = s.logger.Close()
	}
}

func (s *session) log(component string) zerolog.Logger {
	return s.logger.Component(component)
}

func (s *session) guard() *aptlock.Guard {
	return aptlock.New(s.runner, s.log("aptlock"))
}

func (s *session) resolver() *config.Resolver {
	return &config.Resolver{
		Root:     s.opts.root,
		StateDir: s.opts.stateDir,
		HTTP:     config.NewHTTPFetcher(fetchTimeout),
		Fallback: &config.CurlFetcher{Runner: s.runner, Timeout: fetchTimeout},
		SFTP: &sshtransport.Fetcher{
			Home:   s.home,
			User:   currentUser(),
			Logger: s.log("sftp"),
		},
		Logger: s.log("resolver"),
	}
}

// load resolves the profile and plans it against the section filter.
func (s *session) load(ctx context.Context) (*config.Resolved, *engine.Plan, []engine.Section, error) {
	filter, err := engine.ParseSections(s.opts.sections)
	if err != nil {
		return nil, nil, nil, err
	}

	resolved, err := s.resolver().Resolve(ctx, s.opts.configRef)
	if err != nil {
		return nil, nil, nil, err
	}

	plan, err := engine.NewPlanner(func(name string) bool {
		_, err := s.runner.LookPath(name)
		return err == nil
	}).Plan(resolved.Config, filter)
	if err != nil {
		return nil, nil, nil, err
	}
	return resolved, plan, filter, nil
}

// runContext merges the flags with the profile settings.
func (s *session) runContext(cfg *engine.Configuration, filter []engine.Section, level string) engine.RunContext {
	return engine.RunContext{
		RunID:               s.runID,
		Force:               s.opts.force,
		DryRun:              s.opts.dryRun,
		ContinueOnError:     cfg.Settings.ContinueOnError,
		Sections:            filter,
		LogLevel:            level,
		AptUpgrade:          s.opts.aptUpgrade,
		BreakLocks:          s.opts.breakLocks,
		UpdatePackages:      cfg.Settings.UpdatePackages,
		CleanupAfterInstall: cfg.Settings.CleanupAfterInstall,
		MaxRetries:          cfg.Settings.MaxRetries,
		Root:                s.opts.root,
	}
}

// renderer styles output for w, dropping colour when asked or not on a terminal.
func (s *session) renderer(w io.Writer) *lipgloss.Renderer {
	return newRenderer(w, s.opts.noColor)
}

func newRenderer(w io.Writer, noColor bool) *lipgloss.Renderer {
	r := lipgloss.NewRenderer(w)
	if noColor || !telemetry.IsTerminal(w) {
		r.SetColorProfile(termenv.Ascii)
	}
	return r
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}
