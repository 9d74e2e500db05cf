package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresrocksuk/devbox/pkg/config"
	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/installers"
	"github.com/andresrocksuk/devbox/pkg/report"
	"github.com/andresrocksuk/devbox/pkg/stores"
	"github.com/andresrocksuk/devbox/pkg/telemetry"
)

// shutdownTimeout bounds flushing spans after the run.
const shutdownTimeout = 10 * time.Second

func runInstall(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()

	tracing := telemetry.DefaultTracingConfig()
	tracing.Exporter = opts.trace
	tracing.Endpoint = opts.otlpEndpoint
	tracing.ServiceVersion = cmd.Root().Version
	if err := tracing.Validate(); err != nil {
		return err
	}

	s, err := newSession(cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	if tracing.Exporter == telemetry.ExporterFile {
		tracing.File = s.artifacts.Trace()
	}

	log := s.log("cli")
	log.Info().
		Str("config", opts.configRef).
		Bool("dry_run", opts.dryRun).
		Bool("force", opts.force).
		Str("log_dir", s.artifacts.Dir).
		Msg("Starting devbox run")

	resolved, plan, filter, err := s.load(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Configuration resolution failed")
		return err
	}
	level := s.applyProfileLevel(resolved.Config)
	log = s.log("cli")
	log.Info().
		Str("profile", profileName(resolved)).
		Str("source", resolved.Source).
		Int("entries", plan.EntryCount()).
		Msg("Profile resolved")

	rc := s.runContext(resolved.Config, filter, level)

	registry, err := installers.NewRegistry(installers.Options{
		Runner: s.runner,
		Guard:  s.guard(),
		Logger: s.log("installer"),
		Root:   opts.root,
		Home:   s.home,
	})
	if err != nil {
		return err
	}

	tracer, err := telemetry.NewTracer(ctx, tracing, s.runID)
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	metrics := telemetry.NewMetrics()

	dispatcher := engine.NewDispatcher(registry, engine.WithDispatchLogger(s.log("dispatch")))
	executor := engine.NewExecutor(registry, dispatcher, s.logger.Logger, telemetry.NewObserver(tracer, metrics))

	runCtx, span := tracer.StartRun(ctx, rc)
	res, runErr := executor.Execute(runCtx, rc, plan)
	telemetry.EndRun(span, res, runErr)

	// artifacts are still written after an interrupt
	after, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := tracer.Shutdown(after); err != nil {
		log.Warn().Err(err).Msg("Failed to flush traces")
	}

	metrics.ObserveRun(res)
	if err := metrics.WriteTextfile(s.artifacts.Metrics()); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}

	if !rc.DryRun {
		writeRunReports(after, s, resolved.Config, registry, res)
	}

	if opts.historyDB != "" {
		meta := stores.RunMeta{
			Profile:    profileName(resolved),
			ConfigPath: resolved.Path,
			Force:      opts.force,
			Sections:   filter,
		}
		if err := recordHistory(after, opts.historyDB, res, meta); err != nil {
			log.Warn().Err(err).Str("path", opts.historyDB).Msg("Failed to record run history")
		}
	}

	files, _ := s.artifacts.Glob()
	fmt.Fprintln(cmd.OutOrStdout(), renderSummary(s.renderer(cmd.OutOrStdout()), res, files))

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run interrupted: %w", runErr)
		}
		return runErr
	}
	if res.ExitCode() != 0 {
		return ErrRunFailed
	}
	return nil
}

// writeRunReports writes the version report and test results. Failures are
// logged; they never change the run's outcome.
func writeRunReports(ctx context.Context, s *session, cfg *engine.Configuration, registry *engine.Registry, res *engine.Result) {
	log := s.log("report")

	if apt, err := registry.Get(engine.SectionAptPackages); err == nil {
		vr := report.BuildVersionReport(ctx, s.runID, cfg, apt, time.Now())
		vr.Host = report.CollectHostFacts(ctx, s.runner, report.OSReleasePath)
		if err := report.WriteJSON(s.artifacts.VersionReport(), vr); err != nil {
			log.Warn().Err(err).Msg("Failed to write version report")
		} else {
			log.Info().
				Str("path", s.artifacts.VersionReport()).
				Int("missing", vr.Missing).
				Int("drifted", vr.Drifted).
				Msg("Version report written")
		}
	}

	tr := report.BuildTestResults(res, time.Now())
	if err := report.WriteJSON(s.artifacts.TestResults(), tr); err != nil {
		log.Warn().Err(err).Msg("Failed to write test results")
		return
	}
	log.Info().
		Str("path", s.artifacts.TestResults()).
		Int("passed", tr.Passed).
		Int("failed", tr.Failed).
		Msg("Test results written")
}

func recordHistory(ctx context.Context, path string, res *engine.Result, meta stores.RunMeta) error {
	store, err := stores.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return stores.RecordResult(ctx, store, res, meta)
}

// profileName is what the summary and reports call the resolved profile.
func profileName(r *config.Resolved) string {
	if r.Config.Metadata.Name != "" {
		return r.Config.Metadata.Name
	}
	return r.Ref
}
