package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Result is what Execute returns: the plan that ran and how it went.
type Result struct {
	RunID      string        `json:"run_id"`
	DryRun     bool          `json:"dry_run"`
	Status     RunStatus     `json:"status"`
	Plan       *Plan         `json:"plan"`
	Summary    Summary       `json:"summary"`
	Outcomes   []Outcome     `json:"outcomes"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// ExitCode returns the process exit code for the run.
func (r *Result) ExitCode() int {
	return r.Summary.ExitCode(r.DryRun)
}

// Executor walks a plan strictly sequentially, dispatching each entry and
// feeding outcomes to an aggregator.
type Executor struct {
	registry   *Registry
	dispatcher *Dispatcher
	observers  []Observer
	logger     zerolog.Logger
}

// NewExecutor creates an executor.
func NewExecutor(registry *Registry, dispatcher *Dispatcher, logger zerolog.Logger, observers ...Observer) *Executor {
	return &Executor{
		registry:   registry,
		dispatcher: dispatcher,
		observers:  observers,
		logger:     logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs the plan. In dry-run mode every planned entry is logged as a
// hypothetical action and no backend method is called at all.
//
// The returned error is non-nil only when ctx was cancelled; entry failures
// are reported through the result's summary.
func (x *Executor) Execute(ctx context.Context, rc RunContext, plan *Plan) (*Result, error) {
	res := &Result{
		RunID:     rc.RunID,
		DryRun:    rc.DryRun,
		Plan:      plan,
		StartedAt: time.Now(),
	}
	log := x.logger.With().Str("run_id", rc.RunID).Logger()

	for _, w := range plan.Warnings {
		log.Warn().
			Str("code", ErrCodeDependencyUnresolved).
			Str("entry", w.Entry).
			Str("dependency", w.Dependency).
			Msg(w.String())
	}
	for _, s := range plan.Skipped {
		log.Debug().Str("section", string(s)).Msg("Section excluded by filter")
	}

	agg := NewAggregator(rc.ContinueOnError)

	if rc.DryRun {
		x.dryRun(log, plan)
		return x.finish(res, agg), nil
	}

	backends := x.registry.Unique(plan.SectionNames())
	for _, b := range backends {
		if p, ok := b.(Preparer); ok {
			if err := p.Prepare(ctx, rc); err != nil {
				log.Error().Err(err).Msg("Backend preparation failed")
			}
		}
	}

	var runErr error
dispatch:
	for _, sp := range plan.Sections {
		if len(sp.Entries) == 0 {
			continue
		}
		log.Info().Str("section", string(sp.Section)).Int("entries", len(sp.Entries)).Msg("Processing section")

		for _, entry := range sp.Entries {
			if err := ctx.Err(); err != nil {
				runErr = err
				break dispatch
			}

			ectx := ctx
			for _, o := range x.observers {
				ectx = o.EntryStarted(ectx, sp.Section, entry)
			}

			out := x.dispatcher.Dispatch(ectx, rc, entry)

			for _, o := range x.observers {
				o.EntryFinished(ectx, out)
			}
			logOutcome(log, out)

			if agg.Record(out) {
				log.Error().
					Str("section", string(sp.Section)).
					Str("entry", entry.Name).
					Msg("Stopping at first failure (continue_on_error is false)")
				break dispatch
			}
		}
	}

	for _, b := range backends {
		if f, ok := b.(Finalizer); ok {
			if err := f.Finalize(context.WithoutCancel(ctx), rc); err != nil {
				log.Warn().Err(err).Msg("Backend cleanup failed")
			}
		}
	}

	return x.finish(res, agg), runErr
}

func (x *Executor) dryRun(log zerolog.Logger, plan *Plan) {
	for _, sp := range plan.Sections {
		for _, entry := range sp.Entries {
			action := "install"
			if !entry.Enabled {
				action = "skip (disabled)"
			}
			log.Info().
				Str("section", string(sp.Section)).
				Str("entry", entry.Name).
				Str("version", entry.RequiredVersion()).
				Str("action", action).
				Msg("[dry-run] would process entry")
		}
	}
	log.Info().Int("entries", plan.EntryCount()).Msg("[dry-run] plan complete, nothing was changed")
}

func (x *Executor) finish(res *Result, agg *Aggregator) *Result {
	res.Summary = agg.Summary()
	res.Outcomes = agg.Outcomes()
	res.Status = res.Summary.RunStatus(res.DryRun)
	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)
	return res
}

func logOutcome(log zerolog.Logger, o Outcome) {
	ev := log.Info()
	if o.Status == StatusFailure {
		ev = log.Error()
	}
	ev = ev.
		Str("section", string(o.Section)).
		Str("entry", o.Entry).
		Str("status", string(o.Status)).
		Dur("duration", o.Duration)
	if o.Version != "" {
		ev = ev.Str("version", o.Version)
	}
	if o.Err != nil {
		ev = ev.Str("code", o.Err.Code)
	}
	if o.Reason != "" {
		ev = ev.Str("reason", o.Reason)
	}
	if o.Verification != "" {
		ev = ev.Str("verification", o.Verification)
	}
	ev.Msg("Entry finished")
}
