package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Dispatcher routes a single entry to its backend and applies the
// idempotency and force rules around the install call.
type Dispatcher struct {
	registry   *Registry
	logger     zerolog.Logger
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchLogger sets the logger used for probe and verification messages.
func WithDispatchLogger(logger zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithRetryBackOff sets the backoff policy between install retries.
func WithRetryBackOff(fn func() backoff.BackOff) DispatcherOption {
	return func(d *Dispatcher) {
		d.newBackOff = fn
	}
}

// NewDispatcher creates a dispatcher over a registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   zerolog.Nop(),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one entry through probe, install and verify.
//
// A disabled entry is skipped without touching the backend. An installed entry
// whose version satisfies the requirement short-circuits to already_installed
// unless rc.Force is set. Install is retried up to rc.MaxRetries times when it
// fails with a retryable error class.
func (d *Dispatcher) Dispatch(ctx context.Context, rc RunContext, entry Entry) Outcome {
	start := d.now()
	out := d.dispatch(ctx, rc, entry)
	out.Section = entry.Section
	out.Entry = entry.Name
	out.Duration = d.now().Sub(start)
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, rc RunContext, entry Entry) Outcome {
	log := d.logger.With().
		Str("section", string(entry.Section)).
		Str("entry", entry.Name).
		Logger()

	if !entry.Enabled {
		return Outcome{Status: StatusSkipped, Reason: "disabled in profile"}
	}

	inst, err := d.registry.Get(entry.Section)
	if err != nil {
		return Failed(entry, AsEngineError(err))
	}

	probe, err := inst.Probe(ctx, entry)
	if err != nil {
		log.Debug().Err(err).Msg("Probe failed, treating entry as not installed")
		probe = ProbeResult{}
	}

	if probe.Installed && !rc.Force && Satisfies(probe.Version, entry.RequiredVersion()) {
		return Outcome{Status: StatusAlreadyInstalled, Version: probe.Version}
	}
	if probe.Installed && rc.Force {
		log.Info().Str("installed_version", probe.Version).Msg("Force reinstall requested")
	}

	out := d.install(ctx, rc, inst, entry)
	if out.Status != StatusSuccess {
		return out
	}

	if v, ok := inst.(Verifier); ok {
		if verr := v.Verify(ctx, entry); verr != nil {
			werr := NewPermanentError("verification failed", verr).
				WithCode(ErrCodeVerificationFailed).
				WithEntry(entry)
			out.Verification = werr.Error()
			log.Warn().Err(verr).Msg("Verification failed after install")
		} else {
			out.Verified = true
		}
	}
	return out
}

func (d *Dispatcher) install(ctx context.Context, rc RunContext, inst Installer, entry Entry) Outcome {
	tries := uint(1)
	if rc.MaxRetries > 0 {
		tries = uint(rc.MaxRetries) + 1
	}

	var last Outcome
	attempt := 0
	op := func() (Outcome, error) {
		attempt++
		last = normalize(inst.Install(ctx, entry, rc.Force), entry)
		if last.Status != StatusFailure {
			return last, nil
		}
		if last.Err != nil && IsRetryable(last.Err) {
			d.logger.Warn().
				Str("section", string(entry.Section)).
				Str("entry", entry.Name).
				Int("attempt", attempt).
				Err(last.Err).
				Msg("Install failed with a transient error")
			return last, last.Err
		}
		return last, backoff.Permanent(failureError(last))
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(d.newBackOff()),
		backoff.WithMaxTries(tries),
	)
	if attempt == 0 {
		return Failed(entry, NewPermanentError("install interrupted", err).WithCode(ErrCodeInstallFailed))
	}
	return last
}

// normalize fills in what a backend may have left empty.
func normalize(o Outcome, entry Entry) Outcome {
	if o.Status == "" {
		if o.Err != nil {
			o.Status = StatusFailure
		} else {
			o.Status = StatusSuccess
		}
	}
	if o.Status == StatusFailure && o.Err == nil {
		o.Err = NewInstallError(o.Reason, nil)
	}
	if o.Err != nil {
		o.Err.WithEntry(entry)
		if o.Reason == "" {
			o.Reason = o.Err.Error()
		}
	}
	return o
}

func failureError(o Outcome) error {
	if o.Err != nil {
		return o.Err
	}
	return NewInstallError(o.Reason, nil)
}
