package engine

import (
	"context"
)

// Installer is the backend contract for one family of entries.
// Implementations live in pkg/installers and are selected per section by a Registry.
type Installer interface {
	// Probe reports whether the entry is present and, if known, its version.
	// A probe error is treated as "not installed".
	Probe(ctx context.Context, entry Entry) (ProbeResult, error)

	// Install installs or configures the entry. force asks the backend to
	// reinstall even when it would otherwise be a no-op.
	Install(ctx context.Context, entry Entry, force bool) Outcome
}

// Verifier is implemented by backends that can smoke-test an entry after install.
// A verification failure is reported but never turns a success into a failure.
type Verifier interface {
	Verify(ctx context.Context, entry Entry) error
}

// Preparer is implemented by backends that need one-time setup before the
// first entry of a run is dispatched (package index refresh, PATH blocks).
type Preparer interface {
	Prepare(ctx context.Context, rc RunContext) error
}

// Finalizer is implemented by backends that clean up once after dispatch.
type Finalizer interface {
	Finalize(ctx context.Context, rc RunContext) error
}

// Observer receives entry lifecycle notifications from the executor.
// Telemetry (spans, metrics) and the history store implement it.
type Observer interface {
	// EntryStarted is called before an entry is dispatched. The returned
	// context is passed to the backend, so observers may attach spans to it.
	EntryStarted(ctx context.Context, section Section, entry Entry) context.Context

	// EntryFinished is called once with the entry's outcome.
	EntryFinished(ctx context.Context, outcome Outcome)
}

// CommandLookup reports whether a command exists on the live system.
type CommandLookup func(name string) bool
