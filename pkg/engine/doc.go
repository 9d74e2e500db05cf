// Package engine provides the core types and the execution pipeline of the devbox provisioner.
//
// # Overview
//
// A run takes a resolved profile through four stages, each invoked once:
//
//  1. Plan - Select sections and order entries (Planner)
//  2. Dispatch - Route each entry to its backend and apply idempotency rules (Dispatcher)
//  3. Aggregate - Record outcomes and decide whether to halt (Aggregator)
//  4. Summarize - Partition outcomes and derive the exit code (Summary)
//
// Executor ties the stages together and is strictly sequential: entries are
// dispatched one at a time in section order, then declaration order.
//
// # Sections
//
// A profile has eight fixed sections, always processed in this order:
//
//	prerequisites, apt_packages, shell_setup, custom_software,
//	python_packages, powershell_modules, nix_packages, configurations
//
// # Backends
//
// Backends implement Installer and are bound to sections through a Registry:
//
//	type Installer interface {
//	    Probe(ctx context.Context, entry Entry) (ProbeResult, error)
//	    Install(ctx context.Context, entry Entry, force bool) Outcome
//	}
//
// Optional interfaces add post-install verification (Verifier) and one-time
// setup and cleanup around dispatch (Preparer, Finalizer).
//
// # Idempotency
//
// Before installing, the dispatcher probes the entry. If it is installed and
// its version satisfies the requirement (see Satisfies), the outcome is
// already_installed and the backend is not asked to install. RunContext.Force
// bypasses the short-circuit. Disabled entries are reported as skipped.
//
// # Error Handling
//
// Errors are classified for retry logic:
//
//   - Transient: may succeed on retry (mirror timeouts, lock contention)
//   - Permanent: non-recoverable (missing script, non-zero exit, timeout)
//   - Conflict: another process holds shared state
//
// Install is retried up to RunContext.MaxRetries times for retryable classes.
//
// # Run Context
//
// RunContext carries every per-invocation switch. It is built once by the
// command layer and passed by value, so nothing in this package reads the
// process environment.
package engine
