// Package stores keeps an optional SQLite history of devbox runs: one row per
// run and one row per dispatched entry. Nothing else in devbox reads it; the
// run-scoped log and report files remain the primary record.
package stores
