// Package report writes the run-scoped JSON reports: installed versions of
// apt packages, probed fresh after dispatch, and per-entry verification results.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

// Prober is the part of an installer the version report needs.
type Prober interface {
	Probe(ctx context.Context, entry engine.Entry) (engine.ProbeResult, error)
}

// PackageVersion is one line of the version report.
type PackageVersion struct {
	Name      string `json:"name"`
	Required  string `json:"required"`
	Installed string `json:"installed,omitempty"`
	Present   bool   `json:"present"`
	Satisfied bool   `json:"satisfied"`
	Enabled   bool   `json:"enabled"`
	Error     string `json:"error,omitempty"`
}

// VersionReport lists what is installed right now, independent of what the
// run's outcomes said.
type VersionReport struct {
	RunID       string           `json:"run_id"`
	Profile     string           `json:"profile,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Host        *HostFacts       `json:"host,omitempty"`
	Section     engine.Section   `json:"section"`
	Packages    []PackageVersion `json:"packages"`
	Missing     int              `json:"missing"`
	Drifted     int              `json:"drifted"`
}

// BuildVersionReport probes every apt_packages entry of cfg through p.
func BuildVersionReport(ctx context.Context, runID string, cfg *engine.Configuration, p Prober, now time.Time) VersionReport {
	r := VersionReport{
		RunID:       runID,
		GeneratedAt: now.UTC(),
		Section:     engine.SectionAptPackages,
		Packages:    []PackageVersion{},
	}
	if cfg != nil {
		r.Profile = cfg.Metadata.Name
	}

	for _, e := range cfg.EntriesFor(engine.SectionAptPackages) {
		pv := PackageVersion{Name: e.Name, Required: e.RequiredVersion(), Enabled: e.Enabled}
		if err := ctx.Err(); err != nil {
			pv.Error = err.Error()
			r.Packages = append(r.Packages, pv)
			continue
		}

		probe, err := p.Probe(ctx, e)
		switch {
		case err != nil:
			pv.Error = err.Error()
		case probe.Installed:
			pv.Present = true
			pv.Installed = probe.Version
			pv.Satisfied = engine.Satisfies(probe.Version, e.RequiredVersion())
		}

		if !pv.Present {
			r.Missing++
		} else if !pv.Satisfied {
			r.Drifted++
		}
		r.Packages = append(r.Packages, pv)
	}
	return r
}

// TestResult is the verification record of one dispatched entry.
type TestResult struct {
	Section      engine.Section `json:"section"`
	Entry        string         `json:"entry"`
	Status       engine.Status  `json:"status"`
	Version      string         `json:"version,omitempty"`
	Verified     bool           `json:"verified"`
	Passed       bool           `json:"passed"`
	Verification string         `json:"verification,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
}

// TestResults is the test-results artifact.
type TestResults struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Status      string       `json:"status"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Results     []TestResult `json:"results"`
}

// BuildTestResults derives verification results from a run. An entry passes
// when it is installed (or already was) and no smoke test failed.
func BuildTestResults(res *engine.Result, now time.Time) TestResults {
	tr := TestResults{
		RunID:       res.RunID,
		GeneratedAt: now.UTC(),
		Status:      string(res.Status),
		Results:     []TestResult{},
	}
	for _, o := range res.Outcomes {
		if o.Status == engine.StatusSkipped {
			continue
		}
		t := TestResult{
			Section:      o.Section,
			Entry:        o.Entry,
			Status:       o.Status,
			Version:      o.Version,
			Verified:     o.Verified,
			Verification: o.Verification,
			Reason:       o.Reason,
			DurationMS:   o.Duration.Milliseconds(),
		}
		t.Passed = o.Status.IsSuccessful() && o.Verification == ""
		if t.Passed {
			tr.Passed++
		} else {
			tr.Failed++
		}
		tr.Results = append(tr.Results, t)
	}
	tr.Total = len(tr.Results)
	return tr
}

// WriteJSON writes v as indented JSON, replacing path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
