package stores

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

// RunMeta is what the history needs beyond the engine result.
type RunMeta struct {
	Profile    string
	ConfigPath string
	Force      bool
	Sections   []engine.Section
}

// FromResult converts an engine result into history rows.
func FromResult(res *engine.Result, meta RunMeta) (*Run, []*Outcome) {
	host, _ := os.Hostname()

	sections := make([]string, len(meta.Sections))
	for i, s := range meta.Sections {
		sections[i] = string(s)
	}

	run := &Run{
		ID:               res.RunID,
		Profile:          meta.Profile,
		ConfigPath:       meta.ConfigPath,
		Hostname:         host,
		Status:           string(res.Status),
		DryRun:           res.DryRun,
		Force:            meta.Force,
		Sections:         strings.Join(sections, ","),
		Total:            res.Summary.Total,
		Succeeded:        len(res.Summary.Succeeded),
		Failed:           len(res.Summary.Failed),
		Skipped:          len(res.Summary.Skipped),
		AlreadyInstalled: len(res.Summary.AlreadyInstalled),
		Halted:           res.Summary.Halted,
		StartedAt:        res.StartedAt,
		FinishedAt:       res.FinishedAt,
		Duration:         res.Duration,
	}

	outcomes := make([]*Outcome, 0, len(res.Outcomes))
	for i, o := range res.Outcomes {
		rec := &Outcome{
			ID:           uuid.NewString(),
			RunID:        res.RunID,
			Seq:          i,
			Section:      string(o.Section),
			Entry:        o.Entry,
			Status:       string(o.Status),
			Version:      o.Version,
			Reason:       o.Reason,
			Verification: o.Verification,
			Verified:     o.Verified,
			Duration:     o.Duration,
		}
		if o.Err != nil {
			rec.ErrorCode = o.Err.Code
			rec.ErrorClass = string(o.Err.Class)
		}
		outcomes = append(outcomes, rec)
	}
	return run, outcomes
}

// RecordResult saves an engine result.
func RecordResult(ctx context.Context, s Store, res *engine.Result, meta RunMeta) error {
	run, outcomes := FromResult(res, meta)
	return s.SaveRun(ctx, run, outcomes)
}
