package stores

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Run is one row of run history.
type Run struct {
	ID               string        `json:"id"`
	Profile          string        `json:"profile"`
	ConfigPath       string        `json:"config_path"`
	Hostname         string        `json:"hostname"`
	Status           string        `json:"status"`
	DryRun           bool          `json:"dry_run"`
	Force            bool          `json:"force"`
	Sections         string        `json:"sections"` // comma separated filter, empty for all
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	Failed           int           `json:"failed"`
	Skipped          int           `json:"skipped"`
	AlreadyInstalled int           `json:"already_installed"`
	Halted           bool          `json:"halted"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Duration         time.Duration `json:"duration"`
}

// Outcome is one dispatched entry of a run.
type Outcome struct {
	ID           string        `json:"id"`
	RunID        string        `json:"run_id"`
	Seq          int           `json:"seq"`
	Section      string        `json:"section"`
	Entry        string        `json:"entry"`
	Status       string        `json:"status"`
	Version      string        `json:"version"`
	Reason       string        `json:"reason"`
	ErrorCode    string        `json:"error_code"`
	ErrorClass   string        `json:"error_class"`
	Verification string        `json:"verification"`
	Verified     bool          `json:"verified"`
	Duration     time.Duration `json:"duration"`
}

// Store defines the interface for the history store.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// SaveRun writes a run and its outcomes in one transaction, replacing any
	// earlier record with the same run id.
	SaveRun(ctx context.Context, run *Run, outcomes []*Outcome) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	ListOutcomes(ctx context.Context, runID string) ([]*Outcome, error)
	DeleteRun(ctx context.Context, id string) error

	// Utility
	HealthCheck(ctx context.Context) error
}
