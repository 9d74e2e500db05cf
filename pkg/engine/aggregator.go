package engine

import (
	"sync"
)

// Summary partitions the recorded outcomes by status.
type Summary struct {
	Succeeded        []Outcome `json:"succeeded"`
	Failed           []Outcome `json:"failed"`
	Skipped          []Outcome `json:"skipped"`
	AlreadyInstalled []Outcome `json:"already_installed"`

	// Total is the number of recorded outcomes.
	Total int `json:"total"`

	// Halted is true when a failure stopped dispatch early.
	Halted bool `json:"halted"`
}

// ExitCode returns 1 iff something failed and the run was not a dry run.
func (s Summary) ExitCode(dryRun bool) int {
	if dryRun || len(s.Failed) == 0 {
		return 0
	}
	return 1
}

// RunStatus derives the run's final status.
func (s Summary) RunStatus(dryRun bool) RunStatus {
	switch {
	case dryRun:
		return RunStatusDryRun
	case s.Halted:
		return RunStatusHalted
	case len(s.Failed) > 0:
		return RunStatusFailed
	default:
		return RunStatusSucceeded
	}
}

// Aggregator collects outcomes in dispatch order and decides when to halt.
type Aggregator struct {
	mu              sync.Mutex
	continueOnError bool
	outcomes        []Outcome
	halted          bool
}

// NewAggregator creates an aggregator. With continueOnError false the first
// failure halts all remaining dispatch.
func NewAggregator(continueOnError bool) *Aggregator {
	return &Aggregator{continueOnError: continueOnError}
}

// Record stores an outcome and reports whether dispatch must stop.
func (a *Aggregator) Record(o Outcome) (halt bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.outcomes = append(a.outcomes, o)
	if o.Status == StatusFailure && !a.continueOnError {
		a.halted = true
	}
	return a.halted
}

// Outcomes returns the recorded outcomes in order.
func (a *Aggregator) Outcomes() []Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Outcome, len(a.outcomes))
	copy(out, a.outcomes)
	return out
}

// Summary partitions the recorded outcomes.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Total: len(a.outcomes), Halted: a.halted}
	for _, o := range a.outcomes {
		switch o.Status {
		case StatusSuccess:
			s.Succeeded = append(s.Succeeded, o)
		case StatusFailure:
			s.Failed = append(s.Failed, o)
		case StatusSkipped:
			s.Skipped = append(s.Skipped, o)
		case StatusAlreadyInstalled:
			s.AlreadyInstalled = append(s.AlreadyInstalled, o)
		}
	}
	return s
}
