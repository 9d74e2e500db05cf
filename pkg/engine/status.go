package engine

import (
	"encoding/json"
	"fmt"
)

// Status is the four-state result of dispatching one entry.
type Status string

const (
	// StatusSuccess indicates the backend installed or configured the entry.
	StatusSuccess Status = "success"

	// StatusFailure indicates the backend reported failure or timed out.
	StatusFailure Status = "failure"

	// StatusSkipped indicates the entry was disabled in the profile.
	StatusSkipped Status = "skipped"

	// StatusAlreadyInstalled indicates the probe found the requirement satisfied.
	StatusAlreadyInstalled Status = "already_installed"
)

// IsSuccessful returns true for every status that does not count as a failure.
func (s Status) IsSuccessful() bool {
	return s == StatusSuccess || s == StatusAlreadyInstalled || s == StatusSkipped
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped, StatusAlreadyInstalled:
		return nil
	default:
		return fmt.Errorf("invalid outcome status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Status(str)
	return s.Validate()
}

// RunStatus represents the overall status of a run.
type RunStatus string

const (
	// RunStatusSucceeded indicates no entry failed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one entry failed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusHalted indicates dispatch stopped at the first failure.
	RunStatusHalted RunStatus = "halted"

	// RunStatusDryRun indicates nothing was dispatched.
	RunStatusDryRun RunStatus = "dry_run"
)
