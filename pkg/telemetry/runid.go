package telemetry

import (
	"fmt"
	"regexp"
	"time"
)

// RunIDLayout is the time layout of generated run ids.
const RunIDLayout = "20060102_150405"

// runIDPattern keeps injected ids usable inside file names and globs.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Clock returns the current time. Tests inject a fixed clock.
type Clock func() time.Time

// NewRunID formats now as a run id.
func NewRunID(now time.Time) string {
	return now.Format(RunIDLayout)
}

// ResolveRunID returns injected when set, otherwise a fresh id from clock.
func ResolveRunID(injected string, clock Clock) (string, error) {
	if injected != "" {
		if err := ValidateRunID(injected); err != nil {
			return "", err
		}
		return injected, nil
	}
	if clock == nil {
		clock = time.Now
	}
	return NewRunID(clock()), nil
}

// ValidateRunID rejects ids that cannot be embedded in artifact names.
func ValidateRunID(id string) error {
	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("invalid run id %q: use letters, digits, '.', '_' or '-'", id)
	}
	return nil
}
