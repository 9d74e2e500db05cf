package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	runLogPrefix = "devbox-"
	runLogExt    = ".log"
)

// Artifacts names the files a run writes in the log directory.
type Artifacts struct {
	Dir   string
	RunID string
}

// NewArtifacts validates runID and creates dir.
func NewArtifacts(dir, runID string) (Artifacts, error) {
	if err := ValidateRunID(runID); err != nil {
		return Artifacts{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("failed to create log dir: %w", err)
	}
	return Artifacts{Dir: dir, RunID: runID}, nil
}

func (a Artifacts) path(prefix, ext string) string {
	return filepath.Join(a.Dir, prefix+a.RunID+ext)
}

// RunLog is the JSON run log.
func (a Artifacts) RunLog() string { return a.path(runLogPrefix, runLogExt) }

// VersionReport is the installed-version report.
func (a Artifacts) VersionReport() string { return a.path("version-report-", ".json") }

// TestResults is the per-entry verification report.
func (a Artifacts) TestResults() string { return a.path("test-results-", ".json") }

// Metrics is the Prometheus textfile.
func (a Artifacts) Metrics() string { return a.path("metrics-", ".prom") }

// Trace is the span file written by the file exporter.
func (a Artifacts) Trace() string { return a.path("trace-", ".json") }

// Glob returns every existing artifact of the run, sorted.
func (a Artifacts) Glob() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(a.Dir, "*-"+a.RunID+".*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// ListRunIDs returns the ids of runs that left a run log in dir, newest first.
func ListRunIDs(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, runLogPrefix+"*"+runLogExt))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), runLogPrefix), runLogExt)
		if ValidateRunID(id) == nil {
			ids = append(ids, id)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}
