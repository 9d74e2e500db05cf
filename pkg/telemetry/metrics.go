package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

// Metrics collects run counters into a private registry that is written out
// once as a textfile.
type Metrics struct {
	registry *prometheus.Registry

	entries         *prometheus.CounterVec
	entryDuration   *prometheus.HistogramVec
	errorsByCode    *prometheus.CounterVec
	verifyFailures  *prometheus.CounterVec
	runDuration     prometheus.Gauge
	runInfo         *prometheus.GaugeVec
	runLastFinished prometheus.Gauge
}

// NewMetrics creates the collectors under the devbox namespace.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ServiceName,
				Name:      "entries_total",
				Help:      "Entries processed, by section and outcome status",
			},
			[]string{"section", "status"},
		),
		entryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ServiceName,
				Name:      "entry_duration_seconds",
				Help:      "Time spent dispatching one entry",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"section"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ServiceName,
				Name:      "errors_total",
				Help:      "Failed entries by error class and code",
			},
			[]string{"class", "code"},
		),
		verifyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ServiceName,
				Name:      "verification_failures_total",
				Help:      "Installed entries whose smoke test failed",
			},
			[]string{"section"},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ServiceName,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of the run",
			},
		),
		runInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ServiceName,
				Name:      "run_info",
				Help:      "Always 1; labels identify the run",
			},
			[]string{"run_id", "status"},
		),
		runLastFinished: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: ServiceName,
				Name:      "run_finished_timestamp_seconds",
				Help:      "Unix time the run finished",
			},
		),
	}

	registry.MustRegister(
		m.entries,
		m.entryDuration,
		m.errorsByCode,
		m.verifyFailures,
		m.runDuration,
		m.runInfo,
		m.runLastFinished,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveEntry records one outcome.
func (m *Metrics) ObserveEntry(o engine.Outcome) {
	section := string(o.Section)
	m.entries.WithLabelValues(section, string(o.Status)).Inc()
	m.entryDuration.WithLabelValues(section).Observe(o.Duration.Seconds())
	if o.Err != nil && o.Status == engine.StatusFailure {
		m.errorsByCode.WithLabelValues(string(o.Err.Class), o.Err.Code).Inc()
	}
	if o.Verification != "" {
		m.verifyFailures.WithLabelValues(section).Inc()
	}
}

// ObserveRun records the run-level gauges.
func (m *Metrics) ObserveRun(res *engine.Result) {
	m.runDuration.Set(res.Duration.Seconds())
	m.runInfo.WithLabelValues(res.RunID, string(res.Status)).Set(1)
	m.runLastFinished.Set(float64(res.FinishedAt.Unix()))
}

// WriteTextfile writes the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
