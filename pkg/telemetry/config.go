package telemetry

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// ServiceName identifies devbox in traces and metrics.
const ServiceName = "devbox"

// Trace exporters.
const (
	ExporterNone = "none"
	ExporterFile = "file"
	ExporterOTLP = "otlp"
)

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the console level (DEBUG, INFO, WARN, ERROR).
	Level string

	// Console receives human-readable output; nil disables it.
	Console io.Writer

	// NoColor forces plain console output. Colour is otherwise used only on terminals.
	NoColor bool

	// File is the JSON run log, opened in append mode; empty disables it.
	File string

	// FileLevel is the run log level; empty means DEBUG.
	FileLevel string

	// RunID is stamped on every record.
	RunID string
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Exporter is one of none, file, otlp.
	Exporter string

	// File receives spans when Exporter is file.
	File string

	// Endpoint is the OTLP gRPC collector (host:port).
	Endpoint string

	// Insecure disables TLS for the OTLP connection.
	Insecure bool

	// ExportTimeout bounds each export batch.
	ExportTimeout time.Duration

	// ServiceVersion is recorded on the trace resource.
	ServiceVersion string
}

// DefaultTracingConfig returns a disabled tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Exporter:      ExporterNone,
		Endpoint:      "localhost:4317",
		Insecure:      true,
		ExportTimeout: 10 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c LoggingConfig) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	if c.FileLevel != "" {
		if _, err := ParseLevel(c.FileLevel); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c TracingConfig) Validate() error {
	switch strings.ToLower(c.Exporter) {
	case "", ExporterNone:
	case ExporterFile:
		if c.File == "" {
			return fmt.Errorf("file trace exporter requires a file path")
		}
	case ExporterOTLP:
		if c.Endpoint == "" {
			return fmt.Errorf("otlp trace exporter requires an endpoint")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s (must be none, file or otlp)", c.Exporter)
	}
	return nil
}
