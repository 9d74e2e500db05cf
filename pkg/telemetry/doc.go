// Package telemetry provides run correlation and observability for devbox.
//
// Every run has one run id, a "YYYYMMDD_HHMMSS" timestamp unless injected,
// and every artifact the run writes carries it in its file name:
//
//	devbox-<run_id>.log          JSON run log (zerolog)
//	version-report-<run_id>.json installed versions of apt packages
//	test-results-<run_id>.json   verification results per entry
//	metrics-<run_id>.prom        Prometheus text exposition
//	trace-<run_id>.json          OpenTelemetry spans (file exporter)
//
// so that filepath.Glob("*-<run_id>.*") finds everything a run produced.
//
// # Logging
//
// NewLogger writes human-readable output to the console and JSON lines to the
// run log through a single zerolog logger. Colour is enabled only when the
// console is a terminal.
//
//	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{
//	    Level:   "INFO",
//	    Console: os.Stdout,
//	    File:    artifacts.RunLog(),
//	    RunID:   runID,
//	})
//	defer logger.Close()
//	log := logger.Component("executor")
//
// # Tracing and metrics
//
// Observer implements engine.Observer: it opens a span per entry and counts
// outcomes by section and status. Tracing exports to a file, to an OTLP
// collector over gRPC, or nowhere. Metrics are never served; they are written
// once as a textfile at the end of the run.
package telemetry
