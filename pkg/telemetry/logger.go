package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger is the run logger: console output plus the JSON run log.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// levelWriter drops records below min for one destination only.
type levelWriter struct {
	io.Writer
	min zerolog.Level
}

func (w levelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < w.min {
		return len(p), nil
	}
	return w.Write(p)
}

// NewLogger creates a logger with the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	consoleLevel, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	fileLevel := zerolog.DebugLevel
	if cfg.FileLevel != "" {
		if fileLevel, err = ParseLevel(cfg.FileLevel); err != nil {
			return nil, err
		}
	}

	var (
		writers []io.Writer
		file    *os.File
		min     = zerolog.Disabled
	)

	if cfg.Console != nil {
		writers = append(writers, levelWriter{
			Writer: zerolog.ConsoleWriter{
				Out:        cfg.Console,
				TimeFormat: time.TimeOnly,
				NoColor:    cfg.NoColor || !IsTerminal(cfg.Console),
			},
			min: consoleLevel,
		})
		min = consoleLevel
	}

	if cfg.File != "" {
		file, err = openRunLog(cfg.File)
		if err != nil {
			return nil, err
		}
		writers = append(writers, levelWriter{Writer: file, min: fileLevel})
		if fileLevel < min {
			min = fileLevel
		}
	}

	var out io.Writer = io.Discard
	if len(writers) > 0 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	zctx := zerolog.New(out).Level(min).With().Timestamp()
	if cfg.RunID != "" {
		zctx = zctx.Str("run_id", cfg.RunID)
	}

	return &Logger{Logger: zctx.Logger(), file: file}, nil
}

// Component returns a child logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// Close closes the run log.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func openRunLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// ParseLevel converts a profile or flag log level to a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "WARN", "WARNING":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q (DEBUG, INFO, WARN, ERROR)", level)
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
