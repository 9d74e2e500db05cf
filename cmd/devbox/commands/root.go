package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/andresrocksuk/devbox/pkg/runner"
	"github.com/andresrocksuk/devbox/pkg/telemetry"
)

// ErrRunFailed is returned when a run completed but recorded failures.
var ErrRunFailed = errors.New("one or more entries failed")

// AppName names the state directories.
const AppName = "devbox"

// RunIDEnv injects a run id from a parent orchestrator.
const RunIDEnv = "DEVBOX_RUN_ID"

// options holds every flag. Subcommands read the persistent ones.
type options struct {
	configRef string
	root      string
	stateDir  string
	logDir    string
	logLevel  string
	runID     string
	sections  string
	historyDB string
	noColor   bool

	force        bool
	dryRun       bool
	aptUpgrade   bool
	breakLocks   bool
	trace        string
	otlpEndpoint string

	// set by tests
	runner runner.Runner
	home   string
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	return buildRootCommand(&options{}, version, commit, buildDate)
}

func buildRootCommand(opts *options, version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "devbox",
		Short: "devbox - declarative development environment provisioner",
		Long: `devbox reads a YAML profile describing a development environment and
brings the machine to that state.

Entries are processed one at a time in a fixed section order:
  prerequisites, apt_packages, shell_setup, custom_software,
  python_packages, powershell_modules, nix_packages, configurations

Every run gets a run id that names its log, version report and test results.`,
		Example: `  # Install everything from profiles/default.yaml
  devbox

  # Preview a profile without changing anything
  devbox --config dev.yaml --dry-run

  # Only apt and python packages, reinstalling what is present
  devbox --sections apt_packages,python_packages --force

  # Use a remote profile
  devbox --config https://example.com/profiles/dev.yaml`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, opts)
		},
	}

	// Persistent flags available to all commands
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configRef, "config", "c", "default.yaml", "profile reference: bare name under profiles/, path, https:// or sftp:// URL")
	pf.StringVar(&opts.root, "root", defaultRoot(), "project root holding profiles/ and script directories")
	pf.StringVar(&opts.stateDir, "state-dir", filepath.Join(xdg.StateHome, AppName), "directory for the materialized profile")
	pf.StringVar(&opts.logDir, "log-dir", filepath.Join(xdg.StateHome, AppName, "logs"), "directory for run logs and reports")
	pf.StringVar(&opts.logLevel, "log-level", "INFO", "console log level (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&opts.runID, "run-id", os.Getenv(RunIDEnv), "correlate this run with an existing run id (default $"+RunIDEnv+" or a new timestamp)")
	pf.StringVar(&opts.sections, "sections", "", "comma-separated sections to process (default all)")
	pf.StringVar(&opts.historyDB, "history-db", "", "record runs in a SQLite history database")
	pf.Lookup("history-db").NoOptDefVal = defaultHistoryPath()
	pf.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")

	// Install flags
	f := rootCmd.Flags()
	f.BoolVar(&opts.force, "force", false, "reinstall entries that are already present")
	f.BoolVar(&opts.dryRun, "dry-run", false, "show what would be done without changing anything")
	f.BoolVar(&opts.aptUpgrade, "run-apt-upgrade", false, "run apt-get upgrade before installing")
	f.BoolVar(&opts.breakLocks, "break-stale-locks", false, "kill package manager lock holders when the lock wait times out")
	f.StringVar(&opts.trace, "trace", telemetry.ExporterNone, "trace exporter (none, file, otlp)")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", telemetry.DefaultTracingConfig().Endpoint, "OTLP gRPC collector for --trace otlp")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newReportCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newUnlockCommand(opts))

	return rootCmd
}

func defaultRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func defaultHistoryPath() string {
	return filepath.Join(xdg.DataHome, AppName, "history.db")
}
