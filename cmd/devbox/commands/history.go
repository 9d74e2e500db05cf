package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/andresrocksuk/devbox/pkg/stores"
	"github.com/andresrocksuk/devbox/pkg/telemetry"
)

func newHistoryCommand(opts *options) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs or show one run",
		Long: `Without arguments, list recent runs. Runs come from the history
database when one exists and from run logs in the log directory.

With a run id, show that run's recorded outcomes and its artifact files.`,
		Example: `  # List recent runs
  devbox history

  # Show one run
  devbox history 20260314_092653

  # Read a specific history database
  devbox history --history-db=./history.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			r := newRenderer(out, opts.noColor)

			var store stores.Store
			db, err := openHistory(ctx, opts)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
				store = db
			}

			if len(args) == 1 {
				return showRun(ctx, out, r, store, opts.logDir, args[0], jsonOutput)
			}
			return listRuns(ctx, out, r, store, opts.logDir, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

// openHistory opens the history database if one exists. It never creates one.
func openHistory(ctx context.Context, opts *options) (*stores.SQLiteStore, error) {
	path := opts.historyDB
	if path == "" {
		path = defaultHistoryPath()
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access history database: %w", err)
	}
	return stores.Open(ctx, path)
}

type historyRow struct {
	ID        string    `json:"id"`
	Profile   string    `json:"profile,omitempty"`
	Status    string    `json:"status,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Total     int       `json:"total"`
	Failed    int       `json:"failed"`
	Recorded  bool      `json:"recorded"`
}

func listRuns(ctx context.Context, out io.Writer, r *lipgloss.Renderer, store stores.Store, logDir string, limit int, jsonOutput bool) error {
	var rows []historyRow
	seen := make(map[string]bool)

	if store != nil {
		runs, err := store.ListRuns(ctx, limit, 0)
		if err != nil {
			return err
		}
		for _, run := range runs {
			seen[run.ID] = true
			rows = append(rows, historyRow{
				ID: run.ID, Profile: run.Profile, Status: run.Status, StartedAt: run.StartedAt,
				Total: run.Total, Failed: run.Failed, Recorded: true,
			})
		}
	}

	ids, err := telemetry.ListRunIDs(logDir)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if len(rows) >= limit {
			break
		}
		if !seen[id] {
			rows = append(rows, historyRow{ID: id})
		}
	}

	if jsonOutput {
		if rows == nil {
			rows = []historyRow{}
		}
		return writeJSON(out, rows)
	}

	p := newPalette(r)
	if len(rows) == 0 {
		fmt.Fprintln(out, p.muted.Render("No runs found in "+logDir))
		return nil
	}
	for _, row := range rows {
		line := fmt.Sprintf("%-20s", row.ID)
		if row.Recorded {
			line += fmt.Sprintf(" %-10s %-16s %3d entries", row.Status, row.Profile, row.Total)
			if row.Failed > 0 {
				line += " " + p.failure.Render(fmt.Sprintf("%d failed", row.Failed))
			}
		} else {
			line += " " + p.muted.Render("log only")
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func showRun(ctx context.Context, out io.Writer, r *lipgloss.Renderer, store stores.Store, logDir, id string, jsonOutput bool) error {
	if err := telemetry.ValidateRunID(id); err != nil {
		return err
	}
	artifacts := telemetry.Artifacts{Dir: logDir, RunID: id}
	files, err := artifacts.Glob()
	if err != nil {
		return err
	}

	var (
		run      *stores.Run
		outcomes []*stores.Outcome
	)
	if store != nil {
		run, err = store.GetRun(ctx, id)
		switch {
		case errors.Is(err, stores.ErrNotFound):
			run = nil
		case err != nil:
			return err
		default:
			if outcomes, err = store.ListOutcomes(ctx, id); err != nil {
				return err
			}
		}
	}

	if run == nil && len(files) == 0 {
		return fmt.Errorf("run %s not found", id)
	}

	if jsonOutput {
		return writeJSON(out, struct {
			Run       *stores.Run       `json:"run,omitempty"`
			Outcomes  []*stores.Outcome `json:"outcomes,omitempty"`
			Artifacts []string          `json:"artifacts"`
		}{run, outcomes, files})
	}

	p := newPalette(r)
	var b strings.Builder
	b.WriteString(p.title.Render("Run " + id))
	b.WriteString("\n")
	if run != nil {
		b.WriteString(fmt.Sprintf("profile %s, %s, started %s, took %s\n",
			run.Profile, run.Status, run.StartedAt.Local().Format(time.DateTime), run.Duration))
		for _, o := range outcomes {
			line := fmt.Sprintf("%-18s %s/%s", o.Status, o.Section, o.Entry)
			if o.Version != "" {
				line += " " + p.muted.Render(o.Version)
			}
			if o.Reason != "" {
				line += "  " + p.failure.Render(o.Reason)
			}
			b.WriteString(p.item.Render(line))
			b.WriteString("\n")
		}
	}
	if len(files) > 0 {
		b.WriteString("\n" + p.title.Render("Artifacts") + "\n")
		for _, f := range files {
			b.WriteString(p.item.Render(f))
			b.WriteString("\n")
		}
	}
	fmt.Fprint(out, b.String())
	return nil
}
