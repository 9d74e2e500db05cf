package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/andresrocksuk/devbox/pkg/installers"
	"github.com/andresrocksuk/devbox/pkg/report"
)

func newReportCommand(opts *options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a version report for the profile's apt packages",
		Long: `Probe every apt_packages entry of the profile and write
version-report-<run-id>.json to the log directory.

Nothing is installed. Pass --run-id to attach the report to an earlier run.`,
		Example: `  # Report on the default profile
  devbox report

  # Attach a report to an earlier run
  devbox report --config dev.yaml --run-id 20260314_092653`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			log := s.log("cli")
			resolved, _, _, err := s.load(cmd.Context())
			if err != nil {
				log.Error().Err(err).Msg("Configuration resolution failed")
				return err
			}

			apt := installers.NewAptInstaller(s.runner, s.guard(), s.log("installer"))
			vr := report.BuildVersionReport(cmd.Context(), s.runID, resolved.Config, apt, time.Now())
			vr.Profile = profileName(resolved)
			vr.Host = report.CollectHostFacts(cmd.Context(), s.runner, report.OSReleasePath)
			if err := report.WriteJSON(s.artifacts.VersionReport(), vr); err != nil {
				return fmt.Errorf("failed to write version report: %w", err)
			}
			reportLog := s.log("report")
			reportLog.Info().
				Str("path", s.artifacts.VersionReport()).
				Int("missing", vr.Missing).
				Int("drifted", vr.Drifted).
				Msg("Version report written")

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, vr)
			}
			fmt.Fprintln(out, renderVersionReport(s.renderer(out), vr, s.artifacts.VersionReport()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func renderVersionReport(r *lipgloss.Renderer, vr report.VersionReport, path string) string {
	p := newPalette(r)
	var b strings.Builder

	b.WriteString(p.title.Render("Version report " + vr.RunID))
	b.WriteString("\n")
	for _, pkg := range vr.Packages {
		var state string
		switch {
		case pkg.Error != "":
			state = p.failure.Render("error: " + pkg.Error)
		case !pkg.Present:
			state = p.failure.Render("missing")
		case !pkg.Satisfied:
			state = p.warning.Render(pkg.Installed + " (wants " + pkg.Required + ")")
		default:
			state = p.success.Render(pkg.Installed)
		}
		line := fmt.Sprintf("%-28s %s", pkg.Name, state)
		if !pkg.Enabled {
			line += " " + p.muted.Render("(disabled)")
		}
		b.WriteString(p.item.Render(line))
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n%d packages, %d missing, %d drifted\n", len(vr.Packages), vr.Missing, vr.Drifted))
	b.WriteString(p.muted.Render(path))
	return b.String()
}
