package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/andresrocksuk/devbox/pkg/config"
	"github.com/andresrocksuk/devbox/pkg/engine"
)

func newValidateCommand(opts *options) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate [profile]",
		Short: "Resolve, validate and plan a profile without installing anything",
		Long: `Resolve a profile reference, validate it and print the plan.

This command checks:
  - The reference resolves (local file, https:// or sftp://)
  - The YAML parses and every entry is well formed
  - Entry names are unique
  - depends_on names are declared or already on PATH (warnings only)

No backend is called.`,
		Example: `  # Validate the default profile
  devbox validate

  # Validate a profile under profiles/
  devbox validate dev.yaml

  # Print the plan as JSON for a single section
  devbox validate dev.yaml --sections apt_packages --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.configRef = args[0]
			}

			s, err := newSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			log := s.log("cli")
			resolved, plan, _, err := s.load(cmd.Context())
			if err != nil {
				log.Error().Err(err).Msg("Profile is not valid")
				return err
			}
			log.Info().
				Str("profile", profileName(resolved)).
				Int("entries", plan.EntryCount()).
				Int("warnings", len(plan.Warnings)).
				Msg("Profile is valid")

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, struct {
					Profile string       `json:"profile"`
					Source  string       `json:"source"`
					Path    string       `json:"path"`
					Plan    *engine.Plan `json:"plan"`
				}{profileName(resolved), resolved.Source, resolved.Path, plan})
			}
			fmt.Fprintln(out, renderPlan(s.renderer(out), resolved, plan))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}

func renderPlan(r *lipgloss.Renderer, resolved *config.Resolved, plan *engine.Plan) string {
	p := newPalette(r)
	var b strings.Builder

	b.WriteString(p.title.Render("Profile " + profileName(resolved)))
	b.WriteString(p.muted.Render(" (" + resolved.Source + ")"))
	b.WriteString("\n")
	if d := resolved.Config.Metadata.Description; d != "" {
		b.WriteString(d + "\n")
	}

	for _, sp := range plan.Sections {
		if len(sp.Entries) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(p.title.Render(string(sp.Section)))
		b.WriteString("\n")
		for _, e := range sp.Entries {
			line := e.Name + " " + p.muted.Render(e.RequiredVersion())
			if !e.Enabled {
				line += " " + p.warning.Render("(disabled)")
			}
			b.WriteString(p.item.Render(line))
			b.WriteString("\n")
		}
	}
	if len(plan.Skipped) > 0 {
		names := make([]string, len(plan.Skipped))
		for i, s := range plan.Skipped {
			names[i] = string(s)
		}
		b.WriteString("\n" + p.muted.Render("Excluded: "+strings.Join(names, ", ")) + "\n")
	}
	for _, w := range plan.Warnings {
		b.WriteString(p.warning.Render("warning: "+w.String()) + "\n")
	}

	b.WriteString(fmt.Sprintf("\n%d entries in %d sections", plan.EntryCount(), len(plan.Sections)))
	return b.String()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
