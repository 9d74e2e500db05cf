package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

// palette holds the summary styles for one renderer.
type palette struct {
	title   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	muted   lipgloss.Style
	item    lipgloss.Style
	box     lipgloss.Style
}

func newPalette(r *lipgloss.Renderer) palette {
	return palette{
		title:   r.NewStyle().Bold(true),
		success: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
		item:    r.NewStyle().PaddingLeft(2),
		box:     r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// renderSummary lists every outcome by name, grouped by status, followed by
// the run's artifact files.
func renderSummary(r *lipgloss.Renderer, res *engine.Result, files []string) string {
	p := newPalette(r)
	var b strings.Builder

	b.WriteString(p.title.Render(fmt.Sprintf("devbox run %s", res.RunID)))
	b.WriteString(" ")
	b.WriteString(statusStyle(p, res.Status).Render(string(res.Status)))
	b.WriteString(p.muted.Render(" in " + res.Duration.Round(time.Millisecond).String()))
	b.WriteString("\n")

	if res.DryRun {
		n := 0
		if res.Plan != nil {
			n = res.Plan.EntryCount()
		}
		b.WriteString(fmt.Sprintf("%d entries planned, nothing was changed\n", n))
	} else {
		s := res.Summary
		b.WriteString(fmt.Sprintf("%s  %s  %s  %s\n",
			p.success.Render(fmt.Sprintf("%d succeeded", len(s.Succeeded))),
			p.muted.Render(fmt.Sprintf("%d already installed", len(s.AlreadyInstalled))),
			p.warning.Render(fmt.Sprintf("%d skipped", len(s.Skipped))),
			p.failure.Render(fmt.Sprintf("%d failed", len(s.Failed))),
		))

		writeGroup(&b, p, "Succeeded", s.Succeeded, p.success, "+")
		writeGroup(&b, p, "Already installed", s.AlreadyInstalled, p.muted, "=")
		writeGroup(&b, p, "Skipped", s.Skipped, p.warning, "-")
		writeGroup(&b, p, "Failed", s.Failed, p.failure, "x")

		if s.Halted {
			b.WriteString(p.failure.Render("Stopped at the first failure (continue_on_error is false)"))
			b.WriteString("\n")
		}
	}

	if len(files) > 0 {
		b.WriteString("\n")
		b.WriteString(p.title.Render("Artifacts"))
		b.WriteString("\n")
		for _, f := range files {
			b.WriteString(p.item.Render(f))
			b.WriteString("\n")
		}
	}

	return p.box.Render(strings.TrimRight(b.String(), "\n"))
}

func writeGroup(b *strings.Builder, p palette, title string, outcomes []engine.Outcome, style lipgloss.Style, mark string) {
	if len(outcomes) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(p.title.Render(title))
	b.WriteString("\n")
	for _, o := range outcomes {
		line := style.Render(mark) + " " + string(o.Section) + "/" + o.Entry
		if o.Version != "" {
			line += " " + p.muted.Render(o.Version)
		}
		if o.Reason != "" {
			line += "  " + o.Reason
		}
		if o.Verification != "" {
			line += "  " + p.warning.Render("verification: "+o.Verification)
		}
		b.WriteString(p.item.Render(line))
		b.WriteString("\n")
	}
}

func statusStyle(p palette, s engine.RunStatus) lipgloss.Style {
	switch s {
	case engine.RunStatusSucceeded:
		return p.success
	case engine.RunStatusFailed, engine.RunStatusHalted:
		return p.failure
	default:
		return p.warning
	}
}
