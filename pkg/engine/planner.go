package engine

import (
	"fmt"
	"os/exec"
)

// SectionPlan is one section of a plan with its entries in declaration order.
type SectionPlan struct {
	Section Section `json:"section"`
	Entries []Entry `json:"entries"`
}

// DependencyWarning records a depends_on name that matched nothing.
type DependencyWarning struct {
	Entry      string `json:"entry"`
	Dependency string `json:"dependency"`
}

// String formats the warning for logs.
func (w DependencyWarning) String() string {
	return fmt.Sprintf("%s depends on %s, which is not declared and not on PATH", w.Entry, w.Dependency)
}

// Plan is the ordered work list for a run.
type Plan struct {
	// Sections are the included sections in the fixed order.
	Sections []SectionPlan `json:"sections"`

	// Skipped are the sections excluded by the filter.
	Skipped []Section `json:"skipped,omitempty"`

	// Warnings are unresolved depends_on references.
	Warnings []DependencyWarning `json:"warnings,omitempty"`
}

// EntryCount returns the number of planned entries.
func (p *Plan) EntryCount() int {
	n := 0
	for _, sp := range p.Sections {
		n += len(sp.Entries)
	}
	return n
}

// SectionNames returns the included sections.
func (p *Plan) SectionNames() []Section {
	out := make([]Section, 0, len(p.Sections))
	for _, sp := range p.Sections {
		out = append(out, sp.Section)
	}
	return out
}

// Planner builds plans from resolved configurations.
type Planner struct {
	lookup CommandLookup
}

// NewPlanner creates a planner. A nil lookup uses exec.LookPath.
func NewPlanner(lookup CommandLookup) *Planner {
	if lookup == nil {
		lookup = func(name string) bool {
			_, err := exec.LookPath(name)
			return err == nil
		}
	}
	return &Planner{lookup: lookup}
}

// Plan walks the eight sections in fixed order and keeps those the filter
// selects. An empty filter selects every section. The plan is a pure function
// of cfg and filter apart from the command lookup used for depends_on.
func (p *Planner) Plan(cfg *Configuration, filter []Section) (*Plan, error) {
	if cfg == nil {
		return nil, NewPermanentError("configuration is nil", nil).WithCode(ErrCodeValidation)
	}

	selected := make(map[Section]bool, len(filter))
	for _, s := range filter {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		selected[s] = true
	}

	plan := &Plan{}
	for _, s := range sectionOrder {
		if len(filter) > 0 && !selected[s] {
			plan.Skipped = append(plan.Skipped, s)
			continue
		}
		entries := cfg.EntriesFor(s)
		sp := SectionPlan{Section: s, Entries: make([]Entry, len(entries))}
		copy(sp.Entries, entries)
		plan.Sections = append(plan.Sections, sp)
	}

	plan.Warnings = p.checkDependencies(cfg)
	return plan, nil
}

// checkDependencies resolves custom_software depends_on names against declared
// entries and the live command table. Nothing is reordered.
func (p *Planner) checkDependencies(cfg *Configuration) []DependencyWarning {
	known := make(map[string]bool)
	for _, s := range []Section{SectionAptPackages, SectionPrerequisites, SectionCustomSoftware} {
		for _, e := range cfg.EntriesFor(s) {
			known[e.Name] = true
		}
	}

	var warnings []DependencyWarning
	for _, e := range cfg.EntriesFor(SectionCustomSoftware) {
		for _, dep := range e.DependsOn {
			if known[dep] || p.lookup(dep) {
				continue
			}
			warnings = append(warnings, DependencyWarning{Entry: e.Name, Dependency: dep})
		}
	}
	return warnings
}
