package engine

import (
	"context"
	"testing"
)

func statuses(outcomes []Outcome) []string {
	out := make([]string, len(outcomes))
	for i, o := range outcomes {
		out[i] = string(o.Status) + ":" + o.Entry
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// scenarioSystem models a machine where installing an apt package also puts
// its command on PATH, so depends_on can resolve through the command table.
type scenarioSystem struct {
	apt    *fakeInstaller
	script *fakeInstaller
}

func newScenarioSystem() *scenarioSystem {
	return &scenarioSystem{apt: newFakeInstaller(), script: newFakeInstaller()}
}

func (s *scenarioSystem) lookup(name string) bool {
	_, apt := s.apt.installed[name]
	_, script := s.script.installed[name]
	return apt || script
}

func (s *scenarioSystem) registry(t *testing.T) *Registry {
	return registryWith(t, map[Section]Installer{
		SectionAptPackages:    s.apt,
		SectionCustomSoftware: s.script,
	})
}

func scenarioConfig() *Configuration {
	return &Configuration{
		Settings: DefaultSettings(),
		Entries: map[Section][]Entry{
			SectionAptPackages: {entry(SectionAptPackages, "git", "latest")},
			SectionCustomSoftware: {{
				Section:   SectionCustomSoftware,
				Name:      "toolX",
				Enabled:   true,
				Script:    PathScript("toolX/install.sh"),
				DependsOn: []string{"git"},
			}},
		},
	}
}

func runScenario(t *testing.T, sys *scenarioSystem) *Result {
	t.Helper()
	plan, err := NewPlanner(sys.lookup).Plan(scenarioConfig(), nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	rc := RunContext{RunID: "20250101_120000", ContinueOnError: true}
	res, err := newTestExecutor(sys.registry(t)).Execute(context.Background(), rc, plan)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return res
}

func TestExecutor_ScenarioFreshMachine(t *testing.T) {
	sys := newScenarioSystem()

	res := runScenario(t, sys)

	all := append(append([]Outcome{}, res.Summary.Succeeded...), res.Summary.AlreadyInstalled...)
	want := []string{"success:git", "success:toolX"}
	if got := statuses(all); !equalStrings(got, want) {
		t.Errorf("Outcomes = %v, want %v", got, want)
	}
	if !equalStrings(sys.apt.installs, []string{"git"}) || !equalStrings(sys.script.installs, []string{"toolX"}) {
		t.Errorf("Unexpected install calls: apt=%v script=%v", sys.apt.installs, sys.script.installs)
	}
	if res.ExitCode() != 0 {
		t.Errorf("Expected exit code 0, got %d", res.ExitCode())
	}
	if res.Status != RunStatusSucceeded {
		t.Errorf("Expected succeeded, got %s", res.Status)
	}
}

func TestExecutor_ScenarioSecondRun(t *testing.T) {
	sys := newScenarioSystem()
	sys.apt.installed["git"] = "2.43.0"
	sys.script.installed["toolX"] = "1.0.0"

	res := runScenario(t, sys)

	want := []string{"already_installed:git", "already_installed:toolX"}
	if got := statuses(res.Summary.AlreadyInstalled); !equalStrings(got, want) {
		t.Errorf("Outcomes = %v, want %v", got, want)
	}
	if len(sys.apt.installs)+len(sys.script.installs) != 0 {
		t.Error("Expected zero install invocations on second run")
	}
	if res.ExitCode() != 0 {
		t.Errorf("Expected exit code 0, got %d", res.ExitCode())
	}
}

func TestExecutor_DryRunCallsNoBackend(t *testing.T) {
	inst := &verifyingInstaller{newFakeInstaller()}
	reg := registryWith(t, map[Section]Installer{SectionAptPackages: inst, SectionCustomSoftware: inst})
	obs := &recordingObserver{}

	plan, err := NewPlanner(noCommands).Plan(scenarioConfig(), nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	res, err := newTestExecutor(reg, obs).Execute(context.Background(), RunContext{DryRun: true, ContinueOnError: true}, plan)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(inst.probes)+len(inst.installs)+len(inst.verifies) != 0 {
		t.Error("Expected zero probe/install/verify calls in dry run")
	}
	if inst.prepared != 0 || inst.finalized != 0 {
		t.Error("Expected no prepare/finalize calls in dry run")
	}
	if len(obs.started) != 0 {
		t.Error("Expected no entries to be dispatched in dry run")
	}
	if res.Summary.Total != 0 || res.Status != RunStatusDryRun || res.ExitCode() != 0 {
		t.Errorf("Unexpected dry-run result: %+v", res)
	}
	if res.Plan.EntryCount() != 2 {
		t.Errorf("Expected full plan in dry run, got %d entries", res.Plan.EntryCount())
	}
}

func TestExecutor_ContinueOnError(t *testing.T) {
	tests := []struct {
		name            string
		continueOnError bool
		wantOutcomes    []string
		wantExit        int
	}{
		{
			name:            "continue",
			continueOnError: true,
			wantOutcomes:    []string{"success:git", "failure:broken", "success:jq", "success:toolX"},
			wantExit:        1,
		},
		{
			name:            "halt",
			continueOnError: false,
			wantOutcomes:    []string{"success:git", "failure:broken"},
			wantExit:        1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sys := newScenarioSystem()
			sys.apt.failures["broken"] = []*EngineError{NewInstallError("no candidate", nil)}
			cfg := scenarioConfig()
			cfg.Entries[SectionAptPackages] = []Entry{
				entry(SectionAptPackages, "git", ""),
				entry(SectionAptPackages, "broken", ""),
				entry(SectionAptPackages, "jq", ""),
			}

			plan, err := NewPlanner(sys.lookup).Plan(cfg, nil)
			if err != nil {
				t.Fatalf("Plan failed: %v", err)
			}
			obs := &recordingObserver{}
			rc := RunContext{ContinueOnError: tt.continueOnError}
			res, err := newTestExecutor(sys.registry(t), obs).Execute(context.Background(), rc, plan)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}

			if got := statuses(obs.finished); !equalStrings(got, tt.wantOutcomes) {
				t.Errorf("Outcomes = %v, want %v", got, tt.wantOutcomes)
			}
			if res.ExitCode() != tt.wantExit {
				t.Errorf("Exit code = %d, want %d", res.ExitCode(), tt.wantExit)
			}
			if res.Summary.Halted == tt.continueOnError {
				t.Errorf("Halted = %v with continue_on_error=%v", res.Summary.Halted, tt.continueOnError)
			}
		})
	}
}

func TestExecutor_SectionFilterExcludesFromAggregation(t *testing.T) {
	sys := newScenarioSystem()
	plan, err := NewPlanner(sys.lookup).Plan(scenarioConfig(), []Section{SectionAptPackages})
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	res, err := newTestExecutor(sys.registry(t)).Execute(context.Background(), RunContext{ContinueOnError: true}, plan)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if res.Summary.Total != 1 {
		t.Errorf("Expected only apt_packages outcomes, got %d", res.Summary.Total)
	}
	if len(sys.script.probes) != 0 {
		t.Error("Expected custom_software backend untouched")
	}
}

func TestExecutor_PrepareAndFinalizeOncePerBackend(t *testing.T) {
	inst := &verifyingInstaller{newFakeInstaller()}
	reg := registryWith(t, map[Section]Installer{SectionPrerequisites: inst, SectionAptPackages: inst})
	cfg := &Configuration{Entries: map[Section][]Entry{
		SectionPrerequisites: {entry(SectionPrerequisites, "curl", "")},
		SectionAptPackages:   {entry(SectionAptPackages, "git", "")},
	}}

	plan, err := NewPlanner(noCommands).Plan(cfg, nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if _, err := newTestExecutor(reg).Execute(context.Background(), RunContext{ContinueOnError: true}, plan); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if inst.prepared != 1 || inst.finalized != 1 {
		t.Errorf("Expected prepare/finalize once, got %d/%d", inst.prepared, inst.finalized)
	}
}

func TestExecutor_CancelledContext(t *testing.T) {
	sys := newScenarioSystem()
	plan, err := NewPlanner(sys.lookup).Plan(scenarioConfig(), nil)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = newTestExecutor(sys.registry(t)).Execute(ctx, RunContext{ContinueOnError: true}, plan)
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if len(sys.apt.installs) != 0 {
		t.Error("Expected nothing dispatched after cancellation")
	}
}
