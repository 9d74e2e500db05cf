package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/report"
	"github.com/andresrocksuk/devbox/pkg/runner/runnertest"
	"github.com/andresrocksuk/devbox/pkg/stores"
)

const devProfile = `
metadata:
  name: dev
  description: developer workstation
apt_packages:
  - name: git
  - name: jq
custom_software:
  - name: kubectl
    depends_on: [curl]
`

// harness runs the CLI against a scratch project with a fake runner.
type harness struct {
	dir     string
	root    string
	state   string
	logs    string
	history string
	fake    *runnertest.Fake
	opts    *options
	stdout  bytes.Buffer
	stderr  bytes.Buffer
}

func newHarness(t *testing.T, profile string) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:     dir,
		root:    filepath.Join(dir, "project"),
		state:   filepath.Join(dir, "state"),
		logs:    filepath.Join(dir, "logs"),
		history: filepath.Join(dir, "history.db"),
		fake:    runnertest.New(),
	}
	if err := os.MkdirAll(filepath.Join(h.root, "profiles"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(h.root, "profiles", "dev.yaml"), []byte(profile), 0o644); err != nil {
		t.Fatal(err)
	}
	h.opts = &options{runner: h.fake, home: filepath.Join(dir, "home")}
	return h
}

func (h *harness) run(args ...string) error {
	h.stdout.Reset()
	h.stderr.Reset()
	cmd := buildRootCommand(h.opts, "test", "none", "today")
	cmd.SetOut(&h.stdout)
	cmd.SetErr(&h.stderr)
	cmd.SetArgs(append(args,
		"--root", h.root,
		"--state-dir", h.state,
		"--log-dir", h.logs,
		"--no-color",
	))
	return cmd.ExecuteContext(context.Background())
}

func (h *harness) artifact(name string) string {
	return filepath.Join(h.logs, name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestVersionFlag(t *testing.T) {
	h := newHarness(t, devProfile)
	if err := h.run("--version"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.stdout.String(), "test (commit: none, built: today)") {
		t.Errorf("version output = %q", h.stdout.String())
	}
}

func TestDryRunChangesNothing(t *testing.T) {
	h := newHarness(t, devProfile)

	if err := h.run("--config", "dev.yaml", "--dry-run", "--run-id", "dry_1"); err != nil {
		t.Fatalf("dry run failed: %v\n%s", err, h.stderr.String())
	}

	if lines := h.fake.Lines(); len(lines) != 0 {
		t.Errorf("dry run executed commands: %v", lines)
	}
	out := h.stdout.String()
	for _, want := range []string{"devbox run dry_1", "dry_run", "3 entries planned"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(h.stderr.String(), "[dry-run] would process entry") {
		t.Errorf("console should enumerate planned entries:\n%s", h.stderr.String())
	}

	if !exists(filepath.Join(h.state, "config.yaml")) {
		t.Error("profile was not materialized")
	}
	if !exists(h.artifact("devbox-dry_1.log")) || !exists(h.artifact("metrics-dry_1.prom")) {
		t.Error("run log and metrics should be written")
	}
	if exists(h.artifact("version-report-dry_1.json")) || exists(h.artifact("test-results-dry_1.json")) {
		t.Error("dry run must not write reports")
	}
}

func TestInstallRecordsFailuresAndReports(t *testing.T) {
	h := newHarness(t, devProfile)
	h.fake.
		On("dpkg-query -W -f=${db:Status-Status} ${Version} git", runnertest.OK("installed 1:2.43.0-1")).
		On("apt-get install", runnertest.Exit(100, "E: Unable to locate package jq"))

	err := h.run("--config", "dev.yaml", "--sections", "apt_packages", "--run-id", "inst_1", "--history-db="+h.history)
	if !errors.Is(err, ErrRunFailed) {
		t.Fatalf("expected ErrRunFailed, got %v\n%s", err, h.stderr.String())
	}

	out := h.stdout.String()
	for _, want := range []string{"apt_packages/git", "apt_packages/jq", "1 failed", "1 already installed"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if h.fake.Ran("bash") {
		t.Error("custom_software was excluded by the section filter")
	}

	data, err := os.ReadFile(h.artifact("version-report-inst_1.json"))
	if err != nil {
		t.Fatal(err)
	}
	var vr report.VersionReport
	if err := json.Unmarshal(data, &vr); err != nil {
		t.Fatal(err)
	}
	if vr.RunID != "inst_1" || len(vr.Packages) != 2 || !vr.Packages[0].Present || vr.Packages[1].Present {
		t.Errorf("version report = %+v", vr)
	}
	if !exists(h.artifact("test-results-inst_1.json")) {
		t.Error("test results not written")
	}

	store, err := stores.Open(context.Background(), h.history)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	run, err := store.GetRun(context.Background(), "inst_1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != "failed" || run.Profile != "dev" || run.Sections != "apt_packages" {
		t.Errorf("history run = %+v", run)
	}
}

func TestRunIDFromEnvironment(t *testing.T) {
	t.Setenv(RunIDEnv, "ci_42")
	h := newHarness(t, devProfile)

	if err := h.run("--config", "dev.yaml", "--dry-run"); err != nil {
		t.Fatal(err)
	}
	if !exists(h.artifact("devbox-ci_42.log")) {
		t.Error("run log should carry the injected run id")
	}
}

func TestProfileLogLevel(t *testing.T) {
	profile := devProfile + `
settings:
  log_level: debug
`
	tests := []struct {
		name      string
		extra     []string
		wantDebug bool
	}{
		{"profile level applies", nil, true},
		{"flag wins", []string{"--log-level", "INFO"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, profile)
			args := append([]string{"--config", "dev.yaml", "--dry-run", "--sections", "apt_packages"}, tt.extra...)
			if err := h.run(args...); err != nil {
				t.Fatal(err)
			}
			got := strings.Contains(h.stderr.String(), "Section excluded by filter")
			if got != tt.wantDebug {
				t.Errorf("debug output = %v, want %v:\n%s", got, tt.wantDebug, h.stderr.String())
			}
		})
	}
}

func TestProfileLogLevelKeepsCommandLog(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
	profile := `
metadata:
  name: dev
settings:
  log_level: debug
custom_software:
  - name: devbox-hello
    script:
      inline: echo hello
`
	h := newHarness(t, profile)
	h.opts.runner = nil

	if err := h.run("--config", "dev.yaml", "--sections", "custom_software", "--run-id", "lvl_1"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(h.artifact("devbox-lvl_1.log"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Running command") {
		t.Errorf("run log is missing command records:\n%s", data)
	}
	if !strings.Contains(h.stderr.String(), "Running command") {
		t.Errorf("console should show command records at debug level:\n%s", h.stderr.String())
	}
}

func TestFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing profile", []string{"--config", "nope.yaml", "--dry-run"}, engine.ErrCodeConfigResolution},
		{"unknown section", []string{"--config", "dev.yaml", "--sections", "bogus", "--dry-run"}, engine.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, devProfile)
			err := h.run(tt.args...)
			if err == nil || errors.Is(err, ErrRunFailed) {
				t.Fatalf("expected a fatal error, got %v", err)
			}
			if !engine.HasCode(err, tt.code) {
				t.Errorf("expected code %s, got %v", tt.code, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	h := newHarness(t, devProfile)

	if err := h.run("validate", "dev.yaml"); err != nil {
		t.Fatal(err)
	}
	out := h.stdout.String()
	for _, want := range []string{"Profile dev", "apt_packages", "git", "kubectl", "curl", "3 entries"} {
		if !strings.Contains(out, want) {
			t.Errorf("plan missing %q:\n%s", want, out)
		}
	}
	if len(h.fake.Lines()) != 0 {
		t.Error("validate must not run commands")
	}

	if err := h.run("validate", "dev.yaml", "--json", "--sections", "apt_packages"); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Profile string      `json:"profile"`
		Plan    engine.Plan `json:"plan"`
	}
	if err := json.Unmarshal(h.stdout.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, h.stdout.String())
	}
	if decoded.Profile != "dev" || len(decoded.Plan.Sections) != 1 || len(decoded.Plan.Skipped) != 7 {
		t.Errorf("decoded plan = %+v", decoded)
	}

	if err := h.run("validate", "missing.yaml"); !engine.IsConfigResolution(err) {
		t.Errorf("expected resolution error, got %v", err)
	}
}

func TestReport(t *testing.T) {
	h := newHarness(t, devProfile)
	h.fake.On("dpkg-query -W -f=${db:Status-Status} ${Version} git", runnertest.OK("installed 2.43.0"))

	if err := h.run("report", "--config", "dev.yaml", "--run-id", "rep_1"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.stdout.String(), "2 packages, 1 missing") {
		t.Errorf("report output:\n%s", h.stdout.String())
	}
	if !exists(h.artifact("version-report-rep_1.json")) {
		t.Error("report file not written")
	}
	if h.fake.Ran("apt-get") {
		t.Error("report must not install")
	}
}

func TestHistory(t *testing.T) {
	h := newHarness(t, devProfile)
	ctx := context.Background()

	if err := os.MkdirAll(h.logs, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(h.artifact("devbox-20260101_000000.log"), []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := stores.Open(ctx, h.history)
	if err != nil {
		t.Fatal(err)
	}
	started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	res := &engine.Result{
		RunID:      "20260314_092653",
		Status:     engine.RunStatusFailed,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Duration:   time.Minute,
		Outcomes: []engine.Outcome{
			{Section: engine.SectionAptPackages, Entry: "git", Status: engine.StatusSuccess, Version: "2.43.0"},
			{Section: engine.SectionCustomSoftware, Entry: "kubectl", Status: engine.StatusFailure, Reason: "exit 1"},
		},
	}
	res.Summary.Total = 2
	if err := stores.RecordResult(ctx, store, res, stores.RunMeta{Profile: "dev"}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	db := "--history-db=" + h.history

	if err := h.run("history", db); err != nil {
		t.Fatal(err)
	}
	out := h.stdout.String()
	if !strings.Contains(out, "20260314_092653") || !strings.Contains(out, "20260101_000000") || !strings.Contains(out, "log only") {
		t.Errorf("history list:\n%s", out)
	}

	if err := h.run("history", "20260314_092653", db); err != nil {
		t.Fatal(err)
	}
	out = h.stdout.String()
	if !strings.Contains(out, "apt_packages/git") || !strings.Contains(out, "exit 1") {
		t.Errorf("history detail:\n%s", out)
	}

	if err := h.run("history", "20990101_000000", db); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestUnlock(t *testing.T) {
	tests := []struct {
		name      string
		held      bool
		force     bool
		wantErr   bool
		wantBreak bool
	}{
		{"free locks are cleared", false, false, false, true},
		{"held locks need force", true, false, true, false},
		{"force breaks held locks", true, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, devProfile)
			h.fake.SetPath("fuser", "/usr/bin/fuser")
			if !tt.held {
				h.fake.On("fuser", runnertest.Exit(1, ""))
			}

			args := []string{"unlock"}
			if tt.force {
				args = append(args, "--force")
			}
			err := h.run(args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := h.fake.Ran("dpkg --configure -a"); got != tt.wantBreak {
				t.Errorf("locks broken = %v, want %v (%v)", got, tt.wantBreak, h.fake.Lines())
			}
		})
	}
}

func TestRunContextMergesSettings(t *testing.T) {
	s := &session{
		opts:  &options{force: true, aptUpgrade: true, breakLocks: true, root: "/project"},
		runID: "r1",
	}
	cfg := &engine.Configuration{Settings: engine.Settings{
		ContinueOnError:     false,
		UpdatePackages:      true,
		CleanupAfterInstall: true,
		MaxRetries:          3,
	}}
	filter := []engine.Section{engine.SectionAptPackages}

	rc := s.runContext(cfg, filter, "DEBUG")

	want := engine.RunContext{
		RunID:               "r1",
		Force:               true,
		ContinueOnError:     false,
		Sections:            filter,
		LogLevel:            "DEBUG",
		AptUpgrade:          true,
		BreakLocks:          true,
		UpdatePackages:      true,
		CleanupAfterInstall: true,
		MaxRetries:          3,
		Root:                "/project",
	}
	if !reflect.DeepEqual(rc, want) {
		t.Errorf("run context = %+v, want %+v", rc, want)
	}
}

func TestRenderSummary(t *testing.T) {
	res := &engine.Result{
		RunID:    "r1",
		Status:   engine.RunStatusHalted,
		Duration: 1500 * time.Millisecond,
		Summary: engine.Summary{
			Succeeded:        []engine.Outcome{{Section: engine.SectionAptPackages, Entry: "git", Version: "2.43.0"}},
			AlreadyInstalled: []engine.Outcome{{Section: engine.SectionAptPackages, Entry: "jq"}},
			Failed:           []engine.Outcome{{Section: engine.SectionCustomSoftware, Entry: "kubectl", Reason: "[TIMEOUT] killed"}},
			Total:            3,
			Halted:           true,
		},
	}

	var buf bytes.Buffer
	out := renderSummary(newRenderer(&buf, true), res, []string{"/logs/devbox-r1.log"})

	for _, want := range []string{
		"devbox run r1", "halted", "1 succeeded", "1 failed",
		"apt_packages/git", "2.43.0", "custom_software/kubectl", "[TIMEOUT] killed",
		"Stopped at the first failure", "/logs/devbox-r1.log",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Error("plain renderer should not emit escape codes")
	}
}
