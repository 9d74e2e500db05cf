package engine

import (
	"context"
	"errors"
	"testing"
)

func TestDispatch_DisabledEntryIsSkipped(t *testing.T) {
	inst := newFakeInstaller()
	d := NewDispatcher(registryWith(t, map[Section]Installer{SectionAptPackages: inst}))

	e := entry(SectionAptPackages, "git", "")
	e.Enabled = false

	out := d.Dispatch(context.Background(), RunContext{}, e)
	if out.Status != StatusSkipped {
		t.Errorf("Expected skipped, got %s", out.Status)
	}
	if len(inst.probes) != 0 || len(inst.installs) != 0 {
		t.Error("Expected no backend calls for a disabled entry")
	}
}

func TestDispatch_AlreadyInstalledShortCircuit(t *testing.T) {
	tests := []struct {
		name        string
		installed   string
		required    string
		force       bool
		wantStatus  Status
		wantInstall bool
	}{
		{name: "latest satisfied", installed: "2.43.0", required: "latest", wantStatus: StatusAlreadyInstalled},
		{name: "pinned satisfied", installed: "2.43.0", required: "2.40", wantStatus: StatusAlreadyInstalled},
		{name: "pinned too old", installed: "2.30.0", required: "2.40", wantStatus: StatusSuccess, wantInstall: true},
		{name: "force bypasses probe", installed: "2.43.0", required: "latest", force: true, wantStatus: StatusSuccess, wantInstall: true},
		{name: "unknown version with pin", installed: "", required: "2.40", wantStatus: StatusSuccess, wantInstall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newFakeInstaller()
			inst.installed["git"] = tt.installed
			d := NewDispatcher(registryWith(t, map[Section]Installer{SectionAptPackages: inst}))

			out := d.Dispatch(context.Background(), RunContext{Force: tt.force}, entry(SectionAptPackages, "git", tt.required))

			if out.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", out.Status, tt.wantStatus)
			}
			if (len(inst.installs) > 0) != tt.wantInstall {
				t.Errorf("Install calls = %d, want install %v", len(inst.installs), tt.wantInstall)
			}
			if tt.force && (len(inst.forced) != 1 || !inst.forced[0]) {
				t.Error("Expected force to be passed to the backend")
			}
			if out.Section != SectionAptPackages || out.Entry != "git" {
				t.Errorf("Expected outcome to carry entry identity, got %s/%s", out.Section, out.Entry)
			}
		})
	}
}

func TestDispatch_VerificationFailureKeepsSuccess(t *testing.T) {
	inst := &verifyingInstaller{newFakeInstaller()}
	inst.verifyErr = errors.New("git: command not found")
	d := NewDispatcher(registryWith(t, map[Section]Installer{SectionAptPackages: inst}))

	out := d.Dispatch(context.Background(), RunContext{}, entry(SectionAptPackages, "git", ""))

	if out.Status != StatusSuccess {
		t.Fatalf("Expected success despite failed verification, got %s", out.Status)
	}
	if out.Verification == "" || out.Verified {
		t.Errorf("Expected a verification warning, got %+v", out)
	}
	if len(inst.verifies) != 1 {
		t.Errorf("Expected one verify call, got %d", len(inst.verifies))
	}
}

func TestDispatch_NoVerifyWhenAlreadyInstalled(t *testing.T) {
	inst := &verifyingInstaller{newFakeInstaller()}
	inst.installed["git"] = "2.43.0"
	d := NewDispatcher(registryWith(t, map[Section]Installer{SectionAptPackages: inst}))

	d.Dispatch(context.Background(), RunContext{}, entry(SectionAptPackages, "git", ""))

	if len(inst.verifies) != 0 {
		t.Error("Expected no verify call after a short-circuit")
	}
}

func TestDispatch_RetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name         string
		failures     []*EngineError
		maxRetries   int
		wantStatus   Status
		wantAttempts int
	}{
		{
			name:         "transient then success",
			failures:     []*EngineError{NewTransientError("mirror timeout", nil)},
			maxRetries:   2,
			wantStatus:   StatusSuccess,
			wantAttempts: 2,
		},
		{
			name:         "retries exhausted",
			failures:     []*EngineError{NewTransientError("a", nil), NewTransientError("b", nil), NewTransientError("c", nil)},
			maxRetries:   1,
			wantStatus:   StatusFailure,
			wantAttempts: 2,
		},
		{
			name:         "permanent is not retried",
			failures:     []*EngineError{NewInstallError("exit status 1", nil)},
			maxRetries:   3,
			wantStatus:   StatusFailure,
			wantAttempts: 1,
		},
		{
			name:         "no retries by default",
			failures:     []*EngineError{NewTransientError("mirror timeout", nil)},
			wantStatus:   StatusFailure,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newFakeInstaller()
			inst.failures["git"] = tt.failures
			reg := registryWith(t, map[Section]Installer{SectionAptPackages: inst})
			d := NewDispatcher(reg, WithRetryBackOff(noBackOff))

			out := d.Dispatch(context.Background(), RunContext{MaxRetries: tt.maxRetries}, entry(SectionAptPackages, "git", ""))

			if out.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", out.Status, tt.wantStatus)
			}
			if len(inst.installs) != tt.wantAttempts {
				t.Errorf("Install attempts = %d, want %d", len(inst.installs), tt.wantAttempts)
			}
			if out.Status == StatusFailure && (out.Err == nil || out.Reason == "") {
				t.Error("Expected failure outcome to carry an error and reason")
			}
		})
	}
}

func TestDispatch_MissingBackendFails(t *testing.T) {
	d := NewDispatcher(NewRegistry())

	out := d.Dispatch(context.Background(), RunContext{}, entry(SectionNixPackages, "ripgrep", ""))

	if out.Status != StatusFailure {
		t.Fatalf("Expected failure, got %s", out.Status)
	}
	if out.Err == nil || out.Err.Code != ErrCodeNoBackend {
		t.Errorf("Expected NO_BACKEND error, got %v", out.Err)
	}
}
