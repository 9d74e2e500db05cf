package installers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

// SoftwareScriptsDir holds custom_software install scripts under the project root.
const SoftwareScriptsDir = "software-scripts"

const versionProbeTimeout = 30 * time.Second

// ScriptInstaller installs custom_software entries by running their install scripts.
type ScriptInstaller struct {
	base
	dir string
}

// NewScriptInstaller creates the custom_software backend rooted at root/software-scripts.
func NewScriptInstaller(r runner.Runner, root string, logger zerolog.Logger) *ScriptInstaller {
	return &ScriptInstaller{
		base: newBase(r, logger, "custom_software"),
		dir:  filepath.Join(root, SoftwareScriptsDir),
	}
}

// Prepare records the run id handed to scripts.
func (s *ScriptInstaller) Prepare(ctx context.Context, rc engine.RunContext) error {
	s.remember(rc)
	return nil
}

// script returns the entry's script, defaulting to <name>/install.sh.
func (s *ScriptInstaller) script(e engine.Entry) engine.ScriptRef {
	if e.Script.IsZero() {
		return engine.PathScript(filepath.Join(e.Name, "install.sh"))
	}
	return e.Script
}

// Probe looks for the entry's command on PATH and asks it for its version.
func (s *ScriptInstaller) Probe(ctx context.Context, e engine.Entry) (engine.ProbeResult, error) {
	return probeCommand(ctx, &s.base, e)
}

// Install implements engine.Installer.
func (s *ScriptInstaller) Install(ctx context.Context, e engine.Entry, force bool) engine.Outcome {
	if cerr := s.runScript(ctx, e, s.dir, s.script(e), force); cerr != nil {
		return engine.Failed(e, cerr)
	}
	probe, _ := s.Probe(ctx, e)
	return engine.Succeeded(e, probe.Version)
}

// Verify runs the version command when one is declared.
func (s *ScriptInstaller) Verify(ctx context.Context, e engine.Entry) error {
	if e.VersionCommand == "" {
		return nil
	}
	probe, err := probeCommand(ctx, &s.base, e)
	if err != nil {
		return err
	}
	if !probe.Installed {
		return fmt.Errorf("%s not found on PATH after install", e.VersionCommand)
	}
	return nil
}

// probeCommand resolves version_command (or the entry name) on PATH and
// extracts a version from "<cmd> <version_flag>".
func probeCommand(ctx context.Context, b *base, e engine.Entry) (engine.ProbeResult, error) {
	name := e.VersionCommand
	if name == "" {
		name = e.Name
	}
	if !b.has(name) {
		return engine.ProbeResult{}, nil
	}

	flag := e.VersionFlag
	if flag == "" {
		flag = "--version"
	}
	res, err := b.runner.Run(ctx, runner.Command{Name: name, Args: strings.Fields(flag), Timeout: versionProbeTimeout})
	if err != nil {
		// present but would not report a version
		return engine.ProbeResult{Installed: true}, nil
	}
	return engine.ProbeResult{
		Installed: true,
		Version:   engine.ExtractVersion(filepath.Base(name), res.Stdout+"\n"+res.Stderr),
	}, nil
}
