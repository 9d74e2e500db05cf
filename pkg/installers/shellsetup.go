package installers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

// Script directories under the project root.
const (
	ShellScriptsDir  = "shell-scripts"
	ConfigScriptsDir = "config-scripts"
)

// ShellSetupInstaller runs shell_setup and configurations scripts. These
// scripts are expected to be idempotent themselves, so the probe always
// reports "not installed" and every enabled entry runs.
type ShellSetupInstaller struct {
	base
	dirs map[engine.Section]string
}

// NewShellSetupInstaller creates the backend for shell_setup and configurations.
func NewShellSetupInstaller(r runner.Runner, root string, logger zerolog.Logger) *ShellSetupInstaller {
	return &ShellSetupInstaller{
		base: newBase(r, logger, "shell"),
		dirs: map[engine.Section]string{
			engine.SectionShellSetup:     filepath.Join(root, ShellScriptsDir),
			engine.SectionConfigurations: filepath.Join(root, ConfigScriptsDir),
		},
	}
}

// Prepare records the run id handed to scripts.
func (s *ShellSetupInstaller) Prepare(ctx context.Context, rc engine.RunContext) error {
	s.remember(rc)
	return nil
}

// Probe implements engine.Installer.
func (s *ShellSetupInstaller) Probe(ctx context.Context, e engine.Entry) (engine.ProbeResult, error) {
	return engine.ProbeResult{}, nil
}

// Install implements engine.Installer.
func (s *ShellSetupInstaller) Install(ctx context.Context, e engine.Entry, force bool) engine.Outcome {
	dir, ok := s.dirs[e.Section]
	if !ok {
		return engine.Failed(e, engine.NewPermanentError(
			fmt.Sprintf("section %s is not handled by the shell backend", e.Section), nil).
			WithCode(engine.ErrCodeNoBackend))
	}
	if cerr := s.runScript(ctx, e, dir, e.Script, force); cerr != nil {
		return engine.Failed(e, cerr)
	}
	return engine.Succeeded(e, "")
}
