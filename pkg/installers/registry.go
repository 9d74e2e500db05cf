package installers

import (
	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/aptlock"
	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

// Options carries what the backends need from the command layer.
type Options struct {
	Runner runner.Runner
	Guard  *aptlock.Guard
	Logger zerolog.Logger

	// Root is the project root holding the script directories.
	Root string

	// Home is the user's home directory, for shell profile edits.
	Home string
}

// NewRegistry binds every section to its backend.
func NewRegistry(opts Options) (*engine.Registry, error) {
	apt := NewAptInstaller(opts.Runner, opts.Guard, opts.Logger)
	shell := NewShellSetupInstaller(opts.Runner, opts.Root, opts.Logger)

	bindings := []struct {
		section   engine.Section
		installer engine.Installer
	}{
		{engine.SectionPrerequisites, apt},
		{engine.SectionAptPackages, apt},
		{engine.SectionShellSetup, shell},
		{engine.SectionCustomSoftware, NewScriptInstaller(opts.Runner, opts.Root, opts.Logger)},
		{engine.SectionPythonPackages, NewPythonInstaller(opts.Runner, apt, opts.Home, opts.Logger)},
		{engine.SectionPowerShellModules, NewPowerShellInstaller(opts.Runner, opts.Logger)},
		{engine.SectionNixPackages, NewNixInstaller(opts.Runner, opts.Logger)},
		{engine.SectionConfigurations, shell},
	}

	reg := engine.NewRegistry()
	for _, b := range bindings {
		if err := reg.Register(b.section, b.installer); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
