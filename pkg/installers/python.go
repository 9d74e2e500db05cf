package installers

import (
	"bufio"
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
	"github.com/andresrocksuk/devbox/pkg/shellprofile"
)

const localBinMarker = "devbox local-bin"

// shellProfiles are the rc files that get the ~/.local/bin block.
var shellProfiles = []string{".bashrc", ".zshrc", ".profile"}

const localBinBlock = `case ":$PATH:" in
    *":$HOME/.local/bin:"*) ;;
    *) [ -d "$HOME/.local/bin" ] && export PATH="$HOME/.local/bin:$PATH" ;;
esac`

// PythonInstaller installs python packages with pipx (the default), pip, or apt.
type PythonInstaller struct {
	base
	apt  *AptInstaller
	home string

	pathOnce sync.Once
}

// NewPythonInstaller creates the python backend. apt handles install_method apt;
// home is where the ~/.local/bin PATH block is written.
func NewPythonInstaller(r runner.Runner, apt *AptInstaller, home string, logger zerolog.Logger) *PythonInstaller {
	return &PythonInstaller{
		base: newBase(r, logger, "python"),
		apt:  apt,
		home: home,
	}
}

// Prepare hands the run switches to the apt sub-strategy, which may run even
// when no apt section is planned.
func (p *PythonInstaller) Prepare(ctx context.Context, rc engine.RunContext) error {
	p.remember(rc)
	p.apt.remember(rc)
	return nil
}

func method(e engine.Entry) engine.InstallMethod {
	if e.InstallMethod == "" {
		return engine.InstallMethodPipx
	}
	return e.InstallMethod
}

// aptName maps a python package to its Debian package name.
func aptName(name string) string {
	if strings.HasPrefix(name, "python3-") {
		return name
	}
	return "python3-" + strings.ToLower(name)
}

// Probe implements engine.Installer.
func (p *PythonInstaller) Probe(ctx context.Context, e engine.Entry) (engine.ProbeResult, error) {
	switch method(e) {
	case engine.InstallMethodApt:
		return p.apt.probePackage(ctx, aptName(e.Name))
	case engine.InstallMethodPip:
		return p.probePip(ctx, e)
	default:
		return p.probePipx(ctx, e)
	}
}

func (p *PythonInstaller) probePipx(ctx context.Context, e engine.Entry) (engine.ProbeResult, error) {
	if !p.has("pipx") {
		return engine.ProbeResult{}, nil
	}
	res, err := p.runner.Run(ctx, runner.Command{Name: "pipx", Args: []string{"list", "--short"}})
	if err != nil {
		return engine.ProbeResult{}, err
	}
	if res.ExitCode != 0 {
		return engine.ProbeResult{}, nil
	}

	want := normalizePyName(e.Name)
	sc := bufio.NewScanner(strings.NewReader(res.Stdout))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && normalizePyName(fields[0]) == want {
			return engine.ProbeResult{Installed: true, Version: fields[1]}, nil
		}
	}
	return engine.ProbeResult{}, nil
}

func (p *PythonInstaller) probePip(ctx context.Context, e engine.Entry) (engine.ProbeResult, error) {
	res, err := p.runner.Run(ctx, runner.Command{Name: "python3", Args: []string{"-m", "pip", "show", e.Name}})
	if err != nil {
		return engine.ProbeResult{}, err
	}
	if res.ExitCode != 0 {
		return engine.ProbeResult{}, nil
	}

	sc := bufio.NewScanner(strings.NewReader(res.Stdout))
	for sc.Scan() {
		if v, ok := strings.CutPrefix(sc.Text(), "Version:"); ok {
			return engine.ProbeResult{Installed: true, Version: strings.TrimSpace(v)}, nil
		}
	}
	return engine.ProbeResult{Installed: true}, nil
}

// Install implements engine.Installer.
func (p *PythonInstaller) Install(ctx context.Context, e engine.Entry, force bool) engine.Outcome {
	m := method(e)
	if m == engine.InstallMethodApt {
		return p.apt.installPackage(ctx, e, aptName(e.Name), force)
	}

	p.ensureLocalBin()

	spec := e.Name
	if v := e.RequiredVersion(); v != engine.VersionLatest {
		spec = e.Name + ">=" + v
	}

	var cmd runner.Command
	switch m {
	case engine.InstallMethodPip:
		args := []string{"-m", "pip", "install", "--user", "--upgrade"}
		if force {
			args = append(args, "--force-reinstall")
		}
		cmd = runner.Command{Name: "python3", Args: append(args, spec)}
	default:
		if !p.has("pipx") {
			return missingTool(e, "pipx", "add pipx to apt_packages or prerequisites")
		}
		args := []string{"install"}
		if force {
			args = append(args, "--force")
		}
		cmd = runner.Command{Name: "pipx", Args: append(args, spec)}
	}

	res, err := p.run(ctx, e, cmd)
	if cerr := commandError(string(m)+" install", res, err); cerr != nil {
		return engine.Failed(e, cerr)
	}

	probe, _ := p.Probe(ctx, e)
	return engine.Succeeded(e, probe.Version)
}

// ensureLocalBin puts ~/.local/bin on PATH for future shells, once per run.
func (p *PythonInstaller) ensureLocalBin() {
	if p.home == "" {
		return
	}
	p.pathOnce.Do(func() {
		for _, rc := range shellProfiles {
			path := filepath.Join(p.home, rc)
			changed, err := shellprofile.EnsureBlock(path, localBinMarker, localBinBlock)
			if err != nil {
				p.logger.Warn().Err(err).Str("file", path).Msg("Failed to add ~/.local/bin to PATH")
				continue
			}
			if changed {
				p.logger.Info().Str("file", path).Msg("Added ~/.local/bin to PATH")
			}
		}
	})
}

// normalizePyName applies PEP 503 name normalization.
func normalizePyName(name string) string {
	name = strings.ToLower(name)
	return strings.NewReplacer("_", "-", ".", "-").Replace(name)
}
