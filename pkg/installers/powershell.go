package installers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

const pwshTimeout = 10 * time.Minute

// PowerShellInstaller installs modules from the PowerShell Gallery for the current user.
type PowerShellInstaller struct {
	base
}

// NewPowerShellInstaller creates the powershell_modules backend.
func NewPowerShellInstaller(r runner.Runner, logger zerolog.Logger) *PowerShellInstaller {
	return &PowerShellInstaller{base: newBase(r, logger, "powershell")}
}

// psQuote single-quotes a value for a PowerShell command line.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (p *PowerShellInstaller) pwsh(ctx context.Context, e engine.Entry, script string) (*runner.Result, error) {
	return p.run(ctx, e, runner.Command{
		Name:    "pwsh",
		Args:    []string{"-NoProfile", "-NonInteractive", "-Command", script},
		Timeout: pwshTimeout,
	})
}

// Probe asks pwsh for the highest installed version of the module.
func (p *PowerShellInstaller) Probe(ctx context.Context, e engine.Entry) (engine.ProbeResult, error) {
	if !p.has("pwsh") {
		return engine.ProbeResult{}, nil
	}
	script := fmt.Sprintf(
		"Get-Module -ListAvailable -Name %s | Sort-Object Version -Descending | Select-Object -First 1 | ForEach-Object { $_.Version.ToString() }",
		psQuote(e.Name))

	res, err := p.pwsh(ctx, e, script)
	if err != nil {
		return engine.ProbeResult{}, err
	}
	v := strings.TrimSpace(res.Stdout)
	if res.ExitCode != 0 || v == "" {
		return engine.ProbeResult{}, nil
	}
	return engine.ProbeResult{Installed: true, Version: v}, nil
}

// Install implements engine.Installer.
func (p *PowerShellInstaller) Install(ctx context.Context, e engine.Entry, force bool) engine.Outcome {
	if !p.has("pwsh") {
		return missingTool(e, "pwsh", "install PowerShell through custom_software first")
	}

	var b strings.Builder
	b.WriteString("$ErrorActionPreference = 'Stop'; ")
	b.WriteString("Set-PSRepository -Name PSGallery -InstallationPolicy Trusted; ")
	fmt.Fprintf(&b, "Install-Module -Name %s -Scope CurrentUser -AllowClobber", psQuote(e.Name))
	if v := e.RequiredVersion(); v != engine.VersionLatest {
		fmt.Fprintf(&b, " -MinimumVersion %s", psQuote(v))
	}
	if force {
		b.WriteString(" -Force")
	}

	res, err := p.pwsh(ctx, e, b.String())
	if cerr := commandError("Install-Module", res, err); cerr != nil {
		return engine.Failed(e, cerr)
	}

	probe, _ := p.Probe(ctx, e)
	if !probe.Installed {
		return engine.Failed(e, engine.NewInstallError("module not listed after Install-Module", nil))
	}
	return engine.Succeeded(e, probe.Version)
}
