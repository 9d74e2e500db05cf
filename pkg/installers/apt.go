package installers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/aptlock"
	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

const aptTimeout = 30 * time.Minute

var aptEnv = map[string]string{
	"DEBIAN_FRONTEND":  "noninteractive",
	"NEEDRESTART_MODE": "a",
}

// AptInstaller installs Debian packages with apt-get. It serves both the
// prerequisites and apt_packages sections.
type AptInstaller struct {
	base
	guard *aptlock.Guard

	updateOnce sync.Once
	updateErr  error
	installed  bool
}

// NewAptInstaller creates the apt backend.
func NewAptInstaller(r runner.Runner, guard *aptlock.Guard, logger zerolog.Logger) *AptInstaller {
	return &AptInstaller{
		base:  newBase(r, logger, "apt"),
		guard: guard,
	}
}

// Prepare records the run switches and runs apt-get upgrade when asked.
func (a *AptInstaller) Prepare(ctx context.Context, rc engine.RunContext) error {
	a.remember(rc)
	if !rc.AptUpgrade {
		return nil
	}
	if err := a.ensureUpdated(ctx); err != nil {
		return err
	}
	a.logger.Info().Msg("Upgrading installed packages")
	res, err := a.aptGet(ctx, "upgrade", "-y")
	if cerr := commandError("apt-get upgrade", res, err); cerr != nil {
		return cerr
	}
	return nil
}

// Probe implements engine.Installer using dpkg-query.
func (a *AptInstaller) Probe(ctx context.Context, e engine.Entry) (engine.ProbeResult, error) {
	return a.probePackage(ctx, e.Name)
}

func (a *AptInstaller) probePackage(ctx context.Context, pkg string) (engine.ProbeResult, error) {
	res, err := a.runner.Run(ctx, runner.Command{
		Name: "dpkg-query",
		Args: []string{"-W", "-f=${db:Status-Status} ${Version}", pkg},
	})
	if err != nil {
		return engine.ProbeResult{}, fmt.Errorf("dpkg-query %s: %w", pkg, err)
	}
	if res.ExitCode != 0 {
		return engine.ProbeResult{}, nil
	}

	status, version, _ := strings.Cut(strings.TrimSpace(res.Stdout), " ")
	if status != "installed" {
		return engine.ProbeResult{}, nil
	}
	return engine.ProbeResult{Installed: true, Version: strings.TrimSpace(version)}, nil
}

// Install implements engine.Installer.
func (a *AptInstaller) Install(ctx context.Context, e engine.Entry, force bool) engine.Outcome {
	return a.installPackage(ctx, e, e.Name, force)
}

// installPackage installs pkg on behalf of entry e. The python backend uses
// it for install_method apt.
func (a *AptInstaller) installPackage(ctx context.Context, e engine.Entry, pkg string, force bool) engine.Outcome {
	rc := a.runContext()
	if rc.UpdatePackages {
		if err := a.ensureUpdated(ctx); err != nil {
			return engine.Failed(e, engine.AsEngineError(err))
		}
	}

	args := []string{"install", "-y", "--no-install-recommends"}
	if force {
		args = append(args, "--reinstall")
	}
	args = append(args, pkg)

	res, err := a.aptGet(ctx, args...)
	if cerr := commandError("apt-get install", res, err); cerr != nil {
		return engine.Failed(e, cerr)
	}
	a.mu.Lock()
	a.installed = true
	a.mu.Unlock()

	probe, _ := a.probePackage(ctx, pkg)
	if !probe.Installed {
		return engine.Failed(e, engine.NewInstallError(pkg+" not installed after apt-get install", nil))
	}
	if !engine.Satisfies(probe.Version, e.RequiredVersion()) {
		return engine.Failed(e, engine.NewInstallError(
			fmt.Sprintf("installed version %s does not satisfy %s", probe.Version, e.RequiredVersion()), nil))
	}
	return engine.Succeeded(e, probe.Version)
}

// Verify checks that the entry's command, if declared, is on PATH.
func (a *AptInstaller) Verify(ctx context.Context, e engine.Entry) error {
	if e.Command == "" {
		return nil
	}
	if !a.has(e.Command) {
		return fmt.Errorf("command %s not found on PATH", e.Command)
	}
	return nil
}

// Finalize removes unused packages and the download cache when cleanup was requested.
func (a *AptInstaller) Finalize(ctx context.Context, rc engine.RunContext) error {
	a.mu.Lock()
	installed := a.installed
	a.mu.Unlock()

	if !rc.CleanupAfterInstall || !installed {
		return nil
	}

	a.logger.Info().Msg("Cleaning up package cache")
	res, err := a.aptGet(ctx, "autoremove", "-y")
	if cerr := commandError("apt-get autoremove", res, err); cerr != nil {
		return cerr
	}
	res, err = a.aptGet(ctx, "clean")
	if cerr := commandError("apt-get clean", res, err); cerr != nil {
		return cerr
	}
	return nil
}

// ensureUpdated refreshes the package index once per run.
func (a *AptInstaller) ensureUpdated(ctx context.Context) error {
	a.updateOnce.Do(func() {
		a.logger.Info().Msg("Updating package index")
		res, err := a.aptGet(ctx, "update")
		if cerr := commandError("apt-get update", res, err); cerr != nil {
			a.updateErr = cerr
		}
	})
	return a.updateErr
}

// aptGet waits for the package-manager locks, then runs apt-get.
func (a *AptInstaller) aptGet(ctx context.Context, args ...string) (*runner.Result, error) {
	if a.guard != nil {
		if err := a.guard.Wait(ctx, a.runContext().BreakLocks); err != nil {
			return nil, err
		}
	}

	w := runner.NewLogWriter(a.logger, zerolog.DebugLevel)
	defer w.Flush()
	return a.runner.Run(ctx, runner.Command{
		Name:    "apt-get",
		Args:    args,
		Env:     aptEnv,
		Sudo:    true,
		Timeout: aptTimeout,
		Output:  w,
	})
}
