package installers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

// ScriptTimeout is the wall-clock limit for one install or configuration script.
const ScriptTimeout = 600 * time.Second

// Environment variables handed to every script.
const (
	EnvForceInstall       = "FORCE_INSTALL"
	EnvInstallingSoftware = "INSTALLING_SOFTWARE"
	EnvRunID              = "DEVBOX_RUN_ID"
)

// resolveScript returns the absolute path of a path ScriptRef relative to dir.
func resolveScript(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// checkScript verifies the file exists, is a regular file and can be read.
// Nothing is executed when it fails.
func checkScript(path string) *engine.EngineError {
	info, err := os.Stat(path)
	if err != nil {
		return engine.NewPermanentError("install script not found: "+path, err).
			WithCode(engine.ErrCodeScriptNotFound)
	}
	if info.IsDir() {
		return engine.NewPermanentError("install script is a directory: "+path, nil).
			WithCode(engine.ErrCodeScriptNotFound)
	}
	f, err := os.Open(path)
	if err != nil {
		return engine.NewPermanentError("install script not readable: "+path, err).
			WithCode(engine.ErrCodeScriptNotFound)
	}
	_ = f.Close()
	return nil
}

// runScript executes a ScriptRef for entry e: a path is checked, made
// executable and run from its own directory; an inline body runs via bash -c.
// Both get a null stdin and the ScriptTimeout limit.
func (b *base) runScript(ctx context.Context, e engine.Entry, dir string, ref engine.ScriptRef, force bool) *engine.EngineError {
	if ref.IsZero() {
		return engine.NewPermanentError("no script given", nil).WithCode(engine.ErrCodeScriptNotFound)
	}

	env := map[string]string{
		EnvForceInstall:       boolString(force),
		EnvInstallingSoftware: e.Name,
	}
	if id := b.runContext().RunID; id != "" {
		env[EnvRunID] = id
	}

	cmd := runner.Command{Env: env, Timeout: ScriptTimeout}
	op := "script"

	switch ref.Kind {
	case engine.ScriptKindInline:
		cmd.Name = "bash"
		cmd.Args = []string{"-c", ref.Value}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			cmd.Dir = dir
		}
		op = "inline script"
	default:
		path := resolveScript(dir, ref.Value)
		if cerr := checkScript(path); cerr != nil {
			return cerr
		}
		cmd.Name = path
		cmd.Dir = filepath.Dir(path)
		if err := makeExecutable(path); err != nil {
			log := b.entryLogger(e)
			log.Warn().Err(err).Str("script", path).Msg("Cannot mark script executable, running through bash")
			cmd.Name = "bash"
			cmd.Args = []string{path}
		}
		op = filepath.Base(path)
	}

	log := b.entryLogger(e)
	log.Info().Str("script", op).Bool("force", force).Msg("Running script")
	res, err := b.run(ctx, e, cmd)
	if cerr := commandError(op, res, err); cerr != nil {
		if cerr.Code == engine.ErrCodeTimeout {
			cerr.Message = fmt.Sprintf("%s exceeded the %s limit and was killed", op, ScriptTimeout)
		}
		return cerr
	}
	return nil
}

func makeExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()
	if mode&0o111 == 0o111 {
		return nil
	}
	return os.Chmod(path, mode|0o111)
}
