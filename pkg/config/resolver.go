package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

const (
	// ProfilesDir holds named profiles under the project root.
	ProfilesDir = "profiles"

	// MaterializedName is the canonical copy of the resolved profile in the state dir.
	MaterializedName = "config.yaml"
)

// SourceKind says where a profile reference was resolved from.
type SourceKind string

const (
	SourceHTTPS SourceKind = "https"
	SourceSFTP  SourceKind = "sftp"
	SourceFile  SourceKind = "file"
)

// Resolved is a profile that has been located, materialized and validated.
type Resolved struct {
	// Ref is the reference as given by the user
	Ref string

	// Kind and Source describe where the bytes came from
	Kind   SourceKind
	Source string

	// Path is the materialized copy that was validated
	Path string

	Config *engine.Configuration
}

// Resolver turns a profile reference into a validated configuration.
type Resolver struct {
	// Root is the project root holding profiles/ and script directories
	Root string

	// StateDir receives the materialized config.yaml
	StateDir string

	// HTTP is the primary https transport; Fallback is tried when it fails
	HTTP     Fetcher
	Fallback Fetcher

	// SFTP handles sftp:// references
	SFTP Fetcher

	Loader *Loader
	Logger zerolog.Logger
}

// Resolve locates ref, copies it to <StateDir>/config.yaml and validates the copy.
// Every failure is a CONFIG_RESOLUTION error.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Resolved, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, engine.NewConfigResolutionError("empty profile reference", nil)
	}

	res := &Resolved{Ref: ref}
	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "https://"):
		res.Kind, res.Source = SourceHTTPS, ref
		data, err = r.download(ctx, ref)
	case strings.HasPrefix(ref, "sftp://"):
		res.Kind, res.Source = SourceSFTP, ref
		data, err = r.downloadSFTP(ctx, ref)
	default:
		res.Kind, res.Source = SourceFile, r.LocalPath(ref)
		data, err = readProfile(res.Source)
	}
	if err != nil {
		return nil, resolutionError(ref, err)
	}

	res.Path, err = r.materialize(data)
	if err != nil {
		return nil, resolutionError(ref, err)
	}

	res.Config, err = r.loader().LoadFile(res.Path)
	if err != nil {
		return nil, resolutionError(ref, err)
	}

	r.Logger.Info().
		Str("ref", ref).
		Str("source", res.Source).
		Str("kind", string(res.Kind)).
		Str("materialized", res.Path).
		Msg("profile resolved")
	return res, nil
}

// LocalPath maps a non-URL reference to a file: absolute paths stand as is,
// bare *.yml/*.yaml names live in <root>/profiles, anything else is root-relative.
func (r *Resolver) LocalPath(ref string) string {
	switch {
	case filepath.IsAbs(ref):
		return ref
	case isBareProfileName(ref):
		return filepath.Join(r.Root, ProfilesDir, ref)
	default:
		return filepath.Join(r.Root, ref)
	}
}

func isBareProfileName(ref string) bool {
	if strings.ContainsRune(ref, '/') {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ref))
	return ext == ".yml" || ext == ".yaml"
}

func (r *Resolver) loader() *Loader {
	if r.Loader == nil {
		r.Loader = NewLoader()
	}
	return r.Loader
}

func (r *Resolver) download(ctx context.Context, url string) ([]byte, error) {
	var errs []error
	for _, f := range []Fetcher{r.HTTP, r.Fallback} {
		if f == nil {
			continue
		}
		data, err := f.Fetch(ctx, url)
		if err == nil {
			return data, nil
		}
		r.Logger.Warn().Err(err).Str("url", url).Msg("profile download failed")
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, errors.New("no https transport configured")
	}
	return nil, fmt.Errorf("all transports failed: %w", errors.Join(errs...))
}

func (r *Resolver) downloadSFTP(ctx context.Context, url string) ([]byte, error) {
	if r.SFTP == nil {
		return nil, errors.New("no sftp transport configured")
	}
	return r.SFTP.Fetch(ctx, url)
}

func readProfile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("profile %s does not exist", path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("profile %s is a directory", path)
	}
	return os.ReadFile(path)
}

// materialize overwrites <StateDir>/config.yaml with data via a rename.
func (r *Resolver) materialize(data []byte) (string, error) {
	if err := os.MkdirAll(r.StateDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create state dir: %w", err)
	}
	dst := filepath.Join(r.StateDir, MaterializedName)

	tmp, err := os.CreateTemp(r.StateDir, ".config-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to stage profile: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to stage profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return dst, nil
}

func resolutionError(ref string, err error) *engine.EngineError {
	var ee *engine.EngineError
	msg := fmt.Sprintf("cannot resolve profile %q", ref)
	if errors.As(err, &ee) {
		return engine.NewConfigResolutionError(msg, ee).WithDetail("cause_code", ee.Code)
	}
	return engine.NewConfigResolutionError(msg, err)
}
