package installers

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andresrocksuk/devbox/pkg/engine"
	"github.com/andresrocksuk/devbox/pkg/runner"
)

const nixTimeout = 20 * time.Minute

var nixFeatures = []string{"--extra-experimental-features", "nix-command flakes"}

// NixInstaller installs flakes and nixpkgs packages into the user's nix profile.
type NixInstaller struct {
	base
}

// NewNixInstaller creates the nix_packages backend.
func NewNixInstaller(r runner.Runner, logger zerolog.Logger) *NixInstaller {
	return &NixInstaller{base: newBase(r, logger, "nix")}
}

// installable is what "nix profile install" receives for the entry.
func installable(e engine.Entry) string {
	if e.NixKind == engine.NixKindFlake {
		return e.FlakeRef
	}
	return "nixpkgs#" + e.Name
}

// profileElement is one installed element from "nix profile list --json".
type profileElement struct {
	Name        string   `json:"-"`
	AttrPath    string   `json:"attrPath"`
	OriginalURL string   `json:"originalUrl"`
	StorePaths  []string `json:"storePaths"`
}

// parseProfile accepts both the newer map form and the older list form of
// the "elements" field.
func parseProfile(data []byte) ([]profileElement, error) {
	var raw struct {
		Elements json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse nix profile: %w", err)
	}
	if len(raw.Elements) == 0 {
		return nil, nil
	}

	var byName map[string]profileElement
	if err := json.Unmarshal(raw.Elements, &byName); err == nil {
		out := make([]profileElement, 0, len(byName))
		for name, el := range byName {
			el.Name = name
			out = append(out, el)
		}
		return out, nil
	}

	var list []profileElement
	if err := json.Unmarshal(raw.Elements, &list); err != nil {
		return nil, fmt.Errorf("failed to parse nix profile elements: %w", err)
	}
	for i := range list {
		list[i].Name = path.Base(strings.ReplaceAll(list[i].AttrPath, ".", "/"))
	}
	return list, nil
}

func (el profileElement) matches(e engine.Entry) bool {
	if e.NixKind == engine.NixKindFlake && e.FlakeRef != "" && el.OriginalURL == e.FlakeRef {
		return true
	}
	if el.Name == e.Name {
		return true
	}
	return strings.HasSuffix(el.AttrPath, "."+e.Name)
}

// version pulls "<name>-<version>" out of the element's first store path.
func (el profileElement) version(name string) string {
	if len(el.StorePaths) == 0 {
		return ""
	}
	base := path.Base(el.StorePaths[0])
	// /nix/store/<hash>-<name>-<version>
	if i := strings.Index(base, "-"); i >= 0 {
		base = base[i+1:]
	}
	if v, ok := strings.CutPrefix(base, name+"-"); ok {
		return v
	}
	return engine.ExtractVersion(name, base)
}

func (n *NixInstaller) nix(ctx context.Context, e engine.Entry, args ...string) (*runner.Result, error) {
	return n.run(ctx, e, runner.Command{
		Name:    "nix",
		Args:    append(append([]string{}, nixFeatures...), args...),
		Timeout: nixTimeout,
	})
}

func (n *NixInstaller) find(ctx context.Context, e engine.Entry) (*profileElement, error) {
	res, err := n.runner.Run(ctx, runner.Command{
		Name: "nix",
		Args: append(append([]string{}, nixFeatures...), "profile", "list", "--json"),
	})
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, nil
	}
	elements, err := parseProfile([]byte(res.Stdout))
	if err != nil {
		return nil, err
	}
	for i := range elements {
		if elements[i].matches(e) {
			return &elements[i], nil
		}
	}
	return nil, nil
}

// Probe implements engine.Installer.
func (n *NixInstaller) Probe(ctx context.Context, e engine.Entry) (engine.ProbeResult, error) {
	if !n.has("nix") {
		return engine.ProbeResult{}, nil
	}
	el, err := n.find(ctx, e)
	if err != nil || el == nil {
		return engine.ProbeResult{}, err
	}
	return engine.ProbeResult{Installed: true, Version: el.version(e.Name)}, nil
}

// Install implements engine.Installer. With force an existing element is
// removed first so the install starts clean.
func (n *NixInstaller) Install(ctx context.Context, e engine.Entry, force bool) engine.Outcome {
	if !n.has("nix") {
		return missingTool(e, "nix", "install nix through custom_software first")
	}
	ref := installable(e)
	if ref == "" {
		return engine.Failed(e, engine.NewPermanentError("flake entry has no url", nil).WithCode(engine.ErrCodeValidation))
	}

	if force {
		if el, _ := n.find(ctx, e); el != nil {
			res, err := n.nix(ctx, e, "profile", "remove", el.Name)
			if cerr := commandError("nix profile remove", res, err); cerr != nil {
				log := n.entryLogger(e)
				log.Warn().Err(cerr).Msg("Could not remove existing profile element")
			}
		}
	}

	res, err := n.nix(ctx, e, "profile", "install", ref)
	if cerr := commandError("nix profile install", res, err); cerr != nil {
		return engine.Failed(e, cerr)
	}

	probe, _ := n.Probe(ctx, e)
	return engine.Succeeded(e, probe.Version)
}
