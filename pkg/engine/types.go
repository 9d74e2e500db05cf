package engine

import (
	"strings"
	"time"
)

// Section is one of the fixed top-level groupings of entries in a profile.
type Section string

const (
	// SectionPrerequisites holds system packages required before anything else.
	SectionPrerequisites Section = "prerequisites"

	// SectionAptPackages holds apt packages.
	SectionAptPackages Section = "apt_packages"

	// SectionShellSetup holds shell setup scripts.
	SectionShellSetup Section = "shell_setup"

	// SectionCustomSoftware holds software installed by dedicated install scripts.
	SectionCustomSoftware Section = "custom_software"

	// SectionPythonPackages holds python packages (pip, pipx or apt).
	SectionPythonPackages Section = "python_packages"

	// SectionPowerShellModules holds PowerShell modules.
	SectionPowerShellModules Section = "powershell_modules"

	// SectionNixPackages holds nix flakes and packages.
	SectionNixPackages Section = "nix_packages"

	// SectionConfigurations holds post-install configuration scripts.
	SectionConfigurations Section = "configurations"
)

// sectionOrder is the only order in which sections are ever processed.
var sectionOrder = []Section{
	SectionPrerequisites,
	SectionAptPackages,
	SectionShellSetup,
	SectionCustomSoftware,
	SectionPythonPackages,
	SectionPowerShellModules,
	SectionNixPackages,
	SectionConfigurations,
}

// Sections returns the fixed section order. The returned slice is a copy.
func Sections() []Section {
	out := make([]Section, len(sectionOrder))
	copy(out, sectionOrder)
	return out
}

// Validate checks if the section name is one of the known sections.
func (s Section) Validate() error {
	for _, known := range sectionOrder {
		if s == known {
			return nil
		}
	}
	return NewPermanentError("unknown section "+string(s), nil).WithCode(ErrCodeValidation)
}

// ParseSections parses a comma separated section list. Blank items are ignored.
func ParseSections(list string) ([]Section, error) {
	var out []Section
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		s := Section(item)
		if err := s.Validate(); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// InstallMethod selects the python sub-strategy.
type InstallMethod string

const (
	InstallMethodPip  InstallMethod = "pip"
	InstallMethodPipx InstallMethod = "pipx"
	InstallMethodApt  InstallMethod = "apt"
)

// NixKind distinguishes flake installs from discrete nixpkgs packages.
type NixKind string

const (
	NixKindFlake   NixKind = "flake"
	NixKindPackage NixKind = "package"
)

// ScriptKind tags a ScriptRef.
type ScriptKind string

const (
	ScriptKindPath   ScriptKind = "path"
	ScriptKindInline ScriptKind = "inline"
)

// ScriptRef is either a path to an executable file or an inline script body.
// The kind is fixed when the profile is parsed and never re-derived.
type ScriptRef struct {
	Kind  ScriptKind `json:"kind"`
	Value string     `json:"value"`
}

// PathScript returns a ScriptRef pointing at a file.
func PathScript(path string) ScriptRef {
	return ScriptRef{Kind: ScriptKindPath, Value: path}
}

// InlineScript returns a ScriptRef holding an inline body.
func InlineScript(body string) ScriptRef {
	return ScriptRef{Kind: ScriptKindInline, Value: body}
}

// IsZero reports whether no script was given.
func (r ScriptRef) IsZero() bool {
	return r.Value == ""
}

// VersionLatest is the requirement that any installed version satisfies.
const VersionLatest = "latest"

// Entry is one declared unit of installable or configurable work.
type Entry struct {
	// Section is the section the entry belongs to.
	Section Section `json:"section"`

	// Name is unique within the section.
	Name string `json:"name"`

	Description string `json:"description,omitempty"`

	// Version is the required version; empty means latest.
	Version string `json:"version,omitempty"`

	// Enabled is false when the profile switched the entry off.
	Enabled bool `json:"enabled"`

	// Command is the binary an apt package provides, used for verification.
	Command string `json:"command,omitempty"`

	// InstallMethod applies to python packages only.
	InstallMethod InstallMethod `json:"install_method,omitempty"`

	// Script is used by custom_software, shell_setup and configurations.
	Script ScriptRef `json:"script,omitempty"`

	// DependsOn lists names this custom_software entry expects to exist.
	DependsOn []string `json:"depends_on,omitempty"`

	// VersionCommand and VersionFlag drive version discovery.
	VersionCommand string `json:"version_command,omitempty"`
	VersionFlag    string `json:"version_flag,omitempty"`

	// NixKind and FlakeRef apply to nix_packages entries.
	NixKind  NixKind `json:"nix_kind,omitempty"`
	FlakeRef string  `json:"flake_ref,omitempty"`
}

// RequiredVersion returns the version requirement, defaulting to latest.
func (e Entry) RequiredVersion() string {
	if e.Version == "" {
		return VersionLatest
	}
	return e.Version
}

// ID returns "section/name".
func (e Entry) ID() string {
	return string(e.Section) + "/" + e.Name
}

// Metadata describes a profile.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	TargetOS    string `json:"target_os,omitempty"`
	Author      string `json:"author,omitempty"`
	SupportURL  string `json:"support_url,omitempty"`
}

// Settings are the run-wide switches a profile carries.
type Settings struct {
	ContinueOnError     bool   `json:"continue_on_error"`
	UpdatePackages      bool   `json:"update_packages"`
	CleanupAfterInstall bool   `json:"cleanup_after_install"`
	LogLevel            string `json:"log_level"`
	MaxRetries          int    `json:"max_retries"`
}

// DefaultSettings returns the settings used when a profile omits them.
func DefaultSettings() Settings {
	return Settings{
		ContinueOnError: true,
		UpdatePackages:  true,
		LogLevel:        "INFO",
	}
}

// Configuration is a resolved, validated profile.
type Configuration struct {
	Metadata Metadata `json:"metadata"`
	Settings Settings `json:"settings"`

	// Entries holds the entries of each section in declaration order.
	Entries map[Section][]Entry `json:"entries"`
}

// EntriesFor returns the entries declared for a section.
func (c *Configuration) EntriesFor(s Section) []Entry {
	if c == nil || c.Entries == nil {
		return nil
	}
	return c.Entries[s]
}

// RunContext carries the per-invocation switches. It is built once by the
// command layer and passed by value; nothing mutates it during a run.
type RunContext struct {
	RunID           string
	Force           bool
	DryRun          bool
	ContinueOnError bool
	Sections        []Section
	LogLevel        string

	AptUpgrade          bool
	BreakLocks          bool
	UpdatePackages      bool
	CleanupAfterInstall bool
	MaxRetries          int

	// Root is the project root that holds profiles and script directories.
	Root string
}

// Includes reports whether the section filter selects s.
func (rc RunContext) Includes(s Section) bool {
	if len(rc.Sections) == 0 {
		return true
	}
	for _, sel := range rc.Sections {
		if sel == s {
			return true
		}
	}
	return false
}

// ProbeResult is what a backend reports about the current system state.
type ProbeResult struct {
	Installed bool
	// Version is empty when it could not be determined.
	Version string
}

// Outcome is the result of passing one entry through dispatch.
type Outcome struct {
	Section  Section       `json:"section"`
	Entry    string        `json:"entry"`
	Status   Status        `json:"status"`
	Version  string        `json:"version,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Err      *EngineError  `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	// Verification is set when a post-install smoke test failed.
	Verification string `json:"verification,omitempty"`
	// Verified is true when a verifier ran and passed.
	Verified bool `json:"verified,omitempty"`
}

// Succeeded returns a success outcome for e.
func Succeeded(e Entry, version string) Outcome {
	return Outcome{Section: e.Section, Entry: e.Name, Status: StatusSuccess, Version: version}
}

// Failed returns a failure outcome for e carrying err.
func Failed(e Entry, err *EngineError) Outcome {
	o := Outcome{Section: e.Section, Entry: e.Name, Status: StatusFailure, Err: err}
	if err != nil {
		o.Reason = err.WithEntry(e).Error()
	}
	return o
}
