package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

// File is the on-disk YAML profile.
type File struct {
	Metadata MetadataConfig `yaml:"metadata"`
	Settings SettingsConfig `yaml:"settings"`

	Prerequisites     []PackageConfig          `yaml:"prerequisites" validate:"dive"`
	AptPackages       []PackageConfig          `yaml:"apt_packages" validate:"dive"`
	ShellSetup        []ScriptConfig           `yaml:"shell_setup" validate:"dive"`
	CustomSoftware    []CustomSoftwareConfig   `yaml:"custom_software" validate:"dive"`
	PythonPackages    []PythonPackageConfig    `yaml:"python_packages" validate:"dive"`
	PowerShellModules []PowerShellModuleConfig `yaml:"powershell_modules" validate:"dive"`
	NixPackages       []NixBlock               `yaml:"nix_packages" validate:"dive"`
	Configurations    []ScriptConfig           `yaml:"configurations" validate:"dive"`
}

// MetadataConfig describes the profile.
type MetadataConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	TargetOS    string `yaml:"target_os"`
	Author      string `yaml:"author"`
	SupportURL  string `yaml:"support_url" validate:"omitempty,url"`
}

// SettingsConfig holds run-wide switches. Pointers distinguish "unset" from false.
type SettingsConfig struct {
	ContinueOnError     *bool  `yaml:"continue_on_error"`
	UpdatePackages      *bool  `yaml:"update_packages"`
	CleanupAfterInstall bool   `yaml:"cleanup_after_install"`
	LogLevel            string `yaml:"log_level" validate:"omitempty,oneof=DEBUG INFO WARN WARNING ERROR debug info warn warning error"`
	MaxRetries          int    `yaml:"max_retries" validate:"min=0,max=10"`
}

// PackageConfig is an apt_packages or prerequisites entry.
type PackageConfig struct {
	Name        string `yaml:"name" validate:"required,entryname"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Command     string `yaml:"command" validate:"omitempty,entryname"`
	Enabled     *bool  `yaml:"enabled"`
}

// ScriptConfig is a shell_setup or configurations entry.
type ScriptConfig struct {
	Name        string    `yaml:"name" validate:"required"`
	Description string    `yaml:"description"`
	Enabled     *bool     `yaml:"enabled"`
	Script      ScriptRef `yaml:"script"`
}

// CustomSoftwareConfig is a custom_software entry.
type CustomSoftwareConfig struct {
	Name           string    `yaml:"name" validate:"required,entryname"`
	Version        string    `yaml:"version"`
	Description    string    `yaml:"description"`
	Enabled        *bool     `yaml:"enabled"`
	Script         ScriptRef `yaml:"script"`
	DependsOn      []string  `yaml:"depends_on" validate:"dive,required"`
	VersionCommand string    `yaml:"version_command" validate:"omitempty,entryname"`
	VersionFlag    string    `yaml:"version_flag"`
}

// PythonPackageConfig is a python_packages entry.
type PythonPackageConfig struct {
	Name          string `yaml:"name" validate:"required,entryname"`
	Version       string `yaml:"version"`
	Description   string `yaml:"description"`
	Enabled       *bool  `yaml:"enabled"`
	InstallMethod string `yaml:"install_method" validate:"omitempty,oneof=pip pipx apt"`
}

// PowerShellModuleConfig is a powershell_modules entry.
type PowerShellModuleConfig struct {
	Name        string `yaml:"name" validate:"required,entryname"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

// NixBlock is one item of nix_packages: exactly one of flake or packages.
type NixBlock struct {
	Flake    *NixFlakeConfig    `yaml:"flake"`
	Packages *NixPackagesConfig `yaml:"packages"`
}

// NixFlakeConfig installs a flake reference.
type NixFlakeConfig struct {
	Name        string `yaml:"name" validate:"required,entryname"`
	URL         string `yaml:"url" validate:"required"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

// NixPackagesConfig installs discrete nixpkgs packages.
type NixPackagesConfig struct {
	Enabled *bool            `yaml:"enabled"`
	Items   []NixPackageItem `yaml:"items" validate:"dive"`
}

// NixPackageItem is one nixpkgs attribute.
type NixPackageItem struct {
	Name        string `yaml:"name" validate:"required,entryname"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"`
}

// UnmarshalYAML rejects blocks that are neither or both kinds.
func (b *NixBlock) UnmarshalYAML(node *yaml.Node) error {
	type plain NixBlock
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	switch {
	case p.Flake == nil && p.Packages == nil:
		return fmt.Errorf("line %d: nix_packages item must have a flake or packages block", node.Line)
	case p.Flake != nil && p.Packages != nil:
		return fmt.Errorf("line %d: nix_packages item cannot have both flake and packages", node.Line)
	}
	*b = NixBlock(p)
	return nil
}

// ScriptRef is the YAML form of engine.ScriptRef. A mapping {path: ...} or
// {inline: ...} is explicit; a plain string is inline iff it spans lines.
type ScriptRef struct {
	engine.ScriptRef
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *ScriptRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		if strings.Contains(v, "\n") {
			s.ScriptRef = engine.InlineScript(v)
		} else {
			s.ScriptRef = engine.PathScript(strings.TrimSpace(v))
		}
		return nil

	case yaml.MappingNode:
		var m struct {
			Path   string `yaml:"path"`
			Inline string `yaml:"inline"`
		}
		if err := node.Decode(&m); err != nil {
			return err
		}
		switch {
		case m.Path != "" && m.Inline != "":
			return fmt.Errorf("line %d: script cannot have both path and inline", node.Line)
		case m.Path != "":
			s.ScriptRef = engine.PathScript(m.Path)
		case m.Inline != "":
			s.ScriptRef = engine.InlineScript(m.Inline)
		default:
			return fmt.Errorf("line %d: script mapping needs path or inline", node.Line)
		}
		return nil

	default:
		return fmt.Errorf("line %d: script must be a string or a {path|inline} mapping", node.Line)
	}
}
