package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/andresrocksuk/devbox/pkg/engine"
)

// entryNamePattern keeps names safe to pass to package managers and shells.
var entryNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+@:-]*$`)

// Loader parses and validates YAML profiles into engine configurations.
type Loader struct {
	validator *validator.Validate
}

// NewLoader creates a loader with the profile validation rules registered.
func NewLoader() *Loader {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("entryname", func(fl validator.FieldLevel) bool {
		return entryNamePattern.MatchString(fl.Field().String())
	})
	return &Loader{validator: v}
}

// LoadFile reads and parses a profile from disk.
func (l *Loader) LoadFile(path string) (*engine.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile %s: %w", path, err)
	}
	return l.Parse(data)
}

// Parse decodes, validates and converts a YAML profile.
func (l *Loader) Parse(data []byte) (*engine.Configuration, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, validationError("profile is empty", nil)
		}
		return nil, validationError("invalid YAML", err)
	}

	if err := l.validator.Struct(&f); err != nil {
		return nil, validationError("profile failed validation", formatValidation(err))
	}

	cfg, err := f.toConfiguration()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func validationError(msg string, err error) *engine.EngineError {
	return engine.NewPermanentError(msg, err).WithCode(engine.ErrCodeValidation)
}

// formatValidation flattens validator errors into one readable error.
func formatValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "File.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %q)", field, fe.Tag(), fe.Param(), fmt.Sprint(fe.Value())))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %q)", field, fe.Tag(), fmt.Sprint(fe.Value())))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func enabled(b *bool) bool {
	return b == nil || *b
}

// sectionBuilder collects entries for one section and rejects duplicate names.
type sectionBuilder struct {
	section engine.Section
	entries []engine.Entry
	seen    map[string]bool
}

func newSectionBuilder(s engine.Section) *sectionBuilder {
	return &sectionBuilder{section: s, seen: make(map[string]bool)}
}

func (b *sectionBuilder) add(e engine.Entry) error {
	if b.seen[e.Name] {
		return validationError(fmt.Sprintf("duplicate entry %q in section %s", e.Name, b.section), nil)
	}
	b.seen[e.Name] = true
	e.Section = b.section
	b.entries = append(b.entries, e)
	return nil
}

func (f *File) toConfiguration() (*engine.Configuration, error) {
	cfg := &engine.Configuration{
		Metadata: engine.Metadata{
			Name:        f.Metadata.Name,
			Description: f.Metadata.Description,
			Version:     f.Metadata.Version,
			TargetOS:    f.Metadata.TargetOS,
			Author:      f.Metadata.Author,
			SupportURL:  f.Metadata.SupportURL,
		},
		Settings: engine.DefaultSettings(),
		Entries:  make(map[engine.Section][]engine.Entry),
	}

	s := f.Settings
	if s.ContinueOnError != nil {
		cfg.Settings.ContinueOnError = *s.ContinueOnError
	}
	if s.UpdatePackages != nil {
		cfg.Settings.UpdatePackages = *s.UpdatePackages
	}
	cfg.Settings.CleanupAfterInstall = s.CleanupAfterInstall
	cfg.Settings.MaxRetries = s.MaxRetries
	if s.LogLevel != "" {
		cfg.Settings.LogLevel = strings.ToUpper(s.LogLevel)
	}

	builders := make(map[engine.Section]*sectionBuilder)
	for _, sec := range engine.Sections() {
		builders[sec] = newSectionBuilder(sec)
	}

	var errs []error
	add := func(sec engine.Section, e engine.Entry) {
		if err := builders[sec].add(e); err != nil {
			errs = append(errs, err)
		}
	}

	for _, p := range f.Prerequisites {
		add(engine.SectionPrerequisites, p.entry())
	}
	for _, p := range f.AptPackages {
		add(engine.SectionAptPackages, p.entry())
	}
	for _, sc := range f.ShellSetup {
		if sc.Script.IsZero() {
			errs = append(errs, validationError(fmt.Sprintf("shell_setup entry %q has no script", sc.Name), nil))
			continue
		}
		add(engine.SectionShellSetup, sc.entry())
	}
	for _, c := range f.CustomSoftware {
		add(engine.SectionCustomSoftware, engine.Entry{
			Name:           c.Name,
			Version:        c.Version,
			Description:    c.Description,
			Enabled:        enabled(c.Enabled),
			Script:         c.Script.ScriptRef,
			DependsOn:      c.DependsOn,
			VersionCommand: c.VersionCommand,
			VersionFlag:    c.VersionFlag,
		})
	}
	for _, p := range f.PythonPackages {
		m := engine.InstallMethod(p.InstallMethod)
		if m == "" {
			m = engine.InstallMethodPipx
		}
		add(engine.SectionPythonPackages, engine.Entry{
			Name:          p.Name,
			Version:       p.Version,
			Description:   p.Description,
			Enabled:       enabled(p.Enabled),
			InstallMethod: m,
		})
	}
	for _, m := range f.PowerShellModules {
		add(engine.SectionPowerShellModules, engine.Entry{
			Name:        m.Name,
			Version:     m.Version,
			Description: m.Description,
			Enabled:     enabled(m.Enabled),
		})
	}
	for _, blk := range f.NixPackages {
		switch {
		case blk.Flake != nil:
			add(engine.SectionNixPackages, engine.Entry{
				Name:        blk.Flake.Name,
				Description: blk.Flake.Description,
				Enabled:     enabled(blk.Flake.Enabled),
				NixKind:     engine.NixKindFlake,
				FlakeRef:    blk.Flake.URL,
			})
		case blk.Packages != nil:
			// a disabled block disables every item in it
			blockOn := enabled(blk.Packages.Enabled)
			for _, it := range blk.Packages.Items {
				add(engine.SectionNixPackages, engine.Entry{
					Name:        it.Name,
					Version:     it.Version,
					Description: it.Description,
					Enabled:     blockOn && enabled(it.Enabled),
					NixKind:     engine.NixKindPackage,
				})
			}
		}
	}
	for _, sc := range f.Configurations {
		if sc.Script.IsZero() {
			errs = append(errs, validationError(fmt.Sprintf("configurations entry %q has no script", sc.Name), nil))
			continue
		}
		add(engine.SectionConfigurations, sc.entry())
	}

	if len(errs) > 0 {
		return nil, validationError("profile failed validation", errors.Join(errs...))
	}

	for sec, b := range builders {
		if len(b.entries) > 0 {
			cfg.Entries[sec] = b.entries
		}
	}
	return cfg, nil
}

func (p PackageConfig) entry() engine.Entry {
	return engine.Entry{
		Name:        p.Name,
		Version:     p.Version,
		Description: p.Description,
		Command:     p.Command,
		Enabled:     enabled(p.Enabled),
	}
}

func (sc ScriptConfig) entry() engine.Entry {
	return engine.Entry{
		Name:        sc.Name,
		Description: sc.Description,
		Enabled:     enabled(sc.Enabled),
		Script:      sc.Script.ScriptRef,
	}
}
