package engine

import (
	"fmt"
	"sync"
)

// Registry maps sections to the backend that handles them.
// It is populated once at startup; lookups are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	installers map[Section]Installer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		installers: make(map[Section]Installer),
	}
}

// Register binds an installer to a section. Registering a section twice is an error.
func (r *Registry) Register(section Section, installer Installer) error {
	if err := section.Validate(); err != nil {
		return err
	}
	if installer == nil {
		return fmt.Errorf("nil installer for section %s", section)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.installers[section]; exists {
		return fmt.Errorf("section %s already has an installer", section)
	}
	r.installers[section] = installer
	return nil
}

// Get returns the installer for a section.
func (r *Registry) Get(section Section) (Installer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.installers[section]
	if !ok {
		return nil, NewPermanentError("no installer registered for section "+string(section), nil).
			WithCode(ErrCodeNoBackend)
	}
	return inst, nil
}

// Unique returns every distinct installer in section order. Backends shared by
// several sections appear once, so Prepare and Finalize run once per backend.
func (r *Registry) Unique(sections []Section) []Installer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Installer]bool)
	var out []Installer
	for _, s := range sections {
		inst, ok := r.installers[s]
		if !ok || seen[inst] {
			continue
		}
		seen[inst] = true
		out = append(out, inst)
	}
	return out
}
