// Package template holds the framework presets used to fill out deploy
// payloads: the config files synthesized when a project does not provide
// them, and the provider build settings sent alongside.
package template

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openpreview/openpreview/pkg/types"
)

// DefaultPreset is the framework assumed when a thread never picked one.
const DefaultPreset = "nextjs"

// Preset describes one deployable framework flavor.
type Preset struct {
	Name         string
	DisplayName  string
	DefaultFiles map[string]string // project-relative path -> content
	Settings     types.ProjectSettings
}

// Registry stores framework presets in-memory.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]*Preset
}

// NewRegistry creates a registry seeded with the built-in presets.
func NewRegistry() *Registry {
	r := &Registry{
		presets: make(map[string]*Preset),
	}

	r.presets["nextjs"] = &Preset{
		Name:        "nextjs",
		DisplayName: "Next.js",
		DefaultFiles: map[string]string{
			"package.json":       nextPackageJSON,
			"tsconfig.json":      nextTSConfig,
			"next.config.js":     nextConfigJS,
			"tailwind.config.ts": nextTailwindConfig,
		},
		Settings: types.ProjectSettings{
			Framework: "nextjs",
		},
	}
	r.presets["vite"] = &Preset{
		Name:        "vite",
		DisplayName: "Vite + React",
		DefaultFiles: map[string]string{
			"package.json":       vitePackageJSON,
			"tsconfig.json":      viteTSConfig,
			"vite.config.ts":     viteConfigTS,
			"tailwind.config.ts": viteTailwindConfig,
		},
		Settings: types.ProjectSettings{
			Framework:       "vite",
			OutputDirectory: "dist",
		},
	}

	return r
}

// Get returns a preset by name.
func (r *Registry) Get(name string) (*Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.presets[name]
	if !ok {
		return nil, fmt.Errorf("framework preset %q not found", name)
	}
	return p, nil
}

// List returns all presets as wire descriptors, sorted by name.
func (r *Registry) List() []types.FrameworkInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]types.FrameworkInfo, 0, len(r.presets))
	for _, p := range r.presets {
		result = append(result, types.FrameworkInfo{
			Name:        p.Name,
			DisplayName: p.DisplayName,
			Default:     p.Name == DefaultPreset,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Register adds or updates a preset.
func (r *Registry) Register(p *Preset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[p.Name] = p
}

// Delete removes a preset by name.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == DefaultPreset {
		return fmt.Errorf("framework preset %q cannot be deleted", name)
	}
	if _, ok := r.presets[name]; !ok {
		return fmt.Errorf("framework preset %q not found", name)
	}
	delete(r.presets, name)
	return nil
}
