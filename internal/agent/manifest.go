package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chatkit-ai/chatkit/pkg/types"
)

// Manifest is the YAML schema for declarative agent definitions.
type Manifest struct {
	Agents []ManifestAgent `yaml:"agents"`
}

// ManifestAgent describes one agent in a manifest. Handlers are
// attached programmatically after loading.
type ManifestAgent struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Default     bool      `yaml:"default,omitempty"`
	Locations   []string  `yaml:"locations,omitempty"`
	Commands    []Command `yaml:"commands,omitempty"`
}

// LoadManifest reads a YAML manifest file into agent descriptors.
func LoadManifest(path string) ([]*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes manifest YAML into agent descriptors.
func ParseManifest(data []byte) ([]*Agent, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	agents := make([]*Agent, 0, len(m.Agents))
	for i, ma := range m.Agents {
		if ma.ID == "" {
			return nil, fmt.Errorf("manifest agent %d missing id", i)
		}

		a := &Agent{
			ID:          ma.ID,
			Name:        ma.Name,
			Description: ma.Description,
			IsDefault:   ma.Default,
			Commands:    ma.Commands,
		}
		if a.Name == "" {
			a.Name = a.ID
		}
		for _, l := range ma.Locations {
			loc := types.Location(l)
			if !loc.Valid() {
				return nil, fmt.Errorf("manifest agent %s: unknown location %q", ma.ID, l)
			}
			a.Locations = append(a.Locations, loc)
		}
		agents = append(agents, a)
	}

	return agents, nil
}

// RegisterManifest loads a manifest and registers every agent with the
// fallback handler attached where none is set.
func RegisterManifest(reg *Registry, path string, fallback Handler) error {
	agents, err := LoadManifest(path)
	if err != nil {
		return err
	}
	for _, a := range agents {
		if a.Handler == nil {
			a.Handler = fallback
		}
		reg.Register(a)
	}
	return nil
}
