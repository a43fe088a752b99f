package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Override renames a device and, optionally, its entities.
type Override struct {
	Name     string            `yaml:"name" json:"name,omitempty"`
	Entities map[string]string `yaml:"entities" json:"entities,omitempty"`
}

// Overrides maps device addresses to display overrides.
//
// File format:
//
//	"0x00158d0001a2b3c4":
//	  name: Hall lamp
//	  entities:
//	    l1: Left bulb
type Overrides map[string]Override

// LoadOverrides reads the YAML overrides file.
//
// Parameters:
//   - path: file location; empty means no overrides
//
// Returns:
//   - Overrides: parsed overrides, empty for an empty path or missing file
//   - error: read failures, or ErrInvalidOverrides for malformed YAML
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Overrides{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading overrides file: %w", err)
	}

	overrides := Overrides{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOverrides, err)
	}
	return overrides, nil
}

// DisplayName returns the override name for a device, or fallback.
func (o Overrides) DisplayName(deviceID, fallback string) string {
	if ov, ok := o[deviceID]; ok && ov.Name != "" {
		return ov.Name
	}
	return fallback
}

// EntityName returns the override name for an entity of a device, or
// fallback.
func (o Overrides) EntityName(deviceID, entityKey, fallback string) string {
	if name := o[deviceID].Entities[entityKey]; name != "" {
		return name
	}
	return fallback
}

// Clone returns an independent copy.
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for id, ov := range o {
		entities := make(map[string]string, len(ov.Entities))
		for k, v := range ov.Entities {
			entities[k] = v
		}
		out[id] = Override{Name: ov.Name, Entities: entities}
	}
	return out
}
