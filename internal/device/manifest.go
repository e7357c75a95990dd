package device

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadManifest reads and validates a manifest file.
//
// Parameters:
//   - path: Path to the YAML manifest
//
// Returns:
//   - []Definition: Definitions in discovery order
//   - error: If the file cannot be read or is invalid
func LoadManifest(path string) ([]Definition, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path from operator config
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) ([]Definition, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := Validate(m.Devices); err != nil {
		return nil, err
	}
	return m.Devices, nil
}
