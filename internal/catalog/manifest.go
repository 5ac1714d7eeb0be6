package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is an optional YAML file adding site-specific text-only checks
// on top of the built-in catalog.
type Manifest struct {
	Checks []ManifestCheck `yaml:"checks"`
}

// ManifestCheck is one user-defined check. Query text may use the {_SCHEMA}
// token; it resolves the same way the built-in checks do.
type ManifestCheck struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// LoadManifest reads a YAML manifest and merges its checks into the catalog.
func (c *Catalog) LoadManifest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading checks file: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing checks YAML: %w", err)
	}

	for i, chk := range m.Checks {
		if chk.Name == "" {
			return fmt.Errorf("checks[%d]: name is required", i)
		}
		if chk.Query == "" {
			return fmt.Errorf("checks[%d] (%s): query is required", i, chk.Name)
		}
		if err := c.AddTextOnly(chk.Name, chk.Query); err != nil {
			return fmt.Errorf("checks[%d]: %w", i, err)
		}
	}
	return nil
}
