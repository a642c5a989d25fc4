package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Projects []Project `yaml:"projects"`
}

// LoadSeedFile reads a YAML catalog seed of the form:
//
//	projects:
//	  - id: p-1
//	    name: Emaar Beachfront Tower 1
//	    developer: Emaar
func LoadSeedFile(path string) ([]Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return seed.Projects, nil
}

// ImportSeed upserts every project in the seed file and returns the count.
func (c *CatalogStore) ImportSeed(ctx context.Context, path string) (int, error) {
	projects, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}
	for i, p := range projects {
		if err := c.Upsert(ctx, p); err != nil {
			return i, fmt.Errorf("project %q: %w", p.ID, err)
		}
	}
	return len(projects), nil
}
