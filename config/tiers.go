// config/tiers.go
package config

import (
	"fmt"
	"os"

	"lumiere-backend/services"

	"gopkg.in/yaml.v3"
)

type tiersFile struct {
	Tiers []services.TierDefinition `yaml:"tiers"`
}

// LoadTiers builds the tier table from a YAML file, or the built-in table when
// path is empty.
//
//	tiers:
//	  - level: 1
//	    min_points: 0
//	    max_points: 999
//	    title: Iniciante
//	    perks: ["..."]
func LoadTiers(path string) (*services.TierTable, error) {
	if path == "" {
		return services.NewTierTable(services.DefaultTiers)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tiers file: %w", err)
	}
	return ParseTiers(content)
}

// ParseTiers decodes and validates a YAML tier table.
func ParseTiers(content []byte) (*services.TierTable, error) {
	var f tiersFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("parse tiers file: %w", err)
	}
	return services.NewTierTable(f.Tiers)
}
