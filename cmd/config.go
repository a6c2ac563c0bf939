package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig holds the demo exchange configuration, loadable from a YAML
// file. Zero values fall back to the CLI flag defaults.
type RunConfig struct {
	GlobalGrid  [3]int  `yaml:"global_grid"`  // full lattice extents
	RankGrid    [3]int  `yaml:"rank_grid"`    // process decomposition
	Periodic    [3]bool `yaml:"periodic"`     // wraparound per axis
	Halo        int     `yaml:"halo"`         // halo width in sites
	FieldValues int     `yaml:"field_values"` // float64 values per lattice site
}

// LoadRunConfig reads and parses a YAML run configuration file.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}
	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing run config: %w", err)
	}
	return &cfg, nil
}

// Validate checks parameter ranges before any rank is started. Geometry
// consistency (divisibility, halo vs local extent) is validated again by
// lattice.New; this catches plainly unusable inputs with better messages.
func (c *RunConfig) Validate() error {
	for d := 0; d < 3; d++ {
		if c.GlobalGrid[d] < 1 {
			return fmt.Errorf("global_grid[%d] must be positive, got %d", d, c.GlobalGrid[d])
		}
		if c.RankGrid[d] < 1 {
			return fmt.Errorf("rank_grid[%d] must be positive, got %d", d, c.RankGrid[d])
		}
	}
	if c.Halo < 1 {
		return fmt.Errorf("halo must be at least 1, got %d", c.Halo)
	}
	if c.FieldValues < 1 {
		return fmt.Errorf("field_values must be at least 1, got %d", c.FieldValues)
	}
	return nil
}

// Ranks returns the total rank count of the configured decomposition.
func (c *RunConfig) Ranks() int {
	return c.RankGrid[0] * c.RankGrid[1] * c.RankGrid[2]
}
