// Package config loads and saves scenario files, and ships named preset
// scenarios for common dosing experiments.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nutrakinetics/nadsim/internal/sim"
)

// Load reads a scenario file. Fields absent from the file keep the
// NewScenario defaults, so minimal files stay valid.
func Load(path string) (sim.Scenario, error) {
	sc := sim.NewScenario()
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, err
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("parsing %s: %w", path, err)
	}
	return sc, nil
}

// Save writes a scenario file.
func Save(path string, sc sim.Scenario) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
