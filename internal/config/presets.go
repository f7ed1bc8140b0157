package config

import (
	"sort"

	"github.com/nutrakinetics/nadsim/internal/sim"
)

type presetFn func(sc *sim.Scenario)

// presets are named starting points; each gets a fresh scenario identity
// when requested.
var presets = map[string]presetFn{
	"nr_oral_500": func(sc *sim.Scenario) {
		sc.Label = "NR 500 mg oral, immediate release"
		sc.Compound = sim.CompoundNR
		sc.DoseMg = 500
	},
	"nr_er_500": func(sc *sim.Scenario) {
		sc.Label = "NR 500 mg oral, extended release"
		sc.Compound = sim.CompoundNR
		sc.Formulation = "ER"
		sc.DoseMg = 500
	},
	"nmn_oral_300": func(sc *sim.Scenario) {
		sc.Label = "NMN 300 mg oral"
		sc.Compound = sim.CompoundNMN
		sc.DoseMg = 300
	},
	"iv_nad_250": func(sc *sim.Scenario) {
		sc.Label = "NAD+ 250 mg iv over 2 h"
		sc.Route = "iv"
		sc.Compound = sim.CompoundNAD
		sc.Formulation = ""
		sc.DoseMg = 250
		sc.InfusionDurationH = 2
		sc.HorizonH = 12
	},
	"nr_piperine": func(sc *sim.Scenario) {
		sc.Label = "NR 300 mg with piperine bioenhancer"
		sc.Compound = sim.CompoundNR
		sc.DoseMg = 300
		sc.Supplements = []string{"nr", "piperine"}
		sc.SupplementDoses = map[string]float64{"nr": 300, "piperine": 10}
	},
	"senior_nr_1000": func(sc *sim.Scenario) {
		sc.Label = "NR 1000 mg oral, age 70"
		sc.Compound = sim.CompoundNR
		sc.DoseMg = 1000
		sc.AgeYears = 70
		sc.HorizonH = 48
	},
}

// GetPreset returns a fresh scenario initialized from the named preset,
// or false when the name is unknown.
func GetPreset(name string) (sim.Scenario, bool) {
	fn, ok := presets[name]
	if !ok {
		return sim.Scenario{}, false
	}
	sc := sim.NewScenario()
	fn(&sc)
	return sc, true
}

// ListPresets returns the preset names, sorted.
func ListPresets() []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
