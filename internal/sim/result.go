package sim

import (
	"fmt"

	"github.com/nutrakinetics/nadsim/internal/effect"
)

// Result is the full record of one simulation: the scenario it came
// from, the dense output grid, exposure summaries and the audit trail.
type Result struct {
	Scenario Scenario `json:"scenario"`

	// TimesH is the output grid in hours.
	TimesH []float64 `json:"times_h"`

	// States holds every model state (amounts, umol) on the output grid,
	// keyed by state name.
	States map[string][]float64 `json:"states"`

	// Concentrations holds the observable series in uM for the states
	// that have a defined distribution volume.
	Concentrations map[string][]float64 `json:"concentrations"`

	// Multipliers are the dynamic stack multipliers sampled on the grid.
	MultSynthesis  []float64 `json:"mult_synthesis"`
	MultCD38       []float64 `json:"mult_cd38"`
	MultAbsorption []float64 `json:"mult_absorption"`

	// ProxyUM holds each active supplement's proxy concentration trace.
	ProxyUM map[string][]float64 `json:"proxy_uM"`

	Exposure map[string]Exposure `json:"exposure"`

	AppliedCoefficients []effect.AppliedCoefficient `json:"applied_coefficients"`

	// MaxDriftRelative is the worst relative mass-balance drift seen on
	// the output grid.
	MaxDriftRelative float64 `json:"max_drift_relative"`

	StepsTaken    int  `json:"steps_taken"`
	StepsRejected int  `json:"steps_rejected"`
	Cancelled     bool `json:"cancelled"`

	Warnings []string `json:"warnings"`
}

// Series returns one state trajectory by name.
func (r *Result) Series(name string) ([]float64, error) {
	s, ok := r.States[name]
	if !ok {
		return nil, fmt.Errorf("sim: no state series %q", name)
	}
	return s, nil
}

// ConcentrationSeries returns one observable concentration trace by name.
func (r *Result) ConcentrationSeries(name string) ([]float64, error) {
	s, ok := r.Concentrations[name]
	if !ok {
		return nil, fmt.Errorf("sim: no concentration series %q", name)
	}
	return s, nil
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
