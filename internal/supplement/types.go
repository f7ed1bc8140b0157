package supplement

// Target rate terms a supplement effect or interaction rule can perturb.
const (
	TargetSynthesis  = "synthesis"
	TargetCD38       = "cd38"
	TargetAbsorption = "absorption"
)

// Interaction kinds. Caution rules are non-quantitative: they surface a
// warning during validation and contribute nothing to the effect engine.
const (
	KindSynergistic  = "synergistic"
	KindAntagonistic = "antagonistic"
	KindCaution      = "caution"
)

// Rule severities used by the stack validator.
const (
	SeverityWarning = "warning"
	SeverityBlock   = "block"
)

// Definition describes one supplement: its proxy PK, its saturating
// mechanism signal, and the per-term gains it applies to the model.
type Definition struct {
	ID             string   `yaml:"id"`
	Label          string   `yaml:"label"`
	MechanismClass string   `yaml:"mechanism_class"`
	Enabled        bool     `yaml:"enabled"`
	DefaultDoseMg  float64  `yaml:"default_dose_mg"`
	Routes         []string `yaml:"route_support"`

	// Proxy PK: single-compartment first-order in / first-order out.
	KaPerH        float64 `yaml:"ka_per_h"`
	KelPerH       float64 `yaml:"kel_per_h"`
	ExposureScale float64 `yaml:"exposure_scale"`

	// Saturating mechanism signal.
	EC50uM float64 `yaml:"ec50_uM"`
	HillN  float64 `yaml:"hill_n"`

	// Per-term effect gains applied to the saturated signal.
	SynthesisGain  float64 `yaml:"synthesis_gain"`
	CD38Gain       float64 `yaml:"cd38_gain"`
	AbsorptionGain float64 `yaml:"absorption_gain"`

	FitEnabled bool    `yaml:"fit_enabled"`
	PriorMean  float64 `yaml:"prior_mean"`
	PriorSD    float64 `yaml:"prior_sd"`

	ModelReady bool   `yaml:"interaction_model_ready"`
	Notes      string `yaml:"notes"`
}

func (d Definition) SupportsRoute(route string) bool {
	for _, r := range d.Routes {
		if r == route {
			return true
		}
	}
	return false
}

// Rule is a pairwise interaction between two supplements on one target
// term. Antagonistic coefficients are negative, synergistic positive.
type Rule struct {
	ID          string    `yaml:"id"`
	Supplements [2]string `yaml:"-"`
	Target      string    `yaml:"target"`
	Kind        string    `yaml:"kind"`
	Coefficient float64   `yaml:"coefficient"`
	LowerBound  float64   `yaml:"lower_bound"`
	UpperBound  float64   `yaml:"upper_bound"`

	FitEnabled bool    `yaml:"fit_enabled"`
	PriorMean  float64 `yaml:"prior_mean"`
	PriorSD    float64 `yaml:"prior_sd"`

	SourceType string `yaml:"source_type"`
	SourceID   string `yaml:"source_id"`
	Severity   string `yaml:"severity"`
	Message    string `yaml:"message"`
}

// Pair returns the rule's supplement pair in canonical (sorted) order so
// rule lookup never depends on selection ordering.
func (r Rule) Pair() (string, string) {
	a, b := r.Supplements[0], r.Supplements[1]
	if b < a {
		a, b = b, a
	}
	return a, b
}

// Matches reports whether both of the rule's supplements are in the set.
func (r Rule) Matches(selected map[string]bool) bool {
	return selected[r.Supplements[0]] && selected[r.Supplements[1]]
}

// ClampCoefficient clips a candidate coefficient to the rule's bounds.
func (r Rule) ClampCoefficient(c float64) float64 {
	if c < r.LowerBound {
		return r.LowerBound
	}
	if c > r.UpperBound {
		return r.UpperBound
	}
	return c
}
