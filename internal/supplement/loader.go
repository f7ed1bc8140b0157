package supplement

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults/supplements.yaml
var defaultsFS embed.FS

type definitionDoc struct {
	ID            string   `yaml:"id"`
	Label         string   `yaml:"label"`
	Enabled       bool     `yaml:"enabled"`
	DefaultDoseMg float64  `yaml:"default_dose_mg"`
	RouteSupport  []string `yaml:"route_support"`
	Mechanism     struct {
		Class string `yaml:"class"`
	} `yaml:"mechanism"`
	PK struct {
		KaPerH        float64 `yaml:"ka_per_h"`
		KelPerH       float64 `yaml:"kel_per_h"`
		ExposureScale float64 `yaml:"exposure_scale"`
	} `yaml:"pk"`
	Dynamics struct {
		EC50uM         float64 `yaml:"ec50_uM"`
		HillN          float64 `yaml:"hill_n"`
		SynthesisGain  float64 `yaml:"synthesis_gain_per_signal"`
		CD38Gain       float64 `yaml:"cd38_effect_per_signal"`
		AbsorptionGain float64 `yaml:"absorption_gain_per_signal"`
	} `yaml:"dynamics"`
	Calibration struct {
		FitEnabled bool    `yaml:"fit_enabled"`
		PriorMean  float64 `yaml:"prior_mean"`
		PriorSD    float64 `yaml:"prior_sd"`
	} `yaml:"calibration"`
	Backend struct {
		InteractionModelReady bool   `yaml:"interaction_model_ready"`
		Notes                 string `yaml:"notes"`
	} `yaml:"backend"`
}

type ruleDoc struct {
	ID          string    `yaml:"id"`
	Supplements []string  `yaml:"supplements"`
	Target      string    `yaml:"target"`
	Kind        string    `yaml:"kind"`
	Coefficient float64   `yaml:"coefficient"`
	Bounds      []float64 `yaml:"bounds"`
	Fit         struct {
		Enabled   bool    `yaml:"enabled"`
		PriorMean float64 `yaml:"prior_mean"`
		PriorSD   float64 `yaml:"prior_sd"`
	} `yaml:"fit"`
	Source struct {
		SourceType string `yaml:"source_type"`
		SourceID   string `yaml:"source_id"`
	} `yaml:"source"`
	Severity string `yaml:"severity"`
	Message  string `yaml:"message"`
}

type registryDoc struct {
	Supplements      []definitionDoc `yaml:"supplements"`
	InteractionRules []ruleDoc       `yaml:"interaction_rules"`
}

// LoadDefault parses the embedded supplement registry.
func LoadDefault() (*Registry, error) {
	data, err := defaultsFS.ReadFile("defaults/supplements.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded registry: %w", err)
	}
	return Parse(data)
}

// LoadFile parses a registry document from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var doc registryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("supplement: parsing registry: %w", err)
	}

	reg := NewRegistry()
	for _, d := range doc.Supplements {
		def := Definition{
			ID:             d.ID,
			Label:          d.Label,
			MechanismClass: d.Mechanism.Class,
			Enabled:        d.Enabled,
			DefaultDoseMg:  d.DefaultDoseMg,
			Routes:         d.RouteSupport,
			KaPerH:         d.PK.KaPerH,
			KelPerH:        d.PK.KelPerH,
			ExposureScale:  d.PK.ExposureScale,
			EC50uM:         d.Dynamics.EC50uM,
			HillN:          d.Dynamics.HillN,
			SynthesisGain:  d.Dynamics.SynthesisGain,
			CD38Gain:       d.Dynamics.CD38Gain,
			AbsorptionGain: d.Dynamics.AbsorptionGain,
			FitEnabled:     d.Calibration.FitEnabled,
			PriorMean:      d.Calibration.PriorMean,
			PriorSD:        d.Calibration.PriorSD,
			ModelReady:     d.Backend.InteractionModelReady,
			Notes:          d.Backend.Notes,
		}
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}

	for _, r := range doc.InteractionRules {
		if len(r.Supplements) != 2 {
			return nil, fmt.Errorf("%w: %q must name exactly two supplements", ErrMalformedRule, r.ID)
		}
		rule := Rule{
			ID:          r.ID,
			Supplements: [2]string{r.Supplements[0], r.Supplements[1]},
			Target:      r.Target,
			Kind:        r.Kind,
			Coefficient: r.Coefficient,
			FitEnabled:  r.Fit.Enabled,
			PriorMean:   r.Fit.PriorMean,
			PriorSD:     r.Fit.PriorSD,
			SourceType:  r.Source.SourceType,
			SourceID:    r.Source.SourceID,
			Severity:    r.Severity,
			Message:     r.Message,
		}
		if len(r.Bounds) == 2 {
			rule.LowerBound, rule.UpperBound = r.Bounds[0], r.Bounds[1]
		}
		if err := reg.AddRule(rule); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
