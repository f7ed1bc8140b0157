package effect

import (
	"math"
	"sort"

	"github.com/nutrakinetics/nadsim/internal/params"
	"github.com/nutrakinetics/nadsim/internal/supplement"
)

// TermSet carries one value per perturbable rate term.
type TermSet struct {
	Synthesis  float64 `json:"synthesis"`
	CD38       float64 `json:"cd38"`
	Absorption float64 `json:"absorption"`
}

// Bounds are the shared hard clamp applied to every multiplier.
type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) clamp(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// AppliedCoefficient records which coefficient actually drove a rule,
// tagged default versus override.
type AppliedCoefficient struct {
	RuleID      string  `json:"rule_id"`
	Coefficient float64 `json:"coefficient"`
	Overridden  bool    `json:"overridden"`
}

type activeSupplement struct {
	def         supplement.Definition
	doseMg      float64
	proxy       ProxyModel
	classScalar float64
}

type appliedRule struct {
	rule        supplement.Rule
	coefficient float64
	overridden  bool
}

// Engine converts the active stack into bounded multiplicative modifiers
// on the synthesis, CD38 and absorption rate terms. It is a pure function
// of time once built, so the integrator may query it at any t.
type Engine struct {
	supps  []activeSupplement
	rules  []appliedRule
	bounds Bounds
	sg     Safeguards
}

// Config assembles an Engine for one validated stack.
type Config struct {
	Definitions []supplement.Definition
	DosesMg     map[string]float64
	Rules       []supplement.Rule
	// Overrides replaces rule coefficients by rule id (clipped to the
	// rule's own bounds). Used by calibration trial vectors.
	Overrides    map[string]float64
	ClassScalars map[string]float64
	Bounds       Bounds
	Safeguards   Safeguards
	// Proxies optionally swaps the PK proxy per supplement id; absent
	// entries fall back to the first-order default.
	Proxies map[string]ProxyModel
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{bounds: cfg.Bounds, sg: cfg.Safeguards}

	defs := append([]supplement.Definition(nil), cfg.Definitions...)
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })

	for _, def := range defs {
		dose := def.DefaultDoseMg
		if d, ok := cfg.DosesMg[def.ID]; ok {
			dose = d
		}
		scalar := 1.0
		if s, ok := cfg.ClassScalars[def.MechanismClass]; ok {
			scalar = s
		}
		proxy, ok := cfg.Proxies[def.ID]
		if !ok {
			proxy = NewFirstOrderProxy(def, cfg.Safeguards)
		}
		e.supps = append(e.supps, activeSupplement{
			def:         def,
			doseMg:      dose,
			proxy:       proxy,
			classScalar: scalar,
		})
	}

	rules := append([]supplement.Rule(nil), cfg.Rules...)
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	for _, rule := range rules {
		if rule.Kind == supplement.KindCaution {
			continue
		}
		coeff := rule.Coefficient
		overridden := false
		if c, ok := cfg.Overrides[rule.ID]; ok {
			coeff = rule.ClampCoefficient(c)
			overridden = true
		}
		e.rules = append(e.rules, appliedRule{rule: rule, coefficient: coeff, overridden: overridden})
	}

	return e
}

// signals evaluates every active supplement's saturated mechanism signal.
func (e *Engine) signals(t float64) map[string]float64 {
	out := make(map[string]float64, len(e.supps))
	for _, s := range e.supps {
		conc := s.proxy.ConcentrationAt(s.doseMg, t)
		ec50 := math.Max(s.def.EC50uM, e.sg.EC50MinUM)
		hill := math.Max(s.def.HillN, e.sg.HillMin)
		out[s.def.ID] = hillSignal(conc, ec50, hill)
	}
	return out
}

// Effects returns the aggregate per-term effect (pre-clamp, additive in
// effect space) at time t.
func (e *Engine) Effects(t float64) TermSet {
	sig := e.signals(t)

	var agg TermSet
	for _, s := range e.supps {
		sv := sig[s.def.ID] * s.classScalar
		agg.Synthesis += s.def.SynthesisGain * sv
		agg.CD38 += s.def.CD38Gain * sv
		agg.Absorption += s.def.AbsorptionGain * sv
	}

	for _, ar := range e.rules {
		si := sig[ar.rule.Supplements[0]]
		sj := sig[ar.rule.Supplements[1]]
		// Symmetric pairwise signal: geometric mean keeps the adjustment
		// within the [0, 1] range of the individual signals.
		pair := math.Sqrt(si * sj)
		adj := ar.coefficient * pair

		switch ar.rule.Target {
		case supplement.TargetSynthesis:
			agg.Synthesis += adj
		case supplement.TargetCD38:
			agg.CD38 += adj
		case supplement.TargetAbsorption:
			agg.Absorption += adj
		}
	}
	return agg
}

// Multipliers converts aggregate effects into hard-clamped ODE rate
// multipliers at time t.
func (e *Engine) Multipliers(t float64) TermSet {
	agg := e.Effects(t)
	return TermSet{
		Synthesis:  e.bounds.clamp(1 + agg.Synthesis),
		CD38:       e.bounds.clamp(1 + agg.CD38),
		Absorption: e.bounds.clamp(1 + agg.Absorption),
	}
}

// ProxyConcentration exposes a supplement's proxy trace for reporting.
func (e *Engine) ProxyConcentration(id string, t float64) float64 {
	for _, s := range e.supps {
		if s.def.ID == id {
			return s.proxy.ConcentrationAt(s.doseMg, t)
		}
	}
	return 0
}

// ActiveIDs lists the stacked supplement ids in canonical order.
func (e *Engine) ActiveIDs() []string {
	out := make([]string, len(e.supps))
	for i, s := range e.supps {
		out[i] = s.def.ID
	}
	return out
}

// AppliedCoefficients reports each quantitative rule's effective
// coefficient for result provenance.
func (e *Engine) AppliedCoefficients() []AppliedCoefficient {
	out := make([]AppliedCoefficient, len(e.rules))
	for i, ar := range e.rules {
		out[i] = AppliedCoefficient{
			RuleID:      ar.rule.ID,
			Coefficient: ar.coefficient,
			Overridden:  ar.overridden,
		}
	}
	return out
}

// SettingsFromCatalog reads the clamp bounds, numeric safeguards and
// mechanism-class scalars the engine needs. Missing keys are a fatal
// configuration error.
func SettingsFromCatalog(c params.Catalog) (Bounds, Safeguards, map[string]float64, error) {
	v := params.NewView(c)
	bounds := Bounds{
		Min: v.Float("effect.bounds.multiplier_min"),
		Max: v.Float("effect.bounds.multiplier_max"),
	}
	sg := Safeguards{
		EC50MinUM:   v.Float("safeguards.ec50_min_uM"),
		HillMin:     v.Float("safeguards.hill_min"),
		KaMinPerH:   v.Float("safeguards.ka_min_per_h"),
		KelMinPerH:  v.Float("safeguards.kel_min_per_h"),
		KaKelTol:    v.Float("safeguards.ka_kel_equal_tolerance"),
		KaKelAdjust: v.Float("safeguards.ka_kel_adjustment_factor"),
	}
	if err := v.Err(); err != nil {
		return Bounds{}, Safeguards{}, nil, err
	}

	scalars := make(map[string]float64)
	for _, rec := range c.Namespace("effect.class_scalars.") {
		scalars[rec.Key[len("effect.class_scalars."):]] = rec.Value
	}
	return bounds, sg, scalars, nil
}
