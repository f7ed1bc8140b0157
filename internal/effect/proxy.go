package effect

import (
	"math"

	"github.com/nutrakinetics/nadsim/internal/supplement"
)

// ProxyModel produces a supplement's proxy concentration at an arbitrary
// time. Implementations must be pure functions of (dose, t) so the ODE
// integrator can evaluate them at non-uniform internal steps. Replacing a
// proxy with a compound-specific model requires no change downstream.
type ProxyModel interface {
	ConcentrationAt(doseMg, t float64) float64
}

// Safeguards are the numeric floors applied before evaluating proxies and
// Hill signals.
type Safeguards struct {
	EC50MinUM   float64
	HillMin     float64
	KaMinPerH   float64
	KelMinPerH  float64
	KaKelTol    float64
	KaKelAdjust float64
}

// FirstOrderProxy is the default single-compartment absorption/elimination
// proxy: first-order in, first-order out (Bateman form). Intentionally
// coarse, pending compound-specific PK modules.
type FirstOrderProxy struct {
	ka    float64
	kel   float64
	scale float64
}

func NewFirstOrderProxy(def supplement.Definition, sg Safeguards) *FirstOrderProxy {
	ka := math.Max(def.KaPerH, sg.KaMinPerH)
	kel := math.Max(def.KelPerH, sg.KelMinPerH)
	// The Bateman form degenerates when ka == kel; nudge kel instead.
	if math.Abs(ka-kel) < sg.KaKelTol {
		kel = ka * sg.KaKelAdjust
	}
	return &FirstOrderProxy{ka: ka, kel: kel, scale: def.ExposureScale}
}

func (p *FirstOrderProxy) ConcentrationAt(doseMg, t float64) float64 {
	if t < 0 || doseMg <= 0 {
		return 0
	}
	c := p.scale * doseMg * (math.Exp(-p.kel*t) - math.Exp(-p.ka*t))
	if c < 0 {
		return 0
	}
	return c
}

// hillSignal maps a concentration onto [0, 1] through Hill saturation.
func hillSignal(conc, ec50, hill float64) float64 {
	if conc <= 0 {
		return 0
	}
	num := math.Pow(conc, hill)
	den := math.Pow(ec50, hill) + num
	if den <= 0 {
		return 0
	}
	s := num / den
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
