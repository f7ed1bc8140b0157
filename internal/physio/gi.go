package physio

import (
	"fmt"
	"math"

	"github.com/nutrakinetics/nadsim/internal/effect"
	"github.com/nutrakinetics/nadsim/internal/integrators"
	"github.com/nutrakinetics/nadsim/internal/params"
)

const giSegments = 3

// GIBlock models the oral drug product: release from the solid form,
// dissolution into luminal fluid, segmental transit, and absorption into
// the liver with hepatic first-pass extraction applied on the way in.
type GIBlock struct {
	formulation string
	doseUmol    float64

	kdIR      float64
	weibullTd float64
	weibullB  float64

	kdiss   float64
	satConc float64
	kt      float64
	segVol  float64

	kaAbs       float64
	vmaxAbs     float64
	kmAbs       float64
	transporter bool

	extraction float64

	pill      int
	solid     [giSegments]int
	dissolved [giSegments]int
	excreted  int
	firstpass int
	liver     int
}

func NewGIBlock(v *params.View, formulation string, doseUmol float64) *GIBlock {
	return &GIBlock{
		formulation: formulation,
		doseUmol:    doseUmol,
		kdIR:        v.Float("gi.release.kd_ir_per_h"),
		weibullTd:   v.Float("gi.release.weibull_td_h"),
		weibullB:    v.Float("gi.release.weibull_b"),
		kdiss:       v.Float("gi.dissolution.kdiss_per_h"),
		satConc:     v.Float("gi.dissolution.sat_conc_uM"),
		kt:          v.Float("gi.transit.kt_per_h"),
		segVol:      v.Float("gi.segment_volume_L"),
		kaAbs:       v.Float("gi.absorption.ka_per_h"),
		vmaxAbs:     v.Float("gi.absorption.vmax_umol_per_h"),
		kmAbs:       v.Float("gi.absorption.km_uM"),
		transporter: v.Float("gi.absorption.transporter_enabled") != 0,
		extraction:  v.Float("pbpk.hepatic_extraction"),
	}
}

func (g *GIBlock) Name() string { return "gi" }

func (g *GIBlock) Declare() []StateDecl {
	decls := []StateDecl{{Name: "pill_solid"}}
	for i := 0; i < giSegments; i++ {
		decls = append(decls, StateDecl{Name: fmt.Sprintf("gi_seg%d_solid", i+1)})
	}
	for i := 0; i < giSegments; i++ {
		decls = append(decls, StateDecl{Name: fmt.Sprintf("gi_seg%d_dissolved", i+1)})
	}
	decls = append(decls,
		StateDecl{Name: "gi_excreted"},
		StateDecl{Name: "liver_firstpass"},
	)
	return decls
}

func (g *GIBlock) Bind(ix *StateIndex) error {
	var err error
	if g.pill, err = ix.Offset("pill_solid"); err != nil {
		return err
	}
	for i := 0; i < giSegments; i++ {
		if g.solid[i], err = ix.Offset(fmt.Sprintf("gi_seg%d_solid", i+1)); err != nil {
			return err
		}
		if g.dissolved[i], err = ix.Offset(fmt.Sprintf("gi_seg%d_dissolved", i+1)); err != nil {
			return err
		}
	}
	if g.excreted, err = ix.Offset("gi_excreted"); err != nil {
		return err
	}
	if g.firstpass, err = ix.Offset("liver_firstpass"); err != nil {
		return err
	}
	if g.liver, err = ix.Offset("liver_precursor"); err != nil {
		return err
	}
	return nil
}

func (g *GIBlock) Init(y integrators.State) {
	y[g.pill] = g.doseUmol
}

// releaseHazard is the instantaneous release rate of the solid form:
// first-order for immediate release, Weibull-derived for extended release.
func (g *GIBlock) releaseHazard(t float64) float64 {
	if g.formulation != FormulationER {
		return g.kdIR
	}
	if t <= 0 {
		t = 1e-9
	}
	return (g.weibullB / g.weibullTd) * math.Pow(t/g.weibullTd, g.weibullB-1)
}

func (g *GIBlock) Derive(t float64, y, dy integrators.State, mods effect.TermSet) {
	release := g.releaseHazard(t) * y[g.pill]
	dy[g.pill] -= release
	dy[g.solid[0]] += release

	for i := 0; i < giSegments; i++ {
		solid := y[g.solid[i]]
		dis := y[g.dissolved[i]]
		conc := dis / g.segVol

		// Dissolution driven by the unbound gradient toward saturation.
		grad := 1 - conc/g.satConc
		if grad < 0 {
			grad = 0
		}
		dissolution := g.kdiss * solid * grad
		dy[g.solid[i]] -= dissolution
		dy[g.dissolved[i]] += dissolution

		// Segment-to-segment transit; the terminal segment empties into
		// the excretion sink.
		dy[g.solid[i]] -= g.kt * solid
		dy[g.dissolved[i]] -= g.kt * dis
		if i+1 < giSegments {
			dy[g.solid[i+1]] += g.kt * solid
			dy[g.dissolved[i+1]] += g.kt * dis
		} else {
			dy[g.excreted] += g.kt * (solid + dis)
		}

		// Absorption: permeability-limited baseline plus the optional
		// saturable transporter term, scaled by the live multiplier.
		absFlux := g.kaAbs * dis
		if g.transporter && conc > 0 {
			absFlux += g.vmaxAbs * conc / (g.kmAbs + conc)
		}
		absFlux *= mods.Absorption

		dy[g.dissolved[i]] -= absFlux
		dy[g.firstpass] += g.extraction * absFlux
		dy[g.liver] += (1 - g.extraction) * absFlux
	}
}
