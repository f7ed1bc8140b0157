package physio

import (
	"github.com/nutrakinetics/nadsim/internal/effect"
	"github.com/nutrakinetics/nadsim/internal/integrators"
	"github.com/nutrakinetics/nadsim/internal/params"
)

// EctoBlock is the IV route: a rectangular infusion of NAD+ into plasma,
// ecto-hydrolysis of plasma NAD to NAM, and first-order NAM uptake into
// the circulating precursor pool. Cumulative infused mass is tracked in a
// source accumulator for the conservation audit.
type EctoBlock struct {
	doseUmol  float64
	durationH float64

	vmax      float64
	km        float64
	namUptake float64

	plasmaVol float64

	initNadUM float64
	initNamUM float64

	plasmaNad int
	plasmaNam int
	infused   int
	precursor int
}

func NewEctoBlock(v *params.View, doseUmol, durationH float64) *EctoBlock {
	if durationH <= 0 {
		durationH = 2.0
	}
	return &EctoBlock{
		doseUmol:  doseUmol,
		durationH: durationH,
		vmax:      v.Float("ecto.vmax_umol_per_h"),
		km:        v.Float("ecto.km_uM"),
		namUptake: v.Float("ecto.nam_uptake_per_h"),
		plasmaVol: v.Float("pbpk.volume.plasma_L"),
		initNadUM: v.Float("init.plasma_nad_uM"),
		initNamUM: v.Float("init.plasma_nam_uM"),
	}
}

func (b *EctoBlock) Name() string { return "ecto" }

func (b *EctoBlock) Declare() []StateDecl {
	return []StateDecl{
		{Name: "plasma_nad"},
		{Name: "plasma_nam"},
		{Name: "iv_infused", Source: true},
	}
}

func (b *EctoBlock) Bind(ix *StateIndex) error {
	var err error
	if b.plasmaNad, err = ix.Offset("plasma_nad"); err != nil {
		return err
	}
	if b.plasmaNam, err = ix.Offset("plasma_nam"); err != nil {
		return err
	}
	if b.infused, err = ix.Offset("iv_infused"); err != nil {
		return err
	}
	b.precursor, err = ix.Offset("plasma_precursor")
	return err
}

func (b *EctoBlock) Init(y integrators.State) {
	y[b.plasmaNad] = b.initNadUM * b.plasmaVol
	y[b.plasmaNam] = b.initNamUM * b.plasmaVol
}

// InfusionRate is the rectangular R_inf(t) profile in umol/h.
func (b *EctoBlock) InfusionRate(t float64) float64 {
	if t < 0 || t >= b.durationH {
		return 0
	}
	return b.doseUmol / b.durationH
}

func (b *EctoBlock) Derive(t float64, y, dy integrators.State, mods effect.TermSet) {
	rInf := b.InfusionRate(t)
	dy[b.plasmaNad] += rInf
	dy[b.infused] += rInf

	cNad := y[b.plasmaNad] / b.plasmaVol
	hydrolysis := michaelis(b.vmax, b.km, cNad)
	dy[b.plasmaNad] -= hydrolysis
	dy[b.plasmaNam] += hydrolysis

	uptake := b.namUptake * y[b.plasmaNam]
	dy[b.plasmaNam] -= uptake
	dy[b.precursor] += uptake
}
