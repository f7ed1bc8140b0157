package physio

import (
	"github.com/nutrakinetics/nadsim/internal/effect"
	"github.com/nutrakinetics/nadsim/internal/integrators"
	"github.com/nutrakinetics/nadsim/internal/params"
)

// NADBlock is the intracellular NAD network of one tissue: salvage and
// Preiss-Handler synthesis fed by the tissue precursor pool, a de novo
// baseline flux, the CD38/PARP/SIRT consumption sinks, and saturable
// cytosol<->mitochondria exchange.
//
// Sinks drain into an explicit consumed state and baseline synthesis is
// mirrored into a source accumulator so mole balance stays auditable.
type NADBlock struct {
	tissue string

	cytVol  float64
	mitoVol float64

	salvageRate  float64
	phRate       float64
	baselineFlux float64

	cd38Vmax float64
	cd38Km   float64
	parpVmax float64
	parpKm   float64
	sirtVmax float64
	sirtKm   float64

	c2mVmax float64
	c2mKm   float64
	m2cVmax float64
	m2cKm   float64

	initCytUM  float64
	initMitoUM float64

	sinks         SinkToggles
	preissHandler bool
	cd38Scale     float64

	precursor   int
	cyt         int
	mito        int
	consumed    int
	synthesized int
}

func NewNADBlock(v *params.View, tissue string, sinks SinkToggles, preissHandler bool, cd38Scale float64) *NADBlock {
	ns := "nad." + tissue + "."
	if cd38Scale <= 0 {
		cd38Scale = 1
	}
	return &NADBlock{
		tissue:        tissue,
		cytVol:        v.Float(ns + "cyt_volume_L"),
		mitoVol:       v.Float(ns + "mito_volume_L"),
		salvageRate:   v.Float(ns + "salvage_rate_per_h"),
		phRate:        v.Float(ns + "preiss_handler_rate_per_h"),
		baselineFlux:  v.Float(ns + "baseline_synthesis_umol_per_h"),
		cd38Vmax:      v.Float(ns + "cd38_vmax_umol_per_h"),
		cd38Km:        v.Float(ns + "cd38_km_uM"),
		parpVmax:      v.Float(ns + "parp_vmax_umol_per_h"),
		parpKm:        v.Float(ns + "parp_km_uM"),
		sirtVmax:      v.Float(ns + "sirt_vmax_umol_per_h"),
		sirtKm:        v.Float(ns + "sirt_km_uM"),
		c2mVmax:       v.Float(ns + "exchange_cyt_to_mito_vmax_umol_per_h"),
		c2mKm:         v.Float(ns + "exchange_cyt_to_mito_km_uM"),
		m2cVmax:       v.Float(ns + "exchange_mito_to_cyt_vmax_umol_per_h"),
		m2cKm:         v.Float(ns + "exchange_mito_to_cyt_km_uM"),
		initCytUM:     v.Float("init.nad_cyt_uM"),
		initMitoUM:    v.Float("init.nad_mito_uM"),
		sinks:         sinks,
		preissHandler: preissHandler,
		cd38Scale:     cd38Scale,
	}
}

func (b *NADBlock) Name() string { return "nad_" + b.tissue }

func (b *NADBlock) Declare() []StateDecl {
	return []StateDecl{
		{Name: "nad_cyt_" + b.tissue},
		{Name: "nad_mito_" + b.tissue},
		{Name: "nad_consumed_" + b.tissue},
		{Name: "nad_synthesized_" + b.tissue, Source: true},
	}
}

func (b *NADBlock) Bind(ix *StateIndex) error {
	var err error
	if b.precursor, err = ix.Offset(b.tissue + "_precursor"); err != nil {
		return err
	}
	if b.cyt, err = ix.Offset("nad_cyt_" + b.tissue); err != nil {
		return err
	}
	if b.mito, err = ix.Offset("nad_mito_" + b.tissue); err != nil {
		return err
	}
	if b.consumed, err = ix.Offset("nad_consumed_" + b.tissue); err != nil {
		return err
	}
	b.synthesized, err = ix.Offset("nad_synthesized_" + b.tissue)
	return err
}

func (b *NADBlock) Init(y integrators.State) {
	y[b.cyt] = b.initCytUM * b.cytVol
	y[b.mito] = b.initMitoUM * b.mitoVol
}

func michaelis(vmax, km, conc float64) float64 {
	if conc <= 0 {
		return 0
	}
	return vmax * conc / (km + conc)
}

func (b *NADBlock) Derive(t float64, y, dy integrators.State, mods effect.TermSet) {
	cCyt := y[b.cyt] / b.cytVol
	cMito := y[b.mito] / b.mitoVol

	// Synthesis: precursor-driven salvage (plus the Preiss-Handler
	// branch for nicotinic acid substrates) converts precursor to NAD;
	// the de novo baseline is mirrored into the source accumulator.
	convRate := b.salvageRate
	if b.preissHandler {
		convRate += b.phRate
	}
	conversion := convRate * y[b.precursor] * mods.Synthesis
	baseline := b.baselineFlux * mods.Synthesis

	dy[b.precursor] -= conversion
	dy[b.cyt] += conversion + baseline
	dy[b.synthesized] += baseline

	// Consumption sinks, individually toggleable. CD38 carries both the
	// physiology (age) scale and the dynamic stack multiplier.
	consumption := 0.0
	if b.sinks.CD38 {
		consumption += michaelis(b.cd38Vmax, b.cd38Km, cCyt) * b.cd38Scale * mods.CD38
	}
	if b.sinks.PARP {
		consumption += michaelis(b.parpVmax, b.parpKm, cCyt)
	}
	dy[b.cyt] -= consumption
	dy[b.consumed] += consumption

	if b.sinks.SIRT {
		sirt := michaelis(b.sirtVmax, b.sirtKm, cMito)
		dy[b.mito] -= sirt
		dy[b.consumed] += sirt
	}

	// Saturable carrier exchange between compartments.
	toMito := michaelis(b.c2mVmax, b.c2mKm, cCyt)
	toCyt := michaelis(b.m2cVmax, b.m2cKm, cMito)
	dy[b.cyt] += toCyt - toMito
	dy[b.mito] += toMito - toCyt
}
