package physio

import (
	"fmt"

	"github.com/nutrakinetics/nadsim/internal/effect"
	"github.com/nutrakinetics/nadsim/internal/integrators"
	"github.com/nutrakinetics/nadsim/internal/params"
)

type pbpkTissue struct {
	name      string
	volume    float64
	flow      float64
	partition float64
	offset    int
}

// PBPKBlock distributes the circulating precursor: perfusion-limited
// exchange between plasma and each tissue, plus renal clearance. Tissue
// precursor pools feed the per-tissue NAD synthesis machinery.
type PBPKBlock struct {
	plasmaVol float64
	renalCL   float64

	tissues []pbpkTissue

	plasma int
	renal  int
}

func NewPBPKBlock(v *params.View, tissues []string) *PBPKBlock {
	b := &PBPKBlock{
		plasmaVol: v.Float("pbpk.volume.plasma_L"),
		renalCL:   v.Float("pbpk.renal_clearance_L_per_h"),
	}
	for _, name := range tissues {
		b.tissues = append(b.tissues, pbpkTissue{
			name:      name,
			volume:    v.Float("pbpk.volume." + name + "_L"),
			flow:      v.Float("pbpk.flow." + name + "_L_per_h"),
			partition: v.Float("pbpk.partition." + name),
		})
	}
	return b
}

func (b *PBPKBlock) Name() string { return "pbpk" }

func (b *PBPKBlock) Declare() []StateDecl {
	decls := []StateDecl{{Name: "plasma_precursor"}}
	for _, t := range b.tissues {
		decls = append(decls, StateDecl{Name: t.name + "_precursor"})
	}
	decls = append(decls, StateDecl{Name: "renal_cleared"})
	return decls
}

func (b *PBPKBlock) Bind(ix *StateIndex) error {
	var err error
	if b.plasma, err = ix.Offset("plasma_precursor"); err != nil {
		return err
	}
	for i := range b.tissues {
		if b.tissues[i].offset, err = ix.Offset(b.tissues[i].name + "_precursor"); err != nil {
			return fmt.Errorf("tissue %s: %w", b.tissues[i].name, err)
		}
	}
	if b.renal, err = ix.Offset("renal_cleared"); err != nil {
		return err
	}
	return nil
}

func (b *PBPKBlock) Init(y integrators.State) {
	// The precursor pools start empty; dosing fills them.
}

func (b *PBPKBlock) Derive(t float64, y, dy integrators.State, mods effect.TermSet) {
	cPlasma := y[b.plasma] / b.plasmaVol

	for _, tis := range b.tissues {
		cTissue := y[tis.offset] / tis.volume
		// Perfusion-limited exchange toward the partition equilibrium.
		flux := tis.flow * (cPlasma - cTissue/tis.partition)
		dy[b.plasma] -= flux
		dy[tis.offset] += flux
	}

	renal := b.renalCL * cPlasma
	dy[b.plasma] -= renal
	dy[b.renal] += renal
}
