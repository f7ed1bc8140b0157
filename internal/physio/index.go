// Package physio assembles the mechanistic ODE system: drug-product and
// GI handling, hepatic first-pass and PBPK distribution, the intracellular
// NAD synthesis/consumption network, and the IV/ecto-hydrolysis route.
//
// Each physiological block declares the state-vector slice it owns at
// model-build time; the system composes those declarations into one flat
// name->offset index that stays fixed for the whole run.
package physio

import (
	"fmt"
	"sort"
)

// StateDecl declares one named state. Source states are bookkeeping
// accumulators for defined external inputs (infusion, de novo synthesis)
// and are subtracted by the mass-balance audit.
type StateDecl struct {
	Name   string
	Source bool
}

// StateIndex is the stable name->offset mapping built once per run.
type StateIndex struct {
	names   []string
	sources []bool
	offsets map[string]int
}

func NewStateIndex() *StateIndex {
	return &StateIndex{offsets: make(map[string]int)}
}

func (ix *StateIndex) add(d StateDecl) error {
	if _, dup := ix.offsets[d.Name]; dup {
		return fmt.Errorf("physio: duplicate state name %q", d.Name)
	}
	ix.offsets[d.Name] = len(ix.names)
	ix.names = append(ix.names, d.Name)
	ix.sources = append(ix.sources, d.Source)
	return nil
}

// Offset resolves a state name. Unknown names are a wiring bug surfaced
// at build time, before any integration happens.
func (ix *StateIndex) Offset(name string) (int, error) {
	off, ok := ix.offsets[name]
	if !ok {
		return 0, fmt.Errorf("physio: unknown state name %q", name)
	}
	return off, nil
}

func (ix *StateIndex) Len() int { return len(ix.names) }

// Names returns the state names in offset order.
func (ix *StateIndex) Names() []string {
	out := make([]string, len(ix.names))
	copy(out, ix.names)
	return out
}

// IsSource reports whether the state at offset i is a source accumulator.
func (ix *StateIndex) IsSource(i int) bool { return ix.sources[i] }

// SourceNames lists the source accumulator states, sorted.
func (ix *StateIndex) SourceNames() []string {
	var out []string
	for i, name := range ix.names {
		if ix.sources[i] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
