package params

import (
	"sort"
	"strings"
)

// SourceType classifies where a parameter value came from.
type SourceType string

const (
	SourcePeerReviewed     SourceType = "peer_reviewed"
	SourceDatabase         SourceType = "database"
	SourceEstimatedFromFit SourceType = "estimated_from_fit"
)

// Record is a single catalog entry with full provenance.
type Record struct {
	Key         string     `yaml:"-" json:"key"`
	Value       float64    `yaml:"value" json:"value"`
	Units       string     `yaml:"units" json:"units"`
	Definition  string     `yaml:"definition" json:"definition"`
	Description string     `yaml:"description" json:"description"`
	Reference   string     `yaml:"reference" json:"reference"`
	SourceType  SourceType `yaml:"source_type" json:"source_type"`
	SourceID    string     `yaml:"source_id" json:"source_id"`
	Notes       string     `yaml:"notes" json:"notes"`

	// Layer records which catalog layer answered the lookup ("base" or
	// "override") so fitted values stay distinguishable from priors.
	Layer string `yaml:"-" json:"layer,omitempty"`
}

// Catalog is an immutable key -> Record lookup. Lookup fails with an
// *UnknownParameterError for absent keys; there are no silent defaults.
type Catalog interface {
	Lookup(key string) (Record, error)
	Namespace(prefix string) []Record
}

// MapCatalog is the plain in-memory catalog. It is read-only after New.
type MapCatalog struct {
	records map[string]Record
}

func New(records map[string]Record) *MapCatalog {
	m := make(map[string]Record, len(records))
	for k, r := range records {
		r.Key = k
		if r.Layer == "" {
			r.Layer = "base"
		}
		m[k] = r
	}
	return &MapCatalog{records: m}
}

func (c *MapCatalog) Lookup(key string) (Record, error) {
	r, ok := c.records[key]
	if !ok {
		return Record{}, &UnknownParameterError{Key: key}
	}
	return r, nil
}

// Namespace returns all records whose key starts with prefix, sorted by key.
func (c *MapCatalog) Namespace(prefix string) []Record {
	var out []Record
	for k, r := range c.records {
		if strings.HasPrefix(k, prefix) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (c *MapCatalog) Len() int { return len(c.records) }

// Layered consults an override catalog before the base catalog. Overrides
// are built fresh per run; the base is shared read-only.
type Layered struct {
	override Catalog
	base     Catalog
}

func NewLayered(override, base Catalog) *Layered {
	return &Layered{override: override, base: base}
}

// WithOverrides wraps base with fitted values. Every override is tagged
// estimated_from_fit so provenance survives the layering.
func WithOverrides(base Catalog, values map[string]float64) *Layered {
	over := make(map[string]Record, len(values))
	for k, v := range values {
		rec := Record{Value: v, SourceType: SourceEstimatedFromFit, Layer: "override"}
		if prior, err := base.Lookup(k); err == nil {
			rec.Units = prior.Units
			rec.Definition = prior.Definition
			rec.Description = prior.Description
		}
		over[k] = rec
	}
	oc := New(over)
	for k := range values {
		r := oc.records[k]
		r.Layer = "override"
		oc.records[k] = r
	}
	return &Layered{override: oc, base: base}
}

func (l *Layered) Lookup(key string) (Record, error) {
	if r, err := l.override.Lookup(key); err == nil {
		return r, nil
	}
	return l.base.Lookup(key)
}

func (l *Layered) Namespace(prefix string) []Record {
	seen := make(map[string]bool)
	out := l.override.Namespace(prefix)
	for _, r := range out {
		seen[r.Key] = true
	}
	for _, r := range l.base.Namespace(prefix) {
		if !seen[r.Key] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// View reads a batch of parameters, remembering the first failure so model
// builders can fetch a block of constants and check the error once.
type View struct {
	catalog Catalog
	err     error
}

func NewView(c Catalog) *View { return &View{catalog: c} }

func (v *View) Float(key string) float64 {
	r, err := v.catalog.Lookup(key)
	if err != nil {
		if v.err == nil {
			v.err = err
		}
		return 0
	}
	return r.Value
}

func (v *View) Int(key string) int {
	return int(v.Float(key))
}

// Err returns the first lookup failure, or nil if every key resolved.
func (v *View) Err() error { return v.err }
