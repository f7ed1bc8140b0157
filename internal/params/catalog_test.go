package params

import (
	"errors"
	"testing"
)

func testCatalog() *MapCatalog {
	return New(map[string]Record{
		"gi.transit.kt_per_h":  {Value: 1.2, Units: "1/h", SourceType: SourcePeerReviewed},
		"gi.segment_volume_L":  {Value: 0.3, Units: "L"},
		"ecto.km_uM":           {Value: 60.0, Units: "uM"},
	})
}

func TestLookup(t *testing.T) {
	c := testCatalog()

	rec, err := c.Lookup("gi.transit.kt_per_h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Value != 1.2 {
		t.Errorf("expected 1.2, got %f", rec.Value)
	}
	if rec.Layer != "base" {
		t.Errorf("expected base layer, got %q", rec.Layer)
	}
}

func TestLookupUnknownKey(t *testing.T) {
	c := testCatalog()

	_, err := c.Lookup("gi.nonexistent")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("expected ErrUnknownParameter, got %v", err)
	}
	var uerr *UnknownParameterError
	if !errors.As(err, &uerr) || uerr.Key != "gi.nonexistent" {
		t.Errorf("expected UnknownParameterError with key, got %v", err)
	}
}

func TestNamespace(t *testing.T) {
	c := testCatalog()

	recs := c.Namespace("gi.")
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Key > recs[1].Key {
		t.Error("namespace listing should be sorted by key")
	}
}

func TestLayeredOverride(t *testing.T) {
	base := testCatalog()
	layered := WithOverrides(base, map[string]float64{"ecto.km_uM": 45.0})

	rec, err := layered.Lookup("ecto.km_uM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Value != 45.0 {
		t.Errorf("override not consulted first, got %f", rec.Value)
	}
	if rec.Layer != "override" {
		t.Errorf("expected override layer, got %q", rec.Layer)
	}
	if rec.SourceType != SourceEstimatedFromFit {
		t.Errorf("override should be tagged estimated_from_fit, got %q", rec.SourceType)
	}

	// Base keys stay visible through the layering.
	rec, err = layered.Lookup("gi.segment_volume_L")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Layer != "base" {
		t.Errorf("expected base layer, got %q", rec.Layer)
	}
}

func TestLayeredDoesNotMutateBase(t *testing.T) {
	base := testCatalog()
	_ = WithOverrides(base, map[string]float64{"ecto.km_uM": 45.0})

	rec, err := base.Lookup("ecto.km_uM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Value != 60.0 {
		t.Errorf("base catalog mutated by override layer: %f", rec.Value)
	}
}

func TestViewAccumulatesFirstError(t *testing.T) {
	v := NewView(testCatalog())

	if got := v.Float("gi.transit.kt_per_h"); got != 1.2 {
		t.Errorf("expected 1.2, got %f", got)
	}
	_ = v.Float("missing.key.one")
	_ = v.Float("missing.key.two")

	var uerr *UnknownParameterError
	if !errors.As(v.Err(), &uerr) {
		t.Fatalf("expected UnknownParameterError, got %v", v.Err())
	}
	if uerr.Key != "missing.key.one" {
		t.Errorf("expected first failing key to be retained, got %q", uerr.Key)
	}
}

func TestLoadDefaultCatalog(t *testing.T) {
	c, err := LoadDefault()
	if err != nil {
		t.Fatalf("loading embedded catalog: %v", err)
	}

	for _, key := range []string{
		"gi.release.kd_ir_per_h",
		"gi.release.weibull_td_h",
		"pbpk.hepatic_extraction",
		"nad.liver.cd38_vmax_umol_per_h",
		"nad.muscle.salvage_rate_per_h",
		"ecto.vmax_umol_per_h",
		"effect.bounds.multiplier_min",
		"solver.tolerance",
		"conservation.fatal_threshold",
		"compound.nad.molar_mass_g_per_mol",
	} {
		if _, err := c.Lookup(key); err != nil {
			t.Errorf("embedded catalog missing %s: %v", key, err)
		}
	}

	rec, err := c.Lookup("effect.bounds.multiplier_max")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Value != 10.0 {
		t.Errorf("expected clamp upper bound 10, got %f", rec.Value)
	}
}

func TestParseRejectsMalformedDocument(t *testing.T) {
	if _, err := Parse([]byte("parameters:\n  a:\n    b: [1, 2]\n")); !errors.Is(err, ErrMalformedCatalog) {
		t.Errorf("expected ErrMalformedCatalog, got %v", err)
	}
	if _, err := Parse([]byte("nothing: here\n")); !errors.Is(err, ErrMalformedCatalog) {
		t.Errorf("expected ErrMalformedCatalog for missing parameters map, got %v", err)
	}
}
