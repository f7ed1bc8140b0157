package physio

import (
	"math"
	"strings"
	"testing"

	"github.com/nutrakinetics/nadsim/internal/effect"
	"github.com/nutrakinetics/nadsim/internal/integrators"
	"github.com/nutrakinetics/nadsim/internal/params"
)

func testCatalog(t *testing.T) *params.MapCatalog {
	t.Helper()
	c, err := params.LoadDefault()
	if err != nil {
		t.Fatalf("loading default catalog: %v", err)
	}
	return c
}

func oralConfig(doseUmol float64) BuildConfig {
	return BuildConfig{
		Route:       RouteOral,
		Formulation: FormulationIR,
		DoseUmol:    doseUmol,
		Sinks:       AllSinks(),
		CD38Scale:   1,
	}
}

func ivConfig(doseUmol, durationH float64) BuildConfig {
	return BuildConfig{
		Route:             RouteIV,
		DoseUmol:          doseUmol,
		InfusionDurationH: durationH,
		Sinks:             AllSinks(),
		CD38Scale:         1,
	}
}

func TestBuildOralStates(t *testing.T) {
	sys, err := Build(testCatalog(t), oralConfig(500), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{
		"pill_solid", "gi_seg1_solid", "gi_seg3_dissolved", "gi_excreted",
		"liver_firstpass", "plasma_precursor", "liver_precursor",
		"muscle_precursor", "renal_cleared", "nad_cyt_liver",
		"nad_mito_muscle", "nad_consumed_liver", "nad_synthesized_muscle",
	}
	names := strings.Join(sys.Index().Names(), ",")
	for _, w := range want {
		if !strings.Contains(names, w) {
			t.Errorf("missing state %q in %s", w, names)
		}
	}
	if sys.Dim() != len(sys.Index().Names()) {
		t.Errorf("Dim %d != len(Names) %d", sys.Dim(), len(sys.Index().Names()))
	}
}

func TestBuildRejectsUnknownRoute(t *testing.T) {
	_, err := Build(testCatalog(t), BuildConfig{Route: "intranasal"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown route")
	}
}

func TestBuildRejectsUnknownTissue(t *testing.T) {
	cfg := oralConfig(100)
	cfg.Tissues = []string{"liver", "brain"}
	_, err := Build(testCatalog(t), cfg, nil)
	if err == nil {
		t.Fatal("expected missing-parameter error for tissue without catalog entries")
	}
}

func TestDuplicateStateName(t *testing.T) {
	cfg := oralConfig(100)
	cfg.Tissues = []string{"liver", "liver"}
	_, err := Build(testCatalog(t), cfg, nil)
	if err == nil {
		t.Fatal("expected duplicate state error for repeated tissue")
	}
}

func TestInitialStateAmounts(t *testing.T) {
	c := testCatalog(t)
	sys, err := Build(c, oralConfig(1234), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	y := sys.InitialState()

	pill, _ := sys.Index().Offset("pill_solid")
	if y[pill] != 1234 {
		t.Errorf("pill_solid = %g, want dose 1234", y[pill])
	}

	v := params.NewView(c)
	wantCyt := v.Float("init.nad_cyt_uM") * v.Float("nad.liver.cyt_volume_L")
	if err := v.Err(); err != nil {
		t.Fatalf("view: %v", err)
	}
	cyt, _ := sys.Index().Offset("nad_cyt_liver")
	if math.Abs(y[cyt]-wantCyt) > 1e-12 {
		t.Errorf("nad_cyt_liver = %g, want %g", y[cyt], wantCyt)
	}
}

// The conserved total (physical states minus source accumulators) must
// have an identically zero time derivative, for any state and any time.
func TestConservedTotalDerivativeZero(t *testing.T) {
	c := testCatalog(t)
	cases := []struct {
		name string
		cfg  BuildConfig
	}{
		{"oral_ir", oralConfig(800)},
		{"oral_er", func() BuildConfig {
			cfg := oralConfig(800)
			cfg.Formulation = FormulationER
			return cfg
		}()},
		{"iv", ivConfig(400, 2)},
		{"oral_preiss_handler", func() BuildConfig {
			cfg := oralConfig(800)
			cfg.PreissHandler = true
			return cfg
		}()},
	}

	mods := func(float64) effect.TermSet {
		return effect.TermSet{Synthesis: 1.7, CD38: 0.6, Absorption: 1.3}
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sys, err := Build(c, tc.cfg, mods)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			y := sys.InitialState()
			// Perturb every state so no flux term is trivially zero.
			for i := range y {
				y[i] += 5.0 + float64(i)
			}
			for _, tm := range []float64{0, 0.5, 1.9, 6, 24} {
				dy := sys.Derive(tm, y)
				drift := 0.0
				for i, v := range dy {
					if sys.Index().IsSource(i) {
						drift -= v
					} else {
						drift += v
					}
				}
				if math.Abs(drift) > 1e-9 {
					t.Errorf("t=%g: conserved-total derivative = %g, want 0", tm, drift)
				}
			}
		})
	}
}

func TestExtendedReleaseStartsSlower(t *testing.T) {
	c := testCatalog(t)
	ir, err := Build(c, oralConfig(1000), nil)
	if err != nil {
		t.Fatalf("Build IR: %v", err)
	}
	erCfg := oralConfig(1000)
	erCfg.Formulation = FormulationER
	er, err := Build(c, erCfg, nil)
	if err != nil {
		t.Fatalf("Build ER: %v", err)
	}

	yIR := ir.InitialState()
	yER := er.InitialState()
	pillIR, _ := ir.Index().Offset("pill_solid")
	pillER, _ := er.Index().Offset("pill_solid")

	dIR := ir.Derive(0.01, yIR)
	dER := er.Derive(0.01, yER)

	if dIR[pillIR] >= 0 || dER[pillER] >= 0 {
		t.Fatalf("release should empty the pill: IR %g, ER %g", dIR[pillIR], dER[pillER])
	}
	if -dER[pillER] >= -dIR[pillIR] {
		t.Errorf("early ER release %g not slower than IR %g", -dER[pillER], -dIR[pillIR])
	}
}

func TestSinkTogglesStopConsumption(t *testing.T) {
	cfg := oralConfig(500)
	cfg.Sinks = SinkToggles{}
	sys, err := Build(testCatalog(t), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	y := sys.InitialState()
	dy := sys.Derive(1.0, y)
	for _, tissue := range []string{"liver", "muscle"} {
		off, errOff := sys.Index().Offset("nad_consumed_" + tissue)
		if errOff != nil {
			t.Fatalf("offset: %v", errOff)
		}
		if dy[off] != 0 {
			t.Errorf("%s consumption = %g with all sinks off, want 0", tissue, dy[off])
		}
	}
}

func TestAbsorptionMultiplierScalesUptake(t *testing.T) {
	c := testCatalog(t)
	base, err := Build(c, oralConfig(500), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	boosted, err := Build(c, oralConfig(500), func(float64) effect.TermSet {
		return effect.TermSet{Synthesis: 1, CD38: 1, Absorption: 2}
	})
	if err != nil {
		t.Fatalf("Build boosted: %v", err)
	}

	y := base.InitialState()
	seg, _ := base.Index().Offset("gi_seg1_dissolved")
	y[seg] = 50

	liver, _ := base.Index().Offset("liver_precursor")
	dBase := base.Derive(1.0, y)
	dBoost := boosted.Derive(1.0, y.Clone())

	if dBoost[liver] <= dBase[liver] {
		t.Errorf("doubled absorption multiplier did not raise liver uptake: %g vs %g",
			dBoost[liver], dBase[liver])
	}
}

func TestInfusionProfile(t *testing.T) {
	sys, err := Build(testCatalog(t), ivConfig(600, 2), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	y := sys.InitialState()
	nad, _ := sys.Index().Offset("plasma_nad")
	infused, _ := sys.Index().Offset("iv_infused")

	during := sys.Derive(1.0, y)
	if during[infused] != 300 {
		t.Errorf("infusion rate during window = %g, want 600/2 = 300", during[infused])
	}
	if during[nad] <= 0 {
		t.Errorf("plasma NAD should rise during infusion, got dy %g", during[nad])
	}

	after := sys.Derive(3.0, y)
	if after[infused] != 0 {
		t.Errorf("infusion rate after window = %g, want 0", after[infused])
	}
	if after[nad] >= 0 {
		t.Errorf("plasma NAD should fall after infusion stops, got dy %g", after[nad])
	}
}

func TestSourceNames(t *testing.T) {
	sys, err := Build(testCatalog(t), ivConfig(100, 1), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := sys.Index().SourceNames()
	want := []string{"iv_infused", "nad_synthesized_liver", "nad_synthesized_muscle"}
	if len(got) != len(want) {
		t.Fatalf("source names %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("source names %v, want %v", got, want)
		}
	}
}

var _ integrators.System = (*System)(nil)
