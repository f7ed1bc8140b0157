package sim

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/nutrakinetics/nadsim/internal/logger"
	"github.com/nutrakinetics/nadsim/internal/params"
	"github.com/nutrakinetics/nadsim/internal/supplement"
)

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	catalog, err := params.LoadDefault()
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	registry, err := supplement.LoadDefault()
	if err != nil {
		t.Fatalf("loading registry: %v", err)
	}
	return NewOrchestrator(catalog, registry, logger.Nop())
}

func oralNR(doseMg float64) Scenario {
	sc := NewScenario()
	sc.ID = "test-oral-nr"
	sc.Compound = CompoundNR
	sc.DoseMg = doseMg
	sc.OutputPoints = 97
	return sc
}

func TestOralRunProducesSinglePeak(t *testing.T) {
	o := testOrchestrator(t)
	res, err := o.Run(context.Background(), oralNR(500))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Cancelled {
		t.Fatal("unexpected cancellation")
	}

	conc, err := res.ConcentrationSeries("plasma_precursor")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	ex := res.Exposure["plasma_precursor"]
	if ex.CmaxUM <= ex.BaselineUM {
		t.Errorf("Cmax %g not above baseline %g", ex.CmaxUM, ex.BaselineUM)
	}
	if ex.TmaxH <= 0 || ex.TmaxH >= res.Scenario.HorizonH {
		t.Errorf("Tmax %g not interior to the horizon", ex.TmaxH)
	}
	if ex.AUCuMh <= 0 {
		t.Errorf("AUC %g not positive", ex.AUCuMh)
	}
	// Past the peak the profile declines toward washout.
	if conc[len(conc)-1] >= ex.CmaxUM {
		t.Errorf("terminal concentration %g did not fall below Cmax %g",
			conc[len(conc)-1], ex.CmaxUM)
	}

	liver := res.Exposure["nad_cyt_liver"]
	if liver.CmaxUM < liver.BaselineUM {
		t.Errorf("liver NAD Cmax %g fell below baseline %g", liver.CmaxUM, liver.BaselineUM)
	}
}

func TestIVInfusionShape(t *testing.T) {
	o := testOrchestrator(t)
	sc := NewScenario()
	sc.ID = "test-iv-nad"
	sc.Route = "iv"
	sc.Compound = CompoundNAD
	sc.Formulation = ""
	sc.DoseMg = 250
	sc.InfusionDurationH = 2
	sc.HorizonH = 12
	sc.OutputPoints = 49

	res, err := o.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	conc, err := res.ConcentrationSeries("plasma_nad")
	if err != nil {
		t.Fatalf("series: %v", err)
	}

	for i := 1; i < len(res.TimesH); i++ {
		tm := res.TimesH[i]
		if tm <= sc.InfusionDurationH && conc[i] <= conc[i-1] {
			t.Errorf("plasma NAD not rising during infusion at t=%g: %g -> %g",
				tm, conc[i-1], conc[i])
		}
	}
	ex := res.Exposure["plasma_nad"]
	if ex.TmaxH < sc.InfusionDurationH-0.5 || ex.TmaxH > sc.InfusionDurationH+0.5 {
		t.Errorf("Tmax %g not near end of infusion", ex.TmaxH)
	}
	if conc[len(conc)-1] >= ex.CmaxUM {
		t.Errorf("plasma NAD did not decline after infusion")
	}
}

func TestDeterministicRepeat(t *testing.T) {
	o := testOrchestrator(t)
	sc := oralNR(300)
	sc.Supplements = []string{"apigenin", "nr"}
	sc.SupplementDoses = map[string]float64{"apigenin": 100}

	a, err := o.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := o.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !reflect.DeepEqual(a.TimesH, b.TimesH) {
		t.Fatal("output grids differ between identical runs")
	}
	if !reflect.DeepEqual(a.States, b.States) {
		t.Fatal("state trajectories differ between identical runs")
	}
	if !reflect.DeepEqual(a.Exposure, b.Exposure) {
		t.Fatal("exposure metrics differ between identical runs")
	}
}

func TestMassBalanceWithinTolerance(t *testing.T) {
	o := testOrchestrator(t)
	res, err := o.Run(context.Background(), oralNR(1000))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.MaxDriftRelative > 1e-6 {
		t.Errorf("relative mass drift %g above audit threshold", res.MaxDriftRelative)
	}
}

func TestInadmissibleStackAbortsBeforeIntegration(t *testing.T) {
	o := testOrchestrator(t)
	sc := oralNR(500)
	sc.Supplements = []string{"nr", "unobtainium"}

	res, err := o.Run(context.Background(), sc)
	if err == nil {
		t.Fatal("expected stack error")
	}
	if !errors.Is(err, ErrInadmissibleStack) {
		t.Errorf("error %v does not wrap ErrInadmissibleStack", err)
	}
	if res != nil {
		t.Errorf("expected nil result for inadmissible stack")
	}
}

func TestScenarioValidation(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*Scenario)
		field string
	}{
		{"zero dose", func(s *Scenario) { s.DoseMg = 0 }, "dose_mg"},
		{"bad route", func(s *Scenario) { s.Route = "topical" }, "route"},
		{"oral nad", func(s *Scenario) { s.Compound = CompoundNAD }, "compound"},
		{"bad formulation", func(s *Scenario) { s.Formulation = "XR" }, "formulation"},
		{"short grid", func(s *Scenario) { s.OutputPoints = 1 }, "output_points"},
		{"negative horizon", func(s *Scenario) { s.HorizonH = -1 }, "horizon_h"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc := oralNR(500)
			tc.edit(&sc)
			err := sc.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var se ScenarioError
			if !errors.As(err, &se) || se.Field != tc.field {
				t.Errorf("got %v, want ScenarioError on %s", err, tc.field)
			}
			if !errors.Is(err, ErrInvalidScenario) {
				t.Errorf("error %v does not wrap ErrInvalidScenario", err)
			}
		})
	}
}

func TestCancellationYieldsPartialResult(t *testing.T) {
	o := testOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx, oralNR(500))
	if err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if !res.Cancelled {
		t.Fatal("result not marked cancelled")
	}
	if len(res.TimesH) == 0 {
		t.Error("partial result carries no samples")
	}
	if len(res.TimesH) >= res.Scenario.OutputPoints {
		t.Error("cancelled run still produced the full grid")
	}
}

func TestAbsorptionEnhancerRaisesExposure(t *testing.T) {
	o := testOrchestrator(t)

	plain, err := o.Run(context.Background(), oralNR(500))
	if err != nil {
		t.Fatalf("plain run: %v", err)
	}

	sc := oralNR(500)
	sc.Supplements = []string{"piperine"}
	sc.SupplementDoses = map[string]float64{"piperine": 10}
	boosted, err := o.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("boosted run: %v", err)
	}

	hasBoost := false
	for _, m := range boosted.MultAbsorption {
		if m > 1 {
			hasBoost = true
			break
		}
	}
	if !hasBoost {
		t.Fatal("piperine never raised the absorption multiplier")
	}
	pa := plain.Exposure["plasma_precursor"].AUCuMh
	ba := boosted.Exposure["plasma_precursor"].AUCuMh
	if ba <= pa {
		t.Errorf("boosted AUC %g not above plain %g", ba, pa)
	}
}

func TestRuleOverrideRecorded(t *testing.T) {
	o := testOrchestrator(t)
	sc := oralNR(500)
	sc.Supplements = []string{"nr", "nmn"}
	sc.RuleOverrides = map[string]float64{"nr_nmn_transport_competition": -0.4}

	res, err := o.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	found := false
	for _, ac := range res.AppliedCoefficients {
		if ac.RuleID == "nr_nmn_transport_competition" {
			found = true
			if !ac.Overridden {
				t.Error("override not flagged")
			}
			if math.Abs(ac.Coefficient-(-0.4)) > 1e-12 {
				t.Errorf("coefficient %g, want -0.4", ac.Coefficient)
			}
		}
	}
	if !found {
		t.Fatal("pair rule not applied")
	}
}

func TestExposureMetrics(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4}
	values := []float64{10, 14, 20, 16, 12}

	ex := ComputeExposure(times, values)
	if ex.BaselineUM != 10 || ex.CmaxUM != 20 || ex.TmaxH != 2 {
		t.Errorf("baseline/Cmax/Tmax = %g/%g/%g", ex.BaselineUM, ex.CmaxUM, ex.TmaxH)
	}
	wantAUC := 0.5*(10+14) + 0.5*(14+20) + 0.5*(20+16) + 0.5*(16+12)
	if math.Abs(ex.AUCuMh-wantAUC) > 1e-12 {
		t.Errorf("AUC %g, want %g", ex.AUCuMh, wantAUC)
	}
	if ex.DeltaUM != 2 || math.Abs(ex.DeltaPercent-20) > 1e-12 {
		t.Errorf("delta %g (%g%%)", ex.DeltaUM, ex.DeltaPercent)
	}
}

func TestFatalDriftAbortsRun(t *testing.T) {
	o := testOrchestrator(t)
	sc := oralNR(500)
	sc.ID = "test-fatal-drift"
	// A threshold below rounding-level drift makes the audit trip on an
	// otherwise healthy run.
	sc.ParamOverrides = map[string]float64{"conservation.fatal_threshold": 1e-18}

	res, err := o.Run(context.Background(), sc)
	if err == nil {
		t.Fatal("expected the mass audit to abort the run")
	}
	if !errors.Is(err, ErrConservationViolated) {
		t.Fatalf("expected ErrConservationViolated, got %v", err)
	}
	var ce ConservationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConservationError, got %T", err)
	}
	if ce.Limit != 1e-18 {
		t.Errorf("limit %g, want the overridden threshold", ce.Limit)
	}
	if ce.Relative <= ce.Limit {
		t.Errorf("reported drift %g not above limit %g", ce.Relative, ce.Limit)
	}
	if res == nil || len(res.TimesH) == 0 {
		t.Error("expected the partial trajectory alongside the error")
	}
}

func TestNegativeStatesClampedWithPerStateWarnings(t *testing.T) {
	o := testOrchestrator(t)
	sc := NewScenario()
	sc.ID = "test-negative-clamp"
	sc.Route = "iv"
	sc.Compound = CompoundNAD
	sc.Formulation = ""
	sc.DoseMg = 250
	sc.InfusionDurationH = 0.5
	sc.HorizonH = 1
	sc.OutputPoints = 5
	sc.ParamOverrides = map[string]float64{
		"init.plasma_nad_uM": -2.0,
		"init.plasma_nam_uM": -1.5,
	}

	res, err := o.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := res.States["plasma_nad"][0]; got != 0 {
		t.Errorf("plasma_nad reported %g at t=0, want clamped 0", got)
	}
	if got := res.States["plasma_nam"][0]; got != 0 {
		t.Errorf("plasma_nam reported %g at t=0, want clamped 0", got)
	}

	count := func(state string) int {
		n := 0
		for _, w := range res.Warnings {
			if strings.Contains(w, "state "+state+" fell") {
				n++
			}
		}
		return n
	}
	if got := count("plasma_nad"); got != 1 {
		t.Errorf("plasma_nad clamp warnings = %d, want exactly 1", got)
	}
	if got := count("plasma_nam"); got != 1 {
		t.Errorf("plasma_nam clamp warnings = %d, want exactly 1", got)
	}
}
