package sim

import (
	"context"
	"math"

	"github.com/nutrakinetics/nadsim/internal/effect"
	"github.com/nutrakinetics/nadsim/internal/integrators"
	"github.com/nutrakinetics/nadsim/internal/logger"
	"github.com/nutrakinetics/nadsim/internal/params"
	"github.com/nutrakinetics/nadsim/internal/physio"
	"github.com/nutrakinetics/nadsim/internal/supplement"
)

// Orchestrator wires the catalog, registry, effect engine and ODE core
// into one Run entry point. It is safe for concurrent use; each Run
// builds its own model instances.
type Orchestrator struct {
	catalog  params.Catalog
	registry *supplement.Registry
	log      *logger.Logger
}

func NewOrchestrator(catalog params.Catalog, registry *supplement.Registry, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.Nop()
	}
	return &Orchestrator{catalog: catalog, registry: registry, log: log}
}

// solver settings read per run so parameter overrides can tune them.
type solverSettings struct {
	tolerance   float64
	initialStep float64
	minStep     float64
	warnDrift   float64
	fatalDrift  float64
}

// Run executes one scenario end to end: stack validation, model build,
// adaptive integration onto the output grid, mass-balance audit and
// exposure summarization. Cancellation via ctx yields a partial result
// with Cancelled set and a nil error.
func (o *Orchestrator) Run(ctx context.Context, sc Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	catalog := o.catalog
	if len(sc.ParamOverrides) > 0 {
		catalog = params.WithOverrides(catalog, sc.ParamOverrides)
	}

	res := &Result{Scenario: sc}

	report := supplement.Validate(o.registry, sc.Route, sc.Supplements, sc.SupplementDoses)
	for _, w := range report.Warnings {
		res.warnf("stack: %s", w.Message)
	}
	if !report.Admissible {
		return nil, StackError{Issues: report.Errors}
	}

	eng, err := o.buildEngine(catalog, sc)
	if err != nil {
		return nil, err
	}
	res.AppliedCoefficients = eng.AppliedCoefficients()

	v := params.NewView(catalog)
	doseUmol := sc.DoseMg / v.Float("compound."+sc.Compound+".molar_mass_g_per_mol") * 1000

	ageRef := v.Float("physiology.cd38_age_ref_y")
	ageSlope := v.Float("physiology.cd38_age_slope_per_y")
	cd38Scale := 1 + ageSlope*(sc.AgeYears-ageRef)
	if cd38Scale < 0.1 {
		cd38Scale = 0.1
	}

	sol := solverSettings{
		tolerance:   v.Float("solver.tolerance"),
		initialStep: v.Float("solver.initial_step_h"),
		minStep:     v.Float("solver.min_step_h"),
		warnDrift:   v.Float("conservation.warn_tolerance"),
		fatalDrift:  v.Float("conservation.fatal_threshold"),
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	system, err := physio.Build(catalog, physio.BuildConfig{
		Route:             sc.Route,
		Formulation:       sc.Formulation,
		DoseUmol:          doseUmol,
		PreissHandler:     sc.preissHandler(),
		CD38Scale:         cd38Scale,
		Sinks:             sc.Sinks,
		InfusionDurationH: sc.InfusionDurationH,
	}, eng.Multipliers)
	if err != nil {
		return nil, err
	}

	o.log.Debug("scenario built",
		"id", sc.ID, "route", sc.Route, "compound", sc.Compound,
		"dose_umol", doseUmol, "cd38_scale", cd38Scale,
		"states", system.Dim(), "stack", eng.ActiveIDs())

	err = o.integrate(ctx, sc, system, eng, sol, res)
	if err != nil {
		return res, err
	}

	o.summarize(catalog, sc, system, res)
	return res, nil
}

func (o *Orchestrator) buildEngine(catalog params.Catalog, sc Scenario) (*effect.Engine, error) {
	bounds, sg, scalars, err := effect.SettingsFromCatalog(catalog)
	if err != nil {
		return nil, err
	}

	defs := make([]supplement.Definition, 0, len(sc.Supplements))
	for _, id := range sc.Supplements {
		def, err := o.registry.Get(id)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return effect.NewEngine(effect.Config{
		Definitions:  defs,
		DosesMg:      sc.SupplementDoses,
		Rules:        o.registry.RulesFor(sc.Supplements),
		Overrides:    sc.RuleOverrides,
		ClassScalars: scalars,
		Bounds:       bounds,
		Safeguards:   sg,
	}), nil
}

// integrate advances the system with the adaptive stepper, landing
// exactly on every output grid point.
func (o *Orchestrator) integrate(ctx context.Context, sc Scenario, system *physio.System, eng *effect.Engine, sol solverSettings, res *Result) error {
	names := system.Index().Names()
	nOut := sc.OutputPoints
	interval := sc.HorizonH / float64(nOut-1)

	res.TimesH = make([]float64, 0, nOut)
	res.States = make(map[string][]float64, len(names))
	for _, n := range names {
		res.States[n] = make([]float64, 0, nOut)
	}
	res.MultSynthesis = make([]float64, 0, nOut)
	res.MultCD38 = make([]float64, 0, nOut)
	res.MultAbsorption = make([]float64, 0, nOut)
	res.ProxyUM = make(map[string][]float64, len(sc.Supplements))

	stepper := integrators.NewRK45()

	y := system.InitialState()
	conserved0 := system.ConservedTotal(y)
	t := 0.0
	dt := sol.initialStep

	negativeWarned := make(map[string]bool, len(names))
	record := func(t float64, y integrators.State) {
		res.TimesH = append(res.TimesH, t)
		for i, n := range names {
			val := y[i]
			if val < 0 {
				if val < -sol.tolerance && !negativeWarned[n] {
					res.warnf("numeric quality: state %s fell to %.3e at t=%.3f h, clamped", n, val, t)
					negativeWarned[n] = true
				}
				val = 0
			}
			res.States[n] = append(res.States[n], val)
		}
		mods := eng.Multipliers(t)
		res.MultSynthesis = append(res.MultSynthesis, mods.Synthesis)
		res.MultCD38 = append(res.MultCD38, mods.CD38)
		res.MultAbsorption = append(res.MultAbsorption, mods.Absorption)
		for _, id := range eng.ActiveIDs() {
			res.ProxyUM[id] = append(res.ProxyUM[id], eng.ProxyConcentration(id, t))
		}

		if conserved0 != 0 {
			drift := math.Abs(system.ConservedTotal(y)-conserved0) / math.Abs(conserved0)
			if drift > res.MaxDriftRelative {
				res.MaxDriftRelative = drift
			}
		}
	}

	record(t, y)

	for k := 1; k < nOut; k++ {
		tTarget := float64(k) * interval

		for t < tTarget {
			select {
			case <-ctx.Done():
				res.Cancelled = true
				res.warnf("run cancelled at t=%.3f h", t)
				o.log.Warn("run cancelled", "id", sc.ID, "t", t)
				return nil
			default:
			}

			h := dt
			if t+h > tTarget {
				h = tTarget - t
			}

			yNew, dtNext, errRatio := stepper.StepAdaptive(system, y, t, h, sol.tolerance)
			if errRatio > 1 && h > sol.minStep {
				// Reject and retry with the smaller proposed step.
				res.StepsRejected++
				dt = math.Max(dtNext, sol.minStep)
				continue
			}
			if !yNew.IsValid() {
				res.warnf("numeric quality: non-finite state at t=%.3f h", t)
				return ConservationError{TimeH: t, Relative: math.Inf(1), Limit: sol.fatalDrift}
			}

			y = yNew
			t += h
			dt = math.Max(dtNext, sol.minStep)
			res.StepsTaken++
		}

		t = tTarget
		record(t, y)

		if conserved0 != 0 && res.MaxDriftRelative > sol.fatalDrift {
			o.log.Error("mass conservation violated",
				"id", sc.ID, "t", t, "drift", res.MaxDriftRelative)
			return ConservationError{TimeH: t, Relative: res.MaxDriftRelative, Limit: sol.fatalDrift}
		}
	}

	if res.MaxDriftRelative > sol.warnDrift {
		res.warnf("mass balance: relative drift %.3e exceeds warning threshold %.3e",
			res.MaxDriftRelative, sol.warnDrift)
	}

	o.log.Info("run complete",
		"id", sc.ID, "steps", res.StepsTaken, "rejected", res.StepsRejected,
		"drift", res.MaxDriftRelative)
	return nil
}

// summarize converts the observable amount series to concentrations and
// computes their exposure metrics. Volume lookups that fail are skipped;
// the raw amount series always remain available.
func (o *Orchestrator) summarize(catalog params.Catalog, sc Scenario, system *physio.System, res *Result) {
	volumes := observableVolumes(catalog, system)

	res.Concentrations = make(map[string][]float64, len(volumes))
	res.Exposure = make(map[string]Exposure, len(volumes))

	for name, vol := range volumes {
		amounts, ok := res.States[name]
		if !ok || vol <= 0 {
			continue
		}
		conc := make([]float64, len(amounts))
		for i, a := range amounts {
			conc[i] = a / vol
		}
		res.Concentrations[name] = conc
		res.Exposure[name] = ComputeExposure(res.TimesH, conc)
	}
}

// observableVolumes maps the concentration-bearing states to their
// distribution volumes in liters.
func observableVolumes(catalog params.Catalog, system *physio.System) map[string]float64 {
	out := make(map[string]float64)
	add := func(name, key string) {
		v := params.NewView(catalog)
		vol := v.Float(key)
		if v.Err() == nil && vol > 0 {
			out[name] = vol
		}
	}

	for _, name := range system.Index().Names() {
		switch {
		case name == "plasma_precursor" || name == "plasma_nad" || name == "plasma_nam":
			add(name, "pbpk.volume.plasma_L")
		case len(name) > 8 && name[:8] == "nad_cyt_":
			add(name, "nad."+name[8:]+".cyt_volume_L")
		case len(name) > 9 && name[:9] == "nad_mito_":
			add(name, "nad."+name[9:]+".mito_volume_L")
		case len(name) > 10 && name[len(name)-10:] == "_precursor" && name != "plasma_precursor":
			add(name, "pbpk.volume."+name[:len(name)-10]+"_L")
		}
	}
	return out
}
