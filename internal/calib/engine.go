// Package calib fits interaction-rule coefficients against observed
// concentration trajectories by repeated forward simulation: a coarse
// grid seed followed by a bounded downhill simplex, with a Gaussian
// prior tying each coefficient to its literature estimate.
package calib

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nutrakinetics/nadsim/internal/logger"
	"github.com/nutrakinetics/nadsim/internal/sim"
	"github.com/nutrakinetics/nadsim/internal/supplement"
)

// Fit completion statuses.
const (
	StatusConverged    = "converged"
	StatusNotConverged = "not_converged"
	StatusCancelled    = "cancelled"
)

var (
	ErrNoObservations = errors.New("calib: no observations")
	ErrNoFreeRules    = errors.New("calib: no fittable rules for the supplement stack")
)

// Observation is one measured point of the target series.
type Observation struct {
	TimeH   float64 `json:"time_h" yaml:"time_h"`
	ValueUM float64 `json:"value_uM" yaml:"value_uM"`
}

// Options tunes the fit. Zero values select the defaults.
type Options struct {
	MaxIter     int
	Tol         float64
	GridPerAxis int
	PriorWeight float64
}

func (o Options) withDefaults(dims int) Options {
	if o.MaxIter <= 0 {
		o.MaxIter = 200
	}
	if o.Tol <= 0 {
		o.Tol = 1e-8
	}
	if o.GridPerAxis <= 0 {
		if dims <= 2 {
			o.GridPerAxis = 5
		} else {
			o.GridPerAxis = 3
		}
	}
	if o.PriorWeight <= 0 {
		o.PriorWeight = 0.01
	}
	return o
}

// FitResult records a completed (or interrupted) calibration.
type FitResult struct {
	Target       string             `json:"target"`
	RuleIDs      []string           `json:"rule_ids"`
	Coefficients map[string]float64 `json:"coefficients"`
	Objective    float64            `json:"objective"`
	Iterations   int                `json:"iterations"`
	Evaluations  int                `json:"evaluations"`
	Status       string             `json:"status"`
	FittedAt     time.Time          `json:"fitted_at"`
}

// Engine drives calibration through the forward simulator.
type Engine struct {
	orch     *sim.Orchestrator
	registry *supplement.Registry
	log      *logger.Logger
}

func NewEngine(orch *sim.Orchestrator, registry *supplement.Registry, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{orch: orch, registry: registry, log: log}
}

// Fit estimates the coefficients of the given rules (all fittable rules
// of the scenario's stack when ruleIDs is empty) so the simulated target
// concentration series best matches the observations. The scenario is
// used as the fixed experimental design; only rule overrides vary.
func (e *Engine) Fit(ctx context.Context, sc sim.Scenario, target string, obs []Observation, ruleIDs []string, opts Options) (*FitResult, error) {
	if len(obs) == 0 {
		return nil, ErrNoObservations
	}

	rules, err := e.resolveRules(sc, ruleIDs)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults(len(rules))

	obs = append([]Observation(nil), obs...)
	sort.Slice(obs, func(i, j int) bool { return obs[i].TimeH < obs[j].TimeH })
	if obs[0].TimeH < 0 || obs[len(obs)-1].TimeH > sc.HorizonH {
		return nil, fmt.Errorf("calib: observation times outside [0, %g] h", sc.HorizonH)
	}

	x0 := make([]float64, len(rules))
	lo := make([]float64, len(rules))
	hi := make([]float64, len(rules))
	for i, r := range rules {
		x0[i] = r.Coefficient
		lo[i] = r.LowerBound
		hi[i] = r.UpperBound
	}

	evaluations := 0
	objective := func(ctx context.Context, x []float64) (float64, error) {
		evaluations++
		return e.loss(ctx, sc, target, obs, rules, x, opts.PriorWeight)
	}

	e.log.Info("calibration started",
		"scenario", sc.ID, "target", target,
		"rules", ruleNames(rules), "observations", len(obs))

	seed, seedF, err := gridSeed(ctx, objective, x0, lo, hi, opts.GridPerAxis)
	if err != nil {
		return e.finish(nil, rules, 0, evaluations, target, err)
	}

	best, bestF, iters, converged, err := nelderMead(ctx, objective, seed, lo, hi, nmOptions{maxIter: opts.MaxIter, tol: opts.Tol})
	if err != nil {
		return e.finish(nil, rules, iters, evaluations, target, err)
	}
	if seedF < bestF {
		best, bestF = seed, seedF
	}

	status := StatusNotConverged
	if converged {
		status = StatusConverged
	}

	res := &FitResult{
		Target:       target,
		RuleIDs:      ruleNames(rules),
		Coefficients: coefficientMap(rules, best),
		Objective:    bestF,
		Iterations:   iters,
		Evaluations:  evaluations,
		Status:       status,
		FittedAt:     time.Now().UTC(),
	}
	e.log.Info("calibration finished",
		"status", status, "objective", bestF,
		"iterations", iters, "evaluations", evaluations)
	return res, nil
}

// finish classifies a terminal error: cancellation yields a partial
// result, everything else propagates.
func (e *Engine) finish(_ []float64, rules []supplement.Rule, iters, evals int, target string, err error) (*FitResult, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		e.log.Warn("calibration cancelled", "iterations", iters, "evaluations", evals)
		return &FitResult{
			Target:      target,
			RuleIDs:     ruleNames(rules),
			Iterations:  iters,
			Evaluations: evals,
			Status:      StatusCancelled,
			FittedAt:    time.Now().UTC(),
		}, nil
	}
	return nil, err
}

func (e *Engine) resolveRules(sc sim.Scenario, ruleIDs []string) ([]supplement.Rule, error) {
	if len(ruleIDs) == 0 {
		rules := e.registry.FittableRulesFor(sc.Supplements)
		if len(rules) == 0 {
			return nil, ErrNoFreeRules
		}
		return rules, nil
	}
	rules := make([]supplement.Rule, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		r, ok := e.registry.RuleByID(id)
		if !ok {
			return nil, fmt.Errorf("calib: unknown rule %q", id)
		}
		if !r.FitEnabled || r.Kind == supplement.KindCaution {
			return nil, fmt.Errorf("calib: rule %q is not fittable", id)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// loss is the sum of squared residuals at the observation times plus the
// Gaussian prior penalty on the trial coefficients.
func (e *Engine) loss(ctx context.Context, sc sim.Scenario, target string, obs []Observation, rules []supplement.Rule, x []float64, priorWeight float64) (float64, error) {
	trial := sc
	trial.RuleOverrides = make(map[string]float64, len(sc.RuleOverrides)+len(rules))
	for k, v := range sc.RuleOverrides {
		trial.RuleOverrides[k] = v
	}
	for i, r := range rules {
		trial.RuleOverrides[r.ID] = x[i]
	}

	res, err := e.orch.Run(ctx, trial)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrObjective, err)
	}
	if res.Cancelled {
		return 0, ctx.Err()
	}

	series, err := res.ConcentrationSeries(target)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrObjective, err)
	}

	ssr := 0.0
	for _, ob := range obs {
		pred := interpolate(res.TimesH, series, ob.TimeH)
		d := pred - ob.ValueUM
		ssr += d * d
	}

	penalty := 0.0
	for i, r := range rules {
		if r.PriorSD > 0 {
			z := (x[i] - r.PriorMean) / r.PriorSD
			penalty += z * z
		}
	}
	return ssr + priorWeight*penalty, nil
}

// interpolate linearly evaluates the series at t, holding the end values
// outside the grid.
func interpolate(times, values []float64, t float64) float64 {
	if len(times) == 0 {
		return math.NaN()
	}
	if t <= times[0] {
		return values[0]
	}
	if t >= times[len(times)-1] {
		return values[len(values)-1]
	}
	i := sort.SearchFloat64s(times, t)
	t0, t1 := times[i-1], times[i]
	v0, v1 := values[i-1], values[i]
	if t1 == t0 {
		return v0
	}
	return v0 + (v1-v0)*(t-t0)/(t1-t0)
}

func ruleNames(rules []supplement.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.ID
	}
	return out
}

func coefficientMap(rules []supplement.Rule, x []float64) map[string]float64 {
	out := make(map[string]float64, len(rules))
	for i, r := range rules {
		out[r.ID] = x[i]
	}
	return out
}
