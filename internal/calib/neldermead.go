package calib

import (
	"context"
	"errors"
	"math"
	"sort"
)

// ErrObjective marks an objective evaluation failure; calibration treats
// it as fatal rather than silently skipping the trial point.
var ErrObjective = errors.New("calib: objective evaluation failed")

// Objective maps a trial coefficient vector to a scalar loss.
type Objective func(ctx context.Context, x []float64) (float64, error)

// nmOptions tunes the simplex search.
type nmOptions struct {
	maxIter int
	tol     float64
}

// clip projects x into the box [lo, hi] in place.
func clip(x, lo, hi []float64) {
	for i := range x {
		if x[i] < lo[i] {
			x[i] = lo[i]
		}
		if x[i] > hi[i] {
			x[i] = hi[i]
		}
	}
}

type vertex struct {
	x []float64
	f float64
}

// nelderMead minimizes f over the box [lo, hi] starting from x0 with a
// downhill simplex. Every trial point is projected back into the box, so
// the returned vector always satisfies the bounds. Returns the best
// point, its value, the iteration count and whether the simplex spread
// fell below tol.
func nelderMead(ctx context.Context, f Objective, x0, lo, hi []float64, opts nmOptions) ([]float64, float64, int, bool, error) {
	n := len(x0)

	const (
		alpha = 1.0 // reflection
		gamma = 2.0 // expansion
		rho   = 0.5 // contraction
		sigma = 0.5 // shrink
	)

	eval := func(x []float64) (float64, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		v, err := f(ctx, x)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) {
			return 0, ErrObjective
		}
		return v, nil
	}

	// Initial simplex: x0 plus one perturbed vertex per dimension, with
	// the perturbation scaled to the box width.
	simplex := make([]vertex, n+1)
	base := append([]float64(nil), x0...)
	clip(base, lo, hi)
	f0, err := eval(base)
	if err != nil {
		return nil, 0, 0, false, err
	}
	simplex[0] = vertex{x: base, f: f0}
	for i := 0; i < n; i++ {
		x := append([]float64(nil), base...)
		step := 0.1 * (hi[i] - lo[i])
		if step == 0 {
			step = 0.05
		}
		if x[i]+step > hi[i] {
			step = -step
		}
		x[i] += step
		clip(x, lo, hi)
		fi, err := eval(x)
		if err != nil {
			return nil, 0, 0, false, err
		}
		simplex[i+1] = vertex{x: x, f: fi}
	}

	iter := 0
	for ; iter < opts.maxIter; iter++ {
		sort.Slice(simplex, func(a, b int) bool { return simplex[a].f < simplex[b].f })

		if simplex[n].f-simplex[0].f < opts.tol {
			return simplex[0].x, simplex[0].f, iter, true, nil
		}

		// Centroid of all but the worst vertex.
		centroid := make([]float64, n)
		for _, v := range simplex[:n] {
			for i := range centroid {
				centroid[i] += v.x[i] / float64(n)
			}
		}

		trial := func(coef float64) ([]float64, float64, error) {
			x := make([]float64, n)
			for i := range x {
				x[i] = centroid[i] + coef*(centroid[i]-simplex[n].x[i])
			}
			clip(x, lo, hi)
			fx, err := eval(x)
			return x, fx, err
		}

		xr, fr, err := trial(alpha)
		if err != nil {
			return nil, 0, iter, false, err
		}

		switch {
		case fr < simplex[0].f:
			xe, fe, err := trial(gamma)
			if err != nil {
				return nil, 0, iter, false, err
			}
			if fe < fr {
				simplex[n] = vertex{x: xe, f: fe}
			} else {
				simplex[n] = vertex{x: xr, f: fr}
			}
		case fr < simplex[n-1].f:
			simplex[n] = vertex{x: xr, f: fr}
		default:
			xc, fc, err := trial(-rho)
			if err != nil {
				return nil, 0, iter, false, err
			}
			if fc < simplex[n].f {
				simplex[n] = vertex{x: xc, f: fc}
			} else {
				// Shrink toward the best vertex.
				for i := 1; i <= n; i++ {
					for j := range simplex[i].x {
						simplex[i].x[j] = simplex[0].x[j] + sigma*(simplex[i].x[j]-simplex[0].x[j])
					}
					clip(simplex[i].x, lo, hi)
					fi, err := eval(simplex[i].x)
					if err != nil {
						return nil, 0, iter, false, err
					}
					simplex[i].f = fi
				}
			}
		}
	}

	sort.Slice(simplex, func(a, b int) bool { return simplex[a].f < simplex[b].f })
	return simplex[0].x, simplex[0].f, iter, false, nil
}

// gridSeed evaluates a coarse axis grid over the box and returns the
// best point found, falling back to x0 when every evaluation fails the
// comparison. Points per axis grows the work exponentially, so callers
// keep it small.
func gridSeed(ctx context.Context, f Objective, x0, lo, hi []float64, pointsPerAxis int) ([]float64, float64, error) {
	best := append([]float64(nil), x0...)
	clip(best, lo, hi)
	bestF, err := f(ctx, best)
	if err != nil {
		return nil, 0, err
	}

	n := len(x0)
	current := make([]float64, n)
	var walk func(depth int) error
	walk = func(depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if depth == n {
			x := append([]float64(nil), current...)
			fx, err := f(ctx, x)
			if err != nil {
				return err
			}
			if fx < bestF {
				bestF = fx
				best = x
			}
			return nil
		}
		for k := 0; k < pointsPerAxis; k++ {
			frac := 0.5
			if pointsPerAxis > 1 {
				frac = float64(k) / float64(pointsPerAxis-1)
			}
			current[depth] = lo[depth] + frac*(hi[depth]-lo[depth])
			if err := walk(depth + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return nil, 0, err
	}
	return best, bestF, nil
}
