// Package integrators provides the numeric methods driving the
// pharmacokinetic ODE core: a fixed-step RK4 and an adaptive
// Dormand-Prince RK45 suited to the stiffness introduced by fast
// enzymatic sinks.
package integrators

import "math"

// State is the flat ODE state vector (amounts in umol).
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// System is an autonomous-or-not ODE right-hand side dy/dt = f(t, y).
type System interface {
	Derive(t float64, y State) State
	Dim() int
}

// Stepper advances a system by a fixed step.
type Stepper interface {
	Step(sys System, y State, t, dt float64) State
}

// AdaptiveStepper additionally estimates local error and proposes the
// next step size.
type AdaptiveStepper interface {
	Stepper
	// StepAdaptive returns the new state, the proposed next step and the
	// scaled local error estimate (err <= 1 means the step is acceptable
	// at the given tolerance).
	StepAdaptive(sys System, y State, t, dt, tol float64) (State, float64, float64)
}
