package integrators

import (
	"math"
	"testing"
)

// harmonic oscillator: y'' = -y, analytic solution cos/sin.
type oscillator struct{}

func (oscillator) Derive(t float64, y State) State {
	return State{y[1], -y[0]}
}

func (oscillator) Dim() int { return 2 }

// firstOrderDecay: y' = -k*y with k stiff enough to stress step control.
type firstOrderDecay struct{ k float64 }

func (d firstOrderDecay) Derive(t float64, y State) State {
	return State{-d.k * y[0]}
}

func (d firstOrderDecay) Dim() int { return 1 }

func TestRK4Accuracy(t *testing.T) {
	sys := oscillator{}
	integ := NewRK4()

	y := State{1.0, 0.0}
	dt := 0.01
	steps := 100

	for i := 0; i < steps; i++ {
		y = integ.Step(sys, y, float64(i)*dt, dt)
	}

	expectedPos := math.Cos(float64(steps) * dt)
	expectedVel := -math.Sin(float64(steps) * dt)

	if math.Abs(y[0]-expectedPos) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", y[0], expectedPos)
	}
	if math.Abs(y[1]-expectedVel) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", y[1], expectedVel)
	}
}

func TestRK45AdaptiveAccuracy(t *testing.T) {
	sys := oscillator{}
	integ := NewRK45()

	y := State{1.0, 0.0}
	t0 := 0.0
	end := 2.0
	dt := 0.1
	tol := 1e-8

	for t0 < end {
		if t0+dt > end {
			dt = end - t0
		}
		newY, dtNext, errRatio := integ.StepAdaptive(sys, y, t0, dt, tol)
		if errRatio > 1 {
			dt = dtNext
			continue
		}
		y = newY
		t0 += dt
		dt = dtNext
	}

	if math.Abs(y[0]-math.Cos(end)) > 1e-6 {
		t.Errorf("adaptive position error too large: got %.8f, expected %.8f", y[0], math.Cos(end))
	}
}

func TestRK45ShrinksStepOnStiffSink(t *testing.T) {
	sys := firstOrderDecay{k: 500}
	integ := NewRK45()

	_, dtNext, errRatio := integ.StepAdaptive(sys, State{1.0}, 0, 0.1, 1e-8)
	if errRatio <= 1 {
		t.Fatal("expected the oversized step to be rejected")
	}
	if dtNext >= 0.1 {
		t.Errorf("expected a smaller proposed step, got %f", dtNext)
	}
}

func TestStateValidity(t *testing.T) {
	if !(State{1, 2, 3}).IsValid() {
		t.Error("finite state reported invalid")
	}
	if (State{1, math.NaN()}).IsValid() {
		t.Error("NaN state reported valid")
	}
	if (State{math.Inf(1)}).IsValid() {
		t.Error("Inf state reported valid")
	}
}

func TestStateCloneIndependent(t *testing.T) {
	orig := State{1, 2}
	clone := orig.Clone()
	clone[0] = 99
	if orig[0] != 1 {
		t.Error("clone shares backing storage with original")
	}
}
