package sim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nutrakinetics/nadsim/internal/supplement"
)

var (
	// ErrInvalidScenario marks a scenario that fails structural checks
	// before any model is built.
	ErrInvalidScenario = errors.New("sim: invalid scenario")

	// ErrInadmissibleStack marks a supplement selection rejected by the
	// interaction validator.
	ErrInadmissibleStack = errors.New("sim: inadmissible supplement stack")

	// ErrConservationViolated marks a run aborted because numeric mass
	// drift exceeded the fatal threshold.
	ErrConservationViolated = errors.New("sim: mass conservation violated")
)

// ScenarioError carries the field-level reason a scenario was rejected.
type ScenarioError struct {
	Field  string
	Reason string
}

func (e ScenarioError) Error() string {
	return fmt.Sprintf("sim: invalid scenario: %s: %s", e.Field, e.Reason)
}

func (e ScenarioError) Unwrap() error { return ErrInvalidScenario }

// StackError wraps the blocking validation issues for an inadmissible
// supplement selection.
type StackError struct {
	Issues []supplement.Issue
}

func (e StackError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Message)
	}
	return "sim: inadmissible supplement stack: " + strings.Join(msgs, "; ")
}

func (e StackError) Unwrap() error { return ErrInadmissibleStack }

// ConservationError reports where the drift check failed.
type ConservationError struct {
	TimeH    float64
	Relative float64
	Limit    float64
}

func (e ConservationError) Error() string {
	return fmt.Sprintf("sim: mass conservation violated at t=%.3f h: relative drift %.3e exceeds %.3e",
		e.TimeH, e.Relative, e.Limit)
}

func (e ConservationError) Unwrap() error { return ErrConservationViolated }
