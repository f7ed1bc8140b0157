package supplement

import (
	"errors"
	"fmt"
)

// Domain errors for registry operations.
var (
	// ErrDuplicateSupplement indicates a second Register call for an id.
	ErrDuplicateSupplement = errors.New("supplement: duplicate supplement id")

	// ErrUnknownSupplement indicates an id with no registry entry.
	ErrUnknownSupplement = errors.New("supplement: unknown supplement id")

	// ErrMalformedRule indicates an interaction rule with an invalid
	// target, kind, severity or bound ordering.
	ErrMalformedRule = errors.New("supplement: malformed interaction rule")
)

type DuplicateSupplementError struct {
	ID string
}

func (e *DuplicateSupplementError) Error() string {
	return fmt.Sprintf("supplement: duplicate supplement id %q", e.ID)
}

func (e *DuplicateSupplementError) Unwrap() error { return ErrDuplicateSupplement }

type UnknownSupplementError struct {
	ID string
}

func (e *UnknownSupplementError) Error() string {
	return fmt.Sprintf("supplement: unknown supplement id %q", e.ID)
}

func (e *UnknownSupplementError) Unwrap() error { return ErrUnknownSupplement }
