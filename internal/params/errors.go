package params

import (
	"errors"
	"fmt"
)

// Domain errors for catalog operations.
var (
	// ErrUnknownParameter indicates a lookup key with no catalog record.
	ErrUnknownParameter = errors.New("params: unknown parameter key")

	// ErrMalformedCatalog indicates a catalog document that failed to parse
	// or whose leaf nodes are missing the required value field.
	ErrMalformedCatalog = errors.New("params: malformed catalog document")
)

// UnknownParameterError carries the missing key. Unresolved keys are a fatal
// configuration error, never a silent default.
type UnknownParameterError struct {
	Key string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("params: unknown parameter key %q", e.Key)
}

func (e *UnknownParameterError) Unwrap() error { return ErrUnknownParameter }
