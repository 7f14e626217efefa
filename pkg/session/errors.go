package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySetup is returned when Setup is called on a used session.
	ErrAlreadySetup = errors.New("session already set up")

	// ErrNotAnalyzing is returned when stepping outside the Analyzing state.
	ErrNotAnalyzing = errors.New("session is not analyzing")

	// ErrStepLimit is returned by Run when maxSteps is reached first.
	ErrStepLimit = errors.New("step limit reached before fixpoint")

	// ErrLookup is wrapped by every LookupError.
	ErrLookup = errors.New("node lookup failed")
)

// LookupError reports an unrecognized node label or id.
type LookupError struct {
	Ref    string
	Reason string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%v: %q: %s", ErrLookup, e.Ref, e.Reason)
}

func (e *LookupError) Unwrap() error { return ErrLookup }
