package cfg

import (
	"errors"
	"fmt"

	"github.com/l3aro/go-sleuth/pkg/lingo"
)

// ErrMalformedCommand is wrapped by every MalformedError.
var ErrMalformedCommand = errors.New("malformed command graph")

// MalformedError reports a broken structural link in the command graph.
type MalformedError struct {
	Command lingo.Command
	Reason  string
}

func (e *MalformedError) Error() string {
	if e.Command == nil {
		return fmt.Sprintf("%v: %s", ErrMalformedCommand, e.Reason)
	}
	return fmt.Sprintf("%v: %q: %s", ErrMalformedCommand, e.Command.String(), e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedCommand }

func malformed(cmd lingo.Command, format string, args ...any) *MalformedError {
	return &MalformedError{Command: cmd, Reason: fmt.Sprintf(format, args...)}
}
