package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is wrapped by every ConfigurationError.
	ErrConfiguration = errors.New("analysis configuration error")

	// ErrClientAnalysis is wrapped by every ClientError.
	ErrClientAnalysis = errors.New("client analysis error")
)

// ConfigurationError aborts setup before any processing: an unreadable
// program path, or an analysis that is missing or cannot be constructed.
type ConfigurationError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := e.Reason
	if e.Name != "" {
		msg = fmt.Sprintf("%s: %s", e.Name, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrConfiguration, msg, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrConfiguration, msg)
}

func (e *ConfigurationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfiguration, e.Err}
	}
	return []error{ErrConfiguration}
}

// Op names a contract operation.
type Op string

const (
	OpPrepare Op = "prepare"
	OpProcess Op = "process"
	OpQuery   Op = "query"
)

// ClientError is a failure raised inside an analysis call.
type ClientError struct {
	Analysis string
	Op       Op
	Err      error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Analysis, e.Op, e.Err)
}

func (e *ClientError) Unwrap() []error {
	return []error{ErrClientAnalysis, e.Err}
}

// PanicError carries a value recovered from a panicking analysis call.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes a panicked error value.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Guard runs fn and converts a returned error or a panic into a ClientError.
func Guard(name string, op Op, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ClientError{Analysis: name, Op: op, Err: &PanicError{Value: r}}
		}
	}()
	if cerr := fn(); cerr != nil {
		return &ClientError{Analysis: name, Op: op, Err: cerr}
	}
	return nil
}
