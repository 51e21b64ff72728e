// Package failure defines the closed set of errors an evaluation can end with.
//
// Callers only ever see three kinds: *CompilationError when the toolchain rejects a unit,
// *RedefinitionError when a unit name is already loaded, and *RuntimeFailure for
// everything else. Normalize maps arbitrary pipeline errors onto that set.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// CompilationError carries the toolchain's diagnostics for a rejected unit.
type CompilationError struct {
	Unit        string
	ExitCode    int
	Diagnostics string
}

func (e *CompilationError) Error() string {
	diag := strings.TrimSpace(e.Diagnostics)
	if diag == "" {
		return fmt.Sprintf("compilation of %s failed with exit code %d", e.Unit, e.ExitCode)
	}
	return fmt.Sprintf("compilation of %s failed: %s", e.Unit, diag)
}

// RedefinitionError reports a unit name that is already loaded in the session scope.
type RedefinitionError struct {
	Name string
}

func (e *RedefinitionError) Error() string {
	return fmt.Sprintf("%s is already defined in this session; reset to redefine it", e.Name)
}

// RuntimeFailure wraps any failure that is neither a compilation nor a redefinition error.
type RuntimeFailure struct {
	Cause error
}

func (e *RuntimeFailure) Error() string {
	if e.Cause == nil {
		return "runtime failure"
	}
	return "runtime failure: " + e.Cause.Error()
}

func (e *RuntimeFailure) Unwrap() error { return e.Cause }

// PanicError is a panic raised by the snippet inside the guest.
type PanicError struct {
	Value string
}

func (e *PanicError) Error() string {
	return "panic: " + e.Value
}

// ExitError is a guest that terminated with a non-zero exit code.
type ExitError struct {
	Code   uint32
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("guest exited with code %d", e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// DeepestCause follows the Unwrap chain to its end. For joined errors the first branch
// is followed.
func DeepestCause(err error) error {
	for err != nil {
		var next error
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next = u.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := u.Unwrap(); len(errs) > 0 {
				next = errs[0]
			}
		}
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// Normalize maps err onto the closed failure set. Compilation and redefinition errors
// anywhere in the chain are returned as is; everything else becomes a RuntimeFailure
// carrying the deepest cause.
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	var compErr *CompilationError
	if errors.As(err, &compErr) {
		return compErr
	}
	var redefErr *RedefinitionError
	if errors.As(err, &redefErr) {
		return redefErr
	}
	var rtErr *RuntimeFailure
	if errors.As(err, &rtErr) {
		return rtErr
	}
	return &RuntimeFailure{Cause: DeepestCause(err)}
}

// FromPanic converts a recovered panic value into a RuntimeFailure.
func FromPanic(r any) error {
	if err, ok := r.(error); ok {
		return &RuntimeFailure{Cause: DeepestCause(err)}
	}
	return &RuntimeFailure{Cause: fmt.Errorf("%v", r)}
}
