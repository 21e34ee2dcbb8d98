package routine

import (
	"errors"
	"fmt"
	"strings"
)

// Structural errors: malformed yield values and combinator payloads. They
// fail the yielding routine through the normal failure path.
var (
	ErrInvalidYield = errors.New("invalid yield value")
	ErrEmptyGroup   = errors.New("combinator group has no programs")
)

// Failure is a captured diagnostic: the original error plus an ordered trace
// of the routine and its ancestors at the moment of failure, innermost
// first, each entry naming the frame's program.
//
// A failure discovered in a child is adopted by the parent verbatim — the
// same *Failure travels up the tree untouched.
type Failure struct {
	msg   string
	trace []string
	cause error
}

func (f *Failure) Error() string {
	if len(f.trace) == 0 {
		return f.msg
	}
	return f.msg + " (in " + strings.Join(f.trace, " < ") + ")"
}

// Message returns the failure message without the trace suffix.
func (f *Failure) Message() string { return f.msg }

// Trace returns the captured frames, innermost first.
func (f *Failure) Trace() []string { return f.trace }

func (f *Failure) Unwrap() error { return f.cause }

// failureFrom wraps err into a Failure with a trace rooted at r. An err that
// already is a *Failure is adopted as-is.
func failureFrom(err error, r *Routine) *Failure {
	var f *Failure
	if errors.As(err, &f) && f != nil {
		return f
	}
	f = &Failure{msg: err.Error(), cause: err}
	for n := r; n != nil; n = n.parent {
		f.trace = append(f.trace, n.unit.name())
	}
	return f
}

// RunawayError is thrown (as a panic) when a routine performs more
// synchronous advances in a single step than the fixed ceiling allows. It
// signals a defect in synchronous program logic — a loop that never
// suspends — and is the one condition the scheduler does not swallow.
type RunawayError struct {
	Program string
	Steps   int
}

func (e *RunawayError) Error() string {
	return fmt.Sprintf("routine exceeded %d synchronous steps without suspending (program %s)", e.Steps, e.Program)
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
