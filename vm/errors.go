package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/javelin/bytecode"
)

// ---------------------------------------------------------------------------
// Error categories
// ---------------------------------------------------------------------------

// Every specific error below wraps exactly one category, so callers can test
// errors.Is(err, ErrCapacity) without knowing the individual conditions.
var (
	ErrResolution = errors.New("resolution error")
	ErrCapacity   = errors.New("capacity error")
	ErrExecution  = errors.New("execution error")
)

func categorized(category error, msg string) error {
	return fmt.Errorf("%w: %s", category, msg)
}

// Resolution errors
var (
	ErrClassNotFound    = categorized(ErrResolution, "class not found")
	ErrFieldNotFound    = categorized(ErrResolution, "field not found")
	ErrMethodNotFound   = categorized(ErrResolution, "method not found")
	ErrClassConflict    = categorized(ErrResolution, "conflicting class definitions")
	ErrClassCircularity = categorized(ErrResolution, "class circularity")
	ErrIncompatible     = categorized(ErrResolution, "incompatible member")
)

// Capacity errors
var (
	ErrStackOverflow = categorized(ErrCapacity, "stack overflow")
	ErrHeapExhausted = categorized(ErrCapacity, "heap exhausted")
	ErrOutOfMemory   = categorized(ErrCapacity, "out of memory")
)

// Execution errors
var (
	ErrDivisionByZero = categorized(ErrExecution, "division by zero")
	ErrStackUnderflow = categorized(ErrExecution, "operand stack underflow")
	ErrCodeOverrun    = categorized(ErrExecution, "program counter ran past end of code")
	ErrNotSupported   = categorized(ErrExecution, "not supported")
	ErrNullReference  = categorized(ErrExecution, "null reference")
	ErrAbstractMethod = categorized(ErrExecution, "abstract method invoked")
	ErrBadConstant    = categorized(ErrExecution, "unusable constant")
	ErrOutOfBounds    = categorized(ErrExecution, "index out of bounds")
)

// ---------------------------------------------------------------------------
// ExecError
// ---------------------------------------------------------------------------

// ExecError reports a fatal condition raised while interpreting a method.
type ExecError struct {
	Class  string
	Method string // name + descriptor
	PC     int    // instruction index
	Op     bytecode.Opcode
	Err    error
}

func (e *ExecError) Error() string {
	if e.Method == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s.%s pc %d (%s): %v", e.Class, e.Method, e.PC, e.Op, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// trap carries an error out of the interpreter loop. It is recovered at the
// invocation boundary and never escapes the package.
type trap struct {
	err error
}

func throw(err error) {
	panic(trap{err: err})
}

func throwf(err error, format string, args ...any) {
	panic(trap{err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)})
}
