package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is returned in place of a panic recovered during fitting or
// inference. It keeps the original value and the goroutine stack.
type PanicError struct {
	PanicValue interface{}
	StackTrace string
	Operation  string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.PanicValue)
}

// String includes the captured stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("%s\nStack trace:\n%s", e.Error(), e.StackTrace)
}

// NewPanicError captures the current stack for the given panic value.
func NewPanicError(operation string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Operation:  operation,
	}
}

// Recover converts a panic into an error assigned to *err. It must be
// deferred directly:
//
//	func (f *RandomForestRegressor) Fit(X, y mat.Matrix) (err error) {
//	    defer errors.Recover(&err, "RandomForestRegressor.Fit")
//	    ...
//	}
//
// When *err already holds an error the panic is recorded as a wrapper so
// errors.Is still reaches the original.
func Recover(err *error, operation string) {
	r := recover()
	if r == nil {
		return
	}
	if *err != nil {
		*err = Wrapf(*err, "panic in %s: %v", operation, r)
		return
	}
	*err = NewPanicError(operation, r)
}

// SafeExecute runs fn and turns a panic into a *PanicError.
func SafeExecute(operation string, fn func() error) (err error) {
	defer Recover(&err, operation)
	return fn()
}
