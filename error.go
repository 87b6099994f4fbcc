package jserror

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error represents a JavaScript error with detailed information.
type Error struct {
	Name    string // Error name (e.g., "TypeError", "ReferenceError")
	Message string // Error message
	Cause   string // Error cause
	Stack   string // Stack trace
}

// Error implements the error interface.
func (err *Error) Error() string {
	if err.Cause != "" {
		return fmt.Sprintf("%s: %s (cause: %s)", err.Name, err.Message, err.Cause)
	}
	return fmt.Sprintf("%s: %s", err.Name, err.Message)
}

// Exception is a thrown script value travelling through Go as an error.
type Exception struct {
	val       Value
	catchable bool
}

func newException(v Value) *Exception {
	catchable := true
	if v.obj != nil && v.obj.err != nil {
		catchable = v.obj.err.catchable
	}
	return &Exception{val: v, catchable: catchable}
}

// Error implements the error interface.
func (e *Exception) Error() string {
	if e.val.IsError() {
		if s, ok := e.val.obj.ownDataString(AtomStack); ok {
			return s
		}
	}
	return e.val.String()
}

// Value returns the thrown value.
func (e *Exception) Value() Value { return e.val }

// Catchable reports whether a script-level handler may intercept the
// exception.
func (e *Exception) Catchable() bool { return e.catchable }

// Catch returns the thrown value when err is an exception script may catch.
// Uncatchable exceptions and Go-level failures such as ErrOutOfMemory yield
// false and must be propagated.
func Catch(err error) (Value, bool) {
	var exc *Exception
	if errors.As(err, &exc) && exc.catchable {
		return exc.val, true
	}
	return Value{}, false
}

// IsUncatchable reports whether err must bypass every script-level handler.
func IsUncatchable(err error) bool {
	if err == nil {
		return false
	}
	_, ok := Catch(err)
	return !ok
}
