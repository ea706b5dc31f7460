package engine

import (
	"errors"

	"github.com/dop251/goja"
)

var (
	// ErrModuleNotFound is returned when require cannot resolve a specifier.
	ErrModuleNotFound = errors.New("module not found")
	// ErrExportNotFound is returned when the entry point names a function the
	// module does not export.
	ErrExportNotFound = errors.New("export not found")
	// ErrStopped is returned for work submitted after Close.
	ErrStopped = errors.New("engine stopped")
)

// ScriptError is an exception raised by script code, or a promise rejected
// with a value.
type ScriptError struct {
	Message string
	stack   string
	cause   error
}

func (e *ScriptError) Error() string { return e.Message }

// Stack returns the script stack as rendered by the runtime.
func (e *ScriptError) Stack() string { return e.stack }

// Unwrap returns the Go error a native function threw, if any.
func (e *ScriptError) Unwrap() error { return e.cause }

// reasonError converts a thrown or rejected value.
func reasonError(v goja.Value) *ScriptError {
	if v == nil || goja.IsUndefined(v) {
		return &ScriptError{Message: "undefined"}
	}
	se := &ScriptError{Message: v.String()}
	obj, ok := v.(*goja.Object)
	if !ok {
		return se
	}
	if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) && !goja.IsNull(s) {
		se.stack = s.String()
	}
	if inner := obj.Get("value"); inner != nil {
		if err, ok := inner.Export().(error); ok {
			se.cause = err
		}
	}
	return se
}

// scriptError converts an error returned by the runtime. Exceptions become
// *ScriptError; anything else (interrupts, stack overflow) passes through.
func scriptError(err error) error {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err
	}
	se := reasonError(ex.Value())
	if se.stack == "" {
		se.stack = ex.String()
	}
	return se
}
