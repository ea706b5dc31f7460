package instrument

import (
	"errors"
	"fmt"
)

// ErrInstrumentation is wrapped by every error returned when a source file
// cannot be lowered or parsed.
var ErrInstrumentation = errors.New("instrumentation failed")

// InstrumentationError locates a parse failure in the original file.
type InstrumentationError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *InstrumentationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

func (e *InstrumentationError) Unwrap() error { return ErrInstrumentation }
