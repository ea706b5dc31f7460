package serialize

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Frame is a single parsed stack frame.
type Frame struct {
	Name       string `json:"name"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	SourceText string `json:"source_text,omitempty"`
}

// Traceback is the transmissible form of a raised error.
type Traceback struct {
	Message string  `json:"message"`
	Frames  []Frame `json:"frames"`
}

// SourceLookup maps a frame location in executed code to the line in the
// original source and that line's text. ok is false when file is unknown.
type SourceLookup func(file string, line int) (origLine int, text string, ok bool)

// Stacker is implemented by errors that carry a textual stack.
type Stacker interface {
	Stack() string
}

var frameRe = regexp.MustCompile(`^\s*at\s+(?:(.*?)\s+\((.+?):(\d+):(\d+)(?:\(\d+\))?\)|(.+?):(\d+):(\d+)(?:\(\d+\))?)\s*$`)

// FormatError converts err into a Traceback. Frames come from the error's
// Stack() when it has one, otherwise from the lines of its message.
func FormatError(err error, lookup SourceLookup) *Traceback {
	if err == nil {
		return nil
	}
	msg := err.Error()
	stack := msg
	var s Stacker
	if errors.As(err, &s) {
		stack = s.Stack()
	}
	if first, _, ok := strings.Cut(msg, "\n"); ok {
		msg = first
	}
	return &Traceback{
		Message: msg,
		Frames:  ParseStack(stack, lookup),
	}
}

// ParseStack extracts frames from a goja or V8 style stack. Lines that do not
// look like frames are skipped.
func ParseStack(stack string, lookup SourceLookup) []Frame {
	frames := []Frame{}
	for _, line := range strings.Split(stack, "\n") {
		m := frameRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		f := Frame{Name: strings.TrimSpace(m[1])}
		file, lineStr := m[2], m[3]
		if file == "" {
			file, lineStr = m[5], m[6]
		}
		n, err := strconv.Atoi(lineStr)
		if err != nil {
			continue
		}
		f.File, f.Line = strings.TrimSpace(file), n
		if f.Name == "" {
			f.Name = "<anonymous>"
		}
		if lookup != nil {
			if orig, text, ok := lookup(f.File, f.Line); ok {
				f.Line, f.SourceText = orig, strings.TrimSpace(text)
			}
		}
		frames = append(frames, f)
	}
	return frames
}

// String renders the traceback the way a script author reads it.
func (t *Traceback) String() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(t.Message)
	for _, f := range t.Frames {
		b.WriteString("\n  at ")
		b.WriteString(f.Name)
		b.WriteString(" (")
		b.WriteString(f.File)
		b.WriteString(":")
		b.WriteString(strconv.Itoa(f.Line))
		b.WriteString(")")
		if f.SourceText != "" {
			b.WriteString("\n      ")
			b.WriteString(f.SourceText)
		}
	}
	return b.String()
}
