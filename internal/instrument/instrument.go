// Package instrument rewrites user scripts so that every awaited call that
// leaves the script goes through the runtime's call indirection.
package instrument

import (
	"errors"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// Class is the instrumentation classification of a call-site.
type Class int

const (
	// Internal calls are left untouched.
	Internal Class = iota
	// PlatformSyscall calls are redirected to the syscalls facade.
	PlatformSyscall
	// Durable calls are redirected through the call indirection.
	Durable
)

func (c Class) String() string {
	switch c {
	case PlatformSyscall:
		return "platform-syscall"
	case Durable:
		return "durable"
	default:
		return "internal"
	}
}

// Site describes one awaited call-site and how it was classified.
type Site struct {
	Line   int
	Callee string
	Class  Class
}

// Result is an instrumented file.
type Result struct {
	File  string
	Code  string
	Sites []Site
	lines []int
}

// OriginalLine maps a 1-based line of Code to the original source, or 0.
func (r *Result) OriginalLine(line int) int {
	if r == nil || line < 1 || line > len(r.lines) {
		return 0
	}
	return r.lines[line-1]
}

type options struct {
	callExpr       string
	namedExpr      string
	optionalExpr   string
	syscallsExpr   string
	namespace      string
	platformModule string
	safe           map[string]bool
}

// Option configures Instrument.
type Option func(*options)

// WithContextExpr sets the object the rewritten code reaches the runtime
// through. Durable calls go to <expr>.call, <expr>.named and <expr>.optional,
// platform syscalls to <expr>.syscalls.
func WithContextExpr(expr string) Option {
	return func(o *options) {
		o.callExpr = expr + ".call"
		o.namedExpr = expr + ".named"
		o.optionalExpr = expr + ".optional"
		o.syscallsExpr = expr + ".syscalls"
	}
}

// WithNamespace sets the reserved platform namespace identifier and the
// module it is imported from.
func WithNamespace(ident, module string) Option {
	return func(o *options) {
		o.namespace = ident
		o.platformModule = module
	}
}

// WithSafeCallees marks callees (as written, e.g. "crypto.randomUUID") that
// may run directly without interception.
func WithSafeCallees(names ...string) Option {
	return func(o *options) {
		for _, n := range names {
			o.safe[strings.TrimSpace(n)] = true
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		namespace:      "ak",
		platformModule: "autokitteh",
		safe:           make(map[string]bool),
	}
	WithContextExpr("__ak")(o)
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Instrument lowers src to CommonJS, classifies every awaited call and
// returns the rewritten code. It does not touch the filesystem.
func Instrument(filename, src string, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	low, err := lower(filename, src)
	if err != nil {
		return nil, err
	}
	prog, err := parse(filename, low)
	if err != nil {
		return nil, err
	}

	a := analyze(prog, o)
	rw := newRewriter(low.code, prog.File.Base(), o)
	sites := make([]Site, 0, len(a.sites))
	for _, s := range a.sites {
		start := rw.offset(s.call.Callee.Idx0())
		callee := calleeText(low.code, rw, s.call)
		sites = append(sites, Site{
			Line:   low.lines[lineOf(low.code, start)-1],
			Callee: callee,
			Class:  s.class,
		})
		name := declaredName(s.call.Callee)
		if name == "" {
			name = callee
		}
		switch {
		case s.class == Durable && s.optional:
			rw.optionalDurable(s.call, name)
		case s.class == Durable:
			rw.durable(s.call, name)
		case s.class == PlatformSyscall:
			rw.syscall(s.call)
		}
	}
	for _, n := range a.imports {
		rw.dropImport(n)
	}
	sort.SliceStable(sites, func(i, j int) bool { return sites[i].Line < sites[j].Line })

	return &Result{
		File:  filename,
		Code:  rw.output(),
		Sites: sites,
		lines: low.lines,
	}, nil
}

func parse(filename string, low *lowered) (*ast.Program, error) {
	prog, err := parser.ParseFile(nil, filename, low.code, 0, parser.WithDisableSourceMaps)
	if err == nil {
		return prog, nil
	}
	ierr := &InstrumentationError{File: filename, Msg: err.Error()}
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		ierr.Msg = list[0].Message
		ierr.Line = list[0].Position.Line
		ierr.Column = list[0].Position.Column
		if ierr.Line > 0 && ierr.Line <= len(low.lines) && low.lines[ierr.Line-1] > 0 {
			ierr.Line = low.lines[ierr.Line-1]
		}
	}
	return nil, ierr
}

// lineOf returns the 1-based line containing byte offset off.
func lineOf(code string, off int) int {
	if off > len(code) {
		off = len(code)
	}
	return strings.Count(code[:off], "\n") + 1
}

func calleeText(code string, rw *rewriter, call *ast.CallExpression) string {
	start := rw.offset(call.Callee.Idx0())
	end := rw.offset(call.Callee.Idx1())
	if start < 0 || end > len(code) || start > end {
		return ""
	}
	return strings.Join(strings.Fields(code[start:end]), " ")
}
