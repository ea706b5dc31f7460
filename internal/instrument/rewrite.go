package instrument

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

// edit replaces src[start:end] with the output of render. Edits nest the
// same way their AST nodes do.
type edit struct {
	start, end int
	render     func() string
}

// rewriter splices replacement text into the lowered source. Everything not
// covered by an edit is copied verbatim.
type rewriter struct {
	src   string
	base  int
	opts  *options
	edits []*edit
	dirty bool
}

func newRewriter(src string, base int, opts *options) *rewriter {
	return &rewriter{src: src, base: base, opts: opts}
}

func (rw *rewriter) offset(idx file.Idx) int { return int(idx) - rw.base }

func (rw *rewriter) add(e *edit) {
	rw.edits = append(rw.edits, e)
	rw.dirty = true
}

func (rw *rewriter) sorted() []*edit {
	if rw.dirty {
		sort.SliceStable(rw.edits, func(i, j int) bool {
			if rw.edits[i].start != rw.edits[j].start {
				return rw.edits[i].start < rw.edits[j].start
			}
			return rw.edits[i].end > rw.edits[j].end
		})
		rw.dirty = false
	}
	return rw.edits
}

func (rw *rewriter) output() string { return rw.emit(0, len(rw.src)) }

// emit renders src[start:end] with every edit fully inside the range applied.
func (rw *rewriter) emit(start, end int) string {
	var b strings.Builder
	cur := start
	for _, e := range rw.sorted() {
		if e.start >= end {
			break
		}
		if e.start < cur || e.end > end {
			continue
		}
		b.WriteString(rw.src[cur:e.start])
		b.WriteString(e.render())
		cur = e.end
	}
	b.WriteString(rw.src[cur:end])
	return b.String()
}

// span returns the byte range of n including parentheses that wrap its
// leftmost operand, which goja does not record in the tree.
func (rw *rewriter) span(idx0, idx1 file.Idx) (int, int) {
	start, end := rw.offset(idx0), rw.offset(idx1)
	open := unmatchedClose(rw.src[start:end])
	for open > 0 {
		p := start
		for p > 0 && isSpace(rw.src[p-1]) {
			p--
		}
		if p == 0 || rw.src[p-1] != '(' {
			break
		}
		start = p - 1
		open--
	}
	return start, end
}

// durable rewrites f(a) into call(named(f, "f"), a) and o.m(a) into
// call(named(o.m.bind(o), "m"), a). named returns its first argument and
// records the name for functions that have none of their own.
func (rw *rewriter) durable(call *ast.CallExpression, name string) {
	start, end := rw.span(call.Callee.Idx0(), call.RightParenthesis+1)
	lp, rp := rw.offset(call.LeftParenthesis), rw.offset(call.RightParenthesis)
	e := &edit{start: start, end: end}
	e.render = func() string {
		callee := strings.TrimRight(rw.emit(start, lp), " \t")
		var target string
		switch c := call.Callee.(type) {
		case *ast.DotExpression:
			target = rw.bound(callee, c.Left, func() string { return "." + c.Identifier.Name.String() })
		case *ast.BracketExpression:
			target = rw.bound(callee, c.Left, rw.bracket(c))
		default:
			target = callee
		}
		out := rw.opts.callExpr + "(" + rw.opts.namedExpr + "(" + target + ", " + jsString(name) + ")" + rw.args(lp, rp) + ")"
		return keepLines(rw.src[start:end], out)
	}
	rw.add(e)
}

// optionalDurable rewrites an awaited optional chain call such as o?.m(a)
// into optional(target, "m")?.(a). target is undefined when the chain
// short-circuits, so the arguments are not evaluated and nothing is called.
func (rw *rewriter) optionalDurable(call *ast.CallExpression, name string) {
	start, end := rw.span(call.Callee.Idx0(), call.RightParenthesis+1)
	lp, rp := rw.offset(call.LeftParenthesis), rw.offset(call.RightParenthesis)
	e := &edit{start: start, end: end}
	e.render = func() string {
		out := rw.opts.optionalExpr + "(" + rw.optionalTarget(call.Callee) + ", " + jsString(name) + ")?.(" + rw.emit(lp+1, rp) + ")"
		return keepLines(rw.src[start:end], out)
	}
	rw.add(e)
}

// optionalTarget renders the callee of an optional chain call as an
// expression yielding the receiver-bound function, or undefined when the
// chain short-circuits before the call.
func (rw *rewriter) optionalTarget(callee ast.Expression) string {
	const o = "__ak_o"
	member := func(left ast.Expression, accessor func() string, optCall bool) string {
		recv, check := rw.receiver(left)
		access := o + accessor()
		if optCall {
			access += "?.bind(" + o + ")"
		} else {
			access += ".bind(" + o + ")"
		}
		if check {
			access = o + " == null ? undefined : " + access
		}
		return "((" + o + ") => " + access + ")(" + recv + ")"
	}
	switch c := callee.(type) {
	case *ast.Optional:
		switch f := c.Expression.(type) {
		case *ast.DotExpression:
			return member(f.Left, func() string { return "." + f.Identifier.Name.String() }, true)
		case *ast.BracketExpression:
			return member(f.Left, rw.bracket(f), true)
		default:
			s, e := rw.span(c.Expression.Idx0(), c.Expression.Idx1())
			return rw.emit(s, e)
		}
	case *ast.DotExpression:
		return member(c.Left, func() string { return "." + c.Identifier.Name.String() }, false)
	case *ast.BracketExpression:
		return member(c.Left, rw.bracket(c), false)
	default:
		s, e := rw.span(callee.Idx0(), callee.Idx1())
		return rw.emit(s, e)
	}
}

// receiver renders the object a member is read from. check reports whether
// an optional link in it may short-circuit to a nullish receiver.
func (rw *rewriter) receiver(left ast.Expression) (text string, check bool) {
	if opt, ok := left.(*ast.Optional); ok {
		s, e := rw.span(opt.Expression.Idx0(), opt.Expression.Idx1())
		return rw.emit(s, e), true
	}
	s, e := rw.span(left.Idx0(), left.Idx1())
	return rw.emit(s, e), hasOptional(left)
}

// hasOptional reports whether the member chain e contains an optional link.
func hasOptional(e ast.Expression) bool {
	for {
		switch x := e.(type) {
		case *ast.Optional:
			return true
		case *ast.DotExpression:
			e = x.Left
		case *ast.BracketExpression:
			e = x.Left
		case *ast.CallExpression:
			e = x.Callee
		default:
			return false
		}
	}
}

func (rw *rewriter) bracket(b *ast.BracketExpression) func() string {
	return func() string {
		ms, me := rw.span(b.Member.Idx0(), b.Member.Idx1())
		return "[" + rw.emit(ms, me) + "]"
	}
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// bound renders the callee of a method call so that it keeps its receiver.
// Side-effect free receivers are repeated; anything else is evaluated once
// through an arrow function.
func (rw *rewriter) bound(callee string, obj ast.Expression, accessor func() string) string {
	os, oe := rw.span(obj.Idx0(), obj.Idx1())
	if _, ok := obj.(*ast.SuperExpression); ok {
		return callee
	}
	if pure(obj) {
		recv := strings.ReplaceAll(rw.emit(os, oe), "\n", " ")
		return callee + ".bind(" + recv + ")"
	}
	const o = "__ak_o"
	return "((" + o + ") => " + o + accessor() + ".bind(" + o + "))(" + rw.emit(os, oe) + ")"
}

// args renders the argument list between the parentheses at lp and rp,
// prefixed with a comma when it is not empty.
func (rw *rewriter) args(lp, rp int) string {
	inner := rw.emit(lp+1, rp)
	if strings.TrimSpace(inner) == "" {
		return inner
	}
	return ", " + inner
}

// syscall rewrites ak.subscribe(a) into syscalls.subscribe(a).
func (rw *rewriter) syscall(call *ast.CallExpression) {
	dot, ok := unwrapCallee(call.Callee).(*ast.DotExpression)
	if !ok {
		return
	}
	start, end := rw.span(call.Callee.Idx0(), call.RightParenthesis+1)
	lp, rp := rw.offset(call.LeftParenthesis), rw.offset(call.RightParenthesis)
	rw.add(&edit{start: start, end: end, render: func() string {
		out := rw.opts.syscallsExpr + "." + dot.Identifier.Name.String() + "(" + rw.emit(lp+1, rp) + ")"
		return keepLines(rw.src[start:end], out)
	}})
}

// dropImport comments out the declaration of the platform namespace, which
// the runtime provides.
func (rw *rewriter) dropImport(n ast.Node) {
	start, end := rw.offset(n.Idx0()), rw.offset(n.Idx1())
	rw.add(&edit{start: start, end: end, render: func() string {
		return keepLines(rw.src[start:end], "/* "+rw.opts.namespace+" is provided by the runtime */")
	}})
}

// pure reports whether evaluating e twice is indistinguishable from
// evaluating it once.
func pure(e ast.Expression) bool {
	switch x := e.(type) {
	case *ast.Identifier, *ast.ThisExpression:
		return true
	case *ast.DotExpression:
		return pure(x.Left)
	case *ast.BracketExpression:
		switch x.Member.(type) {
		case *ast.StringLiteral, *ast.NumberLiteral:
			return pure(x.Left)
		}
	}
	return false
}

// keepLines pads out with the newlines of orig it lost so that line numbers
// after the edit do not shift.
func keepLines(orig, out string) string {
	missing := strings.Count(orig, "\n") - strings.Count(out, "\n")
	if missing <= 0 {
		return out
	}
	pad := strings.Repeat("\n", missing)
	if strings.HasSuffix(out, ")") {
		return out[:len(out)-1] + pad + ")"
	}
	return out + pad
}

// unmatchedClose counts closing parentheses in s that have no opening
// parenthesis before them, skipping string literals and comments.
func unmatchedClose(s string) int {
	depth, unmatched := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\'', '`':
			i = skipQuoted(s, i, c)
		case '/':
			if i+1 < len(s) && s[i+1] == '/' {
				for i < len(s) && s[i] != '\n' {
					i++
				}
			} else if i+1 < len(s) && s[i+1] == '*' {
				if j := strings.Index(s[i+2:], "*/"); j >= 0 {
					i += j + 3
				} else {
					i = len(s)
				}
			}
		case '(':
			depth++
		case ')':
			if depth == 0 {
				unmatched++
			} else {
				depth--
			}
		}
	}
	return unmatched
}

func skipQuoted(s string, i int, q byte) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j
		}
	}
	return len(s)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
