package instrument

import (
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/token"
)

// origin tells where the value an identifier refers to comes from.
type origin int

const (
	originLocal origin = iota
	originRelative
	originExternal
	originPlatform
	originBuiltin
)

func (o origin) String() string {
	switch o {
	case originRelative:
		return "relative"
	case originExternal:
		return "external"
	case originPlatform:
		return "platform"
	case originBuiltin:
		return "builtin"
	default:
		return "local"
	}
}

// builtins are globals whose calls have no externally observable effects.
var builtins = map[string]bool{
	"Array": true, "ArrayBuffer": true, "BigInt": true, "Boolean": true,
	"Buffer": true, "DataView": true, "Date": true, "Error": true,
	"Float32Array": true, "Float64Array": true, "Int8Array": true,
	"Int16Array": true, "Int32Array": true, "Intl": true, "JSON": true,
	"Map": true, "Math": true, "Number": true, "Object": true, "Promise": true,
	"Proxy": true, "RangeError": true, "Reflect": true, "RegExp": true,
	"Set": true, "String": true, "Symbol": true, "SyntaxError": true,
	"TextDecoder": true, "TextEncoder": true, "TypeError": true,
	"Uint8Array": true, "Uint16Array": true, "Uint32Array": true,
	"URL": true, "URLSearchParams": true, "WeakMap": true, "WeakSet": true,
	"atob": true, "btoa": true, "console": true, "decodeURI": true,
	"decodeURIComponent": true, "encodeURI": true, "encodeURIComponent": true,
	"globalThis": true, "isFinite": true, "isNaN": true, "parseFloat": true,
	"parseInt": true, "queueMicrotask": true, "setTimeout": true,
	"clearTimeout": true, "setInterval": true, "clearInterval": true,
	"structuredClone": true, "undefined": true,
}

// syscallNames are the platform event primitives.
var syscallNames = map[string]bool{
	"subscribe":   true,
	"nextEvent":   true,
	"unsubscribe": true,
}

type binding struct {
	name  string
	scope *scope
	// init is the expression the binding was initialized from; nil for
	// functions, classes, parameters and uninitialized variables.
	init ast.Expression
	// assigned are the values of later plain assignments to the name.
	assigned []assignment
	tracing  bool
}

type assignment struct {
	value ast.Expression
	scope *scope
}

type scope struct {
	parent *scope
	fn     bool
	names  map[string]*binding
}

func newScope(parent *scope, fn bool) *scope {
	return &scope{parent: parent, fn: fn, names: make(map[string]*binding)}
}

func (s *scope) lookup(name string) *binding {
	for cur := s; cur != nil; cur = cur.parent {
		if b, ok := cur.names[name]; ok {
			return b
		}
	}
	return nil
}

func (s *scope) function() *scope {
	cur := s
	for cur.parent != nil && !cur.fn {
		cur = cur.parent
	}
	return cur
}

func (s *scope) declare(name string, init ast.Expression) {
	if name == "" {
		return
	}
	if prev, ok := s.names[name]; ok && prev.init != nil && init == nil {
		// var redeclaration without initializer keeps the first value.
		return
	}
	s.names[name] = &binding{name: name, scope: s, init: init}
}

// callSite is an awaited call discovered by the scope pass.
type callSite struct {
	call     *ast.CallExpression
	scope    *scope
	class    Class
	optional bool // the call is part of an optional chain
}

// analyzer is the scope and alias tracking pass. It runs over the whole
// program before any rewriting and classifies every awaited call.
type analyzer struct {
	opts    *options
	stack   []*scope
	sites   []*callSite
	imports []ast.Node
}

func analyze(prog *ast.Program, opts *options) *analyzer {
	a := &analyzer{opts: opts}
	a.stack = []*scope{newScope(nil, true)}
	walk(funcVisitor{onEnter: a.enter, onLeave: a.leave}, prog)
	for _, s := range a.sites {
		s.class = a.classify(s)
	}
	return a
}

func (a *analyzer) current() *scope { return a.stack[len(a.stack)-1] }

func (a *analyzer) push(fn bool) *scope {
	s := newScope(a.current(), fn)
	a.stack = append(a.stack, s)
	return s
}

func (a *analyzer) pop() { a.stack = a.stack[:len(a.stack)-1] }

func (a *analyzer) enter(n ast.Node) bool {
	switch x := n.(type) {
	case *ast.FunctionDeclaration:
		if x.Function != nil && x.Function.Name != nil {
			a.current().declare(x.Function.Name.Name.String(), nil)
		}
	case *ast.ClassDeclaration:
		if x.Class != nil && x.Class.Name != nil {
			a.current().declare(x.Class.Name.Name.String(), nil)
		}
	case *ast.FunctionLiteral:
		s := a.push(true)
		if x.Name != nil {
			s.declare(x.Name.Name.String(), nil)
		}
		a.declareParams(s, x.ParameterList)
	case *ast.ArrowFunctionLiteral:
		s := a.push(true)
		a.declareParams(s, x.ParameterList)
	case *ast.ClassLiteral:
		s := a.push(false)
		if x.Name != nil {
			s.declare(x.Name.Name.String(), nil)
		}
	case *ast.BlockStatement:
		a.push(false)
	case *ast.ForStatement:
		s := a.push(false)
		switch init := x.Initializer.(type) {
		case *ast.ForLoopInitializerVarDeclList:
			a.declareBindings(s.function(), init.List)
		case *ast.ForLoopInitializerLexicalDecl:
			a.declareBindings(s, init.LexicalDeclaration.List)
		}
	case *ast.ForInStatement:
		a.declareInto(a.push(false), x.Into)
	case *ast.ForOfStatement:
		a.declareInto(a.push(false), x.Into)
	case *ast.CatchStatement:
		s := a.push(false)
		for _, name := range targetNames(x.Parameter) {
			s.declare(name, nil)
		}
	case *ast.VariableStatement:
		a.declareBindings(a.current().function(), x.List)
		if a.isPlatformImport(x.List) {
			a.imports = append(a.imports, x)
		}
	case *ast.LexicalDeclaration:
		a.declareBindings(a.current(), x.List)
		if a.isPlatformImport(x.List) {
			a.imports = append(a.imports, x)
		}
	case *ast.AssignExpression:
		switch x.Operator {
		case token.ASSIGN, token.LOGICAL_OR, token.LOGICAL_AND, token.COALESCE:
		default:
			// Arithmetic compound assignments do not store a callable.
			return true
		}
		if id, ok := x.Left.(*ast.Identifier); ok {
			if b := a.current().lookup(id.Name.String()); b != nil {
				b.assigned = append(b.assigned, assignment{value: x.Right, scope: a.current()})
			}
		}
	case *ast.AwaitExpression:
		arg, optional := x.Argument, false
		if chain, ok := arg.(*ast.OptionalChain); ok {
			arg, optional = chain.Expression, true
		}
		if call, ok := arg.(*ast.CallExpression); ok {
			a.sites = append(a.sites, &callSite{call: call, scope: a.current(), optional: optional})
		}
	}
	return true
}

func (a *analyzer) leave(n ast.Node) {
	switch n.(type) {
	case *ast.FunctionLiteral, *ast.ArrowFunctionLiteral, *ast.ClassLiteral,
		*ast.BlockStatement, *ast.ForStatement, *ast.ForInStatement,
		*ast.ForOfStatement, *ast.CatchStatement:
		a.pop()
	}
}

func (a *analyzer) declareParams(s *scope, params *ast.ParameterList) {
	if params == nil {
		return
	}
	for _, b := range params.List {
		for _, name := range targetNames(b.Target) {
			s.declare(name, nil)
		}
	}
	for _, name := range targetNames(params.Rest) {
		s.declare(name, nil)
	}
}

func (a *analyzer) declareBindings(s *scope, list []*ast.Binding) {
	for _, b := range list {
		if b == nil {
			continue
		}
		for _, name := range targetNames(b.Target) {
			s.declare(name, b.Initializer)
		}
	}
}

func (a *analyzer) declareInto(s *scope, into ast.ForInto) {
	switch x := into.(type) {
	case *ast.ForIntoVar:
		if x.Binding != nil {
			for _, name := range targetNames(x.Binding.Target) {
				s.function().declare(name, nil)
			}
		}
	case *ast.ForDeclaration:
		for _, name := range targetNames(x.Target) {
			s.declare(name, nil)
		}
	}
}

// targetNames lists the identifiers a binding target introduces.
func targetNames(t ast.Node) []string {
	var out []string
	var collect func(n ast.Node)
	collect = func(n ast.Node) {
		switch x := n.(type) {
		case *ast.Identifier:
			if x != nil {
				out = append(out, x.Name.String())
			}
		case *ast.ObjectPattern:
			for _, p := range x.Properties {
				switch prop := p.(type) {
				case *ast.PropertyShort:
					out = append(out, prop.Name.Name.String())
				case *ast.PropertyKeyed:
					collect(prop.Value)
				}
			}
			if x.Rest != nil {
				collect(x.Rest)
			}
		case *ast.ArrayPattern:
			for _, e := range x.Elements {
				if e != nil {
					collect(e)
				}
			}
			if x.Rest != nil {
				collect(x.Rest)
			}
		case *ast.AssignExpression:
			collect(x.Left)
		case *ast.SpreadElement:
			collect(x.Expression)
		}
	}
	if t != nil {
		collect(t)
	}
	return out
}

func (a *analyzer) isPlatformImport(list []*ast.Binding) bool {
	if len(list) != 1 || list[0] == nil {
		return false
	}
	id, ok := list[0].Target.(*ast.Identifier)
	if !ok || id.Name.String() != a.opts.namespace || list[0].Initializer == nil {
		return false
	}
	spec, ok := a.requireOf(list[0].Initializer, a.current())
	return ok && spec == a.opts.platformModule
}

// requireOf returns the module specifier when e is require("x") or a
// bundler helper wrapping it, such as __toESM(require("x")).
func (a *analyzer) requireOf(e ast.Expression, s *scope) (string, bool) {
	call, ok := e.(*ast.CallExpression)
	if !ok {
		return "", false
	}
	if id, ok := call.Callee.(*ast.Identifier); ok && id.Name.String() == "require" && s.lookup("require") == nil {
		if len(call.ArgumentList) == 0 {
			return "", false
		}
		lit, ok := call.ArgumentList[0].(*ast.StringLiteral)
		if !ok {
			return "", false
		}
		return lit.Value.String(), true
	}
	if id, ok := call.Callee.(*ast.Identifier); ok && strings.HasPrefix(id.Name.String(), "__") {
		for _, arg := range call.ArgumentList {
			if spec, ok := a.requireOf(arg, s); ok {
				return spec, true
			}
		}
	}
	return "", false
}

func (a *analyzer) moduleOrigin(spec string) origin {
	switch {
	case spec == a.opts.platformModule:
		return originPlatform
	case spec == "." || spec == ".." || strings.HasPrefix(spec, "./") ||
		strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/"):
		return originRelative
	default:
		return originExternal
	}
}

const maxTraceDepth = 64

// originOf traces an expression back to the binding it is built from.
func (a *analyzer) originOf(e ast.Expression, s *scope, depth int) origin {
	if depth > maxTraceDepth || e == nil {
		return originLocal
	}
	switch x := e.(type) {
	case *ast.Identifier:
		name := x.Name.String()
		b := s.lookup(name)
		if b == nil {
			switch {
			case name == a.opts.namespace:
				return originPlatform
			case builtins[name]:
				return originBuiltin
			default:
				return originExternal
			}
		}
		return a.bindingOrigin(b, depth)
	case *ast.DotExpression:
		return a.originOf(x.Left, s, depth+1)
	case *ast.BracketExpression:
		return a.originOf(x.Left, s, depth+1)
	case *ast.CallExpression:
		if spec, ok := a.requireOf(x, s); ok {
			return a.moduleOrigin(spec)
		}
		return a.constructed(x.Callee, s, depth+1)
	case *ast.NewExpression:
		return a.constructed(x.Callee, s, depth+1)
	case *ast.AwaitExpression:
		return a.originOf(x.Argument, s, depth+1)
	case *ast.Optional:
		return a.originOf(x.Expression, s, depth+1)
	case *ast.OptionalChain:
		return a.originOf(x.Expression, s, depth+1)
	case *ast.SequenceExpression:
		if len(x.Sequence) == 0 {
			return originLocal
		}
		return a.originOf(x.Sequence[len(x.Sequence)-1], s, depth+1)
	default:
		return originLocal
	}
}

// bindingOrigin combines the initializer of b with every value later
// assigned to it. Any external value makes the binding external, since the
// call may run after that assignment.
func (a *analyzer) bindingOrigin(b *binding, depth int) origin {
	if b.tracing {
		return originLocal
	}
	b.tracing = true
	defer func() { b.tracing = false }()

	out := originLocal
	if b.init != nil {
		out = a.originOf(b.init, b.scope, depth+1)
	}
	for _, as := range b.assigned {
		switch o := a.originOf(as.value, as.scope, depth+1); {
		case o == originExternal:
			return originExternal
		case o == originPlatform && out != originExternal:
			out = originPlatform
		}
	}
	return out
}

// constructed classifies a value produced by calling or constructing callee.
// Only values built by relative-module or local code are exempt.
func (a *analyzer) constructed(callee ast.Expression, s *scope, depth int) origin {
	switch a.originOf(callee, s, depth) {
	case originExternal:
		return originExternal
	case originPlatform:
		return originPlatform
	default:
		return originLocal
	}
}

// unwrapCallee strips (0, f) sequences and optional links off a callee.
func unwrapCallee(e ast.Expression) ast.Expression {
	for {
		switch x := e.(type) {
		case *ast.SequenceExpression:
			if len(x.Sequence) == 0 {
				return e
			}
			e = x.Sequence[len(x.Sequence)-1]
		case *ast.Optional:
			e = x.Expression
		default:
			return e
		}
	}
}

func (a *analyzer) classify(site *callSite) Class {
	callee := unwrapCallee(site.call.Callee)
	if a.opts.safe[calleeName(callee)] {
		return Internal
	}
	if dot, ok := callee.(*ast.DotExpression); ok && syscallNames[dot.Identifier.Name.String()] {
		if a.originOf(dot.Left, site.scope, 0) == originPlatform {
			return PlatformSyscall
		}
	}
	switch a.originOf(callee, site.scope, 0) {
	case originExternal:
		return Durable
	default:
		return Internal
	}
}

// calleeName renders identifier and dot chains as "a.b.c"; other shapes
// yield "".
func calleeName(e ast.Expression) string {
	switch x := e.(type) {
	case *ast.Identifier:
		return x.Name.String()
	case *ast.DotExpression:
		left := calleeName(x.Left)
		if left == "" {
			return ""
		}
		return left + "." + x.Identifier.Name.String()
	case *ast.ThisExpression:
		return "this"
	case *ast.Optional:
		return calleeName(x.Expression)
	default:
		return ""
	}
}

// declaredName is the name a callee is written under: the identifier of a
// plain call or the property of a method call. It is "" for computed shapes.
func declaredName(e ast.Expression) string {
	switch x := unwrapCallee(e).(type) {
	case *ast.Identifier:
		return x.Name.String()
	case *ast.DotExpression:
		return x.Identifier.Name.String()
	case *ast.BracketExpression:
		if lit, ok := x.Member.(*ast.StringLiteral); ok {
			return lit.Value.String()
		}
	}
	return ""
}
