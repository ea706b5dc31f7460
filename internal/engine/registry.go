package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"

	"scriptrunner/internal/cache"
	"scriptrunner/internal/instrument"
	"scriptrunner/internal/safeio"
)

// PlatformModule is the specifier scripts import the platform namespace from.
const PlatformModule = "autokitteh"

const (
	wrapperHead = "(function (exports, require, module, __filename, __dirname, __ak, ak) {"
	wrapperTail = "\n})"
)

var (
	fileExts  = []string{"", ".js", ".ts", ".mjs", ".cjs", ".jsx", ".tsx", ".json"}
	indexExts = []string{"/index.js", "/index.ts", "/index.json"}
)

type module struct {
	obj    *goja.Object
	result *instrument.Result
	lines  []string
}

// registry loads and memoizes modules by normalized path. Loading happens on
// the loop goroutine; lookups may come from anywhere.
type registry struct {
	fs    *safeio.SafeFS
	cache *cache.Instrumented

	// set during engine setup
	ctxObj *goja.Object
	ak     *goja.Object

	mu      sync.RWMutex
	modules map[string]*module
}

func newRegistry(fsys *safeio.SafeFS, c *cache.Instrumented) *registry {
	return &registry{
		fs:      fsys,
		cache:   c,
		modules: make(map[string]*module),
	}
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") ||
		strings.HasPrefix(spec, "../") || strings.HasPrefix(spec, "/")
}

func isVendored(p string) bool {
	return strings.HasPrefix(p, "node_modules/") || strings.Contains(p, "/node_modules/")
}

// require is the script visible require bound to the module at from.
func (r *registry) require(vm *goja.Runtime, from, spec string) goja.Value {
	if spec == PlatformModule {
		return r.ak
	}
	var (
		p   string
		err error
	)
	if isRelative(spec) {
		p, err = r.resolveRelative(from, spec)
	} else {
		p, err = r.resolvePackage(spec)
		if err != nil {
			// goja_nodejs core modules (url, util, buffer, ...)
			var core goja.Value
			if ex := vm.Try(func() { core = require.Require(vm, spec) }); ex == nil {
				return core
			}
		}
	}
	if err != nil {
		panic(vm.NewGoError(err))
	}
	obj, err := r.load(vm, p)
	if err != nil {
		var ex *goja.Exception
		if errors.As(err, &ex) {
			panic(ex)
		}
		panic(vm.NewGoError(err))
	}
	return obj.Get("exports")
}

func (r *registry) resolveRelative(from, spec string) (string, error) {
	var (
		base string
		err  error
	)
	if strings.HasPrefix(spec, "/") {
		base, err = safeio.Clean(spec)
	} else {
		base, err = safeio.Join(from, spec)
	}
	if err != nil {
		return "", err
	}
	if p, ok := r.resolveFile(base); ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q from %s", ErrModuleNotFound, spec, from)
}

func (r *registry) resolveFile(base string) (string, bool) {
	for _, ext := range fileExts {
		if r.fs.IsFile(base + ext) {
			return base + ext, true
		}
	}
	for _, ext := range indexExts {
		if r.fs.IsFile(base + ext) {
			return base + ext, true
		}
	}
	return "", false
}

// resolvePackage finds a bare specifier under node_modules.
func (r *registry) resolvePackage(spec string) (string, error) {
	name, sub := spec, ""
	parts := strings.SplitN(spec, "/", 3)
	switch {
	case strings.HasPrefix(spec, "@") && len(parts) == 3:
		name, sub = parts[0]+"/"+parts[1], parts[2]
	case !strings.HasPrefix(spec, "@") && len(parts) > 1:
		name, sub = parts[0], strings.Join(parts[1:], "/")
	}
	dir := path.Join("node_modules", name)
	if sub != "" {
		if p, ok := r.resolveFile(path.Join(dir, sub)); ok {
			return p, nil
		}
		return "", fmt.Errorf("%w: %q", ErrModuleNotFound, spec)
	}
	if b, err := r.fs.ReadFile(path.Join(dir, "package.json")); err == nil {
		var pkg struct {
			Main string `json:"main"`
		}
		if json.Unmarshal(b, &pkg) == nil && pkg.Main != "" {
			if p, ok := r.resolveFile(path.Join(dir, pkg.Main)); ok {
				return p, nil
			}
		}
	}
	if p, ok := r.resolveFile(path.Join(dir, "index")); ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrModuleNotFound, spec)
}

// load returns the module object at p, evaluating it on first use. A module
// required while it is still evaluating sees its partial exports. Script
// exceptions are returned as *goja.Exception.
func (r *registry) load(vm *goja.Runtime, p string) (*goja.Object, error) {
	r.mu.RLock()
	m, ok := r.modules[p]
	r.mu.RUnlock()
	if ok {
		return m.obj, nil
	}

	src, err := r.fs.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleNotFound, p, err)
	}

	m = &module{obj: vm.NewObject(), lines: strings.Split(string(src), "\n")}
	exports := vm.NewObject()
	_ = m.obj.Set("exports", exports)
	_ = m.obj.Set("id", p)

	if path.Ext(p) == ".json" {
		var v any
		if err := json.Unmarshal(src, &v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		_ = m.obj.Set("exports", vm.ToValue(v))
		r.put(p, m)
		return m.obj, nil
	}

	code := string(src)
	if !isVendored(p) {
		res, err := r.cache.Get(p, code)
		if err != nil {
			return nil, err
		}
		m.result, code = res, res.Code
	}

	prg, err := goja.Compile(p, wrapperHead+code+wrapperTail, false)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", p, err)
	}
	fnv, err := vm.RunProgram(prg)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnv)
	if !ok {
		return nil, fmt.Errorf("compile %s: wrapper is not a function", p)
	}

	r.put(p, m)
	req := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return r.require(vm, p, call.Argument(0).String())
	})
	_, err = fn(exports, exports, req, m.obj, vm.ToValue(p), vm.ToValue(path.Dir(p)), r.ctxObj, r.ak)
	if err != nil {
		r.mu.Lock()
		delete(r.modules, p)
		r.mu.Unlock()
		return nil, err
	}
	return m.obj, nil
}

func (r *registry) put(p string, m *module) {
	r.mu.Lock()
	r.modules[p] = m
	r.mu.Unlock()
}

// lookup maps a line of executed code in file to the original source.
func (r *registry) lookup(file string, line int) (int, string, bool) {
	r.mu.RLock()
	m, ok := r.modules[file]
	r.mu.RUnlock()
	if !ok || m.result == nil {
		return 0, "", false
	}
	orig := m.result.OriginalLine(line)
	if orig < 1 || orig > len(m.lines) {
		return 0, "", false
	}
	return orig, m.lines[orig-1], true
}
