// Package engine runs instrumented scripts on a single JavaScript event loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/url"

	"scriptrunner/internal/cache"
	"scriptrunner/internal/instrument"
	"scriptrunner/internal/logger"
	"scriptrunner/internal/safeio"
	"scriptrunner/internal/serialize"
	"scriptrunner/internal/syscalls"
	"scriptrunner/internal/waiter"
)

const defaultCacheSize = 256

type Options struct {
	// Code is the root user modules are loaded from. Required.
	Code *safeio.SafeFS
	// Waiter routes durable calls. Required.
	Waiter *waiter.Waiter
	// Syscalls backs the platform namespace. Optional; without it every
	// platform call rejects.
	Syscalls *syscalls.Syscalls
	// Cache holds instrumented modules. A private one is created when nil.
	Cache   *cache.Instrumented
	Printer Printer
	Logger  *log.Logger
	// OnUnhandledRejection is called with the reason of a promise rejected
	// with nobody listening.
	OnUnhandledRejection func(error)
}

type Engine struct {
	loop     *eventloop.EventLoop
	reg      *registry
	waiter   *waiter.Waiter
	syscalls *syscalls.Syscalls
	printer  Printer
	logger   *log.Logger
	onReject func(error)

	ctx    context.Context
	cancel context.CancelFunc
	vm     atomic.Pointer[goja.Runtime]

	startOnce sync.Once
	closeOnce sync.Once

	// loop goroutine only
	unhandled map[*goja.Promise]struct{}
	checking  bool
	names     map[*goja.Object][]string
}

func New(opts Options) (*Engine, error) {
	if opts.Code == nil {
		return nil, errors.New("engine: code root is required")
	}
	if opts.Waiter == nil {
		return nil, errors.New("engine: waiter is required")
	}
	l := logger.Component(opts.Logger, "engine")
	c := opts.Cache
	if c == nil {
		var err error
		c, err = cache.New(defaultCacheSize, func(filename, src string) (*instrument.Result, error) {
			return instrument.Instrument(filename, src)
		})
		if err != nil {
			return nil, err
		}
	}
	printer := opts.Printer
	if printer == nil {
		printer = LogPrinter(l)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		loop:      eventloop.NewEventLoop(eventloop.EnableConsole(false)),
		reg:       newRegistry(opts.Code, c),
		waiter:    opts.Waiter,
		syscalls:  opts.Syscalls,
		printer:   printer,
		logger:    l,
		onReject:  opts.OnUnhandledRejection,
		ctx:       ctx,
		cancel:    cancel,
		unhandled: make(map[*goja.Promise]struct{}),
		names:     make(map[*goja.Object][]string),
	}
	e.loop.RunOnLoop(e.setup)
	return e, nil
}

func (e *Engine) setup(vm *goja.Runtime) {
	e.vm.Store(vm)
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	buffer.Enable(vm)
	url.Enable(vm)
	e.installConsole(vm)
	e.reg.ak = e.platformObject(vm)
	e.reg.ctxObj = e.contextObject(vm, e.reg.ak)
	vm.SetPromiseRejectionTracker(e.trackRejection)
}

// Start runs the event loop in the background.
func (e *Engine) Start() {
	e.startOnce.Do(e.loop.Start)
}

// Close interrupts running script code and stops the loop. Pending host
// calls are canceled.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.cancel()
		if vm := e.vm.Load(); vm != nil {
			vm.Interrupt(ErrStopped)
		}
		e.loop.Stop()
	})
}

type outcome struct {
	value any
	err   error
}

// Run loads file, calls its exported function name with event and waits
// for the returned value or promise to settle.
func (e *Engine) Run(ctx context.Context, file, name string, event any) (any, error) {
	file, err := safeio.Clean(file)
	if err != nil {
		return nil, err
	}
	out := make(chan outcome, 1)
	e.loop.RunOnLoop(func(vm *goja.Runtime) {
		obj, err := e.reg.load(vm, file)
		if err != nil {
			out <- outcome{err: scriptError(err)}
			return
		}
		exports := obj.Get("exports")
		var fnv goja.Value
		if exp, ok := exports.(*goja.Object); ok {
			fnv = exp.Get(name)
		}
		fn, ok := goja.AssertFunction(fnv)
		if !ok {
			out <- outcome{err: fmt.Errorf("%w: %s in %s", ErrExportNotFound, name, file)}
			return
		}
		e.logger.Debug("running entry point", "file", file, "function", name)
		ret, err := fn(goja.Undefined(), vm.ToValue(event))
		if err != nil {
			out <- outcome{err: scriptError(err)}
			return
		}
		e.settle(vm, ret, func(v any, err error) { out <- outcome{v, err} })
	})
	return e.await(ctx, out)
}

func (e *Engine) await(ctx context.Context, out <-chan outcome) (any, error) {
	select {
	case o := <-out:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.ctx.Done():
		return nil, ErrStopped
	}
}

// settle calls done once v, or the promise v stands for, has a value.
func (e *Engine) settle(vm *goja.Runtime, v goja.Value, done func(any, error)) {
	if v == nil {
		done(nil, nil)
		return
	}
	if _, ok := v.Export().(*goja.Promise); !ok {
		done(export(v), nil)
		return
	}
	obj := v.ToObject(vm)
	then, ok := goja.AssertFunction(obj.Get("then"))
	if !ok {
		done(export(v), nil)
		return
	}
	onValue := func(call goja.FunctionCall) goja.Value {
		done(export(call.Argument(0)), nil)
		return goja.Undefined()
	}
	onError := func(call goja.FunctionCall) goja.Value {
		done(nil, reasonError(call.Argument(0)))
		return goja.Undefined()
	}
	if _, err := then(obj, vm.ToValue(onValue), vm.ToValue(onError)); err != nil {
		done(nil, scriptError(err))
	}
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return serialize.Normalize(v.Export())
}

func (e *Engine) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	switch op {
	case goja.PromiseRejectionReject:
		e.unhandled[p] = struct{}{}
		if !e.checking {
			e.checking = true
			// runs after the current job and its microtasks
			e.loop.RunOnLoop(e.checkRejections)
		}
	case goja.PromiseRejectionHandle:
		delete(e.unhandled, p)
	}
}

func (e *Engine) checkRejections(*goja.Runtime) {
	e.checking = false
	for p := range e.unhandled {
		delete(e.unhandled, p)
		err := reasonError(p.Result())
		e.logger.Error("unhandled promise rejection", "error", err.Message)
		if e.onReject != nil {
			e.onReject(err)
		}
	}
}

// Lookup maps a line of executed code to the line and text of the original
// source. It has the serialize.SourceLookup signature.
func (e *Engine) Lookup(file string, line int) (int, string, bool) {
	return e.reg.lookup(file, line)
}

// Exports lists the functions a user module exports, without running it.
func (e *Engine) Exports(file string) ([]instrument.Export, error) {
	file, err := safeio.Clean(file)
	if err != nil {
		return nil, err
	}
	src, err := e.reg.fs.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModuleNotFound, file, err)
	}
	return instrument.DiscoverExports(file, string(src))
}

// Traceback formats err with frames mapped back to the original sources.
func (e *Engine) Traceback(err error) *serialize.Traceback {
	return serialize.FormatError(err, e.Lookup)
}
