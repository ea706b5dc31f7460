package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"scriptrunner/internal/waiter"
)

var errNoSyscalls = errors.New("platform calls are not available")

// contextObject builds __ak: the call indirection, its naming and optional
// chain helpers, and the syscalls facade.
func (e *Engine) contextObject(vm *goja.Runtime, ak *goja.Object) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("call", e.call)
	_ = obj.Set("named", e.named)
	_ = obj.Set("optional", e.optional)
	_ = obj.Set("syscalls", ak)
	return obj
}

// call is __ak.call(fn, ...args). It registers fn with the waiter and
// returns a promise for whatever result the host delivers.
func (e *Engine) call(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	target := call.Argument(0)
	var args []goja.Value
	if len(call.Arguments) > 1 {
		args = call.Arguments[1:]
	}
	return e.intercept(vm, target, e.takeName(target), args)
}

// named is __ak.named(fn, name). It returns fn unchanged and remembers the
// name as written at the call-site until __ak.call consumes it.
func (e *Engine) named(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	target := call.Argument(0)
	if obj, ok := target.(*goja.Object); ok {
		e.names[obj] = append(e.names[obj], hintOf(call.Argument(1)))
	}
	return target
}

// optional is __ak.optional(fn, name). A nullish fn yields undefined so
// that fn?.(...) short-circuits; otherwise the result intercepts the call.
func (e *Engine) optional(call goja.FunctionCall, vm *goja.Runtime) goja.Value {
	target := call.Argument(0)
	if goja.IsUndefined(target) || goja.IsNull(target) {
		return goja.Undefined()
	}
	name := hintOf(call.Argument(1))
	return vm.ToValue(func(c goja.FunctionCall, vm *goja.Runtime) goja.Value {
		return e.intercept(vm, target, name, c.Arguments)
	})
}

// takeName pops the most recent call-site name recorded for v. Arguments
// are evaluated after the callee, so nested calls on the same function
// consume names in reverse order.
func (e *Engine) takeName(v goja.Value) string {
	obj, ok := v.(*goja.Object)
	if !ok {
		return ""
	}
	stack := e.names[obj]
	if len(stack) == 0 {
		return ""
	}
	name := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(e.names, obj)
	} else {
		e.names[obj] = stack[:len(stack)-1]
	}
	return name
}

func (e *Engine) intercept(vm *goja.Runtime, target goja.Value, hint string, args []goja.Value) goja.Value {
	fn, ok := goja.AssertFunction(target)
	if !ok {
		panic(vm.NewTypeError("%s is not a function", target.String()))
	}
	args = append([]goja.Value(nil), args...)
	reported := make([]any, len(args))
	for i, a := range args {
		reported[i] = export(a)
	}

	t := &jsTarget{e: e, name: functionName(target, hint), fn: fn, args: args}
	promise, resolve, reject := vm.NewPromise()
	pending, err := e.waiter.Begin(e.ctx, waiter.NewToken(), t, reported)
	if err != nil {
		_ = reject(vm.NewGoError(err))
		return vm.ToValue(promise)
	}
	go func() {
		var res waiter.Result
		select {
		case res = <-pending.Done():
		case <-e.ctx.Done():
			return
		}
		e.loop.RunOnLoop(func(vm *goja.Runtime) {
			if res.Err != nil {
				_ = reject(vm.NewGoError(res.Err))
				return
			}
			_ = resolve(vm.ToValue(res.Value))
		})
	}()
	return vm.ToValue(promise)
}

func hintOf(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// functionName is the callable's own name, falling back to the name it was
// called by. Arrow functions stored on an object property have no name of
// their own.
func functionName(v goja.Value, hint string) string {
	name := ""
	if obj, ok := v.(*goja.Object); ok {
		if n := obj.Get("name"); n != nil {
			name = n.String()
		}
	}
	for strings.HasPrefix(name, "bound ") {
		name = strings.TrimPrefix(name, "bound ")
	}
	if name == "" {
		name = hint
	}
	if name == "" {
		return "<anonymous>"
	}
	return name
}

// jsTarget is a script function captured by __ak.call. It only runs when
// the host asks for it.
type jsTarget struct {
	e    *Engine
	name string
	fn   goja.Callable
	args []goja.Value
}

func (t *jsTarget) Name() string { return t.name }

func (t *jsTarget) Call(ctx context.Context, _ []any) (any, error) {
	out := make(chan outcome, 1)
	t.e.loop.RunOnLoop(func(vm *goja.Runtime) {
		ret, err := t.fn(goja.Undefined(), t.args...)
		if err != nil {
			out <- outcome{err: scriptError(err)}
			return
		}
		t.e.settle(vm, ret, func(v any, err error) { out <- outcome{v, err} })
	})
	return t.e.await(ctx, out)
}

// async runs fn off the loop and returns a promise settled with its result.
func (e *Engine) async(vm *goja.Runtime, fn func(ctx context.Context) (any, error)) goja.Value {
	promise, resolve, reject := vm.NewPromise()
	go func() {
		v, err := fn(e.ctx)
		e.loop.RunOnLoop(func(vm *goja.Runtime) {
			if err != nil {
				_ = reject(vm.NewGoError(err))
				return
			}
			_ = resolve(vm.ToValue(v))
		})
	}()
	return vm.ToValue(promise)
}

// platformObject builds the "ak" namespace. Every method returns a promise.
func (e *Engine) platformObject(vm *goja.Runtime) *goja.Object {
	ak := vm.NewObject()
	method := func(name string, fn func(call goja.FunctionCall) func(context.Context) (any, error)) {
		_ = ak.Set(name, func(call goja.FunctionCall) goja.Value {
			if e.syscalls == nil {
				return e.async(vm, func(context.Context) (any, error) {
					return nil, fmt.Errorf("%s: %w", name, errNoSyscalls)
				})
			}
			return e.async(vm, fn(call))
		})
	}

	method("subscribe", func(call goja.FunctionCall) func(context.Context) (any, error) {
		conn, filter := argString(call, 0), argString(call, 1)
		return func(ctx context.Context) (any, error) {
			return e.syscalls.Subscribe(ctx, conn, filter)
		}
	})
	method("nextEvent", func(call goja.FunctionCall) func(context.Context) (any, error) {
		ids := argStrings(call.Argument(0))
		timeout := argTimeout(call.Argument(1))
		return func(ctx context.Context) (any, error) {
			ev, err := e.syscalls.NextEvent(ctx, ids, timeout)
			if err != nil || ev == nil {
				return nil, err
			}
			return ev, nil
		}
	})
	method("unsubscribe", func(call goja.FunctionCall) func(context.Context) (any, error) {
		id := argString(call, 0)
		return func(ctx context.Context) (any, error) {
			return nil, e.syscalls.Unsubscribe(ctx, id)
		}
	})
	method("sleep", func(call goja.FunctionCall) func(context.Context) (any, error) {
		d := millis(call.Argument(0))
		return func(ctx context.Context) (any, error) {
			return nil, e.syscalls.Sleep(ctx, d)
		}
	})
	method("log", func(call goja.FunctionCall) func(context.Context) (any, error) {
		level := argString(call, 0)
		msg := formatArgs(call.Arguments[min(1, len(call.Arguments)):])
		return func(ctx context.Context) (any, error) {
			return nil, e.syscalls.Log(ctx, level, msg)
		}
	})
	method("startSession", func(call goja.FunctionCall) func(context.Context) (any, error) {
		loc, data := argString(call, 0), export(call.Argument(1))
		memo := map[string]string{}
		if m, ok := export(call.Argument(2)).(map[string]any); ok {
			for k, v := range m {
				memo[k] = fmt.Sprint(v)
			}
		}
		return func(ctx context.Context) (any, error) {
			return e.syscalls.StartSession(ctx, loc, data, memo)
		}
	})
	method("encodeJWT", func(call goja.FunctionCall) func(context.Context) (any, error) {
		payload, conn, alg := export(call.Argument(0)), argString(call, 1), argString(call, 2)
		return func(ctx context.Context) (any, error) {
			return e.syscalls.EncodeJWT(ctx, payload, conn, alg)
		}
	})
	method("refreshOAuthToken", func(call goja.FunctionCall) func(context.Context) (any, error) {
		integration, conn := argString(call, 0), argString(call, 1)
		return func(ctx context.Context) (any, error) {
			tok, err := e.syscalls.RefreshOAuthToken(ctx, integration, conn)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"token":   tok.Token,
				"expires": tok.Expires.UTC().Format(time.RFC3339),
			}, nil
		}
	})
	return ak
}

func argString(call goja.FunctionCall, i int) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// argStrings accepts a single id or an array of ids.
func argStrings(v goja.Value) []string {
	switch x := export(v).(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(x))
		for _, s := range x {
			out = append(out, fmt.Sprint(s))
		}
		return out
	default:
		return []string{fmt.Sprint(x)}
	}
}

// argTimeout accepts milliseconds or {timeout: milliseconds}.
func argTimeout(v goja.Value) time.Duration {
	if obj, ok := v.(*goja.Object); ok {
		return millis(obj.Get("timeout"))
	}
	return millis(v)
}

func millis(v goja.Value) time.Duration {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	return time.Duration(v.ToFloat() * float64(time.Millisecond))
}
