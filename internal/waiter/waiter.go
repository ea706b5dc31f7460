// Package waiter routes intercepted calls through the host: a call is
// registered under a token and reported as an activity, the host later asks
// for it to be executed and delivers its result back.
package waiter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"scriptrunner/internal/logger"
)

// Target is a call that was intercepted.
type Target interface {
	Name() string
	Call(ctx context.Context, args []any) (any, error)
}

// Func adapts a Go function to Target.
type Func struct {
	FuncName string
	Fn       func(ctx context.Context, args []any) (any, error)
}

func (f Func) Name() string { return f.FuncName }

func (f Func) Call(ctx context.Context, args []any) (any, error) {
	return f.Fn(ctx, args)
}

// Activity is what the host is told about an intercepted call.
type Activity struct {
	Token string
	Name  string
	Args  []any
}

// Reporter forwards activities to the host.
type Reporter interface {
	Activity(ctx context.Context, a Activity) error
}

// Result is the outcome delivered for a token.
type Result struct {
	Value any
	Err   error
}

// NewToken returns a fresh call token.
func NewToken() string { return uuid.NewString() }

type pendingCall struct {
	token    string
	target   Target
	args     []any
	executed bool
	result   chan Result
}

// Pending is the handle of a registered call.
type Pending struct {
	Token string
	ch    <-chan Result
}

// Done yields exactly one Result.
func (p *Pending) Done() <-chan Result { return p.ch }

// Waiter holds the pending calls keyed by token.
type Waiter struct {
	reporter Reporter
	logger   *log.Logger
	onReport func(Activity, error)

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  error
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(w *Waiter) { w.logger = logger.Component(l, "waiter") }
}

// WithReportFailure registers a hook run when an activity could not be
// reported. The pending call is failed with the same error.
func WithReportFailure(fn func(Activity, error)) Option {
	return func(w *Waiter) { w.onReport = fn }
}

func New(reporter Reporter, opts ...Option) *Waiter {
	w := &Waiter{
		reporter: reporter,
		logger:   logger.Discard(),
		pending:  make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Begin registers target under token and reports it to the host in the
// background. It does not block.
func (w *Waiter) Begin(ctx context.Context, token string, target Target, args []any) (*Pending, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenMismatch)
	}
	if target == nil {
		return nil, fmt.Errorf("nil target for token %s", token)
	}

	w.mu.Lock()
	if w.closed != nil {
		w.mu.Unlock()
		return nil, w.closed
	}
	if _, exists := w.pending[token]; exists {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTokenInUse, token)
	}
	pc := &pendingCall{
		token:  token,
		target: target,
		args:   args,
		result: make(chan Result, 1),
	}
	w.pending[token] = pc
	w.mu.Unlock()

	act := Activity{Token: token, Name: target.Name(), Args: args}
	w.logger.Debug("activity requested", "token", token, "name", act.Name)
	go w.report(context.WithoutCancel(ctx), act)

	return &Pending{Token: token, ch: pc.result}, nil
}

func (w *Waiter) report(ctx context.Context, act Activity) {
	if w.reporter == nil {
		return
	}
	err := w.reporter.Activity(ctx, act)
	if err == nil {
		return
	}
	w.logger.Error("activity report failed", "token", act.Token, "name", act.Name, "error", err)
	w.deliver(act.Token, Result{Err: fmt.Errorf("report activity %s: %w", act.Name, err)})
	if w.onReport != nil {
		w.onReport(act, err)
	}
}

// Wait registers target under token and blocks until a result is delivered
// for it or ctx ends.
func (w *Waiter) Wait(ctx context.Context, token string, target Target, args []any) (any, error) {
	p, err := w.Begin(ctx, token, target, args)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-p.Done():
		return res.Value, res.Err
	case <-ctx.Done():
		w.forget(token)
		return nil, ctx.Err()
	}
}

// Execute runs the call pending under token. A call runs at most once; the
// entry stays registered until its result is delivered.
func (w *Waiter) Execute(ctx context.Context, token string) (any, error) {
	w.mu.Lock()
	pc, ok := w.pending[token]
	if !ok {
		w.mu.Unlock()
		w.logger.Warn("execute for unknown token", "token", token)
		return nil, fmt.Errorf("%w: %s", ErrTokenMismatch, token)
	}
	if pc.executed {
		w.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExecuted, token)
	}
	pc.executed = true
	w.mu.Unlock()

	name := pc.target.Name()
	w.logger.Debug("executing activity", "token", token, "name", name)
	v, err := pc.target.Call(ctx, pc.args)
	if err != nil {
		return nil, &ActivityExecutionError{Token: token, Name: name, Err: err}
	}
	return v, nil
}

// Reply delivers res to the call pending under token and discards the entry.
// It reports false when nothing was waiting, which happens when the host
// delivers the same reply twice.
func (w *Waiter) Reply(token string, res Result) bool {
	if !w.deliver(token, res) {
		w.logger.Warn("reply for unknown token dropped", "token", token)
		return false
	}
	return true
}

func (w *Waiter) deliver(token string, res Result) bool {
	w.mu.Lock()
	pc, ok := w.pending[token]
	if ok {
		delete(w.pending, token)
	}
	w.mu.Unlock()
	if !ok {
		return false
	}
	pc.result <- res
	return true
}

func (w *Waiter) forget(token string) {
	w.mu.Lock()
	delete(w.pending, token)
	w.mu.Unlock()
}

// Pending lists the live tokens in sorted order.
func (w *Waiter) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	tokens := make([]string, 0, len(w.pending))
	for t := range w.pending {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)
	return tokens
}

// Close fails every pending call with err (ErrClosed when nil) and rejects
// further registrations.
func (w *Waiter) Close(err error) {
	if err == nil {
		err = ErrClosed
	}
	w.mu.Lock()
	if w.closed != nil {
		w.mu.Unlock()
		return
	}
	w.closed = err
	pending := w.pending
	w.pending = make(map[string]*pendingCall)
	w.mu.Unlock()

	for _, pc := range pending {
		pc.result <- Result{Err: err}
	}
}
