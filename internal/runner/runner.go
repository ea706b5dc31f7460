// Package runner supervises a script runner process: it verifies the host
// keeps wanting it, serves the RunnerService and shuts down gracefully.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"scriptrunner/internal/logger"
)

var (
	// ErrInvalidState is wrapped by transitions attempted from the wrong state.
	ErrInvalidState = errors.New("invalid runner state")
	// ErrShuttingDown is delivered to calls still pending at shutdown.
	ErrShuttingDown = errors.New("runner shutting down")
)

// Prober is the part of the host the runner polls.
type Prober interface {
	IsActiveRunner(ctx context.Context) (bool, error)
	Health(ctx context.Context) error
}

type Options struct {
	LivenessInterval time.Duration
	LivenessAttempts int
	LivenessBackoff  time.Duration
	HealthInterval   time.Duration
	StartTimeout     time.Duration
	GracePeriod      time.Duration
	Logger           *log.Logger
}

func (o *Options) defaults() {
	if o.LivenessInterval <= 0 {
		o.LivenessInterval = 10 * time.Second
	}
	if o.LivenessAttempts <= 0 {
		o.LivenessAttempts = 3
	}
	if o.LivenessBackoff <= 0 {
		o.LivenessBackoff = time.Second
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 10 * time.Second
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 2 * time.Minute
	}
	if o.GracePeriod < 0 {
		o.GracePeriod = 0
	}
}

type Runner struct {
	opts Options
	// liveness answers are taken from a single attempt per probe; health
	// pings go through the retrying client
	liveness Prober
	health   Prober
	logger   *log.Logger

	state   atomic.Int32
	stateMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer
	wg     sync.WaitGroup

	shutdownOnce sync.Once
	stopOnce     sync.Once
	hooksMu      sync.Mutex
	hooks        []func()
	exitCode     atomic.Int32
	reason       atomic.Value
	done         chan struct{}
}

// New creates a Runner in StateCreated. liveness and health may be the same
// prober.
func New(liveness, health Prober, opts Options) *Runner {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		opts:     opts,
		liveness: liveness,
		health:   health,
		logger:   logger.Component(opts.Logger, "runner"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	r.state.Store(int32(StateCreated))
	return r
}

func (r *Runner) State() State { return State(r.state.Load()) }

// Context is canceled when the runner begins shutting down.
func (r *Runner) Context() context.Context { return r.ctx }

// Done is closed once the runner reaches StateStopped.
func (r *Runner) Done() <-chan struct{} { return r.done }

// ExitCode is the process exit code requested by the shutdown.
func (r *Runner) ExitCode() int { return int(r.exitCode.Load()) }

// Reason describes why the runner shut down.
func (r *Runner) Reason() string {
	s, _ := r.reason.Load().(string)
	return s
}

// OnShutdown registers fn to run once the grace period has passed, before
// the runner reports StateStopped. Hooks run in registration order.
func (r *Runner) OnShutdown(fn func()) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, fn)
	r.hooksMu.Unlock()
}

// Start moves the runner from Created to Starting and begins the liveness
// probe, the health ping and the start timeout.
func (r *Runner) Start() error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if !r.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("%w: start in state %s", ErrInvalidState, r.State())
	}

	r.timer = time.AfterFunc(r.opts.StartTimeout, func() {
		if r.State() == StateStarting {
			r.logger.Error("start request not received in time", "timeout", r.opts.StartTimeout)
			r.Shutdown("start timeout", 1)
		}
	})
	r.goSafe("liveness", r.livenessLoop)
	r.goSafe("health", r.healthLoop)
	r.logger.Info("runner starting")
	return nil
}

// MarkStarted records that the host started the script. It succeeds once.
func (r *Runner) MarkStarted() error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if !r.state.CompareAndSwap(int32(StateStarting), int32(StateStarted)) {
		return fmt.Errorf("%w: script start in state %s", ErrInvalidState, r.State())
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.logger.Info("runner started")
	return nil
}

// Stop cancels the probes and the start timeout. It is safe to call more
// than once and does not change the state.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.stateMu.Lock()
		if r.timer != nil {
			r.timer.Stop()
		}
		r.stateMu.Unlock()
		r.cancel()
	})
}

// Shutdown is the single graceful exit path. It stops the probes, waits the
// grace period, runs the shutdown hooks and moves to StateStopped. Only the
// first call has an effect; it does not block.
func (r *Runner) Shutdown(reason string, code int) {
	r.shutdownOnce.Do(func() {
		r.stateMu.Lock()
		prev := r.State()
		r.state.Store(int32(StateStopping))
		r.stateMu.Unlock()

		r.exitCode.Store(int32(code))
		r.reason.Store(reason)
		r.logger.Info("runner shutting down", "reason", reason, "code", code, "from", prev)
		r.Stop()

		go func() {
			if r.opts.GracePeriod > 0 {
				time.Sleep(r.opts.GracePeriod)
			}
			r.wg.Wait()
			r.hooksMu.Lock()
			hooks := append([]func(){}, r.hooks...)
			r.hooksMu.Unlock()
			for _, fn := range hooks {
				fn()
			}
			r.state.Store(int32(StateStopped))
			r.logger.Info("runner stopped", "code", code)
			close(r.done)
		}()
	})
}

// goSafe runs fn in a goroutine whose panic shuts the runner down.
func (r *Runner) goSafe(name string, fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.Recover(name)
		fn()
	}()
}

// Recover turns a panic into a shutdown with exit code 1. Use it deferred.
func (r *Runner) Recover(where string) {
	if v := recover(); v != nil {
		r.logger.Error("panic", "where", where, "value", v)
		r.Shutdown(fmt.Sprintf("panic in %s: %v", where, v), 1)
	}
}

func (r *Runner) livenessLoop() {
	t := time.NewTicker(r.opts.LivenessInterval)
	defer t.Stop()
	for {
		if !r.probeLiveness() {
			r.Shutdown("runner is no longer active", 1)
			return
		}
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
		}
	}
}

// probeLiveness asks the host up to LivenessAttempts times. Negative
// answers and transport errors both use up an attempt.
func (r *Runner) probeLiveness() bool {
	for attempt := 1; attempt <= r.opts.LivenessAttempts; attempt++ {
		active, err := r.liveness.IsActiveRunner(r.ctx)
		switch {
		case r.ctx.Err() != nil:
			// already shutting down; do not escalate
			return true
		case err != nil:
			r.logger.Warn("liveness probe failed", "attempt", attempt, "error", err)
		case !active:
			r.logger.Warn("host reports runner inactive", "attempt", attempt)
		default:
			return true
		}
		if attempt == r.opts.LivenessAttempts {
			break
		}
		select {
		case <-r.ctx.Done():
			return true
		case <-time.After(r.opts.LivenessBackoff):
		}
	}
	return false
}

func (r *Runner) healthLoop() {
	t := time.NewTicker(r.opts.HealthInterval)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
		}
		if err := r.health.Health(r.ctx); err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Error("health ping failed", "error", err)
			r.Shutdown("health ping failed", 1)
			return
		}
	}
}
