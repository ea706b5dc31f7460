package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/charmbracelet/log"

	"scriptrunner/internal/cache"
	"scriptrunner/internal/codesource"
	"scriptrunner/internal/config"
	"scriptrunner/internal/engine"
	"scriptrunner/internal/handler"
	"scriptrunner/internal/instrument"
	"scriptrunner/internal/runner"
	"scriptrunner/internal/server"
	"scriptrunner/internal/syscalls"
	"scriptrunner/internal/waiter"
)

const flushTimeout = 5 * time.Second

// serve wires the runner together and blocks until it stops. It returns the
// process exit code.
func serve(ctx context.Context, cfg *config.Config, l *log.Logger) (int, error) {
	fsys, err := codesource.Open(ctx, cfg, l)
	if err != nil {
		return 1, err
	}

	client := handler.New(cfg.WorkerAddress, cfg.RunnerID, handler.Options{
		Attempts: cfg.HandlerAttempts,
		Backoff:  cfg.HandlerBackoff,
		Logger:   l,
	})
	r := runner.New(client.Once(), client, runner.Options{
		LivenessInterval: cfg.LivenessInterval,
		LivenessAttempts: cfg.LivenessAttempts,
		LivenessBackoff:  cfg.LivenessBackoff,
		HealthInterval:   cfg.HealthInterval,
		StartTimeout:     cfg.StartTimeout,
		GracePeriod:      cfg.GracePeriod,
		Logger:           l,
	})

	w := waiter.New(client,
		waiter.WithLogger(l),
		waiter.WithReportFailure(func(a waiter.Activity, err error) {
			r.Shutdown(fmt.Sprintf("report activity %s: %v", a.Name, err), 1)
		}),
	)
	instrumented, err := cache.New(cfg.CacheSize, func(filename, src string) (*instrument.Result, error) {
		return instrument.Instrument(filename, src, instrument.WithSafeCallees(cfg.SafeCallees...))
	})
	if err != nil {
		return 1, err
	}
	printer := runner.NewPrinter(client, l)
	eng, err := engine.New(engine.Options{
		Code:     fsys,
		Waiter:   w,
		Syscalls: syscalls.New(client, l),
		Cache:    instrumented,
		Printer:  printer,
		Logger:   l,
		OnUnhandledRejection: func(err error) {
			r.Shutdown("unhandled rejection: "+err.Error(), 1)
		},
	})
	if err != nil {
		return 1, err
	}
	eng.Start()

	svc := runner.NewService(r, eng, w, client, l)
	srv := server.New(cfg.Addr(), server.NewRouter(svc, l), l)
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		eng.Close()
		return 1, fmt.Errorf("listen: %w", err)
	}
	go func() {
		defer r.Recover("server")
		if err := srv.Serve(ln); err != nil {
			l.Error("server failed", "error", err)
			r.Shutdown("server failed", 1)
		}
	}()

	r.OnShutdown(func() {
		w.Close(runner.ErrShuttingDown)
		flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		printer.Close(flushCtx)
		if err := srv.Shutdown(flushCtx); err != nil {
			l.Warn("server shutdown", "error", err)
		}
		eng.Close()
	})

	if err := r.Start(); err != nil {
		r.Shutdown("start failed", 1)
		<-r.Done()
		return 1, err
	}

	select {
	case <-ctx.Done():
		r.Shutdown("terminated", 0)
	case <-r.Done():
	}
	<-r.Done()

	st := instrumented.Stats()
	l.Debug("instrumentation cache", "hits", st.Hits, "misses", st.Misses, "entries", st.Len)
	return r.ExitCode(), nil
}
