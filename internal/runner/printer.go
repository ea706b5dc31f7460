package runner

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"scriptrunner/internal/logger"
)

// PrintHost forwards script output to the host.
type PrintHost interface {
	Print(ctx context.Context, msg string) error
}

const printQueue = 1024

// Printer prints console output locally and forwards it to the host in the
// order it was written, without blocking the script. Forwarding failures are
// logged and otherwise ignored.
type Printer struct {
	host   PrintHost
	local  *log.Logger
	logger *log.Logger

	mu     sync.Mutex
	closed bool
	queue  chan string
	done   chan struct{}
}

func NewPrinter(host PrintHost, l *log.Logger) *Printer {
	p := &Printer{
		host:   host,
		local:  logger.Component(l, "script"),
		logger: logger.Component(l, "printer"),
		queue:  make(chan string, printQueue),
		done:   make(chan struct{}),
	}
	go p.forward()
	return p
}

func (p *Printer) Print(level, msg string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	p.local.Log(lvl, msg)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.logger.Warn("print queue full, dropping output")
	}
}

func (p *Printer) forward() {
	defer close(p.done)
	for msg := range p.queue {
		if err := p.host.Print(context.Background(), msg); err != nil {
			p.logger.Warn("forward print failed", "error", err)
		}
	}
}

// Close stops accepting output and waits until the queue is flushed or ctx
// ends.
func (p *Printer) Close(ctx context.Context) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	select {
	case <-p.done:
	case <-ctx.Done():
	}
}
