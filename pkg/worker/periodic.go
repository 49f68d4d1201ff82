// Package worker runs callbacks on a fixed interval in the background.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
)

// Task is the unit of work run on every tick. Errors are logged and do not
// stop the worker.
type Task func(ctx context.Context) error

// Periodic runs Task every Interval until stopped.
type Periodic struct {
	Name       string
	Interval   time.Duration
	Task       Task
	Clock      clockx.Clock
	Logger     *slog.Logger
	RunOnStart bool

	// OnRun, when set, is called after every run. Tests use it to wait for
	// ticks to be processed.
	OnRun func(err error)

	mu     sync.Mutex
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewPeriodic builds a worker on the real clock that also runs once on start.
func NewPeriodic(name string, interval time.Duration, task Task, logger *slog.Logger) *Periodic {
	return &Periodic{
		Name:       name,
		Interval:   interval,
		Task:       task,
		Clock:      clockx.Real(),
		Logger:     logger,
		RunOnStart: true,
	}
}

// Start launches the background loop. Calling Start on a running worker is a no-op.
func (p *Periodic) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}
	if p.Clock == nil {
		p.Clock = clockx.Real()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.doneCh = make(chan struct{})

	// The ticker is created before the goroutine starts so a fake clock
	// advanced right after Start still reaches it.
	ticker := p.Clock.NewTicker(p.Interval)
	go p.run(ctx, ticker, p.doneCh)

	p.Logger.Info("worker started", "worker", p.Name, "interval", p.Interval)
}

// Stop cancels the loop and blocks until an in-flight run has returned.
func (p *Periodic) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.doneCh
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.Logger.Info("worker stopped", "worker", p.Name)
}

func (p *Periodic) run(ctx context.Context, ticker clockx.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	if p.RunOnStart {
		p.runOnce(ctx)
	}

	for {
		select {
		case <-ticker.C():
			p.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Periodic) runOnce(ctx context.Context) {
	start := time.Now()
	err := p.Task(ctx)
	if err != nil && ctx.Err() == nil {
		p.Logger.Error("worker run failed", "worker", p.Name, "error", err)
	} else {
		p.Logger.Debug("worker run completed", "worker", p.Name, "duration_ms", time.Since(start).Milliseconds())
	}
	if p.OnRun != nil {
		p.OnRun(err)
	}
}

// Group starts and stops a set of workers together.
type Group []*Periodic

// Start starts every worker in the group.
func (g Group) Start(ctx context.Context) {
	for _, p := range g {
		p.Start(ctx)
	}
}

// Stop stops every worker in reverse start order.
func (g Group) Stop() {
	for i := len(g) - 1; i >= 0; i-- {
		g[i].Stop()
	}
}
