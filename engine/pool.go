package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/scout/config"
	"github.com/use-agent/scout/models"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("engine: pool stopped")

// lane is a bounded queue drained by a fixed set of workers.
type lane struct {
	name    string
	workers int
	queue   chan Unit
	active  atomic.Int32
}

// Pool runs units on two lanes: plain-HTTP units on a wide lane and
// browser units on a narrow one, since browser sessions share a profile.
// Each unit runs exactly once; nothing is retried.
type Pool struct {
	runner      *Runner
	sites       SiteLookup
	plain       *lane
	browser     *lane
	unitTimeout time.Duration
	logger      *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates the pool and starts its workers.
func NewPool(cfg config.WorkerConfig, runner *Runner, sites SiteLookup, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PlainWorkers < 1 {
		cfg.PlainWorkers = 1
	}
	// Every browser session uses the same profile directory, so a second
	// browser worker could only wait for the first.
	if cfg.BrowserWorkers != 1 {
		if cfg.BrowserWorkers > 1 {
			logger.Warn("browser lane limited to one worker per profile",
				"requested", cfg.BrowserWorkers)
		}
		cfg.BrowserWorkers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.UnitTimeout <= 0 {
		cfg.UnitTimeout = 2 * time.Minute
	}

	p := &Pool{
		runner:      runner,
		sites:       sites,
		plain:       &lane{name: "plain", workers: cfg.PlainWorkers, queue: make(chan Unit, cfg.QueueSize)},
		browser:     &lane{name: "browser", workers: cfg.BrowserWorkers, queue: make(chan Unit, cfg.QueueSize)},
		unitTimeout: cfg.UnitTimeout,
		logger:      logger,
	}
	for _, l := range []*lane{p.plain, p.browser} {
		for i := 0; i < l.workers; i++ {
			p.wg.Add(1)
			go p.work(l)
		}
	}
	logger.Info("worker pool started",
		"plain_workers", cfg.PlainWorkers, "browser_workers", cfg.BrowserWorkers, "queue_size", cfg.QueueSize)
	return p
}

// Submit queues u without blocking. A full lane rejects it with QUEUE_FULL.
func (p *Pool) Submit(u Unit) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	l := p.laneFor(u.SiteID)
	select {
	case l.queue <- u:
		return nil
	default:
		return models.NewScrapeError(
			models.ErrCodeQueueFull,
			fmt.Sprintf("%s lane queue is full (%d units)", l.name, cap(l.queue)),
			nil,
		)
	}
}

// laneFor picks the browser lane for browser-mode sites. Unknown sites go
// to the plain lane, where the runner skips them.
func (p *Pool) laneFor(siteID string) *lane {
	if site, ok := p.sites.Lookup(siteID); ok && site.RequiresBrowser() {
		return p.browser
	}
	return p.plain
}

func (p *Pool) work(l *lane) {
	defer p.wg.Done()
	for u := range l.queue {
		l.active.Add(1)
		ctx, cancel := context.WithTimeout(context.Background(), p.unitTimeout)
		out := p.runner.Run(ctx, u)
		cancel()
		l.active.Add(-1)

		p.logger.Debug("unit finished", "lane", l.name, "site", u.SiteID,
			"status", out.Status, "results", out.Published)
	}
}

// Stats returns a snapshot of both lanes.
func (p *Pool) Stats() models.PoolStats {
	return models.PoolStats{
		PlainWorkers:   p.plain.workers,
		PlainActive:    int(p.plain.active.Load()),
		PlainQueued:    len(p.plain.queue),
		BrowserWorkers: p.browser.workers,
		BrowserActive:  int(p.browser.active.Load()),
		BrowserQueued:  len(p.browser.queue),
		QueueCapacity:  cap(p.plain.queue),
	}
}

// Stop refuses new units and waits for queued ones to finish, or for ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.plain.queue)
		close(p.browser.queue)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.logger.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine: stop pool: %w", ctx.Err())
	}
}
