// Package poller keeps the transaction repository in sync with the remote
// service. There is no push channel; polling is the only reconciliation.
package poller

import (
	"context"
	"sync"
	"time"

	"payagent/internal/config"
	"payagent/internal/errors"
	"payagent/internal/logging"
	"payagent/internal/session"
	"payagent/internal/txn/periodic"
	"payagent/internal/txn/repository"
)

// Refresher is the part of the repository the poller drives
type Refresher interface {
	Refresh(ctx context.Context) (repository.RefreshResult, error)
}

// Config holds the polling cadence
type Config struct {
	QueueInterval    time.Duration
	AdaptiveInterval time.Duration
	AdaptiveMaxTicks int
}

// ConfigFrom extracts the poller settings from the application config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		QueueInterval:    cfg.Polling.QueueInterval,
		AdaptiveInterval: cfg.Polling.AdaptiveInterval,
		AdaptiveMaxTicks: cfg.Polling.AdaptiveMaxTicks,
	}
}

// Poller runs the queue and adaptive refresh loops. Both stop when the
// session is invalidated.
type Poller struct {
	repo   Refresher
	config Config
	logger *logging.Logger

	mu       sync.Mutex
	queue    *periodic.Task
	adaptive *periodic.Task

	unsubscribe func()
}

// New creates an idle poller
func New(repo Refresher, store *session.Store, cfg Config) *Poller {
	if cfg.QueueInterval <= 0 {
		cfg.QueueInterval = 2 * time.Second
	}
	if cfg.AdaptiveInterval <= 0 {
		cfg.AdaptiveInterval = 2 * time.Second
	}

	p := &Poller{
		repo:   repo,
		config: cfg,
		logger: logging.NewDefaultLogger("poller"),
	}
	p.queue = periodic.New(periodic.Options{
		Name:      "queue",
		Interval:  cfg.QueueInterval,
		Immediate: true,
		OnError:   p.logTickError,
	}, p.queueTick)
	p.adaptive = periodic.New(periodic.Options{
		Name:      "adaptive",
		Interval:  cfg.AdaptiveInterval,
		Immediate: true,
		MaxTicks:  cfg.AdaptiveMaxTicks,
		OnError:   p.logTickError,
	}, p.adaptiveTick)

	if store != nil {
		p.unsubscribe = store.OnInvalidate(func(reason string) {
			p.logger.Info("Stopping polling: %s", reason)
			p.cancelAll()
		})
	}
	return p
}

// StartQueue refreshes immediately and then on every queue interval. It is
// a no-op while queue polling is already running.
func (p *Poller) StartQueue(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Start(ctx)
}

// StopQueue stops queue polling and waits for an in-flight tick
func (p *Poller) StopQueue() {
	p.queue.Stop()
}

// QueueActive reports whether queue polling is running
func (p *Poller) QueueActive() bool {
	return p.queue.Running()
}

// StartAdaptive fetches at once and then polls until the first successful
// non-empty fetch, e.g. while an uploaded document is being extracted. Once
// stopped it never resumes on its own.
func (p *Poller) StartAdaptive(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	started := p.adaptive.Start(ctx)
	if started {
		p.logger.Info("Waiting for extracted transactions")
	}
	return started
}

// AdaptiveActive reports whether adaptive polling is running
func (p *Poller) AdaptiveActive() bool {
	return p.adaptive.Running()
}

// AdaptiveDone is closed when the current adaptive run ends
func (p *Poller) AdaptiveDone() <-chan struct{} {
	return p.adaptive.Done()
}

// Stop halts both loops and waits for them
func (p *Poller) Stop() {
	p.queue.Stop()
	p.adaptive.Stop()
}

// Close stops polling and detaches from the session
func (p *Poller) Close() {
	p.Stop()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

// cancelAll signals both loops without waiting. Invalidation listeners may
// run on a polling goroutine.
func (p *Poller) cancelAll() {
	p.queue.Cancel()
	p.adaptive.Cancel()
}

func (p *Poller) queueTick(ctx context.Context) error {
	_, err := p.repo.Refresh(ctx)
	if errors.IsUnauthorized(err) {
		return periodic.ErrStop
	}
	return err
}

func (p *Poller) adaptiveTick(ctx context.Context) error {
	res, err := p.repo.Refresh(ctx)
	if errors.IsUnauthorized(err) {
		return periodic.ErrStop
	}
	if err != nil {
		return err
	}
	if res.Count > 0 {
		p.logger.Info("Found %d pending transactions, adaptive polling done", res.Count)
		return periodic.ErrStop
	}
	return nil
}

func (p *Poller) logTickError(err error) {
	p.logger.Warn("Refresh failed, retrying next tick: %v", err)
}
