package di

import (
	"fmt"
	"sync"

	"payagent/internal/clients/datadog"
	"payagent/internal/clients/payagent"
	"payagent/internal/config"
	"payagent/internal/logging"
	"payagent/internal/session"
	"payagent/internal/txn/monitor"
	"payagent/internal/txn/poller"
	"payagent/internal/txn/ports"
	"payagent/internal/txn/repository"
	"payagent/internal/txn/service"
)

// Container holds all application dependencies
type Container struct {
	config        *config.Config
	persister     *session.SQLitePersister
	store         *session.Store
	client        *payagent.Client
	datadogClient datadog.DatadogInterface
	datadogSink   *datadog.Sink
	sink          ports.EventSink
	repo          *repository.Repository
	poller        *poller.Poller
	monitors      *monitor.Manager
	orchestrator  *service.Orchestrator
	unsubscribe   func()
	logger        *logging.Logger
	mu            sync.RWMutex
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config: cfg,
		logger: logging.NewDefaultLogger("di"),
	}
}

// Initialize builds every component from the configuration. The session
// database lives in the configured state directory.
func (c *Container) Initialize() error {
	persister, err := session.NewSQLitePersister(c.config.StateDir())
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	return c.InitializeWith(persister)
}

// InitializeWith builds every component on top of persister
func (c *Container) InitializeWith(persister *session.SQLitePersister) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.persister = persister
	c.store = session.NewStore(persister)
	c.client = payagent.NewClient(payagent.ConfigFrom(c.config), c.store)

	// Forwarding lifecycle events is optional
	c.sink = ports.NopSink{}
	if c.config.Datadog.Enabled {
		client := datadog.NewDatadogClient(c.config.Datadog)
		c.datadogClient = client
		c.datadogSink = datadog.NewSink(client, c.config.Datadog)
		c.sink = c.datadogSink
		c.logger.Debug("Forwarding lifecycle events to Datadog as %s", c.config.Datadog.Service)
	}
	c.unsubscribe = c.store.OnInvalidate(c.sink.SessionInvalidated)

	c.repo = repository.New(c.client, c.store, repository.WithEventSink(c.sink))
	c.poller = poller.New(c.repo, c.store, poller.ConfigFrom(c.config))
	c.monitors = monitor.NewManager(c.client, c.store, c.repo, c.sink, monitor.ConfigFrom(c.config))
	c.orchestrator = service.NewOrchestrator(c.client, c.repo, c.monitors)

	return nil
}

// Close stops background work and releases the session database
func (c *Container) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitors != nil {
		c.monitors.CloseAll()
	}
	if c.poller != nil {
		c.poller.Close()
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	if c.datadogSink != nil {
		c.datadogSink.Close()
	}
	if c.persister != nil {
		if err := c.persister.Close(); err != nil {
			c.logger.Warn("Failed to close session store: %v", err)
		}
		c.persister = nil
	}
}

// Config returns the resolved configuration
func (c *Container) Config() *config.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// ClientSet contains all dependencies for commands
type ClientSet struct {
	Config       *config.Config
	Session      *session.Store
	API          payagent.PayAgentInterface
	Datadog      datadog.DatadogInterface
	Repository   *repository.Repository
	Poller       *poller.Poller
	Monitors     *monitor.Manager
	Orchestrator *service.Orchestrator
}

// GetClientSet returns all clients as a convenient struct
func (c *Container) GetClientSet() *ClientSet {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &ClientSet{
		Config:       c.config,
		Session:      c.store,
		API:          c.client,
		Datadog:      c.datadogClient,
		Repository:   c.repo,
		Poller:       c.poller,
		Monitors:     c.monitors,
		Orchestrator: c.orchestrator,
	}
}
