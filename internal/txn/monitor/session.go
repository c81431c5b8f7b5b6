// Package monitor implements the live view of one transaction while the
// agent executes it, including the PIN handoff.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"payagent/internal/config"
	"payagent/internal/errors"
	"payagent/internal/logging"
	"payagent/internal/session"
	"payagent/internal/txn/domain"
	"payagent/internal/txn/periodic"
	"payagent/internal/txn/ports"

	"github.com/google/uuid"
)

// CloseReason says why a monitor ended
type CloseReason string

const (
	ReasonCompleted       CloseReason = "completed"
	ReasonOperator        CloseReason = "closed"
	ReasonUnauthenticated CloseReason = "unauthenticated"
	ReasonCancelled       CloseReason = "cancelled"
)

// maxSeedLag bounds how many review-stage polls an optimistic seed survives
// before the authoritative status is shown.
const maxSeedLag = 5

// Config holds the monitor cadence and PIN bounds
type Config struct {
	Interval     time.Duration
	Grace        time.Duration
	PINMinLength int
	PINMaxLength int
}

// ConfigFrom extracts the monitor settings from the application config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Interval:     cfg.Monitor.Interval,
		Grace:        cfg.Monitor.Grace,
		PINMinLength: cfg.Monitor.PINMinLength,
		PINMaxLength: cfg.Monitor.PINMaxLength,
	}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.Grace < 0 {
		c.Grace = 0
	}
	if c.PINMinLength <= 0 {
		c.PINMinLength = 4
	}
	if c.PINMaxLength < c.PINMinLength {
		c.PINMaxLength = 6
	}
	return c
}

// State is a published snapshot of a monitor
type State struct {
	ID          domain.ID
	Transaction domain.Transaction
	HasSnapshot bool
	Status      domain.Status
	Optimistic  bool
	FeedURL     string
	UpdatedAt   time.Time
	Polls       int
	LastError   string
	PINPending  bool
	ClosingAt   time.Time
	Closed      bool
	Reason      CloseReason
}

// Closing reports whether the grace delay before auto-close is running
func (s State) Closing() bool {
	return !s.ClosingAt.IsZero() && !s.Closed
}

// Observer receives every authoritative snapshot the monitor fetches.
// BeginObserve is taken before each request and handed back with its result.
type Observer interface {
	BeginObserve() uint64
	Observe(seq uint64, tx domain.Transaction)
}

// Session polls one transaction on its own task until it is paid, closed by
// the operator, or the credential is invalidated.
type Session struct {
	id       domain.ID
	sid      string
	port     ports.MonitorPort
	store    *session.Store
	observer Observer
	sink     ports.EventSink
	config   Config
	logger   *logging.Logger
	now      func() time.Time

	task *periodic.Task

	mu       sync.Mutex
	state    State
	pin      string
	lagPolls int
	grace    *time.Timer
	closed   bool
	onClose  []func(*Session)

	closeOnce   sync.Once
	updates     chan State
	done        chan struct{}
	unsubscribe func()
}

func newSession(id domain.ID, port ports.MonitorPort, store *session.Store, cfg Config) *Session {
	cfg = cfg.withDefaults()
	sid := uuid.New().String()
	s := &Session{
		id:      id,
		sid:     sid,
		port:    port,
		store:   store,
		sink:    ports.NopSink{},
		config:  cfg,
		logger:  logging.NewDefaultLogger("monitor").WithPrefix(id.String()).With("session", sid[:8]),
		now:     time.Now,
		state:   State{ID: id},
		updates: make(chan State, 1),
		done:    make(chan struct{}),
	}
	s.task = periodic.New(periodic.Options{
		Name:      "monitor." + id.String(),
		Interval:  cfg.Interval,
		Immediate: true,
		OnError: func(err error) {
			s.logger.Warn("Poll failed: %v", err)
		},
	}, s.poll)
	return s
}

// seed shows status locally until the first authoritative fetch confirms it
func (s *Session) seed(tx domain.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.Optimistic = true
	s.state.Transaction = tx
	s.state.HasSnapshot = true
	s.state.Status = tx.Status
	s.state.Optimistic = true
}

func (s *Session) start(ctx context.Context) {
	if s.store != nil {
		unsubscribe := s.store.OnInvalidate(func(string) {
			s.finish(ReasonUnauthenticated)
		})
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			unsubscribe()
			return
		}
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
		if !s.store.Authenticated() {
			s.finish(ReasonUnauthenticated)
			return
		}
	}
	s.publish(s.State())
	s.task.Start(ctx)
	go func() {
		select {
		case <-ctx.Done():
			s.finish(ReasonCancelled)
		case <-s.done:
		}
	}()
	s.logger.Info("Monitoring transaction %s", s.id)
}

// ID returns the monitored transaction id
func (s *Session) ID() domain.ID {
	return s.id
}

// SessionID identifies this monitor run in logs
func (s *Session) SessionID() string {
	return s.sid
}

// State returns the current snapshot
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the monitor's copy of the transaction once it has one
func (s *Session) Snapshot() (domain.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Transaction, s.state.HasSnapshot
}

// Updates delivers state changes. A slow reader only sees the latest state.
func (s *Session) Updates() <-chan State {
	return s.updates
}

// Done is closed when the monitor has closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether the monitor has closed
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseReason returns why the monitor closed, or "" while it is open
func (s *Session) CloseReason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Reason
}

// Close ends the monitor at the operator's request and waits for the poll
// loop to exit. Closing twice is a no-op.
func (s *Session) Close() {
	s.finish(ReasonOperator)
	s.task.Stop()
}

func (s *Session) poll(ctx context.Context) error {
	var epoch uint64
	if s.store != nil {
		epoch = s.store.Epoch()
	}
	var seq uint64
	if s.observer != nil {
		seq = s.observer.BeginObserve()
	}

	tx, err := s.port.GetTransaction(ctx, s.id)
	if s.Closed() {
		return periodic.ErrStop
	}
	if err != nil {
		if errors.IsUnauthorized(err) {
			s.finish(ReasonUnauthenticated)
			return periodic.ErrStop
		}
		s.mu.Lock()
		s.state.LastError = err.Error()
		st := s.state
		s.mu.Unlock()
		s.publish(st)
		return err
	}
	if s.store != nil && s.store.Epoch() != epoch {
		s.logger.Debug("Discarding poll from a previous session")
		return nil
	}

	if terminal := s.apply(*tx, seq); terminal {
		return periodic.ErrStop
	}
	return nil
}

// apply folds an authoritative snapshot into the state and reports whether
// the transaction reached its terminal status.
func (s *Session) apply(tx domain.Transaction, seq uint64) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return true
	}

	now := s.now()
	lagging := s.state.Optimistic && tx.Status.Stage() == domain.StageReview && s.lagPolls < maxSeedLag
	if lagging {
		s.lagPolls++
		tx.Status = s.state.Status
		tx.Optimistic = true
	} else {
		if s.state.Optimistic && tx.Status.Stage() == domain.StageReview {
			s.logger.Warn("Service still reports %s after %d polls", tx.Status, s.lagPolls)
		}
		tx.Optimistic = false
		s.state.Optimistic = false
	}

	prev := s.state.Status
	s.state.Transaction = tx
	s.state.HasSnapshot = true
	s.state.Status = tx.Status
	s.state.FeedURL = s.port.LiveFeedURL(now)
	s.state.UpdatedAt = now
	s.state.Polls++
	s.state.LastError = ""

	terminal := tx.Status.IsTerminal()
	if terminal && s.grace == nil {
		s.state.ClosingAt = now.Add(s.config.Grace)
		s.grace = time.AfterFunc(s.config.Grace, func() {
			s.finish(ReasonCompleted)
		})
	}
	st := s.state
	s.mu.Unlock()

	if prev != tx.Status {
		s.logger.Info("Status %s -> %s", prev.Label(), tx.Status.Label())
	}
	if !tx.Optimistic && s.observer != nil {
		s.observer.Observe(seq, tx)
	}
	s.publish(st)
	return terminal
}

// SetPIN replaces the PIN buffer
func (s *Session) SetPIN(pin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pin = pin
}

// PIN returns the PIN buffer
func (s *Session) PIN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pin
}

// SubmitPIN sends the buffered PIN
func (s *Session) SubmitPIN(ctx context.Context) error {
	return s.ProvidePIN(ctx, s.PIN())
}

// ProvidePIN relays pin to the agent. It is only sent while the transaction
// waits for a PIN and the length is within bounds. The buffer is cleared
// once the request resolves, whatever the outcome.
func (s *Session) ProvidePIN(ctx context.Context, pin string) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return errors.Validation("monitor is closed")
	case s.state.Status != domain.StatusWaitingForPIN:
		status := s.state.Status
		s.mu.Unlock()
		return errors.Validation("transaction is not waiting for a PIN").
			WithContext("status", string(status))
	case len(pin) < s.config.PINMinLength || len(pin) > s.config.PINMaxLength:
		s.mu.Unlock()
		return errors.Validation(fmt.Sprintf("PIN must be %d to %d characters", s.config.PINMinLength, s.config.PINMaxLength))
	case s.state.PINPending:
		s.mu.Unlock()
		return errors.Validation("a PIN is already being submitted")
	}
	s.state.PINPending = true
	st := s.state
	s.mu.Unlock()
	s.publish(st)

	err := s.port.ProvidePIN(ctx, s.id, pin)

	s.mu.Lock()
	s.pin = ""
	s.state.PINPending = false
	st = s.state
	s.mu.Unlock()

	if errors.IsUnauthorized(err) {
		s.finish(ReasonUnauthenticated)
		return err
	}
	if err != nil {
		s.logger.Warn("PIN submission failed: %v", err)
	} else {
		s.logger.Info("PIN submitted, waiting for the agent")
	}
	s.publish(st)
	return err
}

// publish offers st to Updates, replacing an unread state. Nothing is
// published after close except the final state.
func (s *Session) publish(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && !st.Closed {
		return
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- st:
	default:
	}
}

// finish closes the monitor once. It never waits for the poll loop, so it is
// safe from the loop itself, timers and invalidation listeners.
func (s *Session) finish(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pin = ""
		s.state.Closed = true
		s.state.Reason = reason
		s.state.PINPending = false
		if s.grace != nil {
			s.grace.Stop()
		}
		st := s.state
		hooks := s.onClose
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		s.mu.Unlock()

		s.task.Cancel()
		if unsubscribe != nil {
			unsubscribe()
		}
		s.publish(st)
		close(s.done)

		s.logger.Info("Monitor closed (%s) at %s", reason, st.Status.Label())
		s.sink.MonitorClosed(s.id, string(reason), st.Status)
		for _, fn := range hooks {
			fn(s)
		}
	})
}
