package monitor

import (
	"context"
	"sort"
	"sync"

	"payagent/internal/session"
	"payagent/internal/txn/domain"
	"payagent/internal/txn/ports"
	"payagent/internal/txn/repository"
)

// Repository is the part of the transaction cache a monitor overlays
type Repository interface {
	Observer
	Shadow(id domain.ID, overlay repository.Overlay)
	Unshadow(id domain.ID)
}

// Manager keeps at most one open monitor per transaction
type Manager struct {
	port   ports.MonitorPort
	store  *session.Store
	repo   Repository
	sink   ports.EventSink
	config Config

	mu       sync.Mutex
	sessions map[domain.ID]*Session
}

// NewManager creates a manager. repo and sink may be nil.
func NewManager(port ports.MonitorPort, store *session.Store, repo Repository, sink ports.EventSink, cfg Config) *Manager {
	if sink == nil {
		sink = ports.NopSink{}
	}
	return &Manager{
		port:     port,
		store:    store,
		repo:     repo,
		sink:     sink,
		config:   cfg,
		sessions: make(map[domain.ID]*Session),
	}
}

// Open starts monitoring id, or returns the monitor already open for it.
// A non-nil seed is shown as an optimistic status until the first poll.
func (m *Manager) Open(ctx context.Context, id domain.ID, seed *domain.Transaction) (*Session, bool) {
	m.mu.Lock()
	if s, ok := m.sessions[id]; ok && !s.Closed() {
		m.mu.Unlock()
		return s, true
	}

	s := newSession(id, m.port, m.store, m.config)
	s.sink = m.sink
	if m.repo != nil {
		s.observer = m.repo
	}
	if seed != nil {
		s.seed(*seed)
	}
	s.onClose = append(s.onClose, m.release)
	m.sessions[id] = s
	m.mu.Unlock()

	if m.repo != nil {
		m.repo.Shadow(id, s)
	}
	s.start(ctx)
	return s, false
}

// Get returns the open monitor of id
func (m *Manager) Get(id domain.ID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// Active lists the ids with an open monitor
func (m *Manager) Active() []domain.ID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]domain.ID, 0, len(m.sessions))
	for id, s := range m.sessions {
		if !s.Closed() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CloseAll closes every open monitor
func (m *Manager) CloseAll() {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		s.Close()
	}
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	cur, ok := m.sessions[s.id]
	replaced := ok && cur != s
	if ok && cur == s {
		delete(m.sessions, s.id)
	}
	m.mu.Unlock()

	if m.repo != nil && !replaced {
		m.repo.Unshadow(s.id)
	}
}
