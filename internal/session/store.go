package session

import (
	"sync"

	"payagent/internal/logging"
)

// Persister keeps the credential across process restarts.
type Persister interface {
	Load() (string, error)
	Save(token string) error
	Delete() error
}

// Store is the single process-wide credential cell. Every request reads it
// before going out and any component that sees a 401 invalidates it.
type Store struct {
	// persistMu orders writes to the persister with the changes they record.
	// It is taken before mu.
	persistMu sync.Mutex
	mu        sync.RWMutex
	token     string
	epoch     uint64
	persister Persister
	listeners map[uint64]func(reason string)
	nextID    uint64
	logger    *logging.Logger
}

// NewStore creates a store and resumes a persisted credential if one exists.
// A nil persister keeps the credential in memory only.
func NewStore(persister Persister) *Store {
	s := &Store{
		persister: persister,
		listeners: make(map[uint64]func(string)),
		logger:    logging.NewDefaultLogger("session"),
	}
	if persister != nil {
		token, err := persister.Load()
		if err != nil {
			s.logger.Warn("Could not resume session: %v", err)
		} else if token != "" {
			s.token = token
			s.epoch = 1
			s.logger.Debug("Resumed persisted session")
		}
	}
	return s
}

// SetCredential stores a new credential. An empty token clears the session
// without notifying invalidation listeners.
func (s *Store) SetCredential(token string) error {
	if token == "" {
		return s.Clear()
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	s.token = token
	s.epoch++
	s.mu.Unlock()

	if s.persister != nil {
		if err := s.persister.Save(token); err != nil {
			return err
		}
	}
	return nil
}

// Credential returns the current token, if any.
func (s *Store) Credential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Authenticated reports whether a credential is present.
func (s *Store) Authenticated() bool {
	_, ok := s.Credential()
	return ok
}

// Epoch changes every time the credential is set or invalidated. A response
// fetched under one epoch must not be applied under another.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// Clear removes the credential on operator logout.
func (s *Store) Clear() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	hadToken := s.token != ""
	s.token = ""
	if hadToken {
		s.epoch++
	}
	s.mu.Unlock()

	if s.persister != nil {
		return s.persister.Delete()
	}
	return nil
}

// Current returns the token together with the epoch it belongs to.
func (s *Store) Current() (token string, epoch uint64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.epoch, s.token != ""
}

// Invalidate drops the credential after the service rejected it. Listeners
// run once per credential; calls without a live credential return false.
func (s *Store) Invalidate(reason string) bool {
	return s.invalidate(reason, func(uint64) bool { return true })
}

// InvalidateEpoch is Invalidate for a request that was sent under epoch. A
// 401 for a credential that has since been replaced is ignored.
func (s *Store) InvalidateEpoch(epoch uint64, reason string) bool {
	return s.invalidate(reason, func(current uint64) bool { return current == epoch })
}

func (s *Store) invalidate(reason string, applies func(current uint64) bool) bool {
	s.persistMu.Lock()
	s.mu.Lock()
	if s.token == "" || !applies(s.epoch) {
		s.mu.Unlock()
		s.persistMu.Unlock()
		return false
	}
	s.token = ""
	s.epoch++
	listeners := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	s.logger.Warn("Session invalidated: %s", reason)
	if s.persister != nil {
		if err := s.persister.Delete(); err != nil {
			s.logger.Error("Failed to delete persisted session: %v", err)
		}
	}
	s.persistMu.Unlock()

	for _, fn := range listeners {
		fn(reason)
	}
	return true
}

// Listeners returns the number of registered invalidation listeners.
func (s *Store) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// OnInvalidate registers fn to run when the credential is invalidated. The
// returned function unregisters it.
func (s *Store) OnInvalidate(fn func(reason string)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
