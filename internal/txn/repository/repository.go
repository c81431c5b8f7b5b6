// Package repository holds the client's materialized view of the pending
// transactions. Contents are replaced wholesale by each applied fetch.
package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"payagent/internal/logging"
	"payagent/internal/session"
	"payagent/internal/txn/domain"
	"payagent/internal/txn/ports"
)

// Overlay supplies a fresher snapshot of one transaction than the pending
// list, e.g. a live monitor polling it at a higher rate.
type Overlay interface {
	Snapshot() (domain.Transaction, bool)
}

// RefreshResult describes one Refresh call.
type RefreshResult struct {
	Seq     uint64
	Count   int
	Applied bool
}

// Repository caches the pending list keyed by id, in service order.
type Repository struct {
	source  ports.PendingSource
	session *session.Store
	sink    ports.EventSink
	logger  *logging.Logger
	now     func() time.Time

	seq atomic.Uint64

	mu        sync.RWMutex
	order     []domain.ID
	items     map[domain.ID]domain.Transaction
	applied   uint64
	fetchedAt time.Time
	anomalies *anomalyTracker
	shadows   map[domain.ID]Overlay
	version   uint64
	subs      map[uint64]chan uint64
	nextSub   uint64
}

// Option configures a Repository
type Option func(*Repository)

// WithEventSink forwards newly opened anomalies to sink
func WithEventSink(sink ports.EventSink) Option {
	return func(r *Repository) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// New creates an empty repository. A nil session disables the epoch check.
func New(source ports.PendingSource, store *session.Store, opts ...Option) *Repository {
	r := &Repository{
		source:    source,
		session:   store,
		sink:      ports.NopSink{},
		logger:    logging.NewDefaultLogger("repository"),
		now:       time.Now,
		items:     make(map[domain.ID]domain.Transaction),
		anomalies: newAnomalyTracker(),
		shadows:   make(map[domain.ID]Overlay),
		subs:      make(map[uint64]chan uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Repository) epoch() uint64 {
	if r.session == nil {
		return 0
	}
	return r.session.Epoch()
}

// Refresh fetches the pending list and applies it unless a newer fetch was
// applied first or the session changed while it was in flight. On failure
// the previous contents are kept.
func (r *Repository) Refresh(ctx context.Context) (RefreshResult, error) {
	seq := r.seq.Add(1)
	epoch := r.epoch()

	txns, err := r.source.PendingTransactions(ctx)
	if err != nil {
		r.logger.Warn("Refresh #%d failed: %v", seq, err)
		return RefreshResult{Seq: seq}, err
	}
	result := RefreshResult{Seq: seq, Count: len(txns)}

	r.mu.Lock()
	if applied := r.applied; seq < applied {
		r.mu.Unlock()
		r.logger.Debug("Discarding refresh #%d, #%d already applied", seq, applied)
		return result, nil
	}
	if r.epoch() != epoch {
		r.mu.Unlock()
		r.logger.Debug("Discarding refresh #%d, session changed", seq)
		return result, nil
	}

	now := r.now()
	var opened []domain.Anomaly
	order := make([]domain.ID, 0, len(txns))
	items := make(map[domain.ID]domain.Transaction, len(txns))
	for _, tx := range txns {
		tx.Optimistic = false
		if _, dup := items[tx.ID]; !dup {
			order = append(order, tx.ID)
		}
		items[tx.ID] = tx
		if a, resolved := r.anomalies.observe(tx.ID, tx.Status, seq, now); a != nil {
			opened = append(opened, *a)
		} else if resolved {
			r.logger.Info("Transaction %s back on track at %s", tx.ID, tx.Status)
		}
	}
	r.order = order
	r.items = items
	r.applied = seq
	r.fetchedAt = now
	r.bumpLocked()
	r.mu.Unlock()

	result.Applied = true
	r.reportAnomalies(opened)
	return result, nil
}

// BeginObserve takes the sequence for a fetch outside the pending list. Call
// it before the request is sent and pass the result to Observe.
func (r *Repository) BeginObserve() uint64 {
	return r.seq.Add(1)
}

// Observe records an authoritative status fetched outside the pending list,
// such as a monitor poll, for anomaly tracking. seq comes from BeginObserve;
// a pending-list fetch that started earlier no longer counts for tx.ID. The
// cached copy is untouched.
func (r *Repository) Observe(seq uint64, tx domain.Transaction) {
	r.mu.Lock()
	a, _ := r.anomalies.observe(tx.ID, tx.Status, seq, r.now())
	if a != nil {
		r.bumpLocked()
	}
	r.mu.Unlock()

	if a != nil {
		r.reportAnomalies([]domain.Anomaly{*a})
	}
}

func (r *Repository) reportAnomalies(anomalies []domain.Anomaly) {
	for _, a := range anomalies {
		r.logger.Warn("Transaction %s moved backwards from %s to %s", a.TransactionID, a.From, a.To)
		r.sink.AnomalyOpened(a)
	}
}

// MarkOptimistic sets a local status after a successful command. The next
// applied fetch replaces it. It reports whether the id was cached.
func (r *Repository) MarkOptimistic(id domain.ID, status domain.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.items[id]
	if !ok {
		return false
	}
	tx.Status = status
	tx.Optimistic = true
	r.items[id] = tx
	r.bumpLocked()
	return true
}

// Shadow makes reads of id return the overlay's snapshot until Unshadow.
func (r *Repository) Shadow(id domain.ID, overlay Overlay) {
	r.mu.Lock()
	r.shadows[id] = overlay
	r.bumpLocked()
	r.mu.Unlock()
}

// Unshadow removes the overlay of id, if any
func (r *Repository) Unshadow(id domain.ID) {
	r.mu.Lock()
	if _, ok := r.shadows[id]; ok {
		delete(r.shadows, id)
		r.bumpLocked()
	}
	r.mu.Unlock()
}

// Shadowed reports whether an overlay is active for id
func (r *Repository) Shadowed(id domain.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.shadows[id]
	return ok
}

// resolveLocked applies the overlay for id, if any. Caller holds r.mu.
func (r *Repository) resolveLocked(id domain.ID) (domain.Transaction, bool) {
	if overlay, ok := r.shadows[id]; ok {
		if tx, ok := overlay.Snapshot(); ok {
			return tx, true
		}
	}
	tx, ok := r.items[id]
	return tx, ok
}

// Get returns the cached transaction, shadowed by an active overlay.
func (r *Repository) Get(id domain.ID) (domain.Transaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(id)
}

// Snapshot returns the pending list in service order
func (r *Repository) Snapshot() []domain.Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Transaction, 0, len(r.order))
	for _, id := range r.order {
		if tx, ok := r.resolveLocked(id); ok {
			out = append(out, tx)
		}
	}
	return out
}

// First returns the first pending transaction
func (r *Repository) First() (domain.Transaction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.order) == 0 {
		return domain.Transaction{}, false
	}
	return r.resolveLocked(r.order[0])
}

// Len returns the number of pending transactions
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// BatchIDs returns the distinct batch ids in order of first appearance
func (r *Repository) BatchIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, id := range r.order {
		b := r.items[id].BatchID
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		ids = append(ids, b)
	}
	return ids
}

// FetchedAt returns when the last fetch was applied; zero if never.
func (r *Repository) FetchedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fetchedAt
}

// Anomaly returns the open anomaly of id, if any
func (r *Repository) Anomaly(id domain.ID) (domain.Anomaly, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.anomalies.get(id)
}

// Anomalies returns every open anomaly, oldest first
func (r *Repository) Anomalies() []domain.Anomaly {
	r.mu.RLock()
	list := r.anomalies.list()
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].ObservedAt.Before(list[j].ObservedAt)
	})
	return list
}

// Reset drops all cached state, e.g. on logout.
func (r *Repository) Reset() {
	r.mu.Lock()
	r.order = nil
	r.items = make(map[domain.ID]domain.Transaction)
	r.fetchedAt = time.Time{}
	r.anomalies = newAnomalyTracker()
	r.applied = r.seq.Load()
	r.bumpLocked()
	r.mu.Unlock()
}

// Version increases on every visible change
func (r *Repository) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Subscribe returns a channel receiving the latest version after changes.
// Slow readers only see the most recent version.
func (r *Repository) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	return ch, func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// bumpLocked increments the version and notifies subscribers. Caller holds r.mu.
func (r *Repository) bumpLocked() {
	r.version++
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- r.version:
		default:
		}
	}
}
