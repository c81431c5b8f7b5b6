package repository

import (
	"time"

	"payagent/internal/txn/domain"
)

// anomalyTracker remembers the highest authoritative stage seen per id and
// flags statuses that fall below it. Observations are ordered by the
// repository sequence taken before their fetch; an older one is ignored.
type anomalyTracker struct {
	high map[domain.ID]domain.Stage
	last map[domain.ID]domain.Status
	seq  map[domain.ID]uint64
	open map[domain.ID]domain.Anomaly
}

func newAnomalyTracker() *anomalyTracker {
	return &anomalyTracker{
		high: make(map[domain.ID]domain.Stage),
		last: make(map[domain.ID]domain.Status),
		seq:  make(map[domain.ID]uint64),
		open: make(map[domain.ID]domain.Anomaly),
	}
}

// observe records an authoritative status fetched under seq. It returns the
// anomaly when this observation opened one, and whether an open anomaly was
// resolved.
func (t *anomalyTracker) observe(id domain.ID, status domain.Status, seq uint64, at time.Time) (opened *domain.Anomaly, resolved bool) {
	stage := status.Stage()
	if stage == domain.StageUnknown {
		return nil, false
	}
	if seq < t.seq[id] {
		return nil, false
	}
	t.seq[id] = seq

	prev := t.last[id]
	t.last[id] = status

	high, seen := t.high[id]
	if seen && stage < high {
		if _, already := t.open[id]; already {
			return nil, false
		}
		a := domain.Anomaly{TransactionID: id, From: prev, To: status, ObservedAt: at}
		t.open[id] = a
		return &a, false
	}

	if !seen || stage > high {
		t.high[id] = stage
	}
	if _, ok := t.open[id]; ok {
		delete(t.open, id)
		return nil, true
	}
	return nil, false
}

func (t *anomalyTracker) get(id domain.ID) (domain.Anomaly, bool) {
	a, ok := t.open[id]
	return a, ok
}

func (t *anomalyTracker) list() []domain.Anomaly {
	out := make([]domain.Anomaly, 0, len(t.open))
	for _, a := range t.open {
		out = append(out, a)
	}
	return out
}
