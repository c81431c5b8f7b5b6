package domain

import (
	"strings"
	"time"
)

// Status is the remote lifecycle state of a transaction. Values the client
// does not know are kept verbatim and treated generically.
type Status string

const (
	StatusNeedsReview      Status = "NEEDS_REVIEW"
	StatusNeedsApproval    Status = "NEEDS_APPROVAL"
	StatusQueuedForPayment Status = "QUEUED_FOR_PAYMENT"
	StatusWaitingForPIN    Status = "WAITING_FOR_PIN"
	StatusPaid             Status = "PAID"
)

// Stage orders statuses for regression detection. Statuses inside one stage
// may move freely between each other.
type Stage int

const (
	StageUnknown Stage = iota
	StageReview
	StageInFlight
	StageTerminal
)

// String returns the lowercase stage name
func (s Stage) String() string {
	switch s {
	case StageReview:
		return "review"
	case StageInFlight:
		return "in_flight"
	case StageTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Stage returns the lifecycle stage of the status
func (s Status) Stage() Stage {
	switch s {
	case StatusNeedsReview, StatusNeedsApproval:
		return StageReview
	case StatusQueuedForPayment, StatusWaitingForPIN:
		return StageInFlight
	case StatusPaid:
		return StageTerminal
	default:
		return StageUnknown
	}
}

// IsInFlight reports whether the agent owns the transaction and the operator
// should be watching it rather than approving it again.
func (s Status) IsInFlight() bool {
	return s.Stage() == StageInFlight
}

// IsTerminal reports whether no further transition is expected.
func (s Status) IsTerminal() bool {
	return s.Stage() == StageTerminal
}

// Label renders the status for humans, e.g. "WAITING FOR PIN".
func (s Status) Label() string {
	if s == "" {
		return "UNKNOWN"
	}
	return strings.ReplaceAll(string(s), "_", " ")
}

// IsRegression reports whether moving from prev to next goes backwards in the
// lifecycle. Unknown statuses never count as a regression.
func IsRegression(prev, next Status) bool {
	p, n := prev.Stage(), next.Stage()
	if p == StageUnknown || n == StageUnknown {
		return false
	}
	return n < p
}

// Anomaly records an authoritative status that moved backwards.
type Anomaly struct {
	TransactionID ID        `json:"transaction_id"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	ObservedAt    time.Time `json:"observed_at"`
}
