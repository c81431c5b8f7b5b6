package ports

import (
	"context"
	"time"

	"payagent/internal/txn/domain"
)

// Port interfaces for the remote service and the event sink

// PendingSource lists the transactions awaiting an operator
type PendingSource interface {
	PendingTransactions(ctx context.Context) ([]domain.Transaction, error)
}

// DetailSource fetches a single transaction snapshot
type DetailSource interface {
	GetTransaction(ctx context.Context, id domain.ID) (*domain.Transaction, error)
}

// CommandPort sends operator commands to the remote service
type CommandPort interface {
	UpdateTransaction(ctx context.Context, id domain.ID, update domain.TransactionUpdate) (*domain.Transaction, error)
	ApproveTransaction(ctx context.Context, id domain.ID) (*domain.ApprovalAck, error)
	ApproveBatch(ctx context.Context, batchID string) (*domain.BatchApproval, error)
}

// PINPort relays the step-up PIN to the agent
type PINPort interface {
	ProvidePIN(ctx context.Context, id domain.ID, pin string) error
}

// FeedPort builds the live screen feed URL of the agent
type FeedPort interface {
	LiveFeedURL(at time.Time) string
}

// MonitorPort is everything a live monitor needs from the service
type MonitorPort interface {
	DetailSource
	PINPort
	FeedPort
}

// EventSink receives lifecycle events worth forwarding to an operator log
type EventSink interface {
	SessionInvalidated(reason string)
	AnomalyOpened(anomaly domain.Anomaly)
	MonitorClosed(id domain.ID, reason string, final domain.Status)
}

// NopSink discards every event
type NopSink struct{}

func (NopSink) SessionInvalidated(string) {}
func (NopSink) AnomalyOpened(domain.Anomaly) {}
func (NopSink) MonitorClosed(domain.ID, string, domain.Status) {}
