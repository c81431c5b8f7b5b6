package payagent

import (
	"context"
	"io"
	"time"

	"payagent/internal/txn/domain"
)

// PayAgentInterface is the remote payment-assistant service as seen by the
// client. Every method except Login and Health requires a session credential
// and returns an unauthorized error without touching the network when there
// is none.
type PayAgentInterface interface {
	Login(ctx context.Context, username, password string) (string, error)
	Health(ctx context.Context) error

	PendingTransactions(ctx context.Context) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, id domain.ID) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, id domain.ID, update domain.TransactionUpdate) (*domain.Transaction, error)
	ApproveTransaction(ctx context.Context, id domain.ID) (*domain.ApprovalAck, error)
	ApproveBatch(ctx context.Context, batchID string) (*domain.BatchApproval, error)
	ProvidePIN(ctx context.Context, id domain.ID, pin string) error

	Audits(ctx context.Context) ([]domain.AuditRecord, error)
	Upload(ctx context.Context, filename string, content io.Reader) (*domain.UploadReceipt, error)

	LiveFeedURL(at time.Time) string
}
