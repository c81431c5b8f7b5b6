package ui

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"payagent/internal/txn/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQueueReport(t *testing.T) {
	account := "000123456789"
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []QueueRow{
		{
			Transaction: domain.Transaction{ID: "t2", BatchID: "b1", Vendor: "Acme", Amount: decimal.NewFromInt(500), AccountNumber: &account, Status: domain.StatusNeedsApproval},
			Action:      "approve",
		},
		{
			Transaction: domain.Transaction{ID: "t1", BatchID: "b1", Vendor: "Initech", Amount: decimal.NewFromInt(20), Status: domain.StatusNeedsReview},
			Action:      "update",
			Note:        "account number missing",
		},
	}
	anomalies := []domain.Anomaly{{TransactionID: "t1", From: domain.StatusQueuedForPayment, To: domain.StatusNeedsReview, ObservedAt: at}}

	path := filepath.Join(t.TempDir(), "queue.txt")
	require.NoError(t, WriteQueueReport(rows, anomalies, at, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "# pending transactions: 2 (as of 2026-03-01T10:00:00Z)")
	assert.Contains(t, out, "### [1] transaction_id: t2")
	assert.Contains(t, out, "account_number: ********6789")
	assert.NotContains(t, out, account)
	assert.Contains(t, out, "### [2] transaction_id: t1\n")
	assert.Contains(t, out, "update: account number missing")
	assert.Contains(t, out, "[anomaly]\nQUEUED_FOR_PAYMENT -> NEEDS_REVIEW at 2026-03-01T10:00:00Z")
}

func TestWriteQueueReportFailsOnBadPath(t *testing.T) {
	err := WriteQueueReport(nil, nil, time.Time{}, filepath.Join(t.TempDir(), "missing", "queue.txt"))
	assert.Error(t, err)
}
