package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionDecodesServicePayload(t *testing.T) {
	payload := `{
		"id": 42,
		"batch_id": "b1",
		"vendor": "Acme",
		"amount": 500.25,
		"account_number": null,
		"ifsc_code": "HDFC0001",
		"remarks": null,
		"status": "NEEDS_REVIEW",
		"created_at": "2024-05-01T10:11:12.345678",
		"user_id": 7
	}`

	var tx Transaction
	require.NoError(t, json.Unmarshal([]byte(payload), &tx))

	assert.Equal(t, ID("42"), tx.ID)
	assert.Equal(t, "b1", tx.BatchID)
	assert.True(t, decimal.RequireFromString("500.25").Equal(tx.Amount))
	assert.Nil(t, tx.AccountNumber)
	assert.False(t, tx.HasAccountNumber())
	require.NotNil(t, tx.IFSCCode)
	assert.Equal(t, "HDFC0001", *tx.IFSCCode)
	assert.Equal(t, StatusNeedsReview, tx.Status)
	assert.Equal(t, 2024, tx.CreatedAt.Year())
	assert.False(t, tx.Optimistic)
}

func TestIDAcceptsStringsAndNumbers(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{in: `"t1"`, want: "t1"},
		{in: `17`, want: "17"},
		{in: `null`, want: ""},
	}
	for _, tt := range tests {
		var id ID
		require.NoError(t, json.Unmarshal([]byte(tt.in), &id), tt.in)
		assert.Equal(t, tt.want, id)
	}

	var id ID
	assert.Error(t, json.Unmarshal([]byte(`{"x":1}`), &id))
}

func TestHasAccountNumberIgnoresBlank(t *testing.T) {
	blank := "   "
	filled := "12345"

	assert.False(t, Transaction{AccountNumber: &blank}.HasAccountNumber())
	assert.True(t, Transaction{AccountNumber: &filled}.HasAccountNumber())
}

func TestTransactionUpdateOmitsUnsetFields(t *testing.T) {
	acct := "12345"
	body, err := json.Marshal(TransactionUpdate{AccountNumber: &acct})
	require.NoError(t, err)
	assert.JSONEq(t, `{"account_number":"12345"}`, string(body))

	assert.True(t, TransactionUpdate{}.IsEmpty())
	assert.False(t, TransactionUpdate{AccountNumber: &acct}.IsEmpty())
}

func TestStatusStagesAndRegression(t *testing.T) {
	assert.Equal(t, StageReview, StatusNeedsApproval.Stage())
	assert.True(t, StatusWaitingForPIN.IsInFlight())
	assert.True(t, StatusPaid.IsTerminal())
	assert.Equal(t, "WAITING FOR PIN", StatusWaitingForPIN.Label())

	tests := []struct {
		prev, next Status
		want       bool
	}{
		{StatusQueuedForPayment, StatusNeedsReview, true},
		{StatusWaitingForPIN, StatusNeedsApproval, true},
		{StatusPaid, StatusWaitingForPIN, true},
		{StatusWaitingForPIN, StatusQueuedForPayment, false},
		{StatusNeedsApproval, StatusNeedsReview, false},
		{StatusNeedsReview, StatusPaid, false},
		{StatusQueuedForPayment, Status("FAILED"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRegression(tt.prev, tt.next), "%s -> %s", tt.prev, tt.next)
	}
}

func TestAuditRecordRawResponse(t *testing.T) {
	payload := `[
		{"id": 1, "created_at": "2024-05-01 10:11:12", "request_hash": "abcdef0123456789", "raw_response": {"ok": true}},
		{"id": 2, "created_at": null, "request_hash": "abc", "raw_response": "plain text"}
	]`

	var audits []AuditRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &audits))
	require.Len(t, audits, 2)

	assert.Equal(t, RawText(`{"ok":true}`), audits[0].RawResponse)
	assert.Equal(t, "abcdef01", audits[0].ShortHash())
	assert.Equal(t, RawText("plain text"), audits[1].RawResponse)
	assert.Equal(t, "abc", audits[1].ShortHash())
	assert.True(t, audits[1].CreatedAt.IsZero())
}
