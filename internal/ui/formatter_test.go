package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"payagent/internal/txn/domain"
)

func strPtr(s string) *string { return &s }

func TestMaskAccount(t *testing.T) {
	tests := []struct {
		name    string
		account *string
		want    string
	}{
		{name: "missing", account: nil, want: "-"},
		{name: "blank", account: strPtr("  "), want: "-"},
		{name: "short", account: strPtr("1234"), want: "1234"},
		{name: "long", account: strPtr("0012345678"), want: "******5678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskAccount(tt.account))
		})
	}
}

func TestMaskSensitive(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "card number", in: "card 4111 1111 1111 1111 used", want: "card ************1111 used"},
		{name: "iban", in: "to GB82WEST12345698765432", want: "to GB82**************5432"},
		{name: "short numbers untouched", in: "amount 500 on 2024-01-02", want: "amount 500 on 2024-01-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskSensitive(tt.in))
		})
	}
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "", TruncateText("", 5))
	assert.Equal(t, "a b", TruncateText("a\n  b", 10))
	assert.Equal(t, "abcd...", TruncateText("abcdefghij", 7))
	assert.Equal(t, "ab", TruncateText("abcdef", 2))
}

func TestValidatePIN(t *testing.T) {
	assert.NoError(t, ValidatePIN("1234", 4, 6))
	assert.NoError(t, ValidatePIN("123456", 4, 6))
	assert.Error(t, ValidatePIN("123", 4, 6))
	assert.Error(t, ValidatePIN("1234567", 4, 6))
	assert.Error(t, ValidatePIN("12a4", 4, 6))
}

func TestRenderQueueMasksAccounts(t *testing.T) {
	rows := []QueueRow{{
		Transaction: domain.Transaction{
			ID:            "t1",
			BatchID:       "b1",
			Vendor:        "Acme",
			Amount:        decimal.NewFromInt(500),
			AccountNumber: strPtr("0012345678"),
			Status:        domain.StatusNeedsApproval,
		},
		Action: "approve",
	}}

	out := RenderQueue(rows, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	assert.Contains(t, out, "PENDING TRANSACTIONS (1)")
	assert.Contains(t, out, "******5678")
	assert.NotContains(t, out, "0012345678")
	assert.Contains(t, out, "500.00")
	assert.True(t, strings.Contains(out, "approve"))
}

func TestRenderQueueEmpty(t *testing.T) {
	assert.Contains(t, RenderQueue(nil, time.Time{}), "No transactions awaiting review.")
}

func TestRenderAuditsMasksRawResponse(t *testing.T) {
	out := RenderAudits([]domain.AuditRecord{{
		ID:          "7",
		RequestHash: "abcdef0123456789",
		RawResponse: domain.RawText(`{"card":"4111111111111111"}`),
	}}, 80)
	assert.Contains(t, out, "abcdef01")
	assert.Contains(t, out, "************1111")
}
