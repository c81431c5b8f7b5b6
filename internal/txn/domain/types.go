package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ID identifies a transaction. The service may send it as a JSON number or a
// string; both decode to the same ID.
type ID string

// UnmarshalJSON accepts numeric and string ids
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("transaction id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Timestamp decodes the handful of time layouts the service emits, including
// ISO timestamps without a zone.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Transaction is one payment extracted from an uploaded document.
type Transaction struct {
	ID            ID              `json:"id"`
	BatchID       string          `json:"batch_id"`
	Vendor        string          `json:"vendor"`
	Amount        decimal.Decimal `json:"amount"`
	AccountNumber *string         `json:"account_number"`
	IFSCCode      *string         `json:"ifsc_code,omitempty"`
	Remarks       *string         `json:"remarks,omitempty"`
	Status        Status          `json:"status"`
	CreatedAt     Timestamp       `json:"created_at"`

	// Optimistic marks a status set locally after a successful command and
	// not yet confirmed by an authoritative fetch.
	Optimistic bool `json:"-"`
}

// HasAccountNumber reports whether the payee account is filled in
func (t Transaction) HasAccountNumber() bool {
	return t.AccountNumber != nil && strings.TrimSpace(*t.AccountNumber) != ""
}

// TransactionUpdate is a partial edit of the fields the service accepts while
// a transaction is under review. Nil fields are left untouched.
type TransactionUpdate struct {
	Vendor        *string          `json:"vendor,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	AccountNumber *string          `json:"account_number,omitempty"`
	IFSCCode      *string          `json:"ifsc_code,omitempty"`
	Remarks       *string          `json:"remarks,omitempty"`
}

// IsEmpty reports whether the update carries no field
func (u TransactionUpdate) IsEmpty() bool {
	return u.Vendor == nil && u.Amount == nil && u.AccountNumber == nil &&
		u.IFSCCode == nil && u.Remarks == nil
}

// ApprovalAck is returned by the single approve command.
type ApprovalAck struct {
	Status        string `json:"status"`
	TransactionID ID     `json:"transaction_id"`
}

// BatchApproval is returned by the batch approve command.
type BatchApproval struct {
	Status  string   `json:"status"`
	TaskIDs []string `json:"task_ids"`
	Count   int      `json:"count"`
}

// CommandAck is the bare acknowledgement of update and PIN commands.
type CommandAck struct {
	Status string `json:"status"`
}

// UploadReceipt is returned when a statement is accepted for extraction.
type UploadReceipt struct {
	Status    string `json:"status"`
	InvoiceID string `json:"invoice_id"`
	TaskID    string `json:"task_id"`
}
