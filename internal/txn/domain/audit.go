package domain

import (
	"bytes"
	"encoding/json"
)

// RawText holds a field the service may send either as a JSON string or as an
// embedded JSON document. Documents are kept as their compact JSON text.
type RawText string

// UnmarshalJSON implements json.Unmarshaler
func (r *RawText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RawText(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*r = RawText(buf.String())
	return nil
}

// AuditRecord is a read-only entry of the service's audit trail.
type AuditRecord struct {
	ID          ID        `json:"id"`
	CreatedAt   Timestamp `json:"created_at"`
	RequestHash string    `json:"request_hash"`
	RawResponse RawText   `json:"raw_response"`
}

// ShortHash returns the first eight characters of the request hash
func (a AuditRecord) ShortHash() string {
	if len(a.RequestHash) <= 8 {
		return a.RequestHash
	}
	return a.RequestHash[:8]
}
