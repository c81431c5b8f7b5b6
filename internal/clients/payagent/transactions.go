package payagent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"payagent/internal/errors"
	"payagent/internal/txn/domain"
)

const jsonContentType = "application/json"

// PendingTransactions fetches the authoritative pending list, in service order
func (c *Client) PendingTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	if err := c.do(ctx, request{method: http.MethodGet, path: "/transactions/pending"}, &txns); err != nil {
		return nil, err
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	return txns, nil
}

// GetTransaction fetches a single transaction snapshot
func (c *Client) GetTransaction(ctx context.Context, id domain.ID) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := c.do(ctx, request{method: http.MethodGet, path: "/transactions/" + pathEscape(id)}, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateTransaction applies a partial edit. The service answers either with
// the updated snapshot or with a bare status acknowledgement; in the latter
// case the returned transaction is nil.
func (c *Client) UpdateTransaction(ctx context.Context, id domain.ID, update domain.TransactionUpdate) (*domain.Transaction, error) {
	body, err := json.Marshal(update)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal update")
	}

	var raw json.RawMessage
	err = c.do(ctx, request{
		method:      http.MethodPut,
		path:        "/transactions/" + pathEscape(id),
		body:        bytes.NewReader(body),
		contentType: jsonContentType,
	}, &raw)
	if err != nil {
		return nil, err
	}

	var single struct {
		ID *domain.ID `json:"id"`
	}
	if json.Unmarshal(raw, &single) != nil || single.ID == nil {
		return nil, nil
	}
	var tx domain.Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeExternal, "failed to decode updated transaction")
	}
	return &tx, nil
}

// ApproveTransaction queues one transaction for payment
func (c *Client) ApproveTransaction(ctx context.Context, id domain.ID) (*domain.ApprovalAck, error) {
	var ack domain.ApprovalAck
	if err := c.do(ctx, request{method: http.MethodPost, path: "/transactions/" + pathEscape(id) + "/approve"}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// ApproveBatch queues every approvable transaction of a batch
func (c *Client) ApproveBatch(ctx context.Context, batchID string) (*domain.BatchApproval, error) {
	if batchID == "" {
		return nil, errors.Validation("batch id is required")
	}
	var result domain.BatchApproval
	path := "/transactions/approve_batch/" + url.PathEscape(batchID)
	if err := c.do(ctx, request{method: http.MethodPost, path: path}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ProvidePIN relays the operator's PIN to the agent. The response is only an
// acknowledgement; whether the PIN was accepted shows up in later polls.
func (c *Client) ProvidePIN(ctx context.Context, id domain.ID, pin string) error {
	body, err := json.Marshal(map[string]string{"pin": pin})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to marshal pin")
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/transactions/" + pathEscape(id) + "/provide_pin",
		body:        bytes.NewReader(body),
		contentType: jsonContentType,
	}, nil)
}
