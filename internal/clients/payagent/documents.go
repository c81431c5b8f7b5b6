package payagent

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"payagent/internal/errors"
	"payagent/internal/txn/domain"
)

// Audits fetches the service's audit trail for display
func (c *Client) Audits(ctx context.Context) ([]domain.AuditRecord, error) {
	var audits []domain.AuditRecord
	if err := c.do(ctx, request{method: http.MethodGet, path: "/audits"}, &audits); err != nil {
		return nil, err
	}
	return audits, nil
}

// Upload submits a statement or invoice for extraction. Transactions appear
// in the pending list asynchronously, once extraction finishes.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*domain.UploadReceipt, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create multipart body")
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read upload").
			WithContext("file", filename)
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to finish multipart body")
	}

	var receipt domain.UploadReceipt
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/upload",
		body:        &buf,
		contentType: writer.FormDataContentType(),
	}, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}
