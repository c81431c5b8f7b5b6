package payagent

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"payagent/internal/errors"
)

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 << 10

// handleAPIError converts a non-2xx response into an AppError carrying the
// status code and, when present, the service's `detail` message.
func (c *Client) handleAPIError(resp *http.Response, r request) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	errType := errors.ErrorTypeExternal
	if resp.StatusCode == http.StatusNotFound {
		errType = errors.ErrorTypeNotFound
	}

	appErr := errors.Wrap(fmt.Errorf("API error: %d", resp.StatusCode), errType,
		fmt.Sprintf("%s %s failed", r.method, r.path)).
		WithContext("status_code", resp.StatusCode)

	if len(body) > 0 {
		var apiError struct {
			Detail any `json:"detail"`
		}
		if json.Unmarshal(body, &apiError) == nil && apiError.Detail != nil {
			switch d := apiError.Detail.(type) {
			case string:
				appErr.Message = d
			default:
				// validation errors come back as a list of objects
				_ = appErr.WithContext("detail", d)
			}
		}
	}

	return appErr
}
