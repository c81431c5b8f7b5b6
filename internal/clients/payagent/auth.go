package payagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"payagent/internal/buildinfo"
	"payagent/internal/errors"

	"github.com/google/uuid"
)

// setAuthHeaders sets the bearer credential and standard headers
func (c *Client) setAuthHeaders(req *http.Request, token, contentType string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	// correlates client logs with the service's audit trail
	req.Header.Set("X-Request-ID", uuid.New().String())
	req.Header.Set("User-Agent", buildinfo.UserAgent())
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges operator credentials for a bearer token and stores it in
// the session. Any non-2xx answer is an authentication failure.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", errors.Validation("username and password are required")
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/token"), strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to create login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.External(serviceName, err).WithContext("path", "/token")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return "", errors.Unauthorized("invalid credentials").
			WithContext("status_code", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.handleAPIError(resp, request{method: http.MethodPost, path: "/token"})
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeExternal, "failed to decode token response")
	}
	if tr.AccessToken == "" {
		return "", errors.Unauthorized("service returned an empty access token")
	}

	if err := c.session.SetCredential(tr.AccessToken); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to persist session")
	}
	c.logger.Info("Logged in as %s", username)
	return tr.AccessToken, nil
}
