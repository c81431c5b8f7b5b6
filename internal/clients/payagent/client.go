package payagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payagent/internal/config"
	"payagent/internal/errors"
	"payagent/internal/logging"
	"payagent/internal/session"
)

const serviceName = "payagent"

// ClientConfig holds the connection settings of the remote service
type ClientConfig struct {
	BaseURL  string
	Timeout  time.Duration
	FeedPath string
}

// ConfigFrom extracts the client settings from the application config
func ConfigFrom(cfg *config.Config) ClientConfig {
	return ClientConfig{
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout,
		FeedPath: cfg.API.FeedPath,
	}
}

// Client implements PayAgentInterface over HTTP
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	session    *session.Store
	logger     *logging.Logger
}

var _ PayAgentInterface = (*Client)(nil)

// NewClient creates a new API client bound to the shared session store
func NewClient(cfg ClientConfig, store *session.Store) *Client {
	if cfg.FeedPath == "" {
		cfg.FeedPath = "/static/live_feed.png"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		session: store,
		logger:  logging.NewDefaultLogger("api"),
	}
}

// Session returns the credential store the client reads from
func (c *Client) Session() *session.Store {
	return c.session
}

func (c *Client) endpoint(path string) string {
	return c.config.BaseURL + path
}

// LiveFeedURL returns the agent screen image URL, cache-busted by at.
func (c *Client) LiveFeedURL(at time.Time) string {
	return c.endpoint(c.config.FeedPath) + "?t=" + strconv.FormatInt(at.UnixMilli(), 10)
}

// request describes one authenticated call.
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
}

// do sends an authenticated request and decodes a 2xx JSON body into out.
// A 401 invalidates the credential the request was sent with.
func (c *Client) do(ctx context.Context, r request, out any) error {
	token, epoch, ok := c.session.Current()
	if !ok {
		return errors.Unauthorized("not logged in").
			WithContext("path", r.path)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path), r.body)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create request").
			WithContext("path", r.path)
	}
	c.setAuthHeaders(req, token, r.contentType)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled").
				WithContext("path", r.path)
		}
		return errors.External(serviceName, err).
			WithContext("method", r.method).
			WithContext("path", r.path)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.logger.Debug("%s %s -> %d (%s)", r.method, r.path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.session.InvalidateEpoch(epoch, fmt.Sprintf("401 from %s %s", r.method, r.path))
		return errors.Unauthorized("session expired, please log in again").
			WithContext("method", r.method).
			WithContext("path", r.path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleAPIError(resp, r)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeExternal, "failed to decode response").
			WithContext("path", r.path)
	}
	return nil
}

// Health checks the unauthenticated health endpoint
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health"), nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.External(serviceName, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return c.handleAPIError(resp, request{method: http.MethodGet, path: "/health"})
	}
	return nil
}

func pathEscape(id fmt.Stringer) string {
	return url.PathEscape(id.String())
}
