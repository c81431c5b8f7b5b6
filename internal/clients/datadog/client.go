package datadog

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	datadogapi "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"payagent/internal/config"
	"payagent/internal/errors"
	"payagent/internal/logging"
)

type DatadogClient struct {
	config  config.DatadogConfig
	logsAPI *datadogV2.LogsApi
	authCtx context.Context
	logger  *logging.Logger
}

// NewDatadogClient wires the logs API against the configured site. Searches go
// to the API host and submissions to the intake host.
func NewDatadogClient(cfg config.DatadogConfig) *DatadogClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.datadoghq.com"
	}
	if cfg.IntakeURL == "" {
		cfg.IntakeURL = "https://http-intake.logs.datadoghq.com"
	}

	apiCfg := datadogapi.NewConfiguration()
	apiCfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	apiCfg.Servers = datadogapi.ServerConfigurations{{URL: cfg.BaseURL}}
	apiCfg.OperationServers = map[string]datadogapi.ServerConfigurations{
		"v2.LogsApi.ListLogs":  {{URL: cfg.BaseURL}},
		"v2.LogsApi.SubmitLog": {{URL: cfg.IntakeURL}},
	}
	apiClient := datadogapi.NewAPIClient(apiCfg)

	authCtx := datadogapi.NewDefaultContext(context.Background())
	authCtx = context.WithValue(authCtx, datadogapi.ContextAPIKeys, map[string]datadogapi.APIKey{
		"apiKeyAuth": {Key: cfg.APIKey},
		"appKeyAuth": {Key: cfg.AppKey},
	})

	return &DatadogClient{
		config:  cfg,
		logsAPI: datadogV2.NewLogsApi(apiClient),
		authCtx: authCtx,
		logger:  logging.NewDefaultLogger("datadog"),
	}
}

// withAuth carries the API keys onto a caller context
func (c *DatadogClient) withAuth(ctx context.Context) context.Context {
	return context.WithValue(ctx, datadogapi.ContextAPIKeys, c.authCtx.Value(datadogapi.ContextAPIKeys))
}

func (c *DatadogClient) SearchLogs(ctx context.Context, params LogSearchParams) (*LogSearchResponse, error) {
	if params.Query == "" {
		params.Query = "service:" + c.config.Service
	}
	if params.From == "" {
		params.From = "now-1h"
	}
	if params.To == "" {
		params.To = "now"
	}
	if params.Limit <= 0 {
		params.Limit = 25
	}

	req := datadogV2.NewLogsListRequest()
	filter := datadogV2.NewLogsQueryFilter()
	filter.SetQuery(params.Query)
	filter.SetFrom(params.From)
	filter.SetTo(params.To)
	req.SetFilter(*filter)

	page := datadogV2.NewLogsListRequestPage()
	page.SetLimit(int32(params.Limit))
	if params.Cursor != "" {
		page.SetCursor(params.Cursor)
	}
	req.SetPage(*page)

	if sortVal, err := datadogV2.NewLogsSortFromValue(normalizeSort(params.Sort)); err == nil {
		req.SetSort(*sortVal)
	}

	resp, httpResp, err := c.logsAPI.ListLogs(c.withAuth(ctx), *datadogV2.NewListLogsOptionalParameters().WithBody(*req))
	if httpResp != nil && httpResp.Body != nil {
		defer func() { _ = httpResp.Body.Close() }()
	}
	if err != nil {
		return nil, errors.External("datadog", err)
	}

	out := &LogSearchResponse{
		Data:  make([]LogEvent, 0, len(resp.GetData())),
		Links: map[string]string{},
	}
	if links, ok := resp.GetLinksOk(); ok && links != nil {
		if next, ok := links.GetNextOk(); ok && next != nil {
			out.Links["next"] = *next
		}
	}
	for _, item := range resp.GetData() {
		event := LogEvent{
			ID:   item.GetId(),
			Type: string(item.GetType()),
		}
		if attrs, ok := item.GetAttributesOk(); ok && attrs != nil {
			event.Attributes = decodeToMap(attrs)
		}
		out.Data = append(out.Data, event)
	}
	return out, nil
}

func (c *DatadogClient) SubmitLogs(ctx context.Context, body []datadogV2.HTTPLogItem) error {
	_, httpResp, err := c.logsAPI.SubmitLog(c.withAuth(ctx), body)
	if httpResp != nil && httpResp.Body != nil {
		defer func() { _ = httpResp.Body.Close() }()
	}
	if err != nil {
		return errors.External("datadog", err)
	}
	return nil
}

func normalizeSort(sort string) string {
	switch strings.TrimSpace(strings.ToLower(sort)) {
	case "", "-timestamp", "desc", "descending":
		return string(datadogV2.LOGSSORT_TIMESTAMP_DESCENDING)
	case "timestamp", "asc", "ascending":
		return string(datadogV2.LOGSSORT_TIMESTAMP_ASCENDING)
	default:
		return sort
	}
}

func decodeToMap(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	bytes, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(bytes, &out); err != nil {
		return nil
	}
	return out
}
