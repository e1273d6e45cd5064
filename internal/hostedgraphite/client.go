// Package hostedgraphite talks to the Hosted Graphite alerting API.
//
// See https://www.hostedgraphite.com/docs/alerting/alerting_api.html
package hostedgraphite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	promconfig "github.com/prometheus/common/config"
	"go.uber.org/zap"

	"github.com/t77yq/hg-alerts/internal/model"
)

const (
	// DefaultEndpoint is the alert creation endpoint
	DefaultEndpoint = "https://api.hostedgraphite.com/v2/alerts/"

	// DefaultTimeout bounds a single alert creation request
	DefaultTimeout = 30 * time.Second
)

// ClientConfig holds the settings for a Client
type ClientConfig struct {
	APIKey    string
	Endpoint  string
	Timeout   time.Duration
	UserAgent string
}

// Client creates alerts through the Hosted Graphite API
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	endpoint   string
}

// NewClient creates a new API client. The API key is sent as the basic auth
// username with an empty password.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpConfig := promconfig.DefaultHTTPClientConfig
	httpConfig.BasicAuth = &promconfig.BasicAuth{Username: cfg.APIKey}

	var opts []promconfig.HTTPClientOption
	if cfg.UserAgent != "" {
		opts = append(opts, promconfig.WithUserAgent(cfg.UserAgent))
	}

	httpClient, err := promconfig.NewClientFromConfig(httpConfig, "hostedgraphite", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	httpClient.Timeout = cfg.Timeout

	return &Client{
		logger:     logger.Named("hostedgraphite"),
		httpClient: httpClient,
		endpoint:   cfg.Endpoint,
	}, nil
}

// CreateAlert posts a single alert definition. Any 4xx or 5xx answer is returned
// as a *StatusError, including 409 when the alert name is already taken.
func (c *Client) CreateAlert(ctx context.Context, alert *model.AlertSpec) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Executing HTTP request",
		zap.String("method", req.Method),
		zap.String("url", c.endpoint),
		zap.String("alert", alert.Name))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return &StatusError{
			AlertName:  alert.Name,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	c.logger.Debug("Alert created",
		zap.String("alert", alert.Name),
		zap.Int("status_code", resp.StatusCode))

	return nil
}
