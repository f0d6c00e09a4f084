package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxWebhookRead bounds how much of a callback response body is drained.
const maxWebhookRead = 1 << 20

// HTTPWebhookClient is the standard WebhookClient implementation. It POSTs
// a JSON payload and reports the response status; it never retries.
type HTTPWebhookClient struct {
	client *http.Client
	logger *zap.Logger
}

// WebhookOption configures an HTTPWebhookClient.
type WebhookOption func(*HTTPWebhookClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(c *HTTPWebhookClient) {
		c.client = client
	}
}

// WithWebhookLogger attaches a logger for request outcomes.
func WithWebhookLogger(logger *zap.Logger) WebhookOption {
	return func(c *HTTPWebhookClient) {
		c.logger = logger
	}
}

// NewHTTPWebhookClient creates a webhook client with a 30-second default
// request timeout.
func NewHTTPWebhookClient(opts ...WebhookOption) *HTTPWebhookClient {
	c := &HTTPWebhookClient{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger sends the payload to the URL. A response of any status yields a
// result; only transport-level failures return an error.
func (c *HTTPWebhookClient) Trigger(ctx context.Context, url, method string, payload map[string]interface{}) (WebhookResult, error) {
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return WebhookResult{}, fmt.Errorf("marshal webhook payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return WebhookResult{}, fmt.Errorf("create webhook request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("webhook delivery failed",
			zap.String("url", url),
			zap.String("method", method),
			zap.Error(err),
		)
		return WebhookResult{}, fmt.Errorf("trigger webhook %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxWebhookRead))

	c.logger.Debug("webhook delivered",
		zap.String("url", url),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
	)

	return WebhookResult{Status: resp.StatusCode, TriggeredAt: time.Now()}, nil
}
