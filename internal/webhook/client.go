// Package webhook posts best-effort build-completion notifications to
// tenant-supplied URLs, using resty for outbound HTTP with retries.
package webhook

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client posts webhook payloads. Failures are logged, never propagated —
// a tenant's unreachable endpoint must not fail or retry the build.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// New constructs a Client with the given per-request timeout.
func New(timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		http: resty.New().SetTimeout(timeout).SetRetryCount(2),
		log:  log,
	}
}

// Post delivers payload to url. It never returns an error to the caller —
// the build pipeline must proceed regardless of webhook delivery.
func (c *Client) Post(ctx context.Context, url string, payload any) {
	if url == "" {
		return
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		c.log.Warn("webhook delivery failed", zap.String("url", url), zap.Error(err))
		return
	}
	if resp.IsError() {
		c.log.Warn("webhook endpoint returned an error status",
			zap.String("url", url), zap.Int("status", resp.StatusCode()))
	}
}
