// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/bibfetch/pkg/types"
)

// Client issues polite GET requests: every attempt waits on the shared
// gate, carries the contact-bearing User-Agent, and transient failures are
// retried with backoff.
type Client struct {
	HTTP       *http.Client
	Gate       *Gate
	UserAgent  string
	MaxRetries int
	BaseDelay  time.Duration
}

// NewClient builds a Client from the run configuration and a shared gate.
func NewClient(cfg types.FetchConfig, gate *Gate) *Client {
	base := cfg.Politeness.RetryBaseDelay
	if base <= 0 {
		base = RetryBaseDelay
	}
	return &Client{
		HTTP:       &http.Client{Timeout: cfg.Timeout},
		Gate:       gate,
		UserAgent:  cfg.UserAgentHeader(),
		MaxRetries: cfg.Politeness.MaxRetries,
		BaseDelay:  base,
	}
}

// Get fetches rawURL with the given Accept header. Redirects are followed by
// the underlying http.Client; resp.Request.URL is the final location. The
// caller closes the body.
func (c *Client) Get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base := c.BaseDelay
	if base <= 0 {
		base = RetryBaseDelay
	}
	host := req.URL.Host
	return doWithRetry(ctx, httpClient, req, c.MaxRetries, base, func(ctx context.Context) error {
		return c.Gate.Wait(ctx, host)
	})
}
