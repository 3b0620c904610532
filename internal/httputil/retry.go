// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the HTTP plumbing shared by every resolver and
// the download executor: bounded retry with backoff, a per-host politeness
// gate, and a client that stamps the contact-bearing User-Agent.
package httputil

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// maxBackoff caps a single wait, including server-provided Retry-After.
const maxBackoff = 2 * time.Minute

const defaultMaxRetries = 3

// DoWithRetry executes an HTTP request and retries transient failures with
// exponential backoff: connection errors and timeouts, HTTP 429 and the
// 502/503/504 gateway statuses. The delay starts at RetryBaseDelay and
// doubles each attempt; a Retry-After header in seconds takes precedence.
//
// When maxRetries is 0 the default (3) is used; a negative value disables
// retries. If the context is cancelled during a backoff wait the function
// returns ctx.Err(). After exhausting retries the last retryable response
// is returned so the caller can inspect it.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	return doWithRetry(ctx, client, req, maxRetries, RetryBaseDelay, nil)
}

func doWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int, base time.Duration, wait func(context.Context) error) (*http.Response, error) {
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		if wait != nil {
			if err := wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := client.Do(req.Clone(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt >= maxRetries || !transientTransport(err) {
				return nil, err
			}
			if werr := sleep(ctx, backoff(base, attempt, "")); werr != nil {
				return nil, werr
			}
			continue
		}

		if !RetryableStatus(resp.StatusCode) || attempt >= maxRetries {
			return resp, nil
		}

		// Drain and close the body before retrying.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if werr := sleep(ctx, backoff(base, attempt, resp.Header.Get("Retry-After"))); werr != nil {
			return nil, werr
		}
	}
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func transientTransport(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func backoff(base time.Duration, attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		if d > maxBackoff {
			d = maxBackoff
		}
		return d
	}
	d := time.Duration(math.Pow(2, float64(attempt))) * base
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
