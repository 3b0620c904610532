// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate spaces requests to the same host by at least the configured delay.
// One Gate is shared by all workers of a run.
type Gate struct {
	every    time.Duration
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGate returns a gate allowing one request per delay per host. A zero
// delay disables throttling.
func NewGate(delay time.Duration) *Gate {
	return &Gate{every: delay, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until a request to host may proceed or ctx is done.
func (g *Gate) Wait(ctx context.Context, host string) error {
	if g == nil || g.every <= 0 {
		return ctx.Err()
	}
	if err := g.limiter(host).Wait(ctx); err != nil {
		return fmt.Errorf("politeness gate: %w", err)
	}
	return nil
}

func (g *Gate) limiter(host string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(g.every), 1)
		g.limiters[host] = l
	}
	return l
}
