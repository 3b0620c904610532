// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package queue drives a batch of citations to terminal states with a
// bounded worker pool. Manual captures run detached from the pool so a
// citation waiting on the operator never holds up the rest of the batch.
package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/bibfetch/internal/capture"
	"github.com/pdiddy/bibfetch/internal/resolve"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 2

// StrategyExisting names the attempt recorded when the output file is
// already present.
const StrategyExisting = "existing"

// Observer consumes progress events. Events are delivered one at a time,
// so implementations need no locking of their own.
type Observer interface {
	OnEvent(ev types.ProgressEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(types.ProgressEvent)

func (f ObserverFunc) OnEvent(ev types.ProgressEvent) { f(ev) }

// Runner is the resolution pipeline.
type Runner interface {
	Run(ctx context.Context, rec *types.CitationRecord, rep resolve.Reporter) bool
}

// Store answers whether a citation's file is already in place.
type Store interface {
	Existing(rec *types.CitationRecord) (string, bool)
}

// Capturer waits for an operator-completed download. Expect is called
// before rec is reported as waiting, Capture after.
type Capturer interface {
	Expect(id string)
	Capture(ctx context.Context, rec *types.CitationRecord, landing string) capture.Result
}

// Controller processes citations in input order.
type Controller struct {
	Pipeline Runner
	Store    Store

	// Capture handles citations the pipeline could not complete; nil fails
	// them instead.
	Capture Capturer

	Concurrency int
	Observers   []Observer

	// Now stamps events and attempts; tests pin it.
	Now func() time.Time

	mu sync.Mutex
}

// Run processes records until every one is terminal and returns the
// summary in input order. Cancelling ctx fails citations that have not
// finished.
func (c *Controller) Run(ctx context.Context, records []*types.CitationRecord) Summary {
	started := c.now()
	indexOf := make(map[string]int, len(records))
	for _, rec := range records {
		indexOf[rec.ID] = rec.Index
	}

	n := c.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(n)
	var captures sync.WaitGroup

	for _, rec := range records {
		g.Go(func() error {
			c.process(ctx, rec, indexOf, &captures)
			return nil
		})
	}
	g.Wait()
	captures.Wait()

	return Summarize(records, started, c.now())
}

// process runs on a pool worker and owns rec until it returns or hands rec
// to a detached capture.
func (c *Controller) process(ctx context.Context, rec *types.CitationRecord, indexOf map[string]int, captures *sync.WaitGroup) {
	defer c.recoverInto(rec)

	detail := ""
	if len(rec.IgnoredDOIs) > 0 {
		detail = "ignoring additional DOIs: " + strings.Join(rec.IgnoredDOIs, ", ")
	}
	c.move(rec, types.StatusResolving, detail)

	if rec.DuplicateOf != "" {
		why := fmt.Sprintf("duplicate DOI of citation %d", indexOf[rec.DuplicateOf])
		c.attempt(rec, types.AttemptResult{Strategy: StrategyExisting, Outcome: types.OutcomeSkipped, At: c.now(), Detail: why})
		c.move(rec, types.StatusSkipped, why)
		return
	}
	if ctx.Err() != nil {
		c.move(rec, types.StatusFailed, "cancelled")
		return
	}
	if c.Store != nil {
		if path, ok := c.Store.Existing(rec); ok {
			c.attempt(rec, types.AttemptResult{Strategy: StrategyExisting, Outcome: types.OutcomeSuccess, At: c.now(), Detail: "already downloaded"})
			c.complete(rec, path, nil)
			return
		}
	}

	if c.Pipeline.Run(ctx, rec, reporter{c}) {
		return
	}
	if ctx.Err() != nil {
		c.move(rec, types.StatusFailed, "cancelled")
		return
	}
	if c.Capture == nil {
		c.move(rec, types.StatusFailed, exhausted(rec))
		return
	}

	landing := rec.Landing()
	c.Capture.Expect(rec.ID)
	c.move(rec, types.StatusManualCaptureWaiting, landing)
	captures.Add(1)
	go func() {
		defer captures.Done()
		defer c.recoverInto(rec)
		res := c.Capture.Capture(ctx, rec, landing)
		c.attempt(rec, res.Attempt(c.now()))
		switch res.Status {
		case types.StatusCompleted:
			c.complete(rec, res.OutputPath, &types.Locator{File: res.Source, Strategy: capture.StrategyManual})
		case types.StatusSkipped:
			c.move(rec, types.StatusSkipped, "skipped by operator")
		default:
			detail := "manual capture failed"
			if res.Err != nil {
				detail = res.Err.Error()
			}
			c.move(rec, types.StatusFailed, detail)
		}
	}()
}

// recoverInto turns a panic while processing rec into a Failed citation.
func (c *Controller) recoverInto(rec *types.CitationRecord) {
	r := recover()
	if r == nil {
		return
	}
	from := rec.Status
	detail := fmt.Sprintf("internal error: %v", r)
	rec.Append(types.AttemptResult{Strategy: "internal", Outcome: types.OutcomeInternalError, At: c.now(), Detail: detail})
	if rec.Abort() {
		c.emit(rec, from, nil, detail)
	}
}

func (c *Controller) move(rec *types.CitationRecord, to types.Status, detail string) {
	from := rec.Status
	if err := rec.Transition(to); err != nil {
		panic(err)
	}
	c.emit(rec, from, nil, detail)
}

func (c *Controller) complete(rec *types.CitationRecord, path string, loc *types.Locator) {
	from := rec.Status
	if err := rec.Complete(path, loc); err != nil {
		panic(err)
	}
	c.emit(rec, from, nil, path)
}

func (c *Controller) attempt(rec *types.CitationRecord, a types.AttemptResult) {
	rec.Append(a)
	c.emit(rec, rec.Status, &a, a.Detail)
}

// emit delivers one event to every observer, serialized across workers.
func (c *Controller) emit(rec *types.CitationRecord, from types.Status, a *types.AttemptResult, detail string) {
	ev := types.ProgressEvent{
		CitationID: rec.ID,
		Index:      rec.Index,
		Label:      rec.Label,
		From:       from,
		To:         rec.Status,
		Attempt:    a,
		Detail:     detail,
		At:         c.now(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, o := range c.Observers {
		o.OnEvent(ev)
	}
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// reporter forwards pipeline notifications to observers.
type reporter struct{ c *Controller }

func (r reporter) StatusChanged(rec *types.CitationRecord, from types.Status, detail string) {
	r.c.emit(rec, from, nil, detail)
}

func (r reporter) Attempted(rec *types.CitationRecord, a types.AttemptResult) {
	r.c.emit(rec, rec.Status, &a, a.Detail)
}

func exhausted(rec *types.CitationRecord) string {
	last, ok := rec.LastAttempt()
	if !ok {
		return "no strategy could run"
	}
	return fmt.Sprintf("all strategies failed; last %s: %s", last.Strategy, last.Outcome)
}
