// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package capture supervises manual downloads. When automation cannot fetch
// a citation, the landing page is opened for the operator and the watch
// directory is polled until a fresh, complete PDF shows up, the operator
// skips the citation, or the deadline passes. Waits run independently, so
// several citations can be pending at once.
package capture

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// StrategyManual names capture attempts in the attempts log.
const StrategyManual = "manual"

// partialSuffixes mark downloads still in progress.
var partialSuffixes = []string{".crdownload", ".part", ".partial", ".tmp", ".download"}

// mtimeSlack tolerates filesystems with coarse modification times.
const mtimeSlack = 2 * time.Second

const (
	defaultPollInterval = 2 * time.Second
	defaultTimeout      = 10 * time.Minute
)

// Placer validates a captured file and moves it into the output directory.
// *download.Executor implements it.
type Placer interface {
	Place(rec *types.CitationRecord, path string) (string, error)
}

// Result is how a capture ended.
type Result struct {
	// Status is Completed, Skipped or Failed.
	Status types.Status

	// OutputPath is the placed file when Status is Completed.
	OutputPath string

	// Source is the file picked up from the watch directory.
	Source string

	// Err explains a Failed result.
	Err error
}

// Attempt renders r as an entry for the attempts log.
func (r Result) Attempt(at time.Time) types.AttemptResult {
	a := types.AttemptResult{Strategy: StrategyManual, At: at}
	switch r.Status {
	case types.StatusCompleted:
		a.Outcome = types.OutcomeSuccess
		a.Detail = r.Source
	case types.StatusSkipped:
		a.Outcome = types.OutcomeSkipped
		a.Detail = "skipped by operator"
	default:
		a.Outcome = fetcherr.Outcome(r.Err)
		if r.Err != nil {
			a.Detail = r.Err.Error()
		}
	}
	return a
}

// Supervisor runs manual captures against one watch directory. It is safe
// for concurrent use; a new file is handed to the first waiting citation
// that sees it complete.
type Supervisor struct {
	Config types.CaptureConfig
	Placer Placer
	Clock  Clock
	Lister Lister
	Opener Opener

	mu      sync.Mutex
	claimed map[string]bool
	waiting map[string]chan struct{}
}

// New returns a supervisor using the real clock, directory and browser.
func New(cfg types.CaptureConfig, placer Placer) *Supervisor {
	return &Supervisor{
		Config: cfg,
		Placer: placer,
		Clock:  realClock{},
		Lister: DirLister{},
		Opener: SystemOpener{},
	}
}

// Capture opens landing for the operator and waits for the download. It
// returns when a valid file has been placed, the operator skips rec, the
// timeout passes, or ctx is done. Capture does not touch rec's status.
func (s *Supervisor) Capture(ctx context.Context, rec *types.CitationRecord, landing string) Result {
	clock := s.clock()
	poll, timeout := s.intervals()
	dir := s.Config.WatchDir

	skip := s.register(rec.ID)
	defer s.unregister(rec.ID)

	start := clock.Now()
	deadline := start.Add(timeout)

	baseline := make(map[string]time.Time)
	if entries, err := s.Lister.List(dir); err == nil {
		for _, e := range entries {
			baseline[e.Name] = e.ModTime
		}
	}

	if s.Config.OpenBrowser && landing != "" && s.Opener != nil {
		// A failed open still leaves the operator the printed URL.
		_ = s.Opener.Open(landing)
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if s.Config.Notify {
		if w, err := fsnotify.NewWatcher(); err == nil {
			defer w.Close()
			if w.Add(dir) == nil {
				events, watchErrs = w.Events, w.Errors
			}
		}
	}

	sizes := make(map[string]int64)
	rejected := make(map[string]bool)
	for {
		entries, _ := s.Lister.List(dir)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

		for _, e := range entries {
			if !s.candidate(e, baseline, start) || rejected[e.Name] {
				continue
			}
			prev, seen := sizes[e.Name]
			sizes[e.Name] = e.Size
			if !seen || prev != e.Size || e.Size == 0 {
				continue
			}

			path := filepath.Join(dir, e.Name)
			if !s.claim(path) {
				rejected[e.Name] = true
				continue
			}
			out, err := s.Placer.Place(rec, path)
			if err != nil {
				// Leave it claimed: it is invalid for every waiter.
				rejected[e.Name] = true
				continue
			}
			return Result{Status: types.StatusCompleted, OutputPath: out, Source: path}
		}

		now := clock.Now()
		if !now.Before(deadline) {
			return Result{
				Status: types.StatusFailed,
				Err:    fetcherr.WatcherTimeout(dir, fmt.Errorf("no valid PDF within %s", timeout)),
			}
		}
		wait := poll
		if remaining := deadline.Sub(now); remaining < wait {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return Result{Status: types.StatusFailed, Err: ctx.Err()}
		case <-skip:
			return Result{Status: types.StatusSkipped}
		case <-clock.After(wait):
		case <-events:
		case <-watchErrs:
		}
	}
}

// Expect registers citation id as waiting before its capture starts, so a
// skip issued in between is not lost. Capture for id picks it up.
func (s *Supervisor) Expect(id string) {
	s.register(id)
}

// Skip ends the capture waiting for citation id as Skipped. It reports
// whether such a capture was waiting.
func (s *Supervisor) Skip(id string) bool {
	s.mu.Lock()
	ch, ok := s.waiting[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- struct{}{}:
	default:
	}
	return true
}

// Waiting returns the ids of citations currently waiting, sorted.
func (s *Supervisor) Waiting() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.waiting))
	for id := range s.waiting {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// candidate reports whether e may be an operator download for this wait.
func (s *Supervisor) candidate(e Entry, baseline map[string]time.Time, start time.Time) bool {
	if e.Dir || strings.HasPrefix(e.Name, ".") || IsPartial(e.Name) {
		return false
	}
	if before, ok := baseline[e.Name]; ok && !e.ModTime.After(before) {
		return false
	}
	return !e.ModTime.Before(start.Add(-mtimeSlack))
}

// IsPartial reports whether name is an in-progress browser download.
func IsPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suf := range partialSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

func (s *Supervisor) claim(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed == nil {
		s.claimed = make(map[string]bool)
	}
	if s.claimed[path] {
		return false
	}
	s.claimed[path] = true
	return true
}

func (s *Supervisor) register(id string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiting == nil {
		s.waiting = make(map[string]chan struct{})
	}
	ch, ok := s.waiting[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.waiting[id] = ch
	}
	return ch
}

func (s *Supervisor) unregister(id string) {
	s.mu.Lock()
	delete(s.waiting, id)
	s.mu.Unlock()
}

func (s *Supervisor) clock() Clock {
	if s.Clock == nil {
		return realClock{}
	}
	return s.Clock
}

func (s *Supervisor) intervals() (poll, timeout time.Duration) {
	poll, timeout = s.Config.PollInterval, s.Config.Timeout
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return poll, timeout
}
