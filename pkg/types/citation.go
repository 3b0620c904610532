// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the shared data structures for the bibfetch engine:
// citation records and their status machine, attempt results, locators,
// progress events and configuration.
package types

import (
	"fmt"
	"time"
)

// Status is the processing state of a citation.
type Status string

const (
	StatusPending              Status = "pending"
	StatusResolving            Status = "resolving"
	StatusDownloading          Status = "downloading"
	StatusManualCaptureWaiting Status = "manual_capture_waiting"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusSkipped              Status = "skipped"
)

// transitions lists the legal moves of the status machine.
var transitions = map[Status][]Status{
	StatusPending:              {StatusResolving},
	StatusResolving:            {StatusDownloading, StatusManualCaptureWaiting, StatusFailed, StatusCompleted, StatusSkipped},
	StatusDownloading:          {StatusCompleted, StatusResolving},
	StatusManualCaptureWaiting: {StatusCompleted, StatusSkipped, StatusFailed},
}

// Terminal reports whether s is one of Completed, Failed or Skipped.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// CanTransition reports whether the machine allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Outcome classifies a single strategy attempt.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeNoLinkFound   Outcome = "no-link-found"
	OutcomeNetworkError  Outcome = "network-error"
	OutcomeAuthRequired  Outcome = "auth-required"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeInvalidPDF    Outcome = "invalid-pdf"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeInternalError Outcome = "internal-error"
)

// AttemptResult records one strategy attempt for a citation.
type AttemptResult struct {
	Strategy string    `json:"strategy" yaml:"strategy"`
	Outcome  Outcome   `json:"outcome" yaml:"outcome"`
	At       time.Time `json:"at" yaml:"at"`
	Detail   string    `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Locator is what a resolver strategy yields: either a remote PDF URL or a
// file already retrieved to local disk. When both are set, File holds the
// content fetched from URL.
type Locator struct {
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	File     string `json:"file,omitempty" yaml:"file,omitempty"`
	Strategy string `json:"strategy" yaml:"strategy"`

	// Scratch marks File as living in a per-attempt temporary directory
	// that is removed once the file has been placed or rejected.
	Scratch bool `json:"-" yaml:"-"`
}

// IsZero reports whether the locator points nowhere.
func (l Locator) IsZero() bool {
	return l.URL == "" && l.File == ""
}

// String returns the URL the locator points at, or the file when there is
// no URL.
func (l Locator) String() string {
	if l.URL != "" {
		return l.URL
	}
	return l.File
}

// CitationRecord holds one bibliography entry and everything learned while
// processing it. A record is owned by exactly one goroutine at a time.
type CitationRecord struct {
	// ID is a UUID assigned at parse time.
	ID string `json:"id" yaml:"id"`

	// Index is the 1-based position of the citation in the input.
	Index int `json:"index" yaml:"index"`

	// Raw is the citation text as it appeared in the input (wrapped lines joined).
	Raw string `json:"raw" yaml:"raw"`

	// Label is the filesystem-safe name the output file is derived from.
	Label string `json:"label" yaml:"label"`

	// DOI is the canonical identifier, empty when none was found or when the
	// DOI belongs to an earlier citation.
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`

	// IgnoredDOIs lists further DOI-like matches found in the same segment.
	IgnoredDOIs []string `json:"ignored_dois,omitempty" yaml:"ignored_dois,omitempty"`

	// URLs are fallback candidates, only collected when no DOI is present.
	URLs []string `json:"urls,omitempty" yaml:"urls,omitempty"`

	// SearchText is the raw text without markers, DOIs and URLs.
	SearchText string `json:"search_text,omitempty" yaml:"search_text,omitempty"`

	// DuplicateOf is the ID of an earlier citation carrying the same DOI.
	DuplicateOf string `json:"duplicate_of,omitempty" yaml:"duplicate_of,omitempty"`

	Status Status `json:"status" yaml:"status"`

	// Locator is the source the output file was retrieved from.
	Locator *Locator `json:"locator,omitempty" yaml:"locator,omitempty"`

	// LandingURL is the best-known human-readable page for the work.
	LandingURL string `json:"landing_url,omitempty" yaml:"landing_url,omitempty"`

	// Attempts is append-only.
	Attempts []AttemptResult `json:"attempts" yaml:"attempts"`

	// OutputPath is set if and only if Status is StatusCompleted.
	OutputPath string `json:"output_path,omitempty" yaml:"output_path,omitempty"`
}

// Transition moves the record to next, rejecting moves the status machine
// does not allow.
func (c *CitationRecord) Transition(next Status) error {
	if !c.Status.CanTransition(next) {
		return fmt.Errorf("citation %d: illegal transition %s -> %s", c.Index, c.Status, next)
	}
	c.Status = next
	return nil
}

// Complete marks the record Completed with the given output file.
func (c *CitationRecord) Complete(path string, loc *Locator) error {
	if err := c.Transition(StatusCompleted); err != nil {
		return err
	}
	c.OutputPath = path
	c.Locator = loc
	return nil
}

// Abort forces a non-terminal record to Failed, bypassing the status
// machine. It is reserved for processing that broke down mid-flight and
// reports whether the record changed.
func (c *CitationRecord) Abort() bool {
	if c.Status.Terminal() {
		return false
	}
	c.Status = StatusFailed
	c.OutputPath = ""
	return true
}

// Append adds an attempt to the log.
func (c *CitationRecord) Append(a AttemptResult) {
	c.Attempts = append(c.Attempts, a)
}

// LastAttempt returns the most recent attempt and whether there is one.
func (c *CitationRecord) LastAttempt() (AttemptResult, bool) {
	if len(c.Attempts) == 0 {
		return AttemptResult{}, false
	}
	return c.Attempts[len(c.Attempts)-1], true
}

// Landing returns the best page to show an operator: the recorded landing
// page, the DOI resolver URL, or the first candidate URL.
func (c *CitationRecord) Landing() string {
	switch {
	case c.LandingURL != "":
		return c.LandingURL
	case c.DOI != "":
		return "https://doi.org/" + c.DOI
	case len(c.URLs) > 0:
		return c.URLs[0]
	default:
		return ""
	}
}
