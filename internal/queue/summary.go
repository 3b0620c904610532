// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package queue

import (
	"time"

	"github.com/pdiddy/bibfetch/pkg/types"
)

// Entry is one citation's line in the run summary.
type Entry struct {
	Index      int          `json:"index" yaml:"index"`
	ID         string       `json:"id" yaml:"id"`
	Label      string       `json:"label" yaml:"label"`
	DOI        string       `json:"doi,omitempty" yaml:"doi,omitempty"`
	Status     types.Status `json:"status" yaml:"status"`
	OutputPath string       `json:"output_path,omitempty" yaml:"output_path,omitempty"`

	// Landing is where an operator can continue by hand.
	Landing string `json:"landing,omitempty" yaml:"landing,omitempty"`

	// Strategy, Outcome and Detail come from the last attempt.
	Strategy string        `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Outcome  types.Outcome `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`

	Attempts int `json:"attempts" yaml:"attempts"`
}

// Summary reports a finished run in input order.
type Summary struct {
	Started   time.Time `json:"started" yaml:"started"`
	Finished  time.Time `json:"finished" yaml:"finished"`
	Completed int       `json:"completed" yaml:"completed"`
	Failed    int       `json:"failed" yaml:"failed"`
	Skipped   int       `json:"skipped" yaml:"skipped"`
	Entries   []Entry   `json:"entries" yaml:"entries"`
}

// Total is the number of citations in the run.
func (s Summary) Total() int { return len(s.Entries) }

// HasFailures reports whether any citation ended Failed.
func (s Summary) HasFailures() bool { return s.Failed > 0 }

// Summarize builds the summary for records, which must already be in input
// order.
func Summarize(records []*types.CitationRecord, started, finished time.Time) Summary {
	s := Summary{Started: started, Finished: finished, Entries: make([]Entry, 0, len(records))}
	for _, rec := range records {
		switch rec.Status {
		case types.StatusCompleted:
			s.Completed++
		case types.StatusFailed:
			s.Failed++
		case types.StatusSkipped:
			s.Skipped++
		}

		e := Entry{
			Index:      rec.Index,
			ID:         rec.ID,
			Label:      rec.Label,
			DOI:        rec.DOI,
			Status:     rec.Status,
			OutputPath: rec.OutputPath,
			Attempts:   len(rec.Attempts),
		}
		if rec.Status != types.StatusCompleted {
			e.Landing = rec.Landing()
		}
		if last, ok := rec.LastAttempt(); ok {
			e.Strategy, e.Outcome, e.Detail = last.Strategy, last.Outcome, last.Detail
		}
		s.Entries = append(s.Entries, e)
	}
	return s
}
