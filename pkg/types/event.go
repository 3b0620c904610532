package types

import "time"

// ProgressEvent is emitted once per status change of a citation, and once
// per recorded attempt (with From == To and Attempt set).
type ProgressEvent struct {
	CitationID string         `json:"citation_id"`
	Index      int            `json:"index"`
	Label      string         `json:"label"`
	From       Status         `json:"from"`
	To         Status         `json:"to"`
	Attempt    *AttemptResult `json:"attempt,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

// IsAttempt reports whether the event carries an attempt rather than a
// status change.
func (e ProgressEvent) IsAttempt() bool {
	return e.Attempt != nil
}
