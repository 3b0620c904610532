// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders progress and run summaries: a line-per-event
// logger for the terminal and text, YAML and JSON forms of the summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/bibfetch/internal/queue"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// Formats accepted by Write.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Logger is a queue observer that prints one line per event.
type Logger struct {
	W io.Writer

	// Quiet drops attempt lines and keeps status changes only.
	Quiet bool
}

// OnEvent writes ev as a single line.
func (l *Logger) OnEvent(ev types.ProgressEvent) {
	prefix := fmt.Sprintf("[%s] (%d) %s:", ev.At.Format("15:04:05"), ev.Index, ev.Label)
	if ev.IsAttempt() {
		if l.Quiet {
			return
		}
		fmt.Fprintf(l.W, "%s %s %s%s\n", prefix, ev.Attempt.Strategy, ev.Attempt.Outcome, suffix(ev.Detail))
		return
	}
	fmt.Fprintf(l.W, "%s %s → %s%s\n", prefix, ev.From, ev.To, suffix(ev.Detail))
}

func suffix(detail string) string {
	if detail == "" {
		return ""
	}
	return " (" + detail + ")"
}

// Write renders sum in the named format.
func Write(w io.Writer, format string, sum queue.Summary) error {
	switch format {
	case "", FormatText:
		WriteText(w, sum)
		return nil
	case FormatYAML:
		return WriteYAML(w, sum)
	case FormatJSON:
		return WriteJSON(w, sum)
	default:
		return fmt.Errorf("unknown report format %q (use text, yaml or json)", format)
	}
}

// WriteText writes sum as a table followed by guidance for citations that
// need the operator.
func WriteText(w io.Writer, sum queue.Summary) {
	fmt.Fprintf(w, "\nRun summary: %d completed, %d failed, %d skipped (total: %d, %s)\n",
		sum.Completed, sum.Failed, sum.Skipped, sum.Total(), sum.Finished.Sub(sum.Started).Round(time.Second))
	if sum.Total() == 0 {
		return
	}

	fmt.Fprintf(w, "%-4s  %-40s  %-22s  %s\n", "#", "Label", "Status", "Result")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, e := range sum.Entries {
		fmt.Fprintf(w, "%-4d  %-40s  %-22s  %s\n", e.Index, truncate(e.Label, 40), e.Status, result(e))
	}

	var guidance []string
	for _, e := range sum.Entries {
		if e.Status != types.StatusFailed || e.Landing == "" {
			continue
		}
		switch e.Outcome {
		case types.OutcomeAuthRequired:
			guidance = append(guidance, fmt.Sprintf("(%d) requires a login: open %s and download manually", e.Index, e.Landing))
		case types.OutcomeNoLinkFound, types.OutcomeTimeout:
			guidance = append(guidance, fmt.Sprintf("(%d) no PDF found: open %s and download manually", e.Index, e.Landing))
		}
	}
	if len(guidance) > 0 {
		fmt.Fprintln(w, "\nNeeds attention:")
		for _, g := range guidance {
			fmt.Fprintln(w, "  "+g)
		}
	}
}

func result(e queue.Entry) string {
	switch {
	case e.OutputPath != "":
		return e.OutputPath
	case e.Outcome != "" && e.Detail != "":
		return fmt.Sprintf("%s %s: %s", e.Strategy, e.Outcome, e.Detail)
	case e.Outcome != "":
		return fmt.Sprintf("%s %s", e.Strategy, e.Outcome)
	default:
		return e.Detail
	}
}

// WriteYAML writes sum as a YAML document.
func WriteYAML(w io.Writer, sum queue.Summary) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(sum)
}

// WriteJSON writes sum as indented JSON.
func WriteJSON(w io.Writer, sum queue.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
