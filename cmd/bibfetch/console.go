// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdiddy/bibfetch/internal/capture"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// console lets the operator skip citations waiting for a manual download.
// It is also a queue observer so it can prompt when a wait begins.
type console struct {
	out      io.Writer
	sup      *capture.Supervisor
	records  []*types.CitationRecord
	watchDir string
}

func (c *console) OnEvent(ev types.ProgressEvent) {
	if ev.IsAttempt() || ev.To != types.StatusManualCaptureWaiting {
		return
	}
	fmt.Fprintf(c.out, "  save the PDF for (%d) into %s, or type \"skip %d\"\n", ev.Index, c.watchDir, ev.Index)
}

// serve reads commands from r until it is closed.
func (c *console) serve(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if msg := c.handle(sc.Text()); msg != "" {
			fmt.Fprintln(c.out, msg)
		}
	}
}

func (c *console) handle(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	switch strings.ToLower(fields[0]) {
	case "skip", "s":
		if len(fields) != 2 {
			return "usage: skip N"
		}
		n, err := strconv.Atoi(strings.Trim(fields[1], "()[]."))
		if err != nil || n < 1 || n > len(c.records) {
			return fmt.Sprintf("no citation %q", fields[1])
		}
		if !c.sup.Skip(c.records[n-1].ID) {
			return fmt.Sprintf("citation %d is not waiting for a download", n)
		}
		return ""
	case "waiting", "w":
		ids := c.sup.Waiting()
		if len(ids) == 0 {
			return "nothing is waiting"
		}
		var idx []string
		for _, rec := range c.records {
			for _, id := range ids {
				if rec.ID == id {
					idx = append(idx, strconv.Itoa(rec.Index))
				}
			}
		}
		return "waiting: " + strings.Join(idx, ", ")
	case "help", "?":
		return "commands: skip N, waiting, help"
	default:
		return fmt.Sprintf("unknown command %q (try help)", fields[0])
	}
}
