// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/bibfetch/internal/config"
	"github.com/pdiddy/bibfetch/internal/journal"
	"github.com/pdiddy/bibfetch/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past runs or replay the events of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list (0 for all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path, err := config.ExpandHome(viper.GetString(config.KeyJournal))
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("no run journal configured")
	}
	jr, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer jr.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		events, err := jr.Events(args[0])
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("no events recorded for run %s", args[0])
		}
		l := &report.Logger{W: out}
		for _, ev := range events {
			l.OnEvent(ev)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := jr.History(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %-19s  %5s  %9s  %6s  %7s\n", "Run", "Started", "Total", "Completed", "Failed", "Skipped")
	fmt.Fprintln(out, strings.Repeat("-", 94))
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s  %-19s  %5d  %9d  %6d  %7d\n",
			r.ID, r.Started.Local().Format("2006-01-02 15:04:05"), r.Total, r.Completed, r.Failed, r.Skipped)
	}
	return nil
}
