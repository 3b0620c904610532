// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/bibfetch/internal/capture"
	"github.com/pdiddy/bibfetch/pkg/types"
)

func TestConsoleHandle(t *testing.T) {
	sup := capture.New(types.CaptureConfig{WatchDir: t.TempDir()}, nil)
	c := &console{
		sup:     sup,
		records: []*types.CitationRecord{{ID: "a", Index: 1}, {ID: "b", Index: 2}},
	}

	tests := []struct {
		line string
		want string
	}{
		{"", ""},
		{"help", "commands: skip N, waiting, help"},
		{"skip", "usage: skip N"},
		{"skip 9", `no citation "9"`},
		{"skip x", `no citation "x"`},
		{"skip 2", "citation 2 is not waiting for a download"},
		{"waiting", "nothing is waiting"},
		{"frobnicate", `unknown command "frobnicate" (try help)`},
	}
	for _, tt := range tests {
		if got := c.handle(tt.line); got != tt.want {
			t.Errorf("handle(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestConsolePromptsOnWait(t *testing.T) {
	var buf bytes.Buffer
	c := &console{out: &buf, watchDir: "/home/me/Downloads"}
	c.OnEvent(types.ProgressEvent{Index: 3, From: types.StatusResolving, To: types.StatusManualCaptureWaiting})
	c.OnEvent(types.ProgressEvent{Index: 4, From: types.StatusResolving, To: types.StatusDownloading})
	assert.Equal(t, "  save the PDF for (3) into /home/me/Downloads, or type \"skip 3\"\n", buf.String())
}

func newInputCmd(text string) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("text", text, "")
	return cmd
}

func TestReadInput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "refs.txt")
	require.NoError(t, os.WriteFile(file, []byte("(1) Doe 2020"), 0o644))

	got, stdin, err := readInput(newInputCmd("(1) Roe 2019"), nil)
	require.NoError(t, err)
	assert.Equal(t, "(1) Roe 2019", got)
	assert.False(t, stdin)

	got, _, err = readInput(newInputCmd(""), []string{file})
	require.NoError(t, err)
	assert.Equal(t, "(1) Doe 2020", got)

	cmd := newInputCmd("")
	cmd.SetIn(strings.NewReader("(1) Poe 1845"))
	got, stdin, err = readInput(cmd, []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "(1) Poe 1845", got)
	assert.True(t, stdin)

	_, _, err = readInput(newInputCmd(""), nil)
	assert.Error(t, err)
	_, _, err = readInput(newInputCmd("x"), []string{file})
	assert.Error(t, err)
	_, _, err = readInput(newInputCmd(""), []string{filepath.Join(t.TempDir(), "missing.txt")})
	assert.Error(t, err)
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, []*types.CitationRecord{
		{Index: 1, Label: "1_Doe", DOI: "10.1000/a", IgnoredDOIs: []string{"10.1000/b"}},
		{Index: 2, Label: "2_Doe", DuplicateOf: "x"},
		{Index: 3, Label: "3_Web", URLs: []string{"https://example.org/p"}},
	})
	out := buf.String()
	assert.Contains(t, out, "(1) 1_Doe\n    doi: 10.1000/a\n    ignored doi: 10.1000/b\n")
	assert.Contains(t, out, "(2) 2_Doe\n    duplicate DOI, will be skipped\n")
	assert.Contains(t, out, "    url: https://example.org/p\n")
	assert.Contains(t, out, "3 citation(s)")
}
