// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage stands in for a loaded page: clicking affordance i "downloads"
// results[i] into dir, or does nothing when results[i] is empty.
type fakePage struct {
	dir       string
	results   []string
	stale     map[int]bool
	downloads chan string
	clicked   []int
}

func newFakePage(t *testing.T, results ...string) *fakePage {
	return &fakePage{dir: t.TempDir(), results: results, stale: map[int]bool{}, downloads: make(chan string, len(results)+1)}
}

func (p *fakePage) click(i int) (bool, error) {
	p.clicked = append(p.clicked, i)
	if p.stale[i] {
		return false, nil
	}
	if i >= len(p.results) || p.results[i] == "" {
		return true, nil
	}
	guid := fmt.Sprintf("guid-%d", i)
	if err := os.WriteFile(filepath.Join(p.dir, guid), []byte(p.results[i]), 0o644); err != nil {
		return false, err
	}
	p.downloads <- guid
	return true, nil
}

func TestClickThroughSkipsNonPDFDownloads(t *testing.T) {
	p := newFakePage(t, "TY  - JOUR\nTI  - A citation export\nER  -\n", pdfBody)

	path, err := clickThrough(context.Background(), 2, p.click, p.downloads, p.dir, time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.dir, "guid-1"), path)
	assert.Equal(t, []int{0, 1}, p.clicked)
	assert.NoFileExists(t, filepath.Join(p.dir, "guid-0"), "non-PDF download is discarded")
}

func TestClickThroughMovesOnAfterClickTimeout(t *testing.T) {
	// The first button starts nothing; it must not eat the whole page budget.
	p := newFakePage(t, "", pdfBody)

	start := time.Now()
	path, err := clickThrough(context.Background(), 2, p.click, p.downloads, p.dir, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.dir, "guid-1"), path)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClickThroughSkipsStaleElements(t *testing.T) {
	p := newFakePage(t, pdfBody, pdfBody)
	p.stale[0] = true

	path, err := clickThrough(context.Background(), 2, p.click, p.downloads, p.dir, time.Second)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.dir, "guid-1"), path)
}

func TestClickThroughNothingWorks(t *testing.T) {
	results := make([]string, 20)
	p := newFakePage(t, results...)

	_, err := clickThrough(context.Background(), len(results), p.click, p.downloads, p.dir, time.Millisecond)
	assert.True(t, errors.Is(err, errNoPDF))
	assert.Len(t, p.clicked, maxClicks, "clicks are bounded")
}

func TestClickThroughCancelled(t *testing.T) {
	p := newFakePage(t, "", pdfBody)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := clickThrough(ctx, 2, p.click, p.downloads, p.dir, time.Second)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestAwaitPDFTimesOut(t *testing.T) {
	_, err := awaitPDF(context.Background(), make(chan string), t.TempDir(), 10*time.Millisecond)
	assert.True(t, errors.Is(err, errNoPDF))
}
