// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// Driver retrieves a PDF by steering a real browser to a page and letting
// the page's own download affordances do the work.
type Driver interface {
	// Fetch opens pageURL and returns the path of the file the browser
	// downloaded into dir.
	Fetch(ctx context.Context, pageURL, dir string) (string, error)
}

// Browser is the browser-driven strategy. It runs against the best-known
// landing page, so it benefits from pages discovered by earlier strategies.
type Browser struct {
	Driver Driver

	// ScratchDir is where per-attempt download directories are created.
	ScratchDir string
}

func (b *Browser) Name() string { return types.StrategyBrowser }

func (b *Browser) Resolve(ctx context.Context, rec *types.CitationRecord) (types.Locator, error) {
	landing := rec.Landing()
	if landing == "" {
		return types.Locator{}, fetcherr.NoLink("browser", "", "no page to open")
	}

	dir, err := os.MkdirTemp(b.ScratchDir, "bibfetch-browser-*")
	if err != nil {
		return types.Locator{}, fmt.Errorf("creating browser download dir: %w", err)
	}

	path, err := b.Driver.Fetch(ctx, landing, dir)
	if err != nil {
		os.RemoveAll(dir)
		return types.Locator{}, err
	}
	return types.Locator{URL: landing, File: path, Strategy: types.StrategyBrowser, Scratch: true}, nil
}
