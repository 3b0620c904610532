// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package resolve turns a citation into a downloadable PDF by trying an
// ordered chain of strategies: the DOI redirect, an open-access lookup, a
// bibliographic search, and a browser-driven retrieval. The first strategy
// whose locator downloads and validates ends the chain.
package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/internal/httputil"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// Resolver is one strategy of the chain.
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, rec *types.CitationRecord) (types.Locator, error)
}

// Downloader retrieves a locator into the output directory and returns the
// committed path. *download.Executor implements it.
type Downloader interface {
	Download(ctx context.Context, rec *types.CitationRecord, loc types.Locator) (string, error)
}

// Reporter is told about every status change and attempt made while the
// pipeline owns a record.
type Reporter interface {
	StatusChanged(rec *types.CitationRecord, from types.Status, detail string)
	Attempted(rec *types.CitationRecord, a types.AttemptResult)
}

type nopReporter struct{}

func (nopReporter) StatusChanged(*types.CitationRecord, types.Status, string) {}
func (nopReporter) Attempted(*types.CitationRecord, types.AttemptResult)      {}

// Pipeline runs resolvers in declared order.
type Pipeline struct {
	Resolvers  []Resolver
	Downloader Downloader

	// Now stamps attempts; tests pin it.
	Now func() time.Time
}

// Run drives rec, which must be Resolving, through the chain. It returns
// true once rec is Completed. On false rec is back in Resolving with one
// attempt per strategy tried; the caller decides what happens next. Run
// stops early when ctx is done.
func (p *Pipeline) Run(ctx context.Context, rec *types.CitationRecord, rep Reporter) bool {
	if rep == nil {
		rep = nopReporter{}
	}

	for _, r := range p.Resolvers {
		if ctx.Err() != nil {
			return false
		}

		name := r.Name()
		loc, err := r.Resolve(ctx, rec)
		if err == nil && loc.IsZero() {
			err = fetcherr.NoLink(name, rec.Landing(), "strategy returned no locator")
		}
		if err != nil {
			p.attempt(rec, rep, name, err, "")
			continue
		}
		if loc.Strategy == "" {
			loc.Strategy = name
		}

		if err := p.move(rec, rep, types.StatusDownloading, loc.String()); err != nil {
			p.attempt(rec, rep, name, err, "")
			return false
		}

		path, err := p.Downloader.Download(ctx, rec, loc)
		if loc.Scratch && loc.File != "" {
			os.RemoveAll(filepath.Dir(loc.File))
			loc.File = ""
		}
		if err != nil {
			p.attempt(rec, rep, name, err, "")
			if merr := p.move(rec, rep, types.StatusResolving, err.Error()); merr != nil {
				return false
			}
			continue
		}

		p.attempt(rec, rep, name, nil, path)
		from := rec.Status
		if err := rec.Complete(path, &loc); err != nil {
			return false
		}
		rep.StatusChanged(rec, from, path)
		return true
	}
	return false
}

func (p *Pipeline) move(rec *types.CitationRecord, rep Reporter, to types.Status, detail string) error {
	from := rec.Status
	if err := rec.Transition(to); err != nil {
		return err
	}
	rep.StatusChanged(rec, from, detail)
	return nil
}

func (p *Pipeline) attempt(rec *types.CitationRecord, rep Reporter, strategy string, err error, detail string) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	a := types.AttemptResult{
		Strategy: strategy,
		Outcome:  fetcherr.Outcome(err),
		At:       now(),
		Detail:   detail,
	}
	if err != nil {
		a.Detail = err.Error()
	}
	rec.Append(a)
	rep.Attempted(rec, a)
}

// Deps are the collaborators strategies are built from.
type Deps struct {
	Client *httputil.Client
	Config types.FetchConfig

	// Driver backs the browser strategy; nil disables it.
	Driver Driver

	// ScratchDir holds browser downloads and saved PDF responses until they
	// are placed.
	ScratchDir string
}

// Build constructs the chain named by names, in order. Unknown names are an
// error; the browser strategy is left out when no driver is available.
func Build(names []string, deps Deps) ([]Resolver, error) {
	var chain []Resolver
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case types.StrategyDirect:
			chain = append(chain, &Direct{Client: deps.Client, ScratchDir: deps.ScratchDir})
		case types.StrategyOpenAccess:
			chain = append(chain, &OpenAccess{Client: deps.Client, Mailto: deps.Config.ContactEmail})
		case types.StrategySearch:
			chain = append(chain, NewSearch(deps.Client, deps.Config))
		case types.StrategyBrowser:
			if deps.Driver == nil || !deps.Config.Browser.Enabled {
				continue
			}
			chain = append(chain, &Browser{Driver: deps.Driver, ScratchDir: deps.ScratchDir})
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no usable strategies in %v", names)
	}
	return chain, nil
}
