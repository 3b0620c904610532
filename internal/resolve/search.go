// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/internal/httputil"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// Search API endpoints. Declared as vars so tests can substitute httptest
// servers.
var (
	crossrefWorksBase = "https://api.crossref.org/works"
	openAlexWorksBase = "https://api.openalex.org/works"
)

// DefaultMinSimilarity is the lowest score a search candidate may have and
// still be used.
const DefaultMinSimilarity = 0.35

const defaultMaxCandidates = 5

// Candidate is one bibliographic search hit.
type Candidate struct {
	Title   string
	Authors []string
	Year    int
	DOI     string
	PDFURL  string
	Landing string
}

// Searcher queries a bibliographic metadata service.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, rows int) ([]Candidate, error)
}

// Search finds the work by its citation text and uses the PDF link the best
// matching candidate advertises.
type Search struct {
	Backend Searcher

	// MaxCandidates is the number of results requested. Every result the
	// service returns is scored, and only the single best one is used.
	MaxCandidates int

	MinSimilarity float64
}

// NewSearch returns the search strategy configured by cfg.
func NewSearch(client *httputil.Client, cfg types.FetchConfig) *Search {
	var backend Searcher
	switch cfg.SearchBackend {
	case types.SearchOpenAlex:
		backend = &OpenAlexSearch{Client: client, Mailto: cfg.ContactEmail}
	default:
		backend = &CrossrefSearch{Client: client, Mailto: cfg.ContactEmail}
	}
	return &Search{Backend: backend, MaxCandidates: cfg.MaxCandidates, MinSimilarity: DefaultMinSimilarity}
}

func (s *Search) Name() string { return types.StrategySearch }

func (s *Search) Resolve(ctx context.Context, rec *types.CitationRecord) (types.Locator, error) {
	if strings.TrimSpace(rec.SearchText) == "" {
		return types.Locator{}, fetcherr.NoLink("search", "", "citation has no searchable text")
	}
	limit := s.MaxCandidates
	if limit <= 0 {
		limit = defaultMaxCandidates
	}

	cands, err := s.Backend.Search(ctx, rec.SearchText, limit)
	if err != nil {
		return types.Locator{}, err
	}

	best, score := BestCandidate(rec.SearchText, cands)
	if best < 0 || score < s.MinSimilarity {
		return types.Locator{}, fetcherr.NoLink("search", s.Backend.Name(), "no sufficiently similar candidate")
	}

	c := cands[best]
	if rec.LandingURL == "" {
		switch {
		case c.Landing != "":
			rec.LandingURL = c.Landing
		case c.DOI != "":
			rec.LandingURL = doiBase + c.DOI
		}
	}
	if c.PDFURL == "" {
		return types.Locator{}, fetcherr.NoLink("search", rec.LandingURL, "best candidate has no PDF link: "+c.Title)
	}
	return types.Locator{URL: c.PDFURL, Strategy: types.StrategySearch}, nil
}

// BestCandidate returns the index and score of the most similar candidate,
// -1 when there are none. Ties go to the earlier rank.
func BestCandidate(citation string, cands []Candidate) (int, float64) {
	best, bestScore := -1, 0.0
	ref := newReference(citation)
	for i, c := range cands {
		score := candidateScore(ref, c)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

// CrossrefSearch queries Crossref's query.bibliographic endpoint.
type CrossrefSearch struct {
	Client *httputil.Client
	Mailto string
}

type crossrefSearchResponse struct {
	Message struct {
		Items []crossrefItem `json:"items"`
	} `json:"message"`
}

type crossrefItem struct {
	DOI    string   `json:"DOI"`
	URL    string   `json:"URL"`
	Title  []string `json:"title"`
	Author []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
	Link []struct {
		URL         string `json:"URL"`
		ContentType string `json:"content-type"`
	} `json:"link"`
}

func (c *CrossrefSearch) Name() string { return types.SearchCrossref }

func (c *CrossrefSearch) Search(ctx context.Context, query string, rows int) ([]Candidate, error) {
	q := url.Values{}
	q.Set("query.bibliographic", query)
	q.Set("rows", strconv.Itoa(rows))
	q.Set("select", "DOI,URL,title,author,issued,link")
	if c.Mailto != "" {
		q.Set("mailto", c.Mailto)
	}
	apiURL := crossrefWorksBase + "?" + q.Encode()

	var cr crossrefSearchResponse
	if _, err := getJSON(ctx, c.Client, "crossref search", apiURL, &cr); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(cr.Message.Items))
	for _, it := range cr.Message.Items {
		cand := Candidate{DOI: it.DOI, Landing: it.URL}
		if len(it.Title) > 0 {
			cand.Title = it.Title[0]
		}
		for _, a := range it.Author {
			cand.Authors = append(cand.Authors, strings.TrimSpace(a.Given+" "+a.Family))
		}
		if len(it.Issued.DateParts) > 0 && len(it.Issued.DateParts[0]) > 0 {
			cand.Year = it.Issued.DateParts[0][0]
		}
		for _, l := range it.Link {
			if l.ContentType == "application/pdf" || (l.ContentType == "unspecified" && hasPDFExt(l.URL)) {
				cand.PDFURL = l.URL
				break
			}
		}
		out = append(out, cand)
	}
	return out, nil
}

// OpenAlexSearch queries the OpenAlex works search.
type OpenAlexSearch struct {
	Client *httputil.Client
	Mailto string
}

func (o *OpenAlexSearch) Name() string { return types.SearchOpenAlex }

func (o *OpenAlexSearch) Search(ctx context.Context, query string, rows int) ([]Candidate, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("per-page", strconv.Itoa(rows))
	if o.Mailto != "" {
		q.Set("mailto", o.Mailto)
	}
	apiURL := openAlexWorksBase + "?" + q.Encode()

	var resp struct {
		Results []openAlexWork `json:"results"`
	}
	if _, err := getJSON(ctx, o.Client, "openalex search", apiURL, &resp); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.Results))
	for _, w := range resp.Results {
		pdf, landing := w.pdfURL()
		cand := Candidate{
			Title:   w.Title,
			Year:    w.PublicationYear,
			DOI:     strings.TrimPrefix(w.DOI, "https://doi.org/"),
			PDFURL:  pdf,
			Landing: landing,
		}
		for _, a := range w.Authorships {
			cand.Authors = append(cand.Authors, a.Author.DisplayName)
		}
		out = append(out, cand)
	}
	return out, nil
}
