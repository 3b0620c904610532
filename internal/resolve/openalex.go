// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/internal/httputil"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// openAlexAPIBase is the OpenAlex works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works/"

// openAlexWork captures the fields we need from an OpenAlex work record.
type openAlexWork struct {
	ID              string             `json:"id"`
	DOI             string             `json:"doi"`
	Title           string             `json:"display_name"`
	PublicationYear int                `json:"publication_year"`
	Authorships     []openAlexAuthor   `json:"authorships"`
	BestOALocation  *openAlexLocation  `json:"best_oa_location"`
	PrimaryLocation *openAlexLocation  `json:"primary_location"`
	Locations       []openAlexLocation `json:"locations"`
}

type openAlexAuthor struct {
	Author struct {
		DisplayName string `json:"display_name"`
	} `json:"author"`
}

// openAlexLocation represents a copy of the work in the OpenAlex response.
type openAlexLocation struct {
	PDFURL     string `json:"pdf_url"`
	LandingURL string `json:"landing_page_url"`
	IsOA       bool   `json:"is_oa"`
}

// pdfURL returns the best open PDF the work advertises and the landing page
// to fall back to.
func (w openAlexWork) pdfURL() (pdf, landing string) {
	if loc := w.BestOALocation; loc != nil {
		if loc.PDFURL != "" {
			return loc.PDFURL, loc.LandingURL
		}
		landing = loc.LandingURL
	}
	for _, loc := range w.Locations {
		if loc.IsOA && loc.PDFURL != "" {
			return loc.PDFURL, firstNonEmpty(landing, loc.LandingURL)
		}
	}
	if landing == "" && w.PrimaryLocation != nil {
		landing = w.PrimaryLocation.LandingURL
	}
	return "", landing
}

// OpenAccess looks a DOI up in OpenAlex and uses its open-access PDF.
type OpenAccess struct {
	Client *httputil.Client

	// Mailto joins the OpenAlex polite pool.
	Mailto string
}

func (o *OpenAccess) Name() string { return types.StrategyOpenAccess }

func (o *OpenAccess) Resolve(ctx context.Context, rec *types.CitationRecord) (types.Locator, error) {
	if rec.DOI == "" {
		return types.Locator{}, fetcherr.NoLink("openalex lookup", "", "citation has no DOI")
	}

	apiURL := openAlexAPIBase + "https://doi.org/" + EscapeDOI(rec.DOI)
	if o.Mailto != "" {
		apiURL += "?mailto=" + url.QueryEscape(o.Mailto)
	}

	var work openAlexWork
	status, err := getJSON(ctx, o.Client, "openalex lookup", apiURL, &work)
	if status == http.StatusNotFound {
		return types.Locator{}, fetcherr.NoLink("openalex lookup", apiURL, "work not indexed")
	}
	if err != nil {
		return types.Locator{}, err
	}

	pdf, landing := work.pdfURL()
	if landing != "" {
		rec.LandingURL = landing
	}
	if pdf == "" {
		return types.Locator{}, fetcherr.NoLink("openalex lookup", apiURL, "no open-access PDF")
	}
	return types.Locator{URL: pdf, Strategy: types.StrategyOpenAccess}, nil
}

// getJSON fetches apiURL and decodes a 200 response into v. It returns the
// HTTP status alongside any error so callers can special-case 404.
func getJSON(ctx context.Context, client *httputil.Client, op, apiURL string, v any) (int, error) {
	resp, err := client.Get(ctx, apiURL, "application/json")
	if err != nil {
		return 0, fetcherr.Network(op, apiURL, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fetcherr.Network(op, apiURL, resp.StatusCode, nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fetcherr.Network(op, apiURL, 0, err)
	}
	return resp.StatusCode, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
