// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/internal/httputil"
	"github.com/pdiddy/bibfetch/pkg/types"
)

const sampleOpenAlexOA = `{
  "id": "https://openalex.org/W1234567890",
  "doi": "https://doi.org/10.1145/1234567.1234568",
  "best_oa_location": {
    "pdf_url": "https://example.com/oa-paper.pdf",
    "landing_page_url": "https://example.com/paper-landing"
  }
}`

const sampleOpenAlexNoOA = `{
  "id": "https://openalex.org/W9999999999",
  "doi": "https://doi.org/10.1145/9999999",
  "best_oa_location": null,
  "primary_location": {"landing_page_url": "https://publisher.example/paywalled"}
}`

const sampleOpenAlexNoPDF = `{
  "id": "https://openalex.org/W1111111111",
  "doi": "https://doi.org/10.1145/1111111",
  "best_oa_location": {
    "pdf_url": "",
    "landing_page_url": "https://example.com/landing-only"
  }
}`

const sampleOpenAlexRepository = `{
  "id": "https://openalex.org/W2222222222",
  "best_oa_location": {"pdf_url": null, "landing_page_url": "https://example.com/landing"},
  "locations": [
    {"is_oa": false, "pdf_url": "https://publisher.example/closed.pdf"},
    {"is_oa": true, "pdf_url": "https://repository.example/accepted.pdf", "landing_page_url": "https://repository.example/item"}
  ]
}`

func TestOpenAccessResolve(t *testing.T) {
	tests := []struct {
		name        string
		doi         string
		response    string
		statusCode  int
		wantURL     string
		wantKind    fetcherr.Kind
		wantLanding string
	}{
		{
			name:        "OA PDF available",
			doi:         "10.1145/1234567.1234568",
			response:    sampleOpenAlexOA,
			statusCode:  http.StatusOK,
			wantURL:     "https://example.com/oa-paper.pdf",
			wantLanding: "https://example.com/paper-landing",
		},
		{
			name:        "no OA location",
			doi:         "10.1145/9999999",
			response:    sampleOpenAlexNoOA,
			statusCode:  http.StatusOK,
			wantKind:    fetcherr.KindNoLink,
			wantLanding: "https://publisher.example/paywalled",
		},
		{
			name:        "OA location but no PDF URL",
			doi:         "10.1145/1111111",
			response:    sampleOpenAlexNoPDF,
			statusCode:  http.StatusOK,
			wantKind:    fetcherr.KindNoLink,
			wantLanding: "https://example.com/landing-only",
		},
		{
			name:        "repository copy",
			doi:         "10.1145/2222222",
			response:    sampleOpenAlexRepository,
			statusCode:  http.StatusOK,
			wantURL:     "https://repository.example/accepted.pdf",
			wantLanding: "https://example.com/landing",
		},
		{
			name:       "API returns 404",
			doi:        "10.1145/nonexistent",
			response:   `{"error": "not found"}`,
			statusCode: http.StatusNotFound,
			wantKind:   fetcherr.KindNoLink,
		},
		{
			name:       "API returns 500",
			doi:        "10.1145/broken",
			response:   `oops`,
			statusCode: http.StatusInternalServerError,
			wantKind:   fetcherr.KindNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.RawQuery
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.response)
			}))
			defer ts.Close()

			origBase := openAlexAPIBase
			openAlexAPIBase = ts.URL + "/"
			defer func() { openAlexAPIBase = origBase }()

			o := &OpenAccess{Client: testClient(ts), Mailto: "librarian@example.org"}
			rec := &types.CitationRecord{DOI: tt.doi}

			loc, err := o.Resolve(context.Background(), rec)
			if gotQuery != "mailto=librarian%40example.org" {
				t.Errorf("query = %q, want mailto", gotQuery)
			}
			if tt.wantKind != fetcherr.KindUnknown {
				if got := fetcherr.KindOf(err); got != tt.wantKind {
					t.Fatalf("error kind = %v, want %v (err %v)", got, tt.wantKind, err)
				}
			} else {
				if err != nil {
					t.Fatalf("Resolve: %v", err)
				}
				if loc.URL != tt.wantURL {
					t.Errorf("Resolve() = %q, want %q", loc.URL, tt.wantURL)
				}
			}
			if rec.LandingURL != tt.wantLanding {
				t.Errorf("LandingURL = %q, want %q", rec.LandingURL, tt.wantLanding)
			}
		})
	}
}

func TestOpenAccessNoDOI(t *testing.T) {
	_, err := (&OpenAccess{}).Resolve(context.Background(), &types.CitationRecord{})
	if fetcherr.KindOf(err) != fetcherr.KindNoLink {
		t.Fatalf("want NoLinkFound, got %v", err)
	}
}

func TestOpenAccessNetworkError(t *testing.T) {
	origBase := openAlexAPIBase
	openAlexAPIBase = "http://127.0.0.1:1/"
	defer func() { openAlexAPIBase = origBase }()

	o := &OpenAccess{Client: &httputil.Client{HTTP: http.DefaultClient, MaxRetries: -1}}
	_, err := o.Resolve(context.Background(), &types.CitationRecord{DOI: "10.1145/1234567"})
	if fetcherr.KindOf(err) != fetcherr.KindNetwork {
		t.Fatalf("want NetworkError for unreachable server, got %v", err)
	}
}
