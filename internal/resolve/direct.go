// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pdiddy/bibfetch/internal/download"
	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/internal/httputil"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// doiBase is the DOI resolver. Declared as a var so tests can substitute an
// httptest server.
var doiBase = "https://doi.org/"

// maxLandingBytes bounds how much of a landing page is parsed.
const maxLandingBytes = 4 << 20

const directAccept = "application/pdf, text/html;q=0.9, */*;q=0.5"

// loginMarkers are host or path fragments of login, SSO and paywall pages.
var loginMarkers = []string{
	"/login", "/signin", "/sign-in", "/sso", "shibboleth", "/idp/",
	"/wayf", "openathens", "/cas/login", "/authenticate", "/auth/realms",
}

// Direct follows the DOI redirect, or each candidate URL when the citation
// has no DOI, and accepts either a PDF response or a PDF link advertised by
// the landing page. A PDF response is kept rather than fetched again.
type Direct struct {
	Client *httputil.Client

	// ScratchDir is where PDF responses are saved until they are placed.
	ScratchDir string
}

func (d *Direct) Name() string { return types.StrategyDirect }

func (d *Direct) Resolve(ctx context.Context, rec *types.CitationRecord) (types.Locator, error) {
	var targets []string
	if rec.DOI != "" {
		targets = []string{doiBase + EscapeDOI(rec.DOI)}
	} else {
		targets = rec.URLs
	}
	if len(targets) == 0 {
		return types.Locator{}, fetcherr.NoLink("direct", "", "citation has no DOI or URL")
	}

	var firstErr, authErr error
	for _, target := range targets {
		if ctx.Err() != nil {
			return types.Locator{}, ctx.Err()
		}
		loc, err := d.follow(ctx, rec, target)
		if err == nil {
			return loc, nil
		}
		if fetcherr.KindOf(err) == fetcherr.KindAuth && authErr == nil {
			authErr = err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if authErr != nil {
		return types.Locator{}, authErr
	}
	return types.Locator{}, firstErr
}

// follow fetches target and returns a locator for the PDF found there: the
// saved response itself, or a link advertised by the landing page.
func (d *Direct) follow(ctx context.Context, rec *types.CitationRecord, target string) (types.Locator, error) {
	resp, err := d.Client.Get(ctx, target, directAccept)
	if err != nil {
		return types.Locator{}, fetcherr.Network("direct", target, 0, err)
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || IsLoginURL(final) {
		rec.LandingURL = final.String()
		return types.Locator{}, fetcherr.Auth("direct", final.String())
	}
	if resp.StatusCode != http.StatusOK {
		return types.Locator{}, fetcherr.Network("direct", target, resp.StatusCode, nil)
	}

	br := bufio.NewReader(resp.Body)
	head, _ := br.Peek(1024)
	ctype := mediaType(resp.Header.Get("Content-Type"))
	if ctype == "application/pdf" || download.HasPDFMagic(head) {
		path, err := d.save(br)
		if err != nil {
			return types.Locator{}, fetcherr.Network("direct", final.String(), 0, err)
		}
		return types.Locator{URL: final.String(), File: path, Strategy: types.StrategyDirect, Scratch: true}, nil
	}

	rec.LandingURL = final.String()
	if ctype != "" && ctype != "text/html" && ctype != "application/xhtml+xml" {
		return types.Locator{}, fetcherr.NoLink("direct", final.String(), "response is "+ctype)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(br, maxLandingBytes))
	if err != nil {
		return types.Locator{}, fetcherr.NoLink("direct", final.String(), "unparseable landing page")
	}
	link := FindPDFLink(doc, final)
	if link == "" {
		return types.Locator{}, fetcherr.NoLink("direct", final.String(), "landing page has no PDF link")
	}
	return types.Locator{URL: link, Strategy: types.StrategyDirect}, nil
}

// save writes body into a fresh per-attempt directory under ScratchDir.
func (d *Direct) save(body io.Reader) (string, error) {
	dir, err := os.MkdirTemp(d.ScratchDir, "bibfetch-direct-*")
	if err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	path := filepath.Join(dir, "response.pdf")
	f, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	_, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.RemoveAll(dir)
		return "", errors.Join(copyErr, closeErr)
	}
	return path, nil
}

// EscapeDOI escapes each "/"-separated part of doi for use in a URL path,
// so characters such as "#" and "?" stay part of the identifier.
func EscapeDOI(doi string) string {
	parts := strings.Split(doi, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// FindPDFLink returns the best PDF link a landing page advertises, resolved
// against base: the citation_pdf_url meta tag, a PDF alternate link, an
// anchor to a .pdf file, or an anchor whose text or title mentions PDF.
func FindPDFLink(doc *goquery.Document, base *url.URL) string {
	if v, ok := doc.Find(`meta[name="citation_pdf_url"]`).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
		return absolute(base, v)
	}
	if v, ok := doc.Find(`link[type="application/pdf"]`).First().Attr("href"); ok && strings.TrimSpace(v) != "" {
		return absolute(base, v)
	}

	var byExt, byText string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return true
		}
		if byExt == "" && hasPDFExt(href) {
			byExt = href
			return false
		}
		if byText == "" {
			title, _ := s.Attr("title")
			label := strings.ToLower(s.Text() + " " + title)
			if strings.Contains(label, "pdf") {
				byText = href
			}
		}
		return true
	})
	switch {
	case byExt != "":
		return absolute(base, byExt)
	case byText != "":
		return absolute(base, byText)
	default:
		return ""
	}
}

// IsLoginURL reports whether u looks like a login, SSO or paywall page.
func IsLoginURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	s := strings.ToLower(u.Host + u.Path)
	for _, m := range loginMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func parseURL(s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		return nil
	}
	return u
}

func hasPDFExt(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

func absolute(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return mt
}
