// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package parse splits raw bibliography text into citation records and
// extracts identifier candidates (DOIs, fallback URLs) from each entry.
package parse

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// markerPattern matches a leading numbering marker: "(1)", "[2]", "3.", "4)".
var markerPattern = regexp.MustCompile(`^\s*(?:\((\d{1,3})\)|\[(\d{1,3})\]|(\d{1,3})[.)])\s+`)

// doiPattern matches DOIs: 10.XXXX/suffix. The suffix stops at whitespace and
// characters that never occur in practice.
var doiPattern = regexp.MustCompile(`(?i)10\.\d{4,9}/[^\s<>"{}|\\^` + "`" + `\[\]]+`)

// urlPattern matches http(s) URLs.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// arxivPattern matches labelled arXiv IDs: "arXiv:2301.07041", "arXiv: 2301.07041v2".
var arxivPattern = regexp.MustCompile(`(?i)\barXiv:\s*(\d{4}\.\d{4,5}(?:v\d+)?)`)

// arxivPDFBase is where arXiv serves PDFs by ID.
const arxivPDFBase = "https://arxiv.org/pdf/"

// doiPrefixPattern matches the "doi:" label preceding a bare DOI.
var doiPrefixPattern = regexp.MustCompile(`(?i)\bdoi:\s*`)

// Parse splits text into citation records in input order. Identical DOIs are
// kept only on the first citation carrying them; later ones point back via
// DuplicateOf. Labels are unique within the result: a repeated label gets
// the citation index appended. It fails only when the input is empty or has no segment with
// any alphanumeric content.
func Parse(text string) ([]*types.CitationRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fetcherr.Parse("bibliography is empty")
	}

	segments := Split(text)
	seenDOI := make(map[string]string) // lower-cased DOI → citation ID
	seenLabel := make(map[string]bool) // lower-cased label
	var records []*types.CitationRecord

	for _, seg := range segments {
		if !hasAlnum(seg.Text) {
			continue
		}
		rec := &types.CitationRecord{
			ID:     uuid.NewString(),
			Index:  len(records) + 1,
			Raw:    seg.Text,
			Status: types.StatusPending,
		}

		dois := ExtractDOIs(seg.Text)
		if len(dois) > 0 {
			key := strings.ToLower(dois[0])
			if first, ok := seenDOI[key]; ok {
				rec.DuplicateOf = first
			} else {
				seenDOI[key] = rec.ID
				rec.DOI = dois[0]
			}
			rec.IgnoredDOIs = dois[1:]
		} else {
			rec.URLs = ExtractURLs(seg.Text)
			for _, id := range ExtractArXivIDs(seg.Text) {
				rec.URLs = appendUnique(rec.URLs, arxivPDFBase+id)
			}
		}

		marker := seg.Marker
		if marker == "" {
			marker = itoa(rec.Index)
		}
		rec.SearchText = searchText(seg.Text)
		rec.Label = uniqueLabel(Label(marker, rec.SearchText), rec.Index, seenLabel)
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fetcherr.Parse("no citation text found")
	}
	return records, nil
}

// Segment is one citation's text with the numbering marker removed.
type Segment struct {
	Marker string
	Text   string
}

// Split breaks text into segments on blank lines and on lines that start
// with a numbering marker. Wrapped lines inside a segment are joined with a
// single space.
func Split(text string) []Segment {
	var segments []Segment
	var cur []string
	var curMarker string

	flush := func() {
		if len(cur) > 0 {
			segments = append(segments, Segment{Marker: curMarker, Text: strings.Join(cur, " ")})
		}
		cur = nil
		curMarker = ""
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if m := markerPattern.FindStringSubmatch(trimmed); m != nil {
			flush()
			curMarker = firstNonEmpty(m[1], m[2], m[3])
			trimmed = strings.TrimSpace(trimmed[len(m[0]):])
			if trimmed == "" {
				continue
			}
		}
		cur = append(cur, trimmed)
	}
	flush()
	return segments
}

// ExtractDOIs returns the DOIs in text in order of appearance, trimmed of
// trailing punctuation and deduplicated case-insensitively.
func ExtractDOIs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range doiPattern.FindAllString(text, -1) {
		doi := cleanDOI(m)
		if !isValidDOI(doi) {
			continue
		}
		key := strings.ToLower(doi)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, doi)
	}
	return out
}

// ExtractURLs returns the http(s) URLs in text, trimmed of trailing
// punctuation and deduplicated.
func ExtractURLs(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range urlPattern.FindAllString(text, -1) {
		u := trimUnbalanced(strings.TrimRight(m, ".,;:"))
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}

// ExtractArXivIDs returns the labelled arXiv IDs in text.
func ExtractArXivIDs(text string) []string {
	var out []string
	for _, m := range arxivPattern.FindAllStringSubmatch(text, -1) {
		out = appendUnique(out, m[1])
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// cleanDOI trims sentence punctuation and unbalanced closing parentheses;
// DOIs like 10.1002/(SICI)1097-4636 keep their balanced parens.
func cleanDOI(doi string) string {
	for {
		before := doi
		doi = strings.TrimRight(doi, ".,;:'")
		doi = trimUnbalanced(doi)
		if doi == before {
			return doi
		}
	}
}

func trimUnbalanced(s string) string {
	for strings.HasSuffix(s, ")") && strings.Count(s, ")") > strings.Count(s, "(") {
		s = s[:len(s)-1]
	}
	return s
}

// isValidDOI performs basic validation on a DOI.
func isValidDOI(doi string) bool {
	if len(doi) < 8 || !strings.HasPrefix(doi, "10.") {
		return false
	}
	slash := strings.Index(doi, "/")
	return slash > 0 && slash < len(doi)-1
}

// searchText strips URLs, DOIs and doi: labels, leaving the bibliographic
// text a metadata search can use.
func searchText(text string) string {
	s := urlPattern.ReplaceAllString(text, " ")
	s = doiPattern.ReplaceAllString(s, " ")
	s = doiPrefixPattern.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " .,;")
}

func hasAlnum(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
