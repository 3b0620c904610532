// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true, "by": true,
	"for": true, "from": true, "in": true, "is": true, "of": true, "on": true,
	"or": true, "the": true, "to": true, "with": true, "et": true, "al": true,
}

// tokenSet lower-cases s and splits it into words, dropping stopwords and
// single characters.
func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) < 2 || stopwords[f] {
			continue
		}
		set[f] = true
	}
	return set
}

// coverage is the share of want's tokens present in have.
func coverage(have, want map[string]bool) float64 {
	if len(want) == 0 {
		return 0
	}
	n := 0
	for t := range want {
		if have[t] {
			n++
		}
	}
	return float64(n) / float64(len(want))
}

// segmentBreak separates the parts of a citation: sentence ends and
// brackets, so authors, title and venue usually land in different segments.
var segmentBreak = regexp.MustCompile(`[.?!;]\s+|\s*[()\[\]]\s*`)

// reference is a citation prepared for scoring.
type reference struct {
	tokens   map[string]bool
	segments []map[string]bool
}

func newReference(citation string) reference {
	r := reference{tokens: tokenSet(citation)}
	for _, part := range segmentBreak.Split(citation, -1) {
		if set := tokenSet(part); len(set) > 0 {
			r.segments = append(r.segments, set)
		}
	}
	return r
}

// span is the largest share of a single segment's words that title accounts
// for. Words explained by the candidate's authors or year do not count
// against it. A short title that matches part of the citation's title
// segment scores below one that matches all of it.
func (r reference) span(title, meta map[string]bool) float64 {
	best := 0.0
	for _, seg := range r.segments {
		n, size := 0, 0
		for t := range seg {
			switch {
			case title[t]:
				n++
				size++
			case !meta[t]:
				size++
			}
		}
		if n > 0 {
			best = max(best, float64(n)/float64(size))
		}
	}
	return best
}

// candidateScore rates c against the citation in [0,1]. The title carries
// most of the weight and must match in both directions: its words must
// appear in the citation, and it must account for the citation's title
// segment. Author surnames and year break near ties.
func candidateScore(ref reference, c Candidate) float64 {
	title := tokenSet(c.Title)
	if len(title) == 0 {
		return 0
	}

	meta := make(map[string]bool)
	for _, a := range c.Authors {
		if fields := strings.Fields(a); len(fields) > 0 {
			for t := range tokenSet(fields[len(fields)-1]) {
				meta[t] = true
			}
		}
	}
	if c.Year > 0 {
		meta[strconv.Itoa(c.Year)] = true
	}

	titleScore := coverage(ref.tokens, title) * ref.span(title, meta)
	if len(meta) == 0 {
		return titleScore
	}
	return 0.75*titleScore + 0.25*coverage(ref.tokens, meta)
}
