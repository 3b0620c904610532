// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/bibfetch/internal/fetcherr"
	"github.com/pdiddy/bibfetch/pkg/types"
)

const sampleBibliography = `(1) Smith, J. (2020). Deep learning. Nature. doi:10.1038/nature14539.
(2) Doe, A. Wrapped
    title continues here. https://example.org/paper.pdf
[3] Roe, B. Another. https://doi.org/10.1038/NATURE14539 and 10.1000/xyz123

Untitled entry without marker.
`

func TestParse(t *testing.T) {
	recs, err := Parse(sampleBibliography)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	for i, r := range recs {
		assert.Equal(t, i+1, r.Index)
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, types.StatusPending, r.Status)
	}

	assert.Equal(t, "10.1038/nature14539", recs[0].DOI)
	assert.Equal(t, "Smith, J. (2020). Deep learning. Nature", recs[0].SearchText)
	assert.Equal(t, "1_Smith_J_2020_Deep_learning_Nature", recs[0].Label)

	assert.Empty(t, recs[1].DOI)
	assert.Equal(t, "Doe, A. Wrapped title continues here. https://example.org/paper.pdf", recs[1].Raw)
	assert.Equal(t, []string{"https://example.org/paper.pdf"}, recs[1].URLs)

	// Same DOI as (1), different case: kept as a record, pointed back.
	assert.Empty(t, recs[2].DOI)
	assert.Equal(t, recs[0].ID, recs[2].DuplicateOf)
	assert.Equal(t, []string{"10.1000/xyz123"}, recs[2].IgnoredDOIs)
	assert.Empty(t, recs[2].URLs, "URLs are only collected without a DOI")

	assert.Equal(t, "4_Untitled_entry_without_marker", recs[3].Label)
	assert.Empty(t, recs[3].DOI)
	assert.Empty(t, recs[3].URLs)
}

func TestParseUniqueIDs(t *testing.T) {
	recs, err := Parse("a\n\nb\n\nc")
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, r := range recs {
		assert.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
}

func TestParseRepeatedLabels(t *testing.T) {
	// Two pasted lists that both start at "1.".
	text := `1. Smith J, Doe A. Deep learning for protein structure prediction. https://a.example/paperA.pdf
2. Roe B. Another paper. 2019.
1. Smith J, Doe A. Deep learning for protein structure prediction. https://b.example/paperB.pdf
1. smith j, doe a. deep learning for protein structure prediction, revisited.`
	recs, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, recs, 4)

	base := recs[0].Label
	assert.Equal(t, "1_Smith_J_Doe_A_Deep_learning_for_protein", base)
	assert.Equal(t, base+"_3", recs[2].Label)
	assert.Equal(t, "1_smith_j_doe_a_deep_learning_for_protein_4", recs[3].Label, "case-insensitive clash")

	seen := make(map[string]bool)
	for _, r := range recs {
		key := strings.ToLower(r.Label)
		assert.False(t, seen[key], "label %s used twice", r.Label)
		seen[key] = true
	}
}

func TestUniqueLabel(t *testing.T) {
	seen := map[string]bool{}
	assert.Equal(t, "1_A", uniqueLabel("1_A", 1, seen))
	assert.Equal(t, "1_A_2", uniqueLabel("1_A", 2, seen))
	// The suffixed form is itself taken.
	seen["1_b_3"] = true
	seen["1_b"] = true
	assert.Equal(t, "1_B_3_2", uniqueLabel("1_B", 3, seen))
}

func TestParseEmpty(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t\n"},
		{"punctuation only", "--- \n\n ... \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := Parse(tt.input)
			assert.Nil(t, recs)
			assert.True(t, errors.Is(err, fetcherr.ErrParse), "got %v", err)
		})
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantMarkers []string
		wantTexts   []string
	}{
		{
			name:        "marker styles",
			input:       "1. A\n2) B\n[3] C\n(4) D",
			wantMarkers: []string{"1", "2", "3", "4"},
			wantTexts:   []string{"A", "B", "C", "D"},
		},
		{
			name:        "blank lines",
			input:       "first entry\ncontinued\n\n\nsecond entry",
			wantMarkers: []string{"", ""},
			wantTexts:   []string{"first entry continued", "second entry"},
		},
		{
			name:        "year is not a marker",
			input:       "[1] Smith\n(2020). Title",
			wantMarkers: []string{"1"},
			wantTexts:   []string{"Smith (2020). Title"},
		},
		{
			name:        "crlf",
			input:       "(1) A\r\n(2) B\r\n",
			wantMarkers: []string{"1", "2"},
			wantTexts:   []string{"A", "B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := Split(tt.input)
			require.Len(t, segs, len(tt.wantTexts))
			for i, s := range segs {
				assert.Equal(t, tt.wantMarkers[i], s.Marker)
				assert.Equal(t, tt.wantTexts[i], s.Text)
			}
		})
	}
}

func TestExtractDOIs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"bare", "see 10.1145/1234567.1234568 for details", []string{"10.1145/1234567.1234568"}},
		{"trailing period", "doi:10.1038/nature14539.", []string{"10.1038/nature14539"}},
		{"resolver url", "https://doi.org/10.1016/j.cell.2020.01.001", []string{"10.1016/j.cell.2020.01.001"}},
		{"balanced parens kept", "(doi 10.1002/(SICI)1097-4636(199905)45).", []string{"10.1002/(SICI)1097-4636(199905)45"}},
		{"case-insensitive dedupe", "10.1000/ABC and 10.1000/abc", []string{"10.1000/ABC"}},
		{"multiple", "10.1000/one; 10.1000/two", []string{"10.1000/one", "10.1000/two"}},
		{"too short registrant", "10.12/abc", nil},
		{"none", "no identifiers here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDOIs(tt.in))
		})
	}
}

func TestExtractURLs(t *testing.T) {
	got := ExtractURLs("at https://a.example/x.pdf, or (http://b.example/y). Again https://a.example/x.pdf;")
	assert.Equal(t, []string{"https://a.example/x.pdf", "http://b.example/y"}, got)
}

func TestExtractArXivIDs(t *testing.T) {
	got := ExtractArXivIDs("Preprint arXiv:2301.07041v2 [cs.LG]; see also ARXIV: 1706.03762 and arXiv:2301.07041v2.")
	assert.Equal(t, []string{"2301.07041v2", "1706.03762"}, got)
	assert.Empty(t, ExtractArXivIDs("Published 2301.07041 without a label"))
}

func TestParseArXivFallback(t *testing.T) {
	recs, err := Parse("(1) Vaswani, A. et al. (2017). Attention is all you need. arXiv:1706.03762")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].DOI)
	assert.Equal(t, []string{"https://arxiv.org/pdf/1706.03762"}, recs[0].URLs)
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name   string
		marker string
		text   string
		want   string
	}{
		{"basic", "3", "Smith, J. (2020). Deep learning for things. Nature, 1, 2.", "3_Smith_J_2020_Deep_learning_for_things_Nature"},
		{"no marker", "", "Plain title", "Plain_title"},
		{"empty", "", "!!!", "citation"},
		{"unicode dropped", "7", "Müller über alles", "7_M_ller_ber_alles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Label(tt.marker, tt.text))
		})
	}
}

func TestLabelLength(t *testing.T) {
	long := "Supercalifragilisticexpialidocious Supercalifragilisticexpialidocious Supercalifragilisticexpialidocious"
	got := Label("12", long)
	assert.LessOrEqual(t, len(got), maxLabelLen)
	assert.Regexp(t, `^[A-Za-z0-9_-]+$`, got)
}
