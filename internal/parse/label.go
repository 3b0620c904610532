// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package parse

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	maxLabelLen   = 80
	maxLabelWords = 8
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)

// Label returns a filesystem-safe label: the numbering marker followed by the
// first words of the citation text, e.g. "3_Smith_J_2020_Deep_learning".
func Label(marker, text string) string {
	words := strings.Fields(text)
	if len(words) > maxLabelWords {
		words = words[:maxLabelWords]
	}
	base := strings.TrimSpace(marker + " " + strings.Join(words, " "))
	label := strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "_-")
	if len(label) > maxLabelLen {
		label = strings.TrimRight(label[:maxLabelLen], "_-")
	}
	if label == "" {
		return "citation"
	}
	return label
}

// uniqueLabel returns label, or label_<index> (then label_<index>_2, ...) when
// seen already holds it. Comparison ignores case so labels stay distinct on
// case-insensitive filesystems. The chosen label is added to seen.
func uniqueLabel(label string, index int, seen map[string]bool) string {
	out := label
	if seen[strings.ToLower(out)] {
		out = label + "_" + itoa(index)
		for n := 2; seen[strings.ToLower(out)]; n++ {
			out = label + "_" + itoa(index) + "_" + itoa(n)
		}
	}
	seen[strings.ToLower(out)] = true
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
