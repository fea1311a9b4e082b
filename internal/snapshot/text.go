package snapshot

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText prepares a text capture for comparison: NFC normalization,
// LF line endings, no trailing whitespace on any line and no trailing
// blank lines.
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// compareText returns "" when want and got are equal after normalization,
// otherwise a unified diff.
func compareText(name string, want, got []byte) string {
	w := NormalizeText(string(want))
	g := NormalizeText(string(got))
	if w == g {
		return ""
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(w + "\n"),
		B:        difflib.SplitLines(g + "\n"),
		FromFile: "baseline/" + name,
		ToFile:   "actual/" + name,
		Context:  2,
	})
	if err != nil || diff == "" {
		return "text differs"
	}
	return diff
}
