package generation

import (
	"strings"

	"vellum/internal/domain/models"
)

// LineDiff computes an ordered line-level diff between two documents.
// Removals carry the line's 1-based position in the original; additions carry
// its position in the modified document. At a changed region, removals come
// before additions.
//
// Built on a longest-common-subsequence table over lines; documents here are
// small enough (a grant section, not a codebase) that the quadratic table is
// fine.
func LineDiff(original, modified string) []models.DiffEntry {
	a := splitLines(original)
	b := splitLines(modified)

	// lcs[i][j] = length of the LCS of a[i:] and b[j:]
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var entries []models.DiffEntry
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			entries = append(entries, models.DiffEntry{
				Type:       "remove",
				Value:      a[i],
				LineNumber: i + 1,
			})
			i++
		default:
			entries = append(entries, models.DiffEntry{
				Type:       "add",
				Value:      b[j],
				LineNumber: j + 1,
			})
			j++
		}
	}
	for ; i < len(a); i++ {
		entries = append(entries, models.DiffEntry{
			Type:       "remove",
			Value:      a[i],
			LineNumber: i + 1,
		})
	}
	for ; j < len(b); j++ {
		entries = append(entries, models.DiffEntry{
			Type:       "add",
			Value:      b[j],
			LineNumber: j + 1,
		})
	}

	return entries
}

// splitLines splits on newlines without treating a trailing newline as an
// extra empty line. An empty document has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
