package utils

import (
	"strings"
	"unicode"
)

// CountWords counts prose words in serialized editor content. Light markup
// (emphasis markers, headings, list bullets) is stripped first so formatting
// churn doesn't move the count funders care about.
func CountWords(content string) int {
	text := stripMarkup(content)

	count := 0
	for _, token := range strings.FieldsFunc(text, unicode.IsSpace) {
		if strings.TrimSpace(token) != "" {
			count++
		}
	}
	return count
}

func stripMarkup(content string) string {
	replacer := strings.NewReplacer(
		"`", "",
		"**", "",
		"*", "",
		"__", "",
		"_", "",
		"~~", "",
		"#", "",
		">", "",
	)
	text := replacer.Replace(content)

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		// Numbered list markers ("1. ", "12. ")
		if i := strings.Index(line, ". "); i > 0 && i <= 3 && allDigits(line[:i]) {
			line = line[i+2:]
		}
		if line == "---" || line == "***" {
			continue
		}
		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, " ")
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
