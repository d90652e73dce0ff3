package utils

import "testing"

func TestCountWords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t  ", 0},
		{"plain sentence", "The project serves two hundred families.", 6},
		{"collapsed whitespace", "one   two\n\nthree\tfour", 4},
		{"emphasis stripped", "**bold** and _italic_ text", 4},
		{"heading marker stripped", "## Budget Narrative", 2},
		{"bulleted list", "- first item\n- second item", 4},
		{"numbered list", "1. first item\n2. second item", 4},
		{"horizontal rule ignored", "above\n---\nbelow", 2},
		{"inline code stripped", "run `the program` now", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CountWords(tt.content); got != tt.want {
				t.Errorf("CountWords(%q) = %d, want %d", tt.content, got, tt.want)
			}
		})
	}
}
