package search

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxContextChars bounds the formatted block handed to the model so search
// context cannot crowd out the conversation.
const maxContextChars = 3000

// FormatResults renders hits as a numbered text block with cited sources,
// suitable for inclusion in a model prompt.
func FormatResults(results []Result) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		fmt.Fprintf(&b, "   [Source: %s]\n\n", r.URL)
	}
	out := strings.TrimRight(b.String(), "\n")
	if len(out) > maxContextChars {
		cut := maxContextChars - 3
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "..."
	}
	return out
}
