package decision

import (
	"strconv"
	"strings"
	"time"
)

// conversational filler stripped from search queries
var fillerPhrases = []string{
	"please", "could you", "can you", "i want to know", "tell me",
	"find", "search for", "search", "look up", "what is", "what's",
}

var temporalCues = []string{"latest", "current", "recent", "now", "today", "right now", "this week", "news"}

// BuildQuery rewrites a user turn into a compact search-engine-style query:
// filler is stripped, very short follow-ups are combined with the previous
// substantive user query, and temporal cues get the current year appended.
func BuildQuery(turn, previousQuery string) string {
	query := turn
	if len(strings.Fields(turn)) <= 3 && previousQuery != "" {
		query = previousQuery + " " + turn
	}

	words := strings.Fields(query)
	var kept []string
	for i := 0; i < len(words); {
		if n := matchFiller(words, i); n > 0 {
			i += n
			continue
		}
		kept = append(kept, words[i])
		i++
	}
	query = strings.Join(kept, " ")
	if query == "" {
		query = strings.TrimSpace(turn)
	}

	if HasTemporalCue(turn) {
		year := strconv.Itoa(time.Now().Year())
		if !strings.Contains(query, year) {
			query += " " + year
		}
	}
	return query
}

// matchFiller reports how many words of a filler phrase start at position i,
// or zero when none matches. Punctuation on word edges is ignored.
func matchFiller(words []string, i int) int {
	for _, phrase := range fillerPhrases {
		parts := strings.Fields(phrase)
		if i+len(parts) > len(words) {
			continue
		}
		ok := true
		for j, p := range parts {
			if strings.Trim(strings.ToLower(words[i+j]), ".,!?") != p {
				ok = false
				break
			}
		}
		if ok {
			return len(parts)
		}
	}
	return 0
}

// HasTemporalCue reports whether the turn asks about something time-sensitive.
func HasTemporalCue(turn string) bool {
	lower := strings.ToLower(turn)
	for _, cue := range temporalCues {
		if containsWord(lower, cue) {
			return true
		}
	}
	return false
}

func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(haystack[i-1])
		after := i+len(needle) == len(haystack) || !isWordByte(haystack[i+len(needle)])
		if before && after {
			return true
		}
		idx = i + len(needle)
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
