package decision

import (
	"context"
	"strings"

	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
)

// Heuristic is the deterministic strategy: it searches on explicit request,
// on a temporal cue, or on factual-lookup phrasing, and otherwise stays
// quiet. It never produces an inline answer.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

var explicitSearchPhrases = []string{
	"search for", "search the web", "look up", "google", "find information",
}

var lookupCues = []string{
	"weather", "stock", "price of", "score", "who won", "exchange rate",
	"release date", "schedule", "headlines",
}

func (h *Heuristic) Decide(_ context.Context, turn string, history []conversation.Entry) (Decision, error) {
	lower := strings.ToLower(turn)

	explicit := false
	for _, phrase := range explicitSearchPhrases {
		if strings.Contains(lower, phrase) {
			explicit = true
			break
		}
	}
	lookup := false
	for _, cue := range lookupCues {
		if strings.Contains(lower, cue) {
			lookup = true
			break
		}
	}

	// Tie-break: when uncertain, do not search. An explicit request, a
	// temporal cue, or lookup phrasing each clears the bar on its own.
	if !explicit && !lookup && !HasTemporalCue(turn) {
		return Decision{}, nil
	}

	return Decision{
		ShouldSearch: true,
		Query:        BuildQuery(turn, previousUserQuery(history)),
	}, nil
}

// previousUserQuery scans history for the last substantive user message.
func previousUserQuery(history []conversation.Entry) string {
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.Role != conversation.RoleUser {
			continue
		}
		if len(strings.Fields(e.Content)) >= 3 {
			return e.Content
		}
	}
	return ""
}
