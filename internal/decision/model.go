package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
)

// PromptRunner is the narrow slice of the language model the engine needs:
// one plain prompt in, one text completion out.
type PromptRunner interface {
	GeneratePrompt(ctx context.Context, prompt string) (string, error)
}

// ModelEngine makes the search decision with a single model call. The same
// reasoning process that will answer the turn decides whether it needs the
// web, so no keyword list is involved. When the model answers inline in the
// no-search case, the answer rides along on the Decision.
type ModelEngine struct {
	runner PromptRunner
}

func NewModelEngine(runner PromptRunner) *ModelEngine {
	return &ModelEngine{runner: runner}
}

const decisionPromptFormat = `Based on the conversation history and the current query, decide whether a web search is needed before answering.

Conversation history:
%s

Current query: %s

A web search is needed when:
- The query asks for current events, news, or time-sensitive information
- The query asks for factual information that might not be in your training data
- The query explicitly asks to search for something

Reply on the first line with exactly one of:
WEB_SEARCH: <compact search-engine-style query, filler words removed>
NO_SEARCH
If you replied NO_SEARCH and can answer the query directly, write the answer on the following lines. When uncertain, prefer NO_SEARCH.`

func (m *ModelEngine) Decide(ctx context.Context, turn string, history []conversation.Entry) (Decision, error) {
	prompt := fmt.Sprintf(decisionPromptFormat, conversation.Transcript(history), turn)
	out, err := m.runner.GeneratePrompt(ctx, prompt)
	if err != nil {
		return Decision{}, fmt.Errorf("decision: %w", err)
	}
	return parseVerdict(out, turn, history), nil
}

// parseVerdict tolerates sloppy model output: anything that does not clearly
// request a search resolves to no-search, per the tie-break policy.
func parseVerdict(out, turn string, history []conversation.Entry) Decision {
	trimmed := strings.TrimSpace(out)
	first, rest, _ := strings.Cut(trimmed, "\n")
	upper := strings.ToUpper(first)

	if idx := strings.Index(upper, "WEB_SEARCH"); idx >= 0 {
		query := strings.TrimSpace(first[idx+len("WEB_SEARCH"):])
		query = strings.TrimSpace(strings.TrimPrefix(query, ":"))
		if query == "" {
			query = BuildQuery(turn, previousUserQuery(history))
		}
		return Decision{ShouldSearch: true, Query: query}
	}

	answer := strings.TrimSpace(rest)
	if !strings.Contains(upper, "NO_SEARCH") {
		// verdict line missing entirely; the whole output may be the answer
		answer = trimmed
		log.Debug().Str("head", first).Msg("decision verdict missing, treating as no-search")
	}
	return Decision{Answer: answer}
}
