package decision

import (
	"context"

	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
)

// Decision is the per-turn verdict on whether to consult the web. Query is set
// only when ShouldSearch is true. Answer may carry a ready reply when the
// engine could answer the turn directly without searching; callers may use it
// and skip a second model call.
type Decision struct {
	ShouldSearch bool
	Query        string
	Answer       string
}

// Engine decides, per user turn, whether a web lookup is warranted.
// Implementations must not require a fixed keyword list; the decision is made
// from the same context a human would use. When uncertain, prefer not
// searching.
type Engine interface {
	Decide(ctx context.Context, turn string, history []conversation.Entry) (Decision, error)
}
