package conversation

import (
	"strings"
	"sync"
	"time"
)

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Entry is one immutable message in the conversation. Attachment, when set,
// names the image that accompanied the message (entries never carry the bytes).
type Entry struct {
	Role       Role
	Content    string
	Attachment string
	At         time.Time
}

// History is the append-only conversation record. Entries are appended in
// user/assistant pairs and never edited; when the turn cap is exceeded the
// oldest pairs are dropped whole.
type History struct {
	mu       sync.Mutex
	entries  []Entry
	maxTurns int
}

// DefaultMaxTurns bounds how many user/assistant pairs are retained.
const DefaultMaxTurns = 10

func New(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns}
}

// Append records one completed exchange. This is the only mutation.
func (h *History) Append(user, assistant Entry) {
	user.Role = RoleUser
	assistant.Role = RoleAssistant
	now := time.Now()
	if user.At.IsZero() {
		user.At = now
	}
	if assistant.At.IsZero() {
		assistant.At = now
	}
	h.mu.Lock()
	h.entries = append(h.entries, user, assistant)
	if over := len(h.entries) - h.maxTurns*2; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
	h.mu.Unlock()
}

// Recent returns a copy of the last n entries in insertion order.
// n <= 0 returns everything retained.
func (h *History) Recent(n int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Entry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Len reports the number of retained entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// LastUserQuery returns the most recent substantive user message before the
// current one, skipping bare search commands and very short fragments. Used to
// give follow-up questions enough context for a standalone search query.
func (h *History) LastUserQuery() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		e := h.entries[i]
		if e.Role != RoleUser {
			continue
		}
		if isSearchCommand(e.Content) || len(strings.Fields(e.Content)) < 3 {
			continue
		}
		return e.Content
	}
	return ""
}

func isSearchCommand(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range []string{"search for", "perform a web search", "web search", "look up", "find information"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Transcript renders the history as labeled lines for prompts and archival.
func Transcript(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		if e.Role == RoleAssistant {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
