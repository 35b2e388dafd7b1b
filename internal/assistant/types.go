package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
	"github.com/libdo96/Prism-AI-Assistant/internal/search"
)

// ErrEmptyInput is returned when a turn carries neither text nor an image.
var ErrEmptyInput = errors.New("assistant: empty input")

// ErrTurnInFlight is returned when a turn arrives while another is still
// being processed. Callers should retry after the current turn completes.
var ErrTurnInFlight = errors.New("assistant: turn already in flight")

// Input sources.
const (
	SourceText  = "text"
	SourceVoice = "voice"
)

// Assistant states reported through the OnState callback.
const (
	StateIdle      = "idle"
	StateListening = "listening"
	StateThinking  = "thinking"
	StateSearching = "searching"
	StateSpeaking  = "speaking"
)

// TurnInput is one user turn: text, an optional image attachment, and the
// channel it arrived on.
type TurnInput struct {
	Text   string
	Image  []byte
	Source string
}

// Reply is the assistant's answer to a turn.
type Reply struct {
	ID       string
	Text     string
	Searched bool
	Query    string
	SpeechID string
	At       time.Time
}

// Model produces the assistant's answer from the conversation so far.
type Model interface {
	Generate(ctx context.Context, history []conversation.Entry, text string, image []byte, searchContext string) (string, error)
}

// Searcher runs a web search for the given query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// Speaker plays synthesized speech and can be cut off mid-utterance.
type Speaker interface {
	Start(text, voice string) (string, error)
	InterruptAll()
	Speaking() bool
}
