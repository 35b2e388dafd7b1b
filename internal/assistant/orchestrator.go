package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
	"github.com/libdo96/Prism-AI-Assistant/internal/decision"
	"github.com/libdo96/Prism-AI-Assistant/internal/search"
	"github.com/libdo96/Prism-AI-Assistant/internal/speech"
	"github.com/libdo96/Prism-AI-Assistant/internal/voice"
)

// apologyText is spoken when the model call fails outright. The failed turn is
// not recorded in history so a retry starts clean.
const apologyText = "I'm sorry, I ran into a problem answering that. Please try again."

// Orchestrator runs one user turn end to end: interrupt any ongoing speech,
// decide whether to search, generate the reply, speak it, and record the
// exchange. At most one turn is in flight at a time; a second concurrent turn
// is rejected with ErrTurnInFlight.
type Orchestrator struct {
	history  *conversation.History
	engine   decision.Engine
	model    Model
	searcher Searcher
	speaker  Speaker
	log      zerolog.Logger

	// OnState receives assistant state transitions for UI consumption.
	OnState func(state string)
	// OnReply receives each completed reply.
	OnReply func(Reply)

	mu       sync.Mutex
	inFlight bool
	voice    string
}

// New builds an orchestrator. The voice is the synthesizer voice used for
// spoken replies and can be changed at runtime with SetVoice.
func New(history *conversation.History, engine decision.Engine, model Model, searcher Searcher, speaker Speaker, voiceID string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		history:  history,
		engine:   engine,
		model:    model,
		searcher: searcher,
		speaker:  speaker,
		voice:    voiceID,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// SetVoice changes the voice used for subsequent spoken replies.
func (o *Orchestrator) SetVoice(voiceID string) {
	o.mu.Lock()
	o.voice = voiceID
	o.mu.Unlock()
}

// Voice returns the currently selected voice.
func (o *Orchestrator) Voice() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.voice
}

// Busy reports whether a turn is currently in flight.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Interrupt stops any ongoing speech without starting a new turn.
func (o *Orchestrator) Interrupt() {
	o.speaker.InterruptAll()
}

// History exposes the conversation record.
func (o *Orchestrator) History() *conversation.History { return o.history }

// HandleTurn processes one user turn. Once a turn is accepted it cuts off any
// speech in progress before anything else; rejected turns (empty input, one
// already in flight) leave playback alone.
func (o *Orchestrator) HandleTurn(ctx context.Context, in TurnInput) (Reply, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Image) == 0 {
		return Reply{}, ErrEmptyInput
	}

	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return Reply{}, ErrTurnInFlight
	}
	o.inFlight = true
	voiceID := o.voice
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
		o.setState(StateIdle)
	}()

	o.speaker.InterruptAll()
	o.setState(StateThinking)

	o.log.Info().Str("source", in.Source).Bool("image", len(in.Image) > 0).
		Str("text", text).Msg("turn started")

	history := o.history.Recent(0)

	// Image turns are answered directly; the search path is text-only.
	var d decision.Decision
	if len(in.Image) == 0 {
		var err error
		d, err = o.engine.Decide(ctx, text, history)
		if err != nil {
			o.log.Warn().Err(err).Msg("search decision failed, answering without search")
			d = decision.Decision{}
		}
	}

	var searchContext string
	if d.ShouldSearch && d.Query != "" {
		o.setState(StateSearching)
		results, err := o.searcher.Search(ctx, d.Query)
		if err != nil {
			o.log.Warn().Err(err).Str("query", d.Query).Msg("search failed, answering without results")
		} else {
			searchContext = search.FormatResults(results)
			o.log.Info().Str("query", d.Query).Int("results", len(results)).Msg("search completed")
		}
	}

	var replyText string
	if !d.ShouldSearch && d.Answer != "" && len(in.Image) == 0 {
		// The decision call already produced a complete answer.
		replyText = d.Answer
	} else {
		var err error
		replyText, err = o.model.Generate(ctx, history, text, in.Image, searchContext)
		if err != nil {
			o.log.Error().Err(err).Msg("model call failed")
			reply := Reply{ID: uuid.NewString(), Text: apologyText, At: time.Now()}
			reply.SpeechID = o.speak(apologyText, voiceID)
			o.emit(reply)
			return reply, nil
		}
	}

	reply := Reply{
		ID:       uuid.NewString(),
		Text:     replyText,
		Searched: searchContext != "",
		Query:    d.Query,
		At:       time.Now(),
	}
	reply.SpeechID = o.speak(replyText, voiceID)

	userEntry := conversation.Entry{Content: text}
	if len(in.Image) > 0 {
		userEntry.Attachment = "image"
		if text == "" {
			userEntry.Content = "[shared an image]"
		}
	}
	o.history.Append(userEntry, conversation.Entry{Content: replyText})

	o.emit(reply)
	o.log.Info().Str("reply_id", reply.ID).Bool("searched", reply.Searched).Msg("turn completed")
	return reply, nil
}

// RunVoiceLoop consumes finalized utterances and feeds them through
// HandleTurn. Utterances arriving while a turn is in flight are dropped; the
// interrupt monitor, not the recognizer, is responsible for cutting speech.
func (o *Orchestrator) RunVoiceLoop(ctx context.Context, events <-chan voice.Utterance) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-events:
			if !ok {
				return nil
			}
			if o.Busy() {
				o.log.Debug().Str("text", u.Text).Msg("dropping utterance, turn in flight")
				continue
			}
			if _, err := o.HandleTurn(ctx, TurnInput{Text: u.Text, Source: SourceVoice}); err != nil {
				o.log.Warn().Err(err).Msg("voice turn rejected")
			}
		}
	}
}

// speak cleans the reply for synthesis and starts playback. Returns the
// speech session id, or empty when nothing speakable remains.
func (o *Orchestrator) speak(text, voiceID string) string {
	clean := speech.CleanForSpeech(text)
	if clean == "" {
		return ""
	}
	o.setState(StateSpeaking)
	id, err := o.speaker.Start(clean, voiceID)
	if err != nil {
		o.log.Warn().Err(err).Msg("speech playback failed to start")
		return ""
	}
	return id
}

func (o *Orchestrator) setState(state string) {
	if o.OnState != nil {
		o.OnState(state)
	}
}

func (o *Orchestrator) emit(r Reply) {
	if o.OnReply != nil {
		o.OnReply(r)
	}
}
