package voice

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Utterance is a finalized piece of user speech.
type Utterance struct {
	Text string
	At   time.Time
}

// Source produces raw microphone PCM, delivering chunks to the sink until the
// context is cancelled.
type Source interface {
	Run(ctx context.Context, sink func(pcm []byte)) error
}

// Listener wires a microphone source into the recognizer and the interrupt
// monitor, and surfaces finalized utterances on a channel. Recognition can be
// toggled at runtime, either continuously or for a single utterance;
// interrupt detection stays live regardless so the user can always cut the
// assistant off by speaking.
type Listener struct {
	source  Source
	rec     Recognizer
	monitor *InterruptMonitor
	log     zerolog.Logger

	// OnPartial, when set, receives running transcript fragments as the
	// recognizer revises the in-progress utterance. Display only.
	OnPartial func(text string)

	events chan Utterance

	mu         sync.Mutex
	enabled    bool
	continuous bool
}

// NewListener builds a listener. Recognition starts disabled until
// SetMode enables it.
func NewListener(source Source, rec Recognizer, monitor *InterruptMonitor, log zerolog.Logger) *Listener {
	return &Listener{
		source:  source,
		rec:     rec,
		monitor: monitor,
		log:     log.With().Str("component", "listener").Logger(),
		events:  make(chan Utterance, 4),
	}
}

// Events returns the finalized utterance stream. The channel is closed when
// Run returns.
func (l *Listener) Events() <-chan Utterance { return l.events }

// SetMode toggles whether captured audio is forwarded to the recognizer.
// With continuous false, the listener disables itself after the first
// finalized utterance (single-shot).
func (l *Listener) SetMode(enabled, continuous bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.continuous = continuous
	l.mu.Unlock()
	l.log.Info().Bool("enabled", enabled).Bool("continuous", continuous).Msg("voice recognition toggled")
}

// Enabled reports the current recognition toggle.
func (l *Listener) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Run connects the recognizer and pumps microphone audio until the context is
// cancelled. It blocks for the life of the capture stream.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.rec.Connect(ctx); err != nil {
		return err
	}
	defer l.rec.Close()
	defer close(l.events)

	go l.forwardUtterances(ctx)
	go l.forwardPartials(ctx)

	return l.source.Run(ctx, func(pcm []byte) {
		l.monitor.Feed(pcm)
		if l.Enabled() {
			if err := l.rec.SendPCM(pcm); err != nil {
				l.log.Warn().Err(err).Msg("recognizer rejected audio")
			}
		}
	})
}

func (l *Listener) forwardUtterances(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-l.rec.Utterances():
			if !ok {
				return
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			l.log.Info().Str("text", text).Msg("utterance finalized")
			l.mu.Lock()
			if l.enabled && !l.continuous {
				l.enabled = false
				l.log.Info().Msg("single-shot utterance captured, listening stopped")
			}
			l.mu.Unlock()
			select {
			case l.events <- Utterance{Text: text, At: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (l *Listener) forwardPartials(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text, ok := <-l.rec.Partials():
			if !ok {
				return
			}
			if l.OnPartial != nil {
				l.OnPartial(text)
			}
		}
	}
}
