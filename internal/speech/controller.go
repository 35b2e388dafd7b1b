package speech

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Status is the lifecycle state of a speech session.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSpeaking    Status = "speaking"
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"
)

// Synthesizer streams synthesized PCM audio for the given text and voice.
// The stream must stop promptly when ctx is cancelled.
type Synthesizer interface {
	StreamPCM(ctx context.Context, text, voice string) (<-chan []byte, <-chan error)
}

// Player consumes PCM bytes and performs delivery to the audio device.
// Implementations buffer internally; Reset drops any queued audio immediately
// so interruption is audible within one scheduling step.
type Player interface {
	WritePCM(pcm []byte)
	FlushTail()
	Reset()
}

type session struct {
	id     string
	text   string
	voice  string
	status Status
	cancel context.CancelFunc
}

// Controller owns the single active speech session. At most one session is
// ever in status speaking; starting a new session while one is active first
// forces the prior session to interrupted and halts its audio.
type Controller struct {
	synth   Synthesizer
	player  Player
	onState func(id string, st Status)

	mu       sync.Mutex
	active   *session
	statuses map[string]Status
}

// NewController constructs a playback controller. onState may be nil; when
// set it is invoked (without the lock held) on every session state change.
func NewController(synth Synthesizer, player Player, onState func(id string, st Status)) *Controller {
	return &Controller{synth: synth, player: player, onState: onState, statuses: make(map[string]Status)}
}

// Start begins speaking text with the given voice and returns the session id.
// Any session currently speaking is interrupted first. Empty text (after
// cleaning) starts no session and returns an empty id.
func (c *Controller) Start(text, voice string) (string, error) {
	clean := CleanForSpeech(text)
	if clean == "" {
		return "", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{id: uuid.NewString(), text: clean, voice: voice, status: StatusPending, cancel: cancel}

	c.mu.Lock()
	c.interruptLocked()
	s.status = StatusSpeaking
	c.active = s
	c.recordLocked(s.id, StatusPending)
	c.recordLocked(s.id, StatusSpeaking)
	c.mu.Unlock()

	c.notify(s.id, StatusPending)
	c.notify(s.id, StatusSpeaking)
	log.Debug().Str("session", s.id).Str("voice", voice).Msg("speech session started")

	go c.run(ctx, s)
	return s.id, nil
}

// Stop halts the session with the given id if it is still active.
func (c *Controller) Stop(id string) {
	c.mu.Lock()
	if c.active == nil || c.active.id != id {
		c.mu.Unlock()
		return
	}
	c.interruptLocked()
	c.mu.Unlock()
	c.notify(id, StatusInterrupted)
}

// InterruptAll halts whatever is speaking. Invoked on every new user input,
// whether or not the user meant to interrupt.
func (c *Controller) InterruptAll() {
	c.mu.Lock()
	s := c.active
	c.interruptLocked()
	c.mu.Unlock()
	if s != nil {
		c.notify(s.id, StatusInterrupted)
	}
}

// Speaking reports whether a session is currently in status speaking.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Status returns the last observed status for a session id.
func (c *Controller) Status(id string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.statuses[id]
	return st, ok
}

// interruptLocked transitions the active session to interrupted, cancels its
// stream and drops queued audio. Caller holds c.mu.
func (c *Controller) interruptLocked() {
	s := c.active
	if s == nil {
		return
	}
	s.status = StatusInterrupted
	s.cancel()
	c.active = nil
	c.recordLocked(s.id, StatusInterrupted)
	c.player.Reset()
}

func (c *Controller) run(ctx context.Context, s *session) {
	defer s.cancel()
	pcmCh, errCh := c.synth.StreamPCM(ctx, s.text, s.voice)
	openPCM, openErr := true, true
	for openPCM || openErr {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				openPCM = false
				continue
			}
			if len(b) == 0 {
				continue
			}
			c.mu.Lock()
			interrupted := s.status != StatusSpeaking
			c.mu.Unlock()
			if !interrupted {
				c.player.WritePCM(b)
			}
		case e, ok := <-errCh:
			if !ok {
				openErr = false
				continue
			}
			if e != nil {
				// playback errors never fail the turn
				log.Error().Err(e).Str("session", s.id).Msg("speech stream error")
			}
		case <-ctx.Done():
			openPCM, openErr = false, false
		}
	}

	c.mu.Lock()
	finished := s.status == StatusSpeaking
	if finished {
		s.status = StatusCompleted
		c.recordLocked(s.id, StatusCompleted)
	}
	if c.active == s {
		c.active = nil
	}
	c.mu.Unlock()

	if finished {
		c.player.FlushTail()
		c.notify(s.id, StatusCompleted)
		log.Debug().Str("session", s.id).Msg("speech session completed")
	}
}

func (c *Controller) notify(id string, st Status) {
	if c.onState != nil {
		c.onState(id, st)
	}
}

// recordLocked keeps a bounded trail of terminal and transitional statuses
// for logging and tests. Caller holds c.mu.
func (c *Controller) recordLocked(id string, st Status) {
	if len(c.statuses) > 256 {
		for k := range c.statuses {
			delete(c.statuses, k)
			if len(c.statuses) <= 128 {
				break
			}
		}
	}
	c.statuses[id] = st
}
