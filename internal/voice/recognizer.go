package voice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// silenceThreshold is the base inactivity window required before an utterance
// is considered complete. Keep conservative to avoid cutting the user
// mid-sentence.
const silenceThreshold = 700 * time.Millisecond

// continuationExtension is added to the silence threshold when the last word
// suggests the speaker is likely to continue ("and", "or", "if", ...).
const continuationExtension = 1200 * time.Millisecond

// stabilizationGrace absorbs late transcript updates from the recognizer
// after the silence threshold has been crossed.
const stabilizationGrace = 250 * time.Millisecond

// Recognizer converts streamed microphone PCM into finalized utterances.
type Recognizer interface {
	Connect(ctx context.Context) error
	SendPCM(pcm []byte) error
	// Partials streams running transcript fragments as they evolve.
	Partials() <-chan string
	// Utterances delivers the finalized text of each completed utterance.
	Utterances() <-chan string
	// RecentlyDetectedVoice reports whether voice energy was observed in the
	// microphone stream within the given window.
	RecentlyDetectedVoice(window time.Duration) bool
	Close() error
}

// AssemblyAI is a streaming speech recognizer backed by the AssemblyAI
// realtime WebSocket API. It accumulates partial transcripts and emits a
// finalized utterance after an adaptive period of silence.
type AssemblyAI struct {
	apiKey string
	log    zerolog.Logger

	conn       *websocket.Conn
	partials   chan string
	utterances chan string
	audio      chan []byte
	stopCh     chan struct{}
	mu         sync.RWMutex
	connected  bool

	// utterance accumulation
	accMu          sync.Mutex
	latestFull     string
	committedFull  string
	lastUpdateTime time.Time
	lastVoiceTime  time.Time
	silenceTimer   *time.Timer
}

// NewAssemblyAI builds a recognizer for the given API key.
func NewAssemblyAI(apiKey string, log zerolog.Logger) *AssemblyAI {
	return &AssemblyAI{
		apiKey:     apiKey,
		log:        log.With().Str("component", "recognizer").Logger(),
		partials:   make(chan string, 100),
		utterances: make(chan string, 10),
		audio:      make(chan []byte, 1000),
		stopCh:     make(chan struct{}),
	}
}

func (a *AssemblyAI) Partials() <-chan string   { return a.partials }
func (a *AssemblyAI) Utterances() <-chan string { return a.utterances }

// Connect dials the streaming endpoint and starts the reader and writer
// goroutines. Connecting twice is a no-op.
func (a *AssemblyAI) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return nil
	}
	if a.apiKey == "" {
		return fmt.Errorf("assemblyai api key is empty")
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := fmt.Sprintf("wss://streaming.assemblyai.com/v3/ws?%s", params.Encode())

	headers := map[string][]string{"Authorization": {a.apiKey}}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			a.log.Error().Int("status", resp.StatusCode).Msg("recognizer connection refused")
		}
		return fmt.Errorf("connect to assemblyai: %w", err)
	}

	a.conn = conn
	a.connected = true
	a.lastUpdateTime = time.Now()
	a.lastVoiceTime = time.Now()

	go a.readLoop()
	go a.writeLoop()

	a.log.Info().Msg("recognizer connected")
	return nil
}

// SendPCM queues 16 kHz mono 16-bit little-endian PCM for transcription.
func (a *AssemblyAI) SendPCM(pcm []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected {
		return fmt.Errorf("recognizer not connected")
	}
	a.trackVoiceEnergy(pcm)
	select {
	case a.audio <- pcm:
	default:
		a.log.Warn().Msg("audio buffer full, dropping chunk")
	}
	return nil
}

// trackVoiceEnergy updates lastVoiceTime when the buffer carries energy above
// the speech floor.
func (a *AssemblyAI) trackVoiceEnergy(pcm []byte) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return
	}
	rms := math.Sqrt(sumSquares / float64(count))
	const voiceRMS = 250.0
	if rms >= voiceRMS {
		a.accMu.Lock()
		a.lastVoiceTime = time.Now()
		a.accMu.Unlock()
	}
}

// RecentlyDetectedVoice reports whether non-silent voice energy was observed
// within the given window.
func (a *AssemblyAI) RecentlyDetectedVoice(window time.Duration) bool {
	a.accMu.Lock()
	last := a.lastVoiceTime
	a.accMu.Unlock()
	return time.Since(last) <= window
}

// Close terminates the session and releases the connection. The stream
// channels are never closed: the silence timer and the reader goroutine may
// still be finishing a late delivery, so shutdown is signalled through stopCh
// and every sender checks it before delivering.
func (a *AssemblyAI) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	close(a.stopCh)
	if a.silenceTimer != nil {
		_ = a.silenceTimer.Stop()
		a.silenceTimer = nil
	}
	if a.conn != nil {
		_ = a.conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = a.conn.Close()
	}
	a.connected = false
	a.conn = nil
	a.flushPending()
	a.log.Info().Msg("recognizer closed")
	return nil
}

func (a *AssemblyAI) readLoop() {
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}
		a.mu.RLock()
		conn := a.conn
		a.mu.RUnlock()
		if conn == nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-a.stopCh:
			default:
				a.log.Error().Err(err).Msg("recognizer read failed")
			}
			return
		}
		a.handleMessage(message)
	}
}

func (a *AssemblyAI) writeLoop() {
	for {
		select {
		case <-a.stopCh:
			return
		case pcm, ok := <-a.audio:
			if !ok {
				return
			}
			a.mu.RLock()
			conn := a.conn
			a.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				a.log.Error().Err(err).Msg("recognizer audio send failed")
				return
			}
		}
	}
}

func (a *AssemblyAI) handleMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		a.log.Warn().Err(err).Msg("recognizer sent malformed message")
		return
	}
	switch base.Type {
	case "Begin":
		var msg struct {
			ID        string `json:"id"`
			ExpiresAt int64  `json:"expires_at"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		a.log.Info().Str("session_id", msg.ID).
			Time("expires_at", time.Unix(msg.ExpiresAt, 0)).
			Msg("recognizer session began")
	case "Turn":
		var msg struct {
			Transcript string `json:"transcript"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			return
		}
		if msg.Transcript == "" {
			return
		}
		select {
		case a.partials <- msg.Transcript:
		default:
		}
		a.accMu.Lock()
		a.latestFull = msg.Transcript
		a.lastUpdateTime = time.Now()
		a.resetSilenceTimerLocked(silenceThreshold)
		a.accMu.Unlock()
	case "Termination":
		a.log.Info().Msg("recognizer session terminated")
		a.flushPending()
	case "Error":
		var msg struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(message, &msg)
		a.log.Error().Str("error", msg.Error).Msg("recognizer error")
	default:
		a.log.Debug().Str("type", base.Type).Msg("recognizer sent unknown message type")
	}
}

// resetSilenceTimerLocked arms or extends the end-of-utterance timer. Caller
// holds accMu.
func (a *AssemblyAI) resetSilenceTimerLocked(d time.Duration) {
	if a.silenceTimer == nil {
		a.silenceTimer = time.AfterFunc(d, a.finalizeAfterSilence)
		return
	}
	_ = a.silenceTimer.Stop()
	a.silenceTimer.Reset(d)
}

// finalizeAfterSilence fires once the silence threshold has elapsed. It emits
// only the delta since the last committed transcript, and reschedules itself
// while either transcript updates or voice energy remain recent.
func (a *AssemblyAI) finalizeAfterSilence() {
	select {
	case <-a.stopCh:
		return
	default:
	}

	a.accMu.Lock()
	now := time.Now()
	threshold := silenceThreshold
	if continuationLikely(a.latestFull) {
		threshold += continuationExtension
	}
	sinceText := now.Sub(a.lastUpdateTime)
	sinceVoice := now.Sub(a.lastVoiceTime)
	if sinceText < threshold || sinceVoice < threshold {
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		if wait < 10*time.Millisecond {
			wait = 10 * time.Millisecond
		}
		a.resetSilenceTimerLocked(wait)
		a.accMu.Unlock()
		return
	}
	lastUpdateAt := a.lastUpdateTime
	a.accMu.Unlock()

	// Grace period to catch late transcript updates.
	time.Sleep(stabilizationGrace)

	a.accMu.Lock()
	if a.lastUpdateTime.After(lastUpdateAt) {
		threshold2 := silenceThreshold
		if continuationLikely(a.latestFull) {
			threshold2 += continuationExtension
		}
		wait := threshold2
		if rem := threshold2 - time.Since(a.lastUpdateTime); rem > 10*time.Millisecond && rem < wait {
			wait = rem
		}
		a.resetSilenceTimerLocked(wait)
		a.accMu.Unlock()
		return
	}
	delta := a.uncommittedDeltaLocked()
	a.accMu.Unlock()

	if delta == "" {
		return
	}
	// Deliver without dropping so no finalized words are lost.
	select {
	case <-a.stopCh:
	case a.utterances <- delta:
	}
}

// uncommittedDeltaLocked computes and commits the transcript delta since the
// last finalized utterance. Caller holds accMu.
func (a *AssemblyAI) uncommittedDeltaLocked() string {
	latest := a.latestFull
	base := a.committedFull
	delta := strings.TrimSpace(strings.TrimPrefix(latest, base))
	if delta == "" && base != "" {
		if idx := strings.LastIndex(latest, base); idx >= 0 && idx+len(base) <= len(latest) {
			delta = strings.TrimSpace(latest[idx+len(base):])
		}
	}
	a.committedFull = latest
	return delta
}

func (a *AssemblyAI) flushPending() {
	a.accMu.Lock()
	delta := a.uncommittedDeltaLocked()
	a.accMu.Unlock()
	if delta == "" {
		return
	}
	select {
	case a.utterances <- delta:
	case <-time.After(200 * time.Millisecond):
		a.log.Warn().Msg("timed out flushing final utterance")
	}
}

// continuationLikely returns true if the last meaningful word indicates the
// speaker will probably keep talking.
func continuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	trim := strings.TrimSpace(text)
	if trim == "" {
		return ""
	}
	fields := strings.FieldsFunc(trim, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}
