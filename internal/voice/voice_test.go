package voice

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func pcmSine(sr int, hz float64, durMs int) []byte {
	n := sr * durMs / 1000
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*hz*float64(i)/float64(sr)))
		binary.LittleEndian.PutUint16(out[i*2:(i+1)*2], uint16(v))
	}
	return out
}

func pcmSilence(sr int, durMs int) []byte {
	return make([]byte, sr*durMs/1000*2)
}

func TestInterruptMonitor_TriggersOnSustainedSpeech(t *testing.T) {
	triggered := 0
	m := NewInterruptMonitor(func() { triggered++ })
	m.Arm()
	m.Feed(pcmSine(16000, 220, 200))
	if triggered != 1 {
		t.Fatalf("expected exactly one trigger, got %d", triggered)
	}
	if m.Armed() {
		t.Fatalf("expected monitor disarmed after trigger")
	}
	// further speech must not re-trigger until re-armed
	m.Feed(pcmSine(16000, 220, 200))
	if triggered != 1 {
		t.Fatalf("expected no trigger while disarmed, got %d", triggered)
	}
}

func TestInterruptMonitor_IgnoresSilence(t *testing.T) {
	triggered := 0
	m := NewInterruptMonitor(func() { triggered++ })
	m.Arm()
	m.Feed(pcmSilence(16000, 400))
	if triggered != 0 {
		t.Fatalf("silence should not trigger, got %d", triggered)
	}
	if !m.Armed() {
		t.Fatalf("monitor should stay armed through silence")
	}
}

func TestInterruptMonitor_DisarmedIgnoresSpeech(t *testing.T) {
	triggered := 0
	m := NewInterruptMonitor(func() { triggered++ })
	m.Feed(pcmSine(16000, 220, 400))
	if triggered != 0 {
		t.Fatalf("disarmed monitor must not trigger, got %d", triggered)
	}
}

func TestTrackVoiceEnergy_SetsLastVoiceOnLoudFrame(t *testing.T) {
	a := NewAssemblyAI("test", zerolog.Nop())
	a.lastVoiceTime = time.Now().Add(-time.Hour)
	samples := make([]byte, 160*2)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(samples[i*2:(i+1)*2], 3000)
	}
	if a.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("expected no recent voice before feeding audio")
	}
	a.trackVoiceEnergy(samples)
	if !a.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("expected recent voice after loud frame")
	}
}

func TestUncommittedDelta_EmitsOnlyNewText(t *testing.T) {
	a := NewAssemblyAI("test", zerolog.Nop())
	a.latestFull = "what is the weather"
	if got := a.uncommittedDeltaLocked(); got != "what is the weather" {
		t.Fatalf("first delta mismatch: %q", got)
	}
	a.latestFull = "what is the weather in paris"
	if got := a.uncommittedDeltaLocked(); got != "in paris" {
		t.Fatalf("incremental delta mismatch: %q", got)
	}
	if got := a.uncommittedDeltaLocked(); got != "" {
		t.Fatalf("expected empty delta with no new text, got %q", got)
	}
}

type fakeRecognizer struct {
	partials   chan string
	utterances chan string
	sent       int
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{partials: make(chan string, 4), utterances: make(chan string, 4)}
}

func (f *fakeRecognizer) Connect(context.Context) error          { return nil }
func (f *fakeRecognizer) SendPCM([]byte) error                   { f.sent++; return nil }
func (f *fakeRecognizer) Partials() <-chan string                { return f.partials }
func (f *fakeRecognizer) Utterances() <-chan string              { return f.utterances }
func (f *fakeRecognizer) RecentlyDetectedVoice(time.Duration) bool { return false }
func (f *fakeRecognizer) Close() error                           { return nil }

type fakeSource struct{}

func (fakeSource) Run(ctx context.Context, _ func(pcm []byte)) error {
	<-ctx.Done()
	return nil
}

func TestListener_SingleShotDisablesAfterUtterance(t *testing.T) {
	rec := newFakeRecognizer()
	l := NewListener(fakeSource{}, rec, NewInterruptMonitor(nil), zerolog.Nop())
	l.SetMode(true, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()

	rec.utterances <- "one question"
	select {
	case u := <-l.Events():
		if u.Text != "one question" {
			t.Fatalf("utterance mismatch: %q", u.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("utterance never surfaced")
	}
	if l.Enabled() {
		t.Fatalf("single-shot listener must disable itself after one utterance")
	}

	cancel()
	<-done
}

func TestListener_ContinuousStaysEnabled(t *testing.T) {
	rec := newFakeRecognizer()
	l := NewListener(fakeSource{}, rec, NewInterruptMonitor(nil), zerolog.Nop())
	l.SetMode(true, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	for _, text := range []string{"first", "second"} {
		rec.utterances <- text
		select {
		case u := <-l.Events():
			if u.Text != text {
				t.Fatalf("utterance mismatch: %q", u.Text)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("utterance %q never surfaced", text)
		}
	}
	if !l.Enabled() {
		t.Fatalf("continuous listener must stay enabled")
	}
}

func TestListener_ForwardsPartials(t *testing.T) {
	rec := newFakeRecognizer()
	l := NewListener(fakeSource{}, rec, NewInterruptMonitor(nil), zerolog.Nop())

	got := make(chan string, 1)
	l.OnPartial = func(text string) { got <- text }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx) }()

	rec.partials <- "what is the wea"
	select {
	case text := <-got:
		if text != "what is the wea" {
			t.Fatalf("partial mismatch: %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("partial never forwarded")
	}
}

func TestClose_ToleratesLateDeliveries(t *testing.T) {
	a := NewAssemblyAI("test", zerolog.Nop())
	a.connected = true
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// late transcript from the reader and a late timer fire must both be
	// absorbed without panicking
	a.handleMessage([]byte(`{"type":"Turn","transcript":"left over words"}`))
	a.finalizeAfterSilence()
	if err := a.SendPCM(make([]byte, 320)); err == nil {
		t.Fatalf("expected SendPCM to fail after close")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestHelpers_LastWordAndContinuation(t *testing.T) {
	if lastWord("") != "" {
		t.Fatalf("lastWord empty mismatch")
	}
	if lastWord("hi there!") != "there" {
		t.Fatalf("lastWord basic mismatch")
	}
	if !continuationLikely("we should and") {
		t.Fatalf("expected continuation likely when last word is 'and'")
	}
	if continuationLikely("complete sentence.") {
		t.Fatalf("did not expect continuation likely")
	}
}
