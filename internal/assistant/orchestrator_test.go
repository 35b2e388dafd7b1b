package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
	"github.com/libdo96/Prism-AI-Assistant/internal/decision"
	"github.com/libdo96/Prism-AI-Assistant/internal/search"
	"github.com/libdo96/Prism-AI-Assistant/internal/voice"
)

type fakeEngine struct {
	d     decision.Decision
	err   error
	calls int
}

func (f *fakeEngine) Decide(_ context.Context, _ string, _ []conversation.Entry) (decision.Decision, error) {
	f.calls++
	return f.d, f.err
}

type fakeModel struct {
	reply     string
	err       error
	calls     int
	gotText   string
	gotImage  []byte
	gotSearch string
	block     chan struct{}
}

func (f *fakeModel) Generate(_ context.Context, _ []conversation.Entry, text string, image []byte, searchContext string) (string, error) {
	f.calls++
	f.gotText = text
	f.gotImage = image
	f.gotSearch = searchContext
	if f.block != nil {
		<-f.block
	}
	return f.reply, f.err
}

type fakeSearcher struct {
	results  []search.Result
	err      error
	gotQuery string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	f.gotQuery = query
	return f.results, f.err
}

type fakeSpeaker struct {
	mu         sync.Mutex
	started    []string
	voices     []string
	interrupts int
}

func (f *fakeSpeaker) Start(text, voice string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, text)
	f.voices = append(f.voices, voice)
	return "speech-1", nil
}

func (f *fakeSpeaker) InterruptAll() {
	f.mu.Lock()
	f.interrupts++
	f.mu.Unlock()
}

func (f *fakeSpeaker) Speaking() bool { return false }

func newTestOrchestrator(engine *fakeEngine, model *fakeModel, searcher *fakeSearcher, speaker *fakeSpeaker) *Orchestrator {
	return New(conversation.New(0), engine, model, searcher, speaker, "test-voice", zerolog.Nop())
}

func TestHandleTurn_EmptyInputRejected(t *testing.T) {
	speaker := &fakeSpeaker{}
	o := newTestOrchestrator(&fakeEngine{}, &fakeModel{}, &fakeSearcher{}, speaker)
	if _, err := o.HandleTurn(context.Background(), TurnInput{Text: "   "}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if speaker.interrupts != 0 {
		t.Fatalf("rejected turn must leave playback alone, got %d interrupts", speaker.interrupts)
	}
}

func TestHandleTurn_PlainChat(t *testing.T) {
	model := &fakeModel{reply: "Hi there!"}
	speaker := &fakeSpeaker{}
	o := newTestOrchestrator(&fakeEngine{}, model, &fakeSearcher{}, speaker)

	reply, err := o.HandleTurn(context.Background(), TurnInput{Text: "hello, how are you", Source: SourceText})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply.Text != "Hi there!" {
		t.Fatalf("reply text mismatch: %q", reply.Text)
	}
	if reply.Searched {
		t.Fatalf("plain chat must not be marked searched")
	}
	if model.gotSearch != "" {
		t.Fatalf("expected no search context, got %q", model.gotSearch)
	}
	if o.History().Len() != 2 {
		t.Fatalf("expected one recorded exchange, got %d entries", o.History().Len())
	}
	if len(speaker.started) != 1 || speaker.voices[0] != "test-voice" {
		t.Fatalf("expected one spoken reply with selected voice, got %v / %v", speaker.started, speaker.voices)
	}
	if reply.SpeechID == "" {
		t.Fatalf("expected speech id on spoken reply")
	}
}

func TestHandleTurn_SearchFlowsIntoModel(t *testing.T) {
	engine := &fakeEngine{d: decision.Decision{ShouldSearch: true, Query: "weather paris 2026"}}
	searcher := &fakeSearcher{results: []search.Result{
		{Title: "Paris weather", URL: "https://example.com/w", Snippet: "Sunny, 24C"},
	}}
	model := &fakeModel{reply: "It is sunny in Paris."}
	o := newTestOrchestrator(engine, model, searcher, &fakeSpeaker{})

	reply, err := o.HandleTurn(context.Background(), TurnInput{Text: "what's the weather in Paris right now"})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if searcher.gotQuery != "weather paris 2026" {
		t.Fatalf("search query mismatch: %q", searcher.gotQuery)
	}
	if !strings.Contains(model.gotSearch, "Paris weather") || !strings.Contains(model.gotSearch, "[Source: https://example.com/w]") {
		t.Fatalf("search context did not reach the model: %q", model.gotSearch)
	}
	if !reply.Searched || reply.Query != "weather paris 2026" {
		t.Fatalf("reply search metadata mismatch: %+v", reply)
	}
}

func TestHandleTurn_SearchFailureDegradesToNoContext(t *testing.T) {
	engine := &fakeEngine{d: decision.Decision{ShouldSearch: true, Query: "latest news"}}
	searcher := &fakeSearcher{err: search.ErrNoResults}
	model := &fakeModel{reply: "Here is what I know."}
	o := newTestOrchestrator(engine, model, searcher, &fakeSpeaker{})

	reply, err := o.HandleTurn(context.Background(), TurnInput{Text: "what's the latest news"})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if model.calls != 1 || model.gotSearch != "" {
		t.Fatalf("expected model call without search context, calls=%d ctx=%q", model.calls, model.gotSearch)
	}
	if reply.Searched {
		t.Fatalf("failed search must not mark reply as searched")
	}
}

func TestHandleTurn_InlineAnswerSkipsModel(t *testing.T) {
	engine := &fakeEngine{d: decision.Decision{Answer: "The capital of France is Paris."}}
	model := &fakeModel{reply: "unused"}
	o := newTestOrchestrator(engine, model, &fakeSearcher{}, &fakeSpeaker{})

	reply, err := o.HandleTurn(context.Background(), TurnInput{Text: "what is the capital of France"})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if model.calls != 0 {
		t.Fatalf("expected no model call, got %d", model.calls)
	}
	if reply.Text != "The capital of France is Paris." {
		t.Fatalf("reply text mismatch: %q", reply.Text)
	}
	if o.History().Len() != 2 {
		t.Fatalf("inline answer must still be recorded, got %d entries", o.History().Len())
	}
}

func TestHandleTurn_ModelFailureApologizesWithoutRecording(t *testing.T) {
	model := &fakeModel{err: errors.New("upstream down")}
	speaker := &fakeSpeaker{}
	o := newTestOrchestrator(&fakeEngine{}, model, &fakeSearcher{}, speaker)

	reply, err := o.HandleTurn(context.Background(), TurnInput{Text: "tell me a story"})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply.Text != apologyText {
		t.Fatalf("expected apology, got %q", reply.Text)
	}
	if o.History().Len() != 0 {
		t.Fatalf("failed turn must not be recorded, got %d entries", o.History().Len())
	}
	if len(speaker.started) != 1 {
		t.Fatalf("apology should still be spoken, got %v", speaker.started)
	}
}

func TestHandleTurn_SecondTurnRejectedWhileInFlight(t *testing.T) {
	model := &fakeModel{reply: "done", block: make(chan struct{})}
	o := newTestOrchestrator(&fakeEngine{}, model, &fakeSearcher{}, &fakeSpeaker{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := o.HandleTurn(context.Background(), TurnInput{Text: "first turn"})
		firstDone <- err
	}()

	// wait for the first turn to reach the model
	deadline := time.After(2 * time.Second)
	for !o.Busy() {
		select {
		case <-deadline:
			t.Fatal("first turn never became busy")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := o.HandleTurn(context.Background(), TurnInput{Text: "second turn"}); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}

	close(model.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first turn failed: %v", err)
	}
}

func TestHandleTurn_NewInputInterruptsSpeech(t *testing.T) {
	speaker := &fakeSpeaker{}
	o := newTestOrchestrator(&fakeEngine{}, &fakeModel{reply: "ok"}, &fakeSearcher{}, speaker)
	if _, err := o.HandleTurn(context.Background(), TurnInput{Text: "hello"}); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if speaker.interrupts != 1 {
		t.Fatalf("expected one interrupt before the turn, got %d", speaker.interrupts)
	}
}

func TestHandleTurn_ImageTurnSkipsSearchDecision(t *testing.T) {
	engine := &fakeEngine{d: decision.Decision{ShouldSearch: true, Query: "should not run"}}
	model := &fakeModel{reply: "A photo of a cat."}
	searcher := &fakeSearcher{}
	o := newTestOrchestrator(engine, model, searcher, &fakeSpeaker{})

	img := []byte{0xff, 0xd8, 0xff, 0xe0}
	reply, err := o.HandleTurn(context.Background(), TurnInput{Image: img})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if engine.calls != 0 {
		t.Fatalf("image turn must skip the search decision, got %d calls", engine.calls)
	}
	if searcher.gotQuery != "" {
		t.Fatalf("image turn must not search, got %q", searcher.gotQuery)
	}
	if len(model.gotImage) == 0 {
		t.Fatalf("image bytes did not reach the model")
	}
	if reply.Text != "A photo of a cat." {
		t.Fatalf("reply mismatch: %q", reply.Text)
	}
	entries := o.History().Recent(0)
	if len(entries) != 2 || entries[0].Attachment != "image" || entries[0].Content != "[shared an image]" {
		t.Fatalf("image turn recorded incorrectly: %+v", entries)
	}
}

func TestRunVoiceLoop_HandlesUtterances(t *testing.T) {
	model := &fakeModel{reply: "heard you"}
	o := newTestOrchestrator(&fakeEngine{}, model, &fakeSearcher{}, &fakeSpeaker{})

	events := make(chan voice.Utterance, 1)
	events <- voice.Utterance{Text: "hello assistant", At: time.Now()}
	close(events)

	if err := o.RunVoiceLoop(context.Background(), events); err != nil {
		t.Fatalf("RunVoiceLoop: %v", err)
	}
	if model.gotText != "hello assistant" {
		t.Fatalf("utterance did not reach the model: %q", model.gotText)
	}
	if o.History().Len() != 2 {
		t.Fatalf("voice turn not recorded, got %d entries", o.History().Len())
	}
}

func TestRunVoiceLoop_StopsOnContextCancel(t *testing.T) {
	o := newTestOrchestrator(&fakeEngine{}, &fakeModel{}, &fakeSearcher{}, &fakeSpeaker{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := o.RunVoiceLoop(ctx, make(chan voice.Utterance)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
