package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/libdo96/Prism-AI-Assistant/internal/assistant"
	"github.com/libdo96/Prism-AI-Assistant/internal/audio"
	"github.com/libdo96/Prism-AI-Assistant/internal/config"
	"github.com/libdo96/Prism-AI-Assistant/internal/conversation"
	"github.com/libdo96/Prism-AI-Assistant/internal/decision"
	"github.com/libdo96/Prism-AI-Assistant/internal/httpserver"
	"github.com/libdo96/Prism-AI-Assistant/internal/llm"
	"github.com/libdo96/Prism-AI-Assistant/internal/search"
	"github.com/libdo96/Prism-AI-Assistant/internal/speech"
	"github.com/libdo96/Prism-AI-Assistant/internal/storage"
	"github.com/libdo96/Prism-AI-Assistant/internal/tts"
	"github.com/libdo96/Prism-AI-Assistant/internal/voice"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration invalid")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
		zerolog.SetGlobalLevel(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history := conversation.New(cfg.HistoryMaxTurns)
	gemini := llm.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel)

	var engine decision.Engine
	if cfg.SearchDecision == "heuristic" {
		engine = decision.NewHeuristic()
	} else {
		engine = decision.NewModelEngine(gemini)
	}

	searcher := search.NewClient(cfg.SearchMaxResults)

	var synth speech.Synthesizer
	if cfg.TTSEngine == tts.EngineDeepgram {
		synth = tts.NewDeepgramClient(cfg.DeepgramKey)
	} else {
		synth = tts.NewElevenLabsClient(cfg.ElevenLabsKey)
	}

	player := audio.NewCommandPlayer(cfg.PlaybackCommand)
	defer player.Close()

	hub := httpserver.NewHub(logger)

	var controller *speech.Controller
	monitor := voice.NewInterruptMonitor(func() {
		logger.Info().Msg("voice interrupt detected, stopping speech")
		controller.InterruptAll()
	})
	controller = speech.NewController(synth, player, func(id string, st speech.Status) {
		switch st {
		case speech.StatusSpeaking:
			monitor.Arm()
		case speech.StatusInterrupted, speech.StatusCompleted:
			monitor.Disarm()
		}
		hub.Broadcast("speech", map[string]string{"id": id, "status": string(st)})
	})

	orch := assistant.New(history, engine, gemini, searcher, controller, cfg.VoiceID, logger)
	orch.OnState = func(state string) { hub.Broadcast("state", state) }
	orch.OnReply = func(r assistant.Reply) { hub.Broadcast("reply", r) }

	var listener *voice.Listener
	if cfg.AssemblyAIKey != "" {
		rec := voice.NewAssemblyAI(cfg.AssemblyAIKey, logger)
		capture := audio.NewCommandCapture(cfg.CaptureCommand)
		listener = voice.NewListener(capture, rec, monitor, logger)
		listener.OnPartial = func(text string) { hub.Broadcast("partial", text) }
	}

	srv := httpserver.New(orch, listener, hub, cfg.TTSEngine, logger)

	sessionID := uuid.NewString()
	archiver := storage.NewSupabaseArchiver(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseBucket)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(cfg.HTTPAddress) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if listener != nil {
		g.Go(func() error {
			if err := listener.Run(gctx); err != nil && gctx.Err() == nil {
				logger.Error().Err(err).Msg("voice listener stopped")
			}
			return nil
		})
		g.Go(func() error {
			if err := orch.RunVoiceLoop(gctx, listener.Events()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	logger.Info().Str("session_id", sessionID).Str("tts_engine", cfg.TTSEngine).
		Bool("voice_input", listener != nil).Msg("assistant ready")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("assistant exited with error")
	}

	controller.InterruptAll()

	if archiver.Enabled() {
		archCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := archiver.ArchiveTranscript(archCtx, sessionID, history.Recent(0)); err != nil {
			logger.Warn().Err(err).Msg("transcript archival failed")
		} else if history.Len() > 0 {
			logger.Info().Str("session_id", sessionID).Msg("transcript archived")
		}
	}

	logger.Info().Msg("shutdown complete")
}
