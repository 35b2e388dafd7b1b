package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/libdo96/Prism-AI-Assistant/internal/tts"
)

// Config holds application configuration, loaded from the environment with an
// optional .env file.
type Config struct {
	HTTPAddress string `env:"HTTP_ADDRESS" envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`

	HistoryMaxTurns  int    `env:"HISTORY_MAX_TURNS" envDefault:"10"`
	SearchMaxResults int    `env:"SEARCH_MAX_RESULTS" envDefault:"5"`
	SearchDecision   string `env:"SEARCH_DECISION" envDefault:"model"`

	TTSEngine     string `env:"TTS_ENGINE" envDefault:"elevenlabs"`
	VoiceID       string `env:"VOICE_ID"`
	ElevenLabsKey string `env:"ELEVENLABS_API_KEY"`
	DeepgramKey   string `env:"DEEPGRAM_API_KEY"`

	AssemblyAIKey string `env:"ASSEMBLYAI_API_KEY"`

	SupabaseURL            string `env:"SUPABASE_URL"`
	SupabaseServiceRoleKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	SupabaseBucket         string `env:"SUPABASE_BUCKET" envDefault:"transcripts"`

	PlaybackCommand string `env:"PLAYBACK_COMMAND"`
	CaptureCommand  string `env:"CAPTURE_COMMAND"`
}

// Load reads the environment, fills defaults, and validates the settings the
// application cannot run without. Optional capabilities log a warning and
// degrade instead of failing.
func Load(log zerolog.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required")
	}
	switch cfg.SearchDecision {
	case "model", "heuristic":
	default:
		return Config{}, fmt.Errorf("SEARCH_DECISION must be \"model\" or \"heuristic\", got %q", cfg.SearchDecision)
	}
	switch cfg.TTSEngine {
	case tts.EngineElevenLabs, tts.EngineDeepgram:
	default:
		return Config{}, fmt.Errorf("TTS_ENGINE must be %q or %q, got %q", tts.EngineElevenLabs, tts.EngineDeepgram, cfg.TTSEngine)
	}

	if cfg.VoiceID == "" {
		cfg.VoiceID = tts.DefaultVoice[cfg.TTSEngine]
	} else if !tts.ValidVoice(cfg.TTSEngine, cfg.VoiceID) {
		return Config{}, fmt.Errorf("VOICE_ID %q is not a known %s voice", cfg.VoiceID, cfg.TTSEngine)
	}

	if cfg.TTSEngine == tts.EngineElevenLabs && cfg.ElevenLabsKey == "" {
		log.Warn().Msg("ELEVENLABS_API_KEY not set, spoken replies will fail")
	}
	if cfg.TTSEngine == tts.EngineDeepgram && cfg.DeepgramKey == "" {
		log.Warn().Msg("DEEPGRAM_API_KEY not set, spoken replies will fail")
	}
	if cfg.AssemblyAIKey == "" {
		log.Warn().Msg("ASSEMBLYAI_API_KEY not set, voice input disabled")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "" {
		log.Warn().Msg("supabase not configured, transcripts will not be archived")
	}

	return cfg, nil
}
