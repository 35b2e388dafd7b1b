package config

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, "gemini-1.5-flash", cfg.GeminiModel)
	assert.Equal(t, 10, cfg.HistoryMaxTurns)
	assert.Equal(t, 5, cfg.SearchMaxResults)
	assert.Equal(t, "model", cfg.SearchDecision)
	assert.Equal(t, "elevenlabs", cfg.TTSEngine)
	assert.NotEmpty(t, cfg.VoiceID)
	assert.Equal(t, "transcripts", cfg.SupabaseBucket)
}

func TestLoad_MissingGeminiKeyFails(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoad_RejectsUnknownDecisionStrategy(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("SEARCH_DECISION", "coinflip")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SEARCH_DECISION")
}

func TestLoad_RejectsUnknownTTSEngine(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TTS_ENGINE", "espeak")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TTS_ENGINE")
}

func TestLoad_VoiceDefaultsPerEngine(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TTS_ENGINE", "deepgram")

	cfg, err := Load(zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "aura-2-thalia-en", cfg.VoiceID)
}

func TestLoad_RejectsUnknownVoice(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("VOICE_ID", "not-a-voice")

	_, err := Load(zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VOICE_ID")
}
