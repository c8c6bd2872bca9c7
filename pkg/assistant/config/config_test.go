package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Addr)
	assert.Equal(t, 16000, cfg.SampleRateHz)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 64, cfg.FrameQueueDepth)
	assert.Equal(t, 0.01, cfg.SilenceThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.SilenceDuration)
	assert.Equal(t, 500*time.Millisecond, cfg.WakePollInterval)
	assert.Equal(t, 5, cfg.MaxToolTurns)
	assert.Equal(t, 3, cfg.MemoryTopK)
	assert.Equal(t, 0.0, cfg.ProactivityLevel)
	assert.Equal(t, 30*time.Second, cfg.ProactiveMinIdle)
	assert.Equal(t, LLMBackendOllama, cfg.LLMBackend)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("EARSHOT_ADDR", "127.0.0.1:9000")
	t.Setenv("EARSHOT_SILENCE_THRESHOLD", "0.02")
	t.Setenv("EARSHOT_SILENCE_DURATION", "2s")
	t.Setenv("EARSHOT_MAX_TOOL_TURNS", "3")
	t.Setenv("EARSHOT_PROACTIVITY_LEVEL", "0.5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, 0.02, cfg.SilenceThreshold)
	assert.Equal(t, 2*time.Second, cfg.SilenceDuration)
	assert.Equal(t, 3, cfg.MaxToolTurns)
	assert.Equal(t, 0.5, cfg.ProactivityLevel)
}

func TestLoadFromEnvMalformedFallsBackToDefault(t *testing.T) {
	t.Setenv("EARSHOT_MAX_TOOL_TURNS", "lots")
	t.Setenv("EARSHOT_SILENCE_DURATION", "soon")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxToolTurns)
	assert.Equal(t, 1500*time.Millisecond, cfg.SilenceDuration)
}

func TestLoadFromEnvValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"zero sample rate", "EARSHOT_SAMPLE_RATE_HZ", "0"},
		{"stereo capture", "EARSHOT_CHANNELS", "2"},
		{"threshold too large", "EARSHOT_SILENCE_THRESHOLD", "1.5"},
		{"negative proactivity", "EARSHOT_PROACTIVITY_LEVEL", "-0.1"},
		{"proactivity above one", "EARSHOT_PROACTIVITY_LEVEL", "2"},
		{"unknown backend", "EARSHOT_LLM_BACKEND", "parrot"},
		{"zero queue depth", "EARSHOT_FRAME_QUEUE_DEPTH", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadFromEnv()
			require.Error(t, err)
		})
	}
}

func TestGeminiBackendRequiresKey(t *testing.T) {
	t.Setenv("EARSHOT_LLM_BACKEND", "gemini")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := LoadFromEnv()
	require.Error(t, err)

	t.Setenv("GEMINI_API_KEY", "test-key")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, LLMBackendGemini, cfg.LLMBackend)
	assert.Equal(t, "test-key", cfg.GeminiAPIKey)
}

func TestFrameSamples(t *testing.T) {
	cfg := Config{SampleRateHz: 16000, FrameDurationMS: 80}
	assert.Equal(t, 1280, cfg.FrameSamples())
}

func TestProfilePath(t *testing.T) {
	cfg := Config{MemoryDir: "data", ProfileTag: "default"}
	assert.Equal(t, "data/user_profile_default.json", cfg.ProfilePath())
}
