package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LLMBackend selects which model-query client the assistant uses.
type LLMBackend string

const (
	LLMBackendOllama LLMBackend = "ollama"
	LLMBackendGemini LLMBackend = "gemini"
)

// Config is the single configuration value built at startup and passed by
// reference into every component constructor. There is no ambient lookup
// after LoadFromEnv returns.
type Config struct {
	Addr string

	// Audio capture shape.
	SampleRateHz    int
	Channels        int
	FrameDurationMS int
	FrameQueueDepth int

	// Artifacts (recorded utterances, synthesized replies).
	ArtifactsDir string

	// Voice-activity detection.
	SilenceThreshold float64
	SilenceDuration  time.Duration
	MaxRecordingTime time.Duration

	// Wake handling.
	WakePollInterval time.Duration
	WakePhrase       string
	PausePhrase      string
	StopPhrase       string
	GoodbyePhrase    string

	// Proactive triggers.
	ProactivityLevel float64
	ProactiveMinIdle time.Duration

	// Agentic loop.
	MaxToolTurns   int
	MemoryTopK     int
	MaxHistoryLen  int
	BargeInPreroll int

	// External collaborators.
	WhisperBin   string
	WhisperModel string
	PiperBin     string
	PiperModel   string

	LLMBackend   LLMBackend
	OllamaBin    string
	OllamaModel  string
	GeminiModel  string
	GeminiAPIKey string

	// Memory storage. Empty DSN selects the local file-backed store.
	MemoryDSN  string
	MemoryDir  string
	ProfileTag string

	// Gateway.
	WSWriteTimeout      time.Duration
	WSPingInterval      time.Duration
	EventQueueSize      int
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("EARSHOT_ADDR", ":8090"),
		SampleRateHz:        envIntOr("EARSHOT_SAMPLE_RATE_HZ", 16000),
		Channels:            envIntOr("EARSHOT_CHANNELS", 1),
		FrameDurationMS:     envIntOr("EARSHOT_FRAME_MS", 80),
		FrameQueueDepth:     envIntOr("EARSHOT_FRAME_QUEUE_DEPTH", 64),
		ArtifactsDir:        envOr("EARSHOT_ARTIFACTS_DIR", "artifacts"),
		SilenceThreshold:    envFloat64Or("EARSHOT_SILENCE_THRESHOLD", 0.01),
		SilenceDuration:     envDurationOr("EARSHOT_SILENCE_DURATION", 1500*time.Millisecond),
		MaxRecordingTime:    envDurationOr("EARSHOT_MAX_RECORDING", 30*time.Second),
		WakePollInterval:    envDurationOr("EARSHOT_WAKE_POLL_INTERVAL", 500*time.Millisecond),
		WakePhrase:          envOr("EARSHOT_WAKE_PHRASE", "hey jarvis"),
		PausePhrase:         envOr("EARSHOT_PAUSE_PHRASE", "alexa"),
		StopPhrase:          envOr("EARSHOT_STOP_PHRASE", "thank you"),
		GoodbyePhrase:       envOr("EARSHOT_GOODBYE_PHRASE", "goodbye"),
		ProactivityLevel:    envFloat64Or("EARSHOT_PROACTIVITY_LEVEL", 0),
		ProactiveMinIdle:    envDurationOr("EARSHOT_PROACTIVE_MIN_IDLE", 30*time.Second),
		MaxToolTurns:        envIntOr("EARSHOT_MAX_TOOL_TURNS", 5),
		MemoryTopK:          envIntOr("EARSHOT_MEMORY_TOP_K", 3),
		MaxHistoryLen:       envIntOr("EARSHOT_MAX_HISTORY_LEN", 40),
		BargeInPreroll:      envIntOr("EARSHOT_BARGE_IN_PREROLL_FRAMES", 8),
		WhisperBin:          envOr("EARSHOT_WHISPER_BIN", "whisper-cli"),
		WhisperModel:        envOr("EARSHOT_WHISPER_MODEL", ""),
		PiperBin:            envOr("EARSHOT_PIPER_BIN", "piper"),
		PiperModel:          envOr("EARSHOT_PIPER_MODEL", ""),
		LLMBackend:          LLMBackend(strings.ToLower(envOr("EARSHOT_LLM_BACKEND", string(LLMBackendOllama)))),
		OllamaBin:           envOr("EARSHOT_OLLAMA_BIN", "ollama"),
		OllamaModel:         envOr("EARSHOT_OLLAMA_MODEL", "mistral:latest"),
		GeminiModel:         envOr("EARSHOT_GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiAPIKey:        envOr("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY")),
		MemoryDSN:           envOr("EARSHOT_MEMORY_DSN", ""),
		MemoryDir:           envOr("EARSHOT_MEMORY_DIR", "data"),
		ProfileTag:          envOr("EARSHOT_PROFILE_TAG", "default"),
		WSWriteTimeout:      envDurationOr("EARSHOT_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:      envDurationOr("EARSHOT_WS_PING_INTERVAL", 20*time.Second),
		EventQueueSize:      envIntOr("EARSHOT_EVENT_QUEUE_SIZE", 128),
		ReadHeaderTimeout:   envDurationOr("EARSHOT_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("EARSHOT_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	if cfg.SampleRateHz <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_SAMPLE_RATE_HZ must be > 0")
	}
	if cfg.Channels != 1 {
		return Config{}, fmt.Errorf("EARSHOT_CHANNELS must be 1 (mono capture)")
	}
	if cfg.FrameDurationMS <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_FRAME_MS must be > 0")
	}
	if cfg.FrameQueueDepth <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_FRAME_QUEUE_DEPTH must be > 0")
	}
	if strings.TrimSpace(cfg.ArtifactsDir) == "" {
		return Config{}, fmt.Errorf("EARSHOT_ARTIFACTS_DIR must not be empty")
	}
	if cfg.SilenceThreshold <= 0 || cfg.SilenceThreshold >= 1 {
		return Config{}, fmt.Errorf("EARSHOT_SILENCE_THRESHOLD must be in (0, 1)")
	}
	if cfg.SilenceDuration <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_SILENCE_DURATION must be > 0")
	}
	if cfg.MaxRecordingTime <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_MAX_RECORDING must be > 0")
	}
	if cfg.WakePollInterval <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_WAKE_POLL_INTERVAL must be > 0")
	}
	if strings.TrimSpace(cfg.WakePhrase) == "" {
		return Config{}, fmt.Errorf("EARSHOT_WAKE_PHRASE must not be empty")
	}
	if cfg.ProactivityLevel < 0 || cfg.ProactivityLevel > 1 {
		return Config{}, fmt.Errorf("EARSHOT_PROACTIVITY_LEVEL must be in [0, 1]")
	}
	if cfg.ProactiveMinIdle <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_PROACTIVE_MIN_IDLE must be > 0")
	}
	if cfg.MaxToolTurns <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_MAX_TOOL_TURNS must be > 0")
	}
	if cfg.MemoryTopK <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_MEMORY_TOP_K must be > 0")
	}
	if cfg.MaxHistoryLen <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_MAX_HISTORY_LEN must be > 0")
	}
	if cfg.BargeInPreroll <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_BARGE_IN_PREROLL_FRAMES must be > 0")
	}
	switch cfg.LLMBackend {
	case LLMBackendOllama, LLMBackendGemini:
	default:
		return Config{}, fmt.Errorf("EARSHOT_LLM_BACKEND must be one of ollama|gemini")
	}
	if cfg.LLMBackend == LLMBackendGemini && strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set when EARSHOT_LLM_BACKEND=gemini")
	}
	if cfg.EventQueueSize <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_EVENT_QUEUE_SIZE must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_WS_PING_INTERVAL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("EARSHOT_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

// ValidateRequirements checks that the external binaries and model files the
// session depends on exist. Failures here are the only errors that are fatal
// to the process; everything after session start degrades per turn.
func (c Config) ValidateRequirements() error {
	if _, err := exec.LookPath(c.WhisperBin); err != nil {
		return fmt.Errorf("transcription binary %q not found: %w", c.WhisperBin, err)
	}
	if strings.TrimSpace(c.WhisperModel) != "" {
		if err := requireFile(c.WhisperModel, "whisper model"); err != nil {
			return err
		}
	}
	if _, err := exec.LookPath(c.PiperBin); err != nil {
		return fmt.Errorf("synthesis binary %q not found: %w", c.PiperBin, err)
	}
	if strings.TrimSpace(c.PiperModel) != "" {
		if err := requireFile(c.PiperModel, "piper voice model"); err != nil {
			return err
		}
	}
	if c.LLMBackend == LLMBackendOllama {
		if _, err := exec.LookPath(c.OllamaBin); err != nil {
			return fmt.Errorf("model binary %q not found: %w", c.OllamaBin, err)
		}
	}
	return nil
}

// FrameSamples is the number of PCM samples per capture frame.
func (c Config) FrameSamples() int {
	n := (c.SampleRateHz * c.FrameDurationMS) / 1000
	if n <= 0 {
		n = 1
	}
	return n
}

func requireFile(path, description string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("missing %s: %s: %w", description, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("missing %s: %s is a directory", description, path)
	}
	return nil
}

// ProfilePath is the on-disk location of the persisted user profile.
func (c Config) ProfilePath() string {
	return filepath.Join(c.MemoryDir, "user_profile_"+c.ProfileTag+".json")
}

// EpisodicPath is the on-disk location of the local episodic store.
func (c Config) EpisodicPath() string {
	return filepath.Join(c.MemoryDir, "episodic_"+c.ProfileTag+".jsonl")
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
