// Command earshot runs the always-listening voice assistant: audio capture,
// wake detection, the conversational state machine, and the control gateway.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/earshot-ai/earshot/pkg/assistant/audio"
	"github.com/earshot-ai/earshot/pkg/assistant/config"
	"github.com/earshot-ai/earshot/pkg/assistant/detect"
	"github.com/earshot-ai/earshot/pkg/assistant/llm"
	"github.com/earshot-ai/earshot/pkg/assistant/memory"
	"github.com/earshot-ai/earshot/pkg/assistant/session"
	"github.com/earshot-ai/earshot/pkg/assistant/speech"
	"github.com/earshot-ai/earshot/pkg/assistant/toolloop"
	"github.com/earshot-ai/earshot/pkg/assistant/tools"
	"github.com/earshot-ai/earshot/pkg/gateway/hub"
	"github.com/earshot-ai/earshot/pkg/gateway/metrics"
	"github.com/earshot-ai/earshot/pkg/gateway/server"
)

func main() {
	_ = godotenv.Load()

	logger := newLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("EARSHOT_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if err := cfg.ValidateRequirements(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	capture := audio.NewCaptureStream(audio.CaptureConfig{
		SampleRateHz: cfg.SampleRateHz,
		Channels:     cfg.Channels,
		FrameMS:      cfg.FrameDurationMS,
		QueueDepth:   cfg.FrameQueueDepth,
	}, logger)
	if err := capture.Open(ctx); err != nil {
		return err
	}
	defer capture.Close()

	var player audio.Player
	if speaker, err := audio.NewSpeakerPlayer(cfg.SampleRateHz, logger); err != nil {
		logger.Warn("no playback device, discarding audio output", "error", err)
		player = audio.NewDiscardPlayer()
	} else {
		player = speaker
	}
	defer player.Close()

	m := metrics.New()

	transcriber := speech.NewWhisperTranscriber(cfg.WhisperBin, cfg.WhisperModel, logger)
	transcriber.Observe = m.ExternalCall
	synthesizer := speech.NewPiperSynthesizer(cfg.PiperBin, cfg.PiperModel, logger)
	synthesizer.Observe = m.ExternalCall

	var client llm.Client
	switch cfg.LLMBackend {
	case config.LLMBackendGemini:
		client, err = llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			return err
		}
	default:
		ollama := llm.NewOllamaClient(cfg.OllamaBin, cfg.OllamaModel, logger)
		ollama.Observe = m.ExternalCall
		client = ollama
	}

	var store memory.Store
	if cfg.MemoryDSN != "" {
		store, err = memory.OpenPostgresStore(ctx, cfg.MemoryDSN, logger)
	} else {
		store, err = memory.OpenLocalStore(cfg.EpisodicPath())
	}
	if err != nil {
		return err
	}
	defer store.Close()

	profiles, err := memory.OpenProfileStore(cfg.ProfilePath())
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	registry.Register(tools.LocalServerName, tools.LocalServer())

	runner := &toolloop.Runner{
		Client:     client,
		Caller:     registry,
		Catalogue:  tools.NewCatalogue(tools.LocalTools()...),
		Assembler:  memory.NewAssembler(profiles, store, cfg.MemoryTopK, logger),
		Extractor:  memory.NewExtractor(client, profiles, logger),
		Profiles:   profiles,
		MaxTurns:   cfg.MaxToolTurns,
		Logger:     logger,
		OnToolCall: m.ToolCall,
	}

	// Without a dedicated wake model the energy classifier turns the wake
	// stage into voice activation. Phrase-level wakes (and the pause phrase)
	// need a classifier per phrase.
	wakes := []session.Wake{{
		Label: cfg.WakePhrase,
		Listener: detect.NewWakeListener(
			detect.EnergyClassifier{Threshold: cfg.SilenceThreshold},
			1.0,
			cfg.WakePollInterval,
			2*cfg.SampleRateHz,
		),
	}}

	orch, err := session.New(session.Dependencies{
		Source:      capture,
		Player:      player,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		Runner:      runner,
		Profiles:    profiles,
		Wakes:       wakes,
		Metrics:     m,
		Logger:      logger,
	}, session.Config{
		ArtifactsDir:     cfg.ArtifactsDir,
		SampleRateHz:     cfg.SampleRateHz,
		SilenceThreshold: cfg.SilenceThreshold,
		SilenceDuration:  cfg.SilenceDuration,
		MaxRecording:     cfg.MaxRecordingTime,
		WakePollInterval: cfg.WakePollInterval,
		PausePhrase:      cfg.PausePhrase,
		StopPhrase:       cfg.StopPhrase,
		GoodbyePhrase:    cfg.GoodbyePhrase,
		ProactivityLevel: cfg.ProactivityLevel,
		ProactiveMinIdle: cfg.ProactiveMinIdle,
		MaxHistoryLen:    cfg.MaxHistoryLen,
		BargeInPreroll:   cfg.BargeInPreroll,
		EventQueueSize:   cfg.EventQueueSize,
	})
	if err != nil {
		return err
	}

	h := hub.New(orch, hub.Config{
		WriteTimeout: cfg.WSWriteTimeout,
		PingInterval: cfg.WSPingInterval,
		SendQueue:    cfg.EventQueueSize,
	}, m, logger)
	go h.Pump(orch.Events())

	srv := server.New(server.Config{
		Addr:              cfg.Addr,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		GracePeriod:       cfg.ShutdownGracePeriod,
	}, h, m.Handler(), logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("gateway failed", "error", err)
			orch.Shutdown()
		}
	}()

	logger.Info("assistant ready",
		"session_id", orch.ID(),
		"backend", string(cfg.LLMBackend),
		"wake_phrase", cfg.WakePhrase,
	)

	runErr := orch.Run(ctx)

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	return runErr
}
