// Package speech shells out to the local transcription and synthesis
// binaries. Both are treated as opaque collaborators: a failure is wrapped
// in ExternalToolError and surfaced to the turn, never fatal to the process.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/earshot-ai/earshot/pkg/assistant/audio"
)

// ExternalToolError reports a failed subprocess with enough context to
// diagnose it from logs.
type ExternalToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// Transcriber converts a recorded utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, u *audio.Utterance) (string, error)
}

// Synthesizer converts text to playable PCM16.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (pcm []byte, sampleRateHz int, err error)
}

// Observe reports one finished subprocess invocation, for metrics. Nil is
// valid.
type Observe func(command string, elapsed time.Duration, err error)

// WhisperTranscriber runs whisper.cpp's CLI against a temp WAV file.
type WhisperTranscriber struct {
	Bin     string
	Model   string
	Logger  *slog.Logger
	Observe Observe
}

func NewWhisperTranscriber(bin, model string, logger *slog.Logger) *WhisperTranscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhisperTranscriber{Bin: bin, Model: model, Logger: logger}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, u *audio.Utterance) (string, error) {
	if u == nil || len(u.Samples) == 0 {
		return "", nil
	}
	tmp := filepath.Join(os.TempDir(), "earshot_stt_"+uuid.NewString()+".wav")
	if err := os.WriteFile(tmp, u.WAVBytes(), 0o600); err != nil {
		return "", fmt.Errorf("write transcription input: %w", err)
	}
	defer os.Remove(tmp)

	args := []string{"-f", tmp, "--no-timestamps", "--no-prints"}
	if w.Model != "" {
		args = append([]string{"-m", w.Model}, args...)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, w.Bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if w.Observe != nil {
		w.Observe(w.Bin, time.Since(start), err)
	}
	if err != nil {
		return "", &ExternalToolError{Tool: w.Bin, Args: args, Stderr: stderr.String(), Err: err}
	}

	text := strings.TrimSpace(stdout.String())
	w.Logger.Debug("transcription complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(text))
	return text, nil
}

// PiperSynthesizer runs piper with the text on stdin and reads the WAV it
// writes.
type PiperSynthesizer struct {
	Bin     string
	Model   string
	Logger  *slog.Logger
	Observe Observe
}

func NewPiperSynthesizer(bin, model string, logger *slog.Logger) *PiperSynthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PiperSynthesizer{Bin: bin, Model: model, Logger: logger}
}

func (p *PiperSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, nil
	}
	out := filepath.Join(os.TempDir(), "earshot_tts_"+uuid.NewString()+".wav")
	defer os.Remove(out)

	args := []string{"--output_file", out}
	if p.Model != "" {
		args = append([]string{"--model", p.Model}, args...)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, p.Bin, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if p.Observe != nil {
		p.Observe(p.Bin, time.Since(start), err)
	}
	if err != nil {
		return nil, 0, &ExternalToolError{Tool: p.Bin, Args: args, Stderr: stderr.String(), Err: err}
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, 0, fmt.Errorf("read synthesis output: %w", err)
	}
	pcm, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode synthesis output: %w", err)
	}
	p.Logger.Debug("synthesis complete",
		"duration_ms", time.Since(start).Milliseconds(),
		"pcm_bytes", len(pcm),
		"sample_rate_hz", rate)
	return pcm, rate, nil
}
