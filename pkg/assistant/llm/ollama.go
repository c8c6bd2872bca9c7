package llm

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/earshot-ai/earshot/pkg/assistant/speech"
)

// OllamaClient queries a local model through the ollama CLI, prompt on
// stdin, reply on stdout.
type OllamaClient struct {
	Bin     string
	Model   string
	Logger  *slog.Logger
	Observe speech.Observe
}

func NewOllamaClient(bin, model string, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{Bin: bin, Model: model, Logger: logger}
}

func (c *OllamaClient) Query(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	args := []string{"run", c.Model}
	cmd := exec.CommandContext(ctx, c.Bin, args...)
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if c.Observe != nil {
		c.Observe(c.Bin, time.Since(start), err)
	}
	if err != nil {
		return "", &speech.ExternalToolError{Tool: c.Bin, Args: args, Stderr: stderr.String(), Err: err}
	}
	reply := strings.TrimSpace(stdout.String())
	c.Logger.Debug("model query complete",
		"backend", "ollama",
		"model", c.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(reply))
	return reply, nil
}
