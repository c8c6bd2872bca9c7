// Package toolloop runs the bounded agentic cycle between the model and
// the tool-execution collaborator.
package toolloop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/earshot-ai/earshot/pkg/assistant/llm"
	"github.com/earshot-ai/earshot/pkg/assistant/memory"
	"github.com/earshot-ai/earshot/pkg/assistant/tools"
)

// Runner drives one user turn to a final reply. Each iteration queries the
// model; a reply parsing as a tool call is executed and its observation
// folded back into history, anything else is the final answer. The turn
// budget guarantees termination against a model that keeps calling tools.
type Runner struct {
	Client    llm.Client
	Caller    tools.Caller
	Catalogue *tools.Catalogue
	Assembler *memory.Assembler
	Extractor *memory.Extractor
	Profiles  *memory.ProfileStore
	MaxTurns  int
	Logger    *slog.Logger

	// OnThinking fires at the top of each iteration with the 1-based turn
	// number.
	OnThinking func(turn int)
	// OnKnowledge fires after a successful knowledge extraction with the
	// updated profile.
	OnKnowledge func(profile memory.Profile, extraction memory.Extraction)
	// OnToolCall fires after each tool execution, err nil on success.
	OnToolCall func(tool string, err error)
	// Stop reports whether the session is shutting down. Checked before
	// each model query; nil means never stop early.
	Stop func() bool
}

// Result is what a completed loop hands back to the orchestrator.
type Result struct {
	// Reply is the final text to speak. On budget exhaustion this is the
	// last raw reply even when it still looks like a tool call.
	Reply string
	// Turns is how many model queries ran.
	Turns int
	// History is the delta to append to session history, in order: the
	// user line, then assistant/system entries produced by the loop.
	History []llm.Message
}

// Run executes the loop for transcript against the prior session history.
// A model-query failure abandons the turn: the error is returned and no
// memory writes happen.
func (r *Runner) Run(ctx context.Context, transcript string, history []llm.Message) (Result, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxTurns := r.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 5
	}

	contextBlock, err := r.Assembler.Assemble(ctx, transcript)
	if err != nil {
		return Result{}, fmt.Errorf("assemble context: %w", err)
	}
	prefs := strings.Join(r.Profiles.Profile().Preferences, ", ")
	toolsJSON := r.Catalogue.JSON()

	delta := []llm.Message{{Role: "user", Content: transcript}}
	var reply string

	for turn := 1; turn <= maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if r.Stop != nil && r.Stop() {
			// Same contract as budget exhaustion: surface the last raw
			// reply, no memory writes.
			logger.Info("shutdown requested, stopping tool loop", "turn", turn)
			return Result{Reply: reply, Turns: turn - 1, History: delta}, nil
		}
		if r.OnThinking != nil {
			r.OnThinking(turn)
		}

		prompt := llm.BuildPrompt(llm.PromptInput{
			History:     append(append([]llm.Message{}, history...), delta...),
			UserText:    transcript,
			Context:     contextBlock,
			ToolsJSON:   toolsJSON,
			Preferences: prefs,
		})

		reply, err = r.Client.Query(ctx, prompt)
		if err != nil {
			return Result{}, fmt.Errorf("model query: %w", err)
		}

		call, ok := tools.ExtractCall(reply)
		if !ok {
			// Final answer: persist the exchange, then learn from it.
			delta = append(delta, llm.Message{Role: "assistant", Content: reply})
			if err := r.Assembler.Record(ctx, "user", transcript); err != nil {
				logger.Warn("episodic write failed", "role", "user", "error", err)
			}
			if err := r.Assembler.Record(ctx, "assistant", reply); err != nil {
				logger.Warn("episodic write failed", "role", "assistant", "error", err)
			}
			if r.Extractor != nil {
				profile, extraction, changed := r.Extractor.ExtractAndMerge(ctx, transcript, reply)
				if changed && r.OnKnowledge != nil {
					r.OnKnowledge(profile, extraction)
				}
			}
			return Result{Reply: reply, Turns: turn, History: delta}, nil
		}

		observation := r.execute(ctx, call, logger)
		delta = append(delta,
			llm.Message{Role: "assistant", Content: reply},
			llm.Message{Role: "system", Content: "Tool Output: " + observation},
		)
		logger.Info("tool call executed",
			"turn", turn,
			"tool", call.Tool,
			"server", call.Server)
	}

	// Budget exhausted: surface the last reply as-is, no memory writes.
	logger.Warn("tool loop hit turn budget", "max_turns", maxTurns)
	return Result{Reply: reply, Turns: maxTurns, History: delta}, nil
}

func (r *Runner) execute(ctx context.Context, call tools.Call, logger *slog.Logger) string {
	if call.Server == "" {
		return "Error: Server name missing."
	}
	if r.Caller == nil {
		return "Error: Tool execution failed: no tool transport configured"
	}
	result, err := r.Caller.Call(ctx, call)
	if r.OnToolCall != nil {
		r.OnToolCall(call.Tool, err)
	}
	if err != nil {
		logger.Warn("tool execution failed", "tool", call.Tool, "error", err)
		return fmt.Sprintf("Error: Tool execution failed: %v", err)
	}
	return result
}
