// Package llm defines the model-query contract and the prompt shape shared
// by every backend.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Client answers a single fully-rendered prompt. Implementations must be
// safe for sequential reuse; the control loop issues one query at a time.
type Client interface {
	Query(ctx context.Context, prompt string) (string, error)
}

// Message is one prior exchange line carried into the prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const systemPreamble = "You are Earshot, a capable and intelligent voice assistant. " +
	"You have access to external tools to help the user. " +
	"Use these tools silently and naturally to fulfill requests. " +
	"Do NOT list your tools or explain your capabilities unless explicitly asked. " +
	"Answer conversationally and concisely (1-3 sentences)."

// PromptInput gathers everything that goes into one model prompt.
type PromptInput struct {
	History     []Message
	UserText    string
	Context     string
	ToolsJSON   string
	Preferences string
}

// BuildPrompt renders the flat single-string prompt both backends consume:
// system line, optional preference hint, optional tool catalogue with the
// call convention, optional context block, then uppercased history lines and
// the pending user turn.
func BuildPrompt(in PromptInput) string {
	lines := []string{systemPreamble}

	if in.Preferences != "" {
		lines = append(lines, "IMPORTANT - ADAPT TO USER PREFERENCES: "+in.Preferences)
	}
	if in.ToolsJSON != "" {
		lines = append(lines, "\nAVAILABLE TOOLS (Use JSON to call):\n"+in.ToolsJSON+"\n")
		lines = append(lines, `To call a tool, output ONLY a JSON object: {"tool": "tool_name", "server": "server_name", "arguments": {...}}`)
	}
	if in.Context != "" {
		lines = append(lines, "\nCONTEXT:\n"+in.Context+"\n")
	}
	for _, m := range in.History {
		lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(m.Role), m.Content))
	}
	lines = append(lines, "USER: "+in.UserText)
	lines = append(lines, "ASSISTANT:")
	return strings.Join(lines, "\n")
}
