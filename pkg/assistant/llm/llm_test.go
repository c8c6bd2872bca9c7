package llm

import (
	"strings"
	"testing"
)

func TestBuildPromptMinimal(t *testing.T) {
	p := BuildPrompt(PromptInput{UserText: "what time is it"})

	if !strings.HasSuffix(p, "USER: what time is it\nASSISTANT:") {
		t.Fatalf("prompt tail wrong:\n%s", p)
	}
	if strings.Contains(p, "AVAILABLE TOOLS") {
		t.Fatal("tool section present without tools")
	}
	if strings.Contains(p, "CONTEXT:") {
		t.Fatal("context section present without context")
	}
}

func TestBuildPromptSections(t *testing.T) {
	p := BuildPrompt(PromptInput{
		History: []Message{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
			{Role: "system", Content: "Tool Output: 42"},
		},
		UserText:    "thanks",
		Context:     "Current Time: Monday",
		ToolsJSON:   `[{"name":"weather"}]`,
		Preferences: "be brief",
	})

	for _, want := range []string{
		"IMPORTANT - ADAPT TO USER PREFERENCES: be brief",
		"AVAILABLE TOOLS (Use JSON to call):",
		`[{"name":"weather"}]`,
		`{"tool": "tool_name", "server": "server_name", "arguments": {...}}`,
		"CONTEXT:\nCurrent Time: Monday",
		"USER: hello",
		"ASSISTANT: hi there",
		"SYSTEM: Tool Output: 42",
		"USER: thanks",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}

	// History precedes the pending user line, which precedes the cue.
	if strings.Index(p, "USER: hello") > strings.Index(p, "USER: thanks") {
		t.Fatal("history not before pending user turn")
	}
	if !strings.HasSuffix(p, "ASSISTANT:") {
		t.Fatal("prompt does not end with the assistant cue")
	}
}
