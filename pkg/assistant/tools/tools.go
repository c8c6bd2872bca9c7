// Package tools models the external tool surface the model can call into.
package tools

import (
	"context"
	"encoding/json"
	"strings"
)

// Tool describes one callable tool as advertised to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Server      string          `json:"server"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

// Catalogue is the set of tools advertised in the prompt.
type Catalogue struct {
	tools []Tool
}

func NewCatalogue(tools ...Tool) *Catalogue {
	return &Catalogue{tools: tools}
}

func (c *Catalogue) Tools() []Tool { return c.tools }

func (c *Catalogue) Empty() bool { return c == nil || len(c.tools) == 0 }

// JSON renders the catalogue for prompt embedding. Empty catalogues render
// as "", which suppresses the tool section of the prompt entirely.
func (c *Catalogue) JSON() string {
	if c.Empty() {
		return ""
	}
	b, err := json.Marshal(c.tools)
	if err != nil {
		return ""
	}
	return string(b)
}

// Caller executes a tool call against its backing server and returns the
// observation text handed back to the model.
type Caller interface {
	Call(ctx context.Context, call Call) (string, error)
}

// Call is one parsed tool invocation from model output.
type Call struct {
	Tool      string
	Server    string
	Arguments map[string]any
}

// ExtractCall scans model output for a tool invocation. It takes the span
// from the first '{' to the last '}' and requires both "tool" and
// "arguments" keys. The span heuristic is deliberately lossy: text with
// multiple JSON objects or braces in prose will confuse it, and that
// matches how replies are actually produced (a calling model outputs ONLY
// the JSON object).
func ExtractCall(reply string) (Call, bool) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Call{}, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return Call{}, false
	}
	toolRaw, hasTool := raw["tool"]
	argsRaw, hasArgs := raw["arguments"]
	if !hasTool || !hasArgs {
		return Call{}, false
	}

	var call Call
	if err := json.Unmarshal(toolRaw, &call.Tool); err != nil {
		return Call{}, false
	}
	if serverRaw, ok := raw["server"]; ok {
		// Malformed server values are treated as absent; the loop reports
		// the missing server back to the model.
		_ = json.Unmarshal(serverRaw, &call.Server)
	}
	if err := json.Unmarshal(argsRaw, &call.Arguments); err != nil {
		return Call{}, false
	}
	return call, true
}
