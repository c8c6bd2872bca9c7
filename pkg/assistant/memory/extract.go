package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/earshot-ai/earshot/pkg/assistant/llm"
)

// Extraction is what one post-turn knowledge pass learned about the user.
// The zero value means "nothing new".
type Extraction struct {
	Facts     map[string]string `json:"facts"`
	Interests []string          `json:"interests"`
	Name      string            `json:"name"`
}

func (e Extraction) Empty() bool {
	return len(e.Facts) == 0 && len(e.Interests) == 0 && e.Name == ""
}

const extractionPromptFormat = `Based on this conversation, extract any facts about the user that should be remembered.

User: %s
Assistant: %s

Extract ONLY factual information about the user (name, preferences, interests, locations, relationships, etc.).
Format your response as JSON:
{
  "facts": {
    "key": "value"
  },
  "interests": ["topic1", "topic2"],
  "name": "their name if mentioned"
}

If nothing new was learned, return: {"facts": {}, "interests": [], "name": null}
Only extract information explicitly stated or strongly implied. Do not make assumptions.
`

// Extractor runs the post-turn knowledge pass: ask the model what was
// learned, merge it into the profile, save. Any failure — query error,
// unparseable reply — yields an empty extraction; knowledge extraction is
// never allowed to break a turn.
type Extractor struct {
	Client   llm.Client
	Profiles *ProfileStore
	Logger   *slog.Logger
}

func NewExtractor(client llm.Client, profiles *ProfileStore, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Client: client, Profiles: profiles, Logger: logger}
}

// ExtractAndMerge returns the updated profile, what was extracted, and
// whether anything changed.
func (x *Extractor) ExtractAndMerge(ctx context.Context, userText, assistantText string) (Profile, Extraction, bool) {
	prompt := fmt.Sprintf(extractionPromptFormat, userText, assistantText)
	reply, err := x.Client.Query(ctx, prompt)
	if err != nil {
		x.Logger.Warn("knowledge extraction query failed", "error", err)
		return x.Profiles.Profile(), Extraction{}, false
	}

	extraction := parseExtraction(reply)
	if extraction.Empty() {
		return x.Profiles.Profile(), Extraction{}, false
	}

	profile, err := x.Profiles.Merge(extraction)
	if err != nil {
		x.Logger.Error("profile save failed", "error", err)
		return x.Profiles.Profile(), Extraction{}, false
	}
	x.Logger.Info("knowledge extracted",
		"facts", len(extraction.Facts),
		"interests", len(extraction.Interests),
		"named", extraction.Name != "")
	return profile, extraction, true
}

// parseExtraction applies the first-brace/last-brace span heuristic used for
// tool calls. Anything that does not parse is treated as "nothing learned".
func parseExtraction(reply string) Extraction {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Extraction{}
	}
	var e Extraction
	if err := json.Unmarshal([]byte(reply[start:end+1]), &e); err != nil {
		return Extraction{}
	}
	return e
}
