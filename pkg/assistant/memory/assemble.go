package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Assembler builds the per-turn context block: the current time, the user
// profile and the most relevant past conversation lines.
type Assembler struct {
	Profiles *ProfileStore
	Store    Store
	TopK     int
	Logger   *slog.Logger

	now func() time.Time
}

func NewAssembler(profiles *ProfileStore, store Store, topK int, logger *slog.Logger) *Assembler {
	if topK <= 0 {
		topK = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{Profiles: profiles, Store: store, TopK: topK, Logger: logger, now: time.Now}
}

// Assemble renders the context for one query. A failed memory search
// degrades to an empty memories section rather than failing the turn.
func (a *Assembler) Assemble(ctx context.Context, query string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Time: %s\n", a.now().Format("Monday, January 02, 2006 03:04 PM"))
	fmt.Fprintf(&b, "User Profile: %s\n", a.Profiles.Profile())

	memories, err := a.Store.Search(ctx, query, a.TopK)
	if err != nil {
		a.Logger.Warn("memory search failed", "error", err)
		memories = nil
	}
	if len(memories) > 0 {
		b.WriteString("\nRelevant Past Conversations:\n")
		for _, m := range memories {
			role := m.Role
			if role == "" {
				role = "unknown"
			}
			fmt.Fprintf(&b, "- %s: %s\n", role, m.Text)
		}
	}
	return b.String(), nil
}

// Record appends one conversation line to episodic memory.
func (a *Assembler) Record(ctx context.Context, role, text string) error {
	ts := a.now()
	return a.Store.Add(ctx, Entry{
		ID:        EntryID(ts, role),
		Role:      role,
		Text:      text,
		Type:      "conversation",
		Timestamp: ts,
	})
}
