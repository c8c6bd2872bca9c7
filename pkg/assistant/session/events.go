package session

import "github.com/earshot-ai/earshot/pkg/assistant/memory"

// Event types emitted over the status stream, one per state transition or
// sub-event.
const (
	EventIdle            = "idle"
	EventListening       = "listening"
	EventAudioLevel      = "audio_level"
	EventTranscript      = "transcript"
	EventThinking        = "thinking"
	EventResponse        = "response"
	EventSpeaking        = "speaking"
	EventKnowledgeUpdate = "knowledge_update"
	EventWakeWord        = "wake_word_detected"
	EventError           = "error"
	EventShutdown        = "shutdown"
)

// Event is one status update. Fields beyond Status are populated per type.
type Event struct {
	Status     string             `json:"status"`
	Turn       int                `json:"turn,omitempty"`
	Text       string             `json:"text,omitempty"`
	Level      float64            `json:"level,omitempty"`
	WakeWord   string             `json:"wake_word,omitempty"`
	Message    string             `json:"message,omitempty"`
	Profile    *memory.Profile    `json:"profile,omitempty"`
	Extraction *memory.Extraction `json:"latest_extraction,omitempty"`
}
