// Package protocol defines the frames exchanged over the event WebSocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/earshot-ai/earshot/pkg/assistant/memory"
)

// Command types accepted from clients.
const (
	CmdTriggerWake     = "trigger_wake"
	CmdUpdateConfig    = "update_config"
	CmdUpdateKnowledge = "update_knowledge"
	CmdShutdown        = "shutdown"
)

// Server frame types (status events carry their own "status" field and are
// not enveloped).
const (
	FrameConnected       = "connected"
	FrameKnowledgeUpdate = "knowledge_update"
	FrameError           = "error"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// UpdateConfig carries the runtime-tunable knobs. SilenceDuration is in
// seconds on the wire.
type UpdateConfig struct {
	SilenceDuration  *float64 `json:"silence_duration,omitempty"`
	ProactivityLevel *float64 `json:"proactivity_level,omitempty"`
}

// Command is one decoded client frame. Exactly one payload field is
// non-nil, matching Type.
type Command struct {
	Type            string
	UpdateConfig    *UpdateConfig
	UpdateKnowledge *memory.Update
}

type envelope struct {
	Type string `json:"type"`
}

// DecodeCommand parses a client frame. Unknown or malformed frames yield a
// DecodeError.
func DecodeCommand(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Command{}, badRequest("malformed json", "")
	}
	switch env.Type {
	case CmdTriggerWake, CmdShutdown:
		return Command{Type: env.Type}, nil
	case CmdUpdateConfig:
		var frame struct {
			Config UpdateConfig `json:"config"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return Command{}, badRequest("malformed update_config", "config")
		}
		if frame.Config.SilenceDuration != nil && *frame.Config.SilenceDuration <= 0 {
			return Command{}, badRequest("silence_duration must be > 0", "config.silence_duration")
		}
		if frame.Config.ProactivityLevel != nil &&
			(*frame.Config.ProactivityLevel < 0 || *frame.Config.ProactivityLevel > 1) {
			return Command{}, badRequest("proactivity_level must be in [0, 1]", "config.proactivity_level")
		}
		return Command{Type: env.Type, UpdateConfig: &frame.Config}, nil
	case CmdUpdateKnowledge:
		var frame struct {
			Knowledge memory.Update `json:"knowledge"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return Command{}, badRequest("malformed update_knowledge", "knowledge")
		}
		return Command{Type: env.Type, UpdateKnowledge: &frame.Knowledge}, nil
	case "":
		return Command{}, badRequest("missing type", "type")
	default:
		return Command{}, badRequest("unknown command type", "type")
	}
}

// Connected is the first frame sent to a new client.
type Connected struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// KnowledgeUpdate announces the current user profile, sent on connect and
// after manual edits.
type KnowledgeUpdate struct {
	Type    string         `json:"type"`
	Profile memory.Profile `json:"profile"`
}

// ErrorFrame reports a rejected command back to the sending client only.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func NewErrorFrame(err error) ErrorFrame {
	if de, ok := err.(*DecodeError); ok {
		return ErrorFrame{Type: FrameError, Code: de.Code, Message: de.Message, Param: de.Param}
	}
	return ErrorFrame{Type: FrameError, Code: "internal", Message: err.Error()}
}
