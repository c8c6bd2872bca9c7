package protocol

import (
	"errors"
	"testing"
)

func TestDecodeTriggerWake(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"trigger_wake"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.Type != CmdTriggerWake {
		t.Fatalf("type=%q", cmd.Type)
	}
}

func TestDecodeUpdateConfig(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"update_config","config":{"silence_duration":2.0,"proactivity_level":0.5}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.UpdateConfig == nil || *cmd.UpdateConfig.SilenceDuration != 2.0 {
		t.Fatalf("config: %+v", cmd.UpdateConfig)
	}
	if *cmd.UpdateConfig.ProactivityLevel != 0.5 {
		t.Fatalf("proactivity: %v", *cmd.UpdateConfig.ProactivityLevel)
	}
}

func TestDecodeUpdateConfigValidation(t *testing.T) {
	tests := []string{
		`{"type":"update_config","config":{"silence_duration":0}}`,
		`{"type":"update_config","config":{"silence_duration":-1}}`,
		`{"type":"update_config","config":{"proactivity_level":1.5}}`,
		`{"type":"update_config","config":{"proactivity_level":-0.1}}`,
	}
	for _, raw := range tests {
		if _, err := DecodeCommand([]byte(raw)); err == nil {
			t.Fatalf("accepted %s", raw)
		}
	}
}

func TestDecodeUpdateKnowledge(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"update_knowledge","knowledge":{"interests":["sailing"]}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cmd.UpdateKnowledge == nil || cmd.UpdateKnowledge.Interests == nil {
		t.Fatalf("knowledge: %+v", cmd.UpdateKnowledge)
	}
	if got := *cmd.UpdateKnowledge.Interests; len(got) != 1 || got[0] != "sailing" {
		t.Fatalf("interests: %v", got)
	}
	// Absent fields stay nil so the handler knows not to touch them.
	if cmd.UpdateKnowledge.Name != nil || cmd.UpdateKnowledge.Facts != nil {
		t.Fatalf("unexpected fields set: %+v", cmd.UpdateKnowledge)
	}
}

func TestDecodeRejectsUnknown(t *testing.T) {
	for _, raw := range []string{
		`{"type":"start_dancing"}`,
		`{}`,
		`not json`,
	} {
		_, err := DecodeCommand([]byte(raw))
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("want DecodeError for %q, got %v", raw, err)
		}
	}
}
