package tools

import (
	"context"
	"strings"
	"testing"
)

func TestExtractCallBasic(t *testing.T) {
	call, ok := ExtractCall(`{"tool": "weather", "server": "home", "arguments": {"city": "Oslo"}}`)
	if !ok {
		t.Fatal("call not extracted")
	}
	if call.Tool != "weather" || call.Server != "home" {
		t.Fatalf("call = %+v", call)
	}
	if call.Arguments["city"] != "Oslo" {
		t.Fatalf("arguments = %v", call.Arguments)
	}
}

func TestExtractCallIgnoresSurroundingText(t *testing.T) {
	reply := `Sure, let me check. {"tool": "weather", "arguments": {}} One moment.`
	call, ok := ExtractCall(reply)
	if !ok {
		t.Fatal("call not extracted from wrapped text")
	}
	if call.Tool != "weather" {
		t.Fatalf("tool = %q", call.Tool)
	}
	if call.Server != "" {
		t.Fatalf("server = %q, want empty", call.Server)
	}
}

func TestExtractCallSpanIsLossy(t *testing.T) {
	// Two JSON objects: the first-brace/last-brace span covers both and
	// fails to parse. That outcome is part of the contract.
	reply := `{"tool": "a", "arguments": {}} and {"tool": "b", "arguments": {}}`
	if _, ok := ExtractCall(reply); ok {
		t.Fatal("lossy span unexpectedly parsed")
	}
}

func TestExtractCallRequiresBothKeys(t *testing.T) {
	tests := []string{
		`{"tool": "weather"}`,
		`{"arguments": {}}`,
		`{"name": "weather", "arguments": {}}`,
		`plain text without braces`,
		`{broken json`,
		`}{`,
	}
	for _, reply := range tests {
		if _, ok := ExtractCall(reply); ok {
			t.Fatalf("extracted a call from %q", reply)
		}
	}
}

func TestCatalogueJSON(t *testing.T) {
	c := NewCatalogue(Tool{Name: "weather", Description: "current weather", Server: "home"})
	s := c.JSON()
	if !strings.Contains(s, `"name":"weather"`) {
		t.Fatalf("catalogue json = %s", s)
	}

	var empty *Catalogue
	if empty.JSON() != "" {
		t.Fatal("nil catalogue should render empty")
	}
	if NewCatalogue().JSON() != "" {
		t.Fatal("empty catalogue should render empty")
	}
}

func TestRegistryRoutesByServer(t *testing.T) {
	r := NewRegistry()
	r.Register("weather", CallerFunc(func(_ context.Context, call Call) (string, error) {
		return "observation for " + call.Tool, nil
	}))

	got, err := r.Call(context.Background(), Call{Tool: "get_forecast", Server: "weather"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "observation for get_forecast" {
		t.Fatalf("got %q", got)
	}
	if _, err := r.Call(context.Background(), Call{Tool: "x", Server: "nope"}); err == nil {
		t.Fatal("unknown server accepted")
	}
}

func TestLocalServerTime(t *testing.T) {
	out, err := LocalServer().Call(context.Background(), Call{Tool: "get_current_time", Server: LocalServerName})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if out == "" {
		t.Fatal("empty observation")
	}
	if _, err := LocalServer().Call(context.Background(), Call{Tool: "fly"}); err == nil {
		t.Fatal("unknown tool accepted")
	}
}
