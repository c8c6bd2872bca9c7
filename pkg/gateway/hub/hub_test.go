package hub

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/earshot-ai/earshot/pkg/assistant/memory"
	"github.com/earshot-ai/earshot/pkg/assistant/session"
)

type fakeController struct {
	mu        sync.Mutex
	wakes     int
	shutdowns int
	configs   []session.ConfigUpdate
	updates   []memory.Update
	profile   memory.Profile
}

func (f *fakeController) ID() string { return "sess_test" }

func (f *fakeController) Profile() memory.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile.Clone()
}

func (f *fakeController) TriggerWake() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakes++
}

func (f *fakeController) UpdateConfig(u session.ConfigUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, u)
}

func (f *fakeController) UpdateKnowledge(u memory.Update) (memory.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return f.profile.Clone(), nil
}

func (f *fakeController) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return frame
}

func TestConnectGreeting(t *testing.T) {
	ctrl := &fakeController{profile: memory.Profile{Name: "Ada"}}
	h := New(ctrl, Config{}, nil, slog.New(slog.DiscardHandler))
	conn := dial(t, h)

	frame := readFrame(t, conn)
	if frame["type"] != "connected" || frame["session_id"] != "sess_test" {
		t.Fatalf("first frame: %v", frame)
	}
	frame = readFrame(t, conn)
	if frame["type"] != "knowledge_update" {
		t.Fatalf("second frame: %v", frame)
	}
	profile, _ := frame["profile"].(map[string]any)
	if profile["name"] != "Ada" {
		t.Fatalf("profile: %v", frame["profile"])
	}
}

func TestCommandDispatch(t *testing.T) {
	ctrl := &fakeController{}
	h := New(ctrl, Config{}, nil, slog.New(slog.DiscardHandler))
	conn := dial(t, h)
	readFrame(t, conn)
	readFrame(t, conn)

	send := func(raw string) {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	send(`{"type":"trigger_wake"}`)
	send(`{"type":"update_config","config":{"silence_duration":2.5,"proactivity_level":0.25}}`)
	send(`{"type":"update_knowledge","knowledge":{"name":"Grace"}}`)
	send(`{"type":"shutdown"}`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ctrl.mu.Lock()
		done := ctrl.wakes == 1 && len(ctrl.configs) == 1 && len(ctrl.updates) == 1 && ctrl.shutdowns == 1
		ctrl.mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.wakes != 1 || ctrl.shutdowns != 1 {
		t.Fatalf("wakes=%d shutdowns=%d", ctrl.wakes, ctrl.shutdowns)
	}
	if len(ctrl.configs) != 1 {
		t.Fatalf("configs: %v", ctrl.configs)
	}
	u := ctrl.configs[0]
	if u.SilenceDuration == nil || *u.SilenceDuration != 2500*time.Millisecond {
		t.Fatalf("silence: %v", u.SilenceDuration)
	}
	if u.ProactivityLevel == nil || *u.ProactivityLevel != 0.25 {
		t.Fatalf("proactivity: %v", u.ProactivityLevel)
	}
	if len(ctrl.updates) != 1 || ctrl.updates[0].Name == nil || *ctrl.updates[0].Name != "Grace" {
		t.Fatalf("updates: %+v", ctrl.updates)
	}
}

func TestBadCommandGetsErrorFrame(t *testing.T) {
	ctrl := &fakeController{}
	h := New(ctrl, Config{}, nil, slog.New(slog.DiscardHandler))
	conn := dial(t, h)
	readFrame(t, conn)
	readFrame(t, conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"start_dancing"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["code"] != "bad_request" {
		t.Fatalf("frame: %v", frame)
	}
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.wakes != 0 && ctrl.shutdowns != 0 {
		t.Fatalf("controller touched by bad command")
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	ctrl := &fakeController{}
	h := New(ctrl, Config{}, nil, slog.New(slog.DiscardHandler))
	conn := dial(t, h)
	readFrame(t, conn)
	readFrame(t, conn)

	h.Broadcast(session.Event{Status: session.EventTranscript, Text: "hello there"})

	frame := readFrame(t, conn)
	if frame["status"] != session.EventTranscript || frame["text"] != "hello there" {
		t.Fatalf("frame: %v", frame)
	}
}

// A client that stops reading must not stall broadcasts to anyone.
func TestBroadcastNeverBlocksOnFullQueue(t *testing.T) {
	ctrl := &fakeController{}
	h := New(ctrl, Config{SendQueue: 2}, nil, slog.New(slog.DiscardHandler))

	// Registered but with no write pump draining it.
	stuck := &client{send: make(chan []byte, 2)}
	h.mu.Lock()
	h.clients[stuck] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Broadcast(session.Event{Status: session.EventIdle})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client queue")
	}
	if got := len(stuck.send); got != 2 {
		t.Fatalf("queued=%d, want 2", got)
	}
}
