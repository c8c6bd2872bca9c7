// Package hub fans the orchestrator's status events out to WebSocket
// clients and routes inbound control commands back to it.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/earshot-ai/earshot/pkg/assistant/memory"
	"github.com/earshot-ai/earshot/pkg/assistant/session"
	"github.com/earshot-ai/earshot/pkg/gateway/protocol"
)

// Controller is the command surface the hub drives; the session
// orchestrator implements it.
type Controller interface {
	ID() string
	Profile() memory.Profile
	TriggerWake()
	UpdateConfig(session.ConfigUpdate)
	UpdateKnowledge(memory.Update) (memory.Profile, error)
	Shutdown()
}

// Observer receives hub-level metrics. Nil is valid.
type Observer interface {
	ClientConnected()
	ClientDisconnected()
	Command(cmdType string, ok bool)
}

// Config shapes per-connection behavior.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	SendQueue    int
}

func (c *Config) fillDefaults() {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.SendQueue == 0 {
		c.SendQueue = 64
	}
}

type Hub struct {
	ctrl     Controller
	cfg      Config
	logger   *slog.Logger
	observer Observer
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func New(ctrl Controller, cfg Config, observer Observer, logger *slog.Logger) *Hub {
	cfg.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		ctrl:     ctrl,
		cfg:      cfg,
		logger:   logger,
		observer: observer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local control surface; the host is trusted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[*client]struct{}{},
	}
}

// Pump forwards every orchestrator event to all clients. It returns when
// the event channel closes.
func (h *Hub) Pump(events <-chan session.Event) {
	for ev := range events {
		h.Broadcast(ev)
	}
	h.closeAll()
}

// Broadcast sends v to every connected client. A client whose send queue is
// full loses this message; the broadcast never blocks.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("broadcast encode failed", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client send queue full, dropping event")
		}
	}
}

// ServeHTTP upgrades the connection and services it until either side
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, h.cfg.SendQueue)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.observer != nil {
		h.observer.ClientConnected()
	}
	h.logger.Info("client connected", "clients", n)

	// Greet with the session id and the current profile.
	h.sendTo(c, protocol.Connected{Type: protocol.FrameConnected, SessionID: h.ctrl.ID()})
	h.sendTo(c, protocol.KnowledgeUpdate{Type: protocol.FrameKnowledgeUpdate, Profile: h.ctrl.Profile()})

	go h.writePump(c)
	h.readLoop(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	if h.observer != nil {
		h.observer.ClientDisconnected()
	}
	h.logger.Info("client disconnected")
}

func (h *Hub) sendTo(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (h *Hub) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleCommand(c, data)
	}
}

func (h *Hub) handleCommand(c *client, data []byte) {
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		h.logger.Warn("bad command", "error", err)
		if h.observer != nil {
			h.observer.Command("unknown", false)
		}
		h.sendTo(c, protocol.NewErrorFrame(err))
		return
	}

	ok := true
	switch cmd.Type {
	case protocol.CmdTriggerWake:
		h.ctrl.TriggerWake()
	case protocol.CmdShutdown:
		h.ctrl.Shutdown()
	case protocol.CmdUpdateConfig:
		var u session.ConfigUpdate
		if cmd.UpdateConfig.SilenceDuration != nil {
			d := time.Duration(*cmd.UpdateConfig.SilenceDuration * float64(time.Second))
			u.SilenceDuration = &d
		}
		u.ProactivityLevel = cmd.UpdateConfig.ProactivityLevel
		h.ctrl.UpdateConfig(u)
	case protocol.CmdUpdateKnowledge:
		if _, err := h.ctrl.UpdateKnowledge(*cmd.UpdateKnowledge); err != nil {
			h.logger.Error("knowledge update failed", "error", err)
			h.sendTo(c, protocol.NewErrorFrame(err))
			ok = false
		}
	}
	if h.observer != nil {
		h.observer.Command(cmd.Type, ok)
	}
	h.logger.Info("command handled", "type", cmd.Type, "ok", ok)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (c *client) close() {
	c.once.Do(func() {
		_ = c.conn.Close()
	})
}
