// Package server wires the gateway's HTTP surface: health, metrics, and
// the event WebSocket.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/earshot-ai/earshot/pkg/gateway/mw"
)

type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	GracePeriod       time.Duration
}

func (c *Config) fillDefaults() {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 10 * time.Second
	}
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	srv    *http.Server
}

// New builds the server. events handles the WebSocket endpoint, metrics the
// scrape endpoint.
func New(cfg Config, events, metrics http.Handler, logger *slog.Logger) *Server {
	cfg.fillDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.Handle("GET /metrics", metrics)
	mux.Handle("GET /v1/events", events)

	var handler http.Handler = mux
	handler = mw.Recover(logger, handler)
	handler = mw.AccessLog(logger, handler)
	handler = mw.RequestID(handler)

	return &Server{
		cfg:    cfg,
		logger: logger,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
// http.ErrServerClosed is filtered out.
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway listening", "addr", s.cfg.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GracePeriod)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
