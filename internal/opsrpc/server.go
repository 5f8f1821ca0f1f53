// Package opsrpc exposes a local WebSocket RPC endpoint for operating a
// running bot: health, status, and session list/cancel/resume, plus a pushed
// stream of session lifecycle events. The CLI subcommands and external
// dashboards are its clients.
//
// The endpoint binds to loopback by default and authenticates connections
// with a shared token during the connect handshake. Pairing codes and QR
// payloads never cross this surface; lifecycle events carry session
// summaries only.
package opsrpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairgate/pairgate/internal/config"
	"github.com/pairgate/pairgate/internal/dispatch"
	"github.com/pairgate/pairgate/internal/pairing"
	"github.com/pairgate/pairgate/pkg/protocol"
)

// Server accepts WebSocket connections and routes RPC frames.
type Server struct {
	cfg     config.OpsConfig
	orc     *pairing.Orchestrator
	disp    *dispatch.Dispatcher
	version string

	router   *MethodRouter
	upgrader websocket.Upgrader
	httpSrv  *http.Server
	ln       net.Listener
	started  time.Time

	mu      sync.RWMutex
	clients map[*Client]struct{}
	seq     int64
}

// NewServer creates an ops server. disp may be nil when no dispatcher stats
// should be reported.
func NewServer(cfg config.OpsConfig, orc *pairing.Orchestrator, disp *dispatch.Dispatcher, version string) *Server {
	s := &Server{
		cfg:     cfg,
		orc:     orc,
		disp:    disp,
		version: version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth is the token in the connect handshake, not the Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
	}
	s.router = newMethodRouter(s)
	return s
}

// Start begins listening. It returns once the listener is bound; serving
// continues in the background until Stop.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ops listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		s.handleWS(ctx, w, r)
	})

	s.ln = ln
	s.started = time.Now()
	s.httpSrv = &http.Server{Handler: mux}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Warn("ops server error", "error", err)
		}
	}()

	slog.Info("ops endpoint listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop notifies connected clients and shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	if s.httpSrv == nil {
		return
	}

	s.Broadcast(protocol.EventShutdown, map[string]interface{}{
		"reason": "shutting down",
	})

	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clients = make(map[*Client]struct{})
	s.mu.Unlock()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		slog.Warn("ops server shutdown", "error", err)
	}
	slog.Info("ops endpoint stopped")
}

func (s *Server) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := newClient(conn, s)
	s.addClient(client)
	defer func() {
		s.removeClient(client)
		client.Close()
	}()

	slog.Debug("ops client connected", "client", client.id, "remote", r.RemoteAddr)
	client.Run(ctx)
	slog.Debug("ops client disconnected", "client", client.id)
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast pushes an event frame to every authenticated client. Events get a
// monotonically increasing sequence number so clients can detect gaps.
func (s *Server) Broadcast(event string, payload interface{}) {
	s.mu.Lock()
	s.seq++
	frame := protocol.EventFrame{
		Type:    protocol.FrameTypeEvent,
		Event:   event,
		Payload: payload,
		Seq:     s.seq,
	}
	targets := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		if c.isAuthenticated() {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.SendEvent(frame)
	}
}

// Sink returns a pairing lifecycle sink that broadcasts session events to
// connected clients.
func (s *Server) Sink() pairing.Sink {
	names := map[string]string{
		pairing.SinkStarted:   protocol.EventPairingStarted,
		pairing.SinkArtifact:  protocol.EventPairingArtifact,
		pairing.SinkRetry:     protocol.EventPairingRetry,
		pairing.SinkCompleted: protocol.EventPairingCompleted,
		pairing.SinkFailed:    protocol.EventPairingFailed,
		pairing.SinkCancelled: protocol.EventPairingCancelled,
	}
	return func(event string, sum pairing.Summary) {
		name, ok := names[event]
		if !ok {
			return
		}
		s.Broadcast(name, summaryToWire(sum))
	}
}
