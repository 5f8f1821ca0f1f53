package opsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/pairgate/pairgate/internal/pairing"
	"github.com/pairgate/pairgate/pkg/protocol"
)

// MethodHandler processes a single RPC method request.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter maps method names to handlers.
type MethodRouter struct {
	handlers map[string]MethodHandler
	server   *Server
}

func newMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		handlers: make(map[string]MethodHandler),
		server:   server,
	}
	r.registerDefaults()
	return r
}

// Register adds a method handler.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.handlers[method] = handler
}

// Handle dispatches a request to the appropriate handler.
func (r *MethodRouter) Handle(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		slog.Warn("unknown method", "method", req.Method, "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(
			req.ID,
			protocol.ErrInvalidRequest,
			"unknown method: "+req.Method,
		))
		return
	}

	slog.Debug("handling method", "method", req.Method, "client", client.id, "req_id", req.ID)
	handler(ctx, client, req)
}

func (r *MethodRouter) registerDefaults() {
	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodHealth, r.handleHealth)
	r.Register(protocol.MethodStatus, r.handleStatus)
	r.Register(protocol.MethodSessionsList, r.handleSessionsList)
	r.Register(protocol.MethodSessionsCancel, r.handleSessionsCancel)
	r.Register(protocol.MethodSessionsResume, r.handleSessionsResume)
}

// --- Built-in handlers ---

func (r *MethodRouter) handleConnect(_ context.Context, client *Client, req *protocol.RequestFrame) {
	var params struct {
		Token string `json:"token"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}

	// An empty configured token means the endpoint is open; it binds to
	// loopback by default, so that is a deliberate local-only mode.
	configToken := r.server.cfg.Token
	if configToken != "" && params.Token != configToken {
		slog.Warn("ops connect rejected", "client", client.id)
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "invalid token"))
		return
	}

	client.setAuthenticated()
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"protocol": protocol.ProtocolVersion,
		"server": map[string]interface{}{
			"name":    "pairgate",
			"version": r.server.version,
		},
	}))
}

func (r *MethodRouter) handleHealth(_ context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"status": "ok",
	}))
}

func (r *MethodRouter) handleStatus(_ context.Context, client *Client, req *protocol.RequestFrame) {
	payload := map[string]interface{}{
		"sessions": len(r.server.orc.Sessions()),
		"clients":  r.server.clientCount(),
		"uptime_s": int64(time.Since(r.server.started).Seconds()),
	}
	if r.server.disp != nil {
		payload["lanes"] = r.server.disp.LaneStats()
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, payload))
}

func (r *MethodRouter) handleSessionsList(_ context.Context, client *Client, req *protocol.RequestFrame) {
	summaries := r.server.orc.Sessions()
	wire := make([]protocol.SessionSummary, 0, len(summaries))
	for _, s := range summaries {
		wire = append(wire, summaryToWire(s))
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"sessions": wire,
	}))
}

func (r *MethodRouter) handleSessionsCancel(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	chat, ok := chatParam(client, req)
	if !ok {
		return
	}

	if err := r.server.orc.Cancel(ctx, chat); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, sessionErrorCode(err), err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"cancelled": true,
	}))
}

func (r *MethodRouter) handleSessionsResume(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	chat, ok := chatParam(client, req)
	if !ok {
		return
	}

	if err := r.server.orc.Resume(ctx, chat); err != nil {
		client.SendResponse(protocol.NewErrorResponse(req.ID, sessionErrorCode(err), err.Error()))
		return
	}
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"resumed": true,
	}))
}

// chatParam extracts the required "chat" param, replying with an error frame
// when it is missing.
func chatParam(client *Client, req *protocol.RequestFrame) (string, bool) {
	var params struct {
		Chat string `json:"chat"`
	}
	if req.Params != nil {
		json.Unmarshal(req.Params, &params)
	}
	if params.Chat == "" {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "chat is required"))
		return "", false
	}
	return params.Chat, true
}

// sessionErrorCode maps orchestrator errors onto protocol error codes.
func sessionErrorCode(err error) string {
	switch {
	case errors.Is(err, pairing.ErrNoActiveSession):
		return protocol.ErrNotFound
	case errors.Is(err, pairing.ErrNotResumable), errors.Is(err, pairing.ErrBusy):
		return protocol.ErrFailedPrecondition
	default:
		return protocol.ErrInternal
	}
}

// summaryToWire converts an orchestrator snapshot to its wire shape.
func summaryToWire(s pairing.Summary) protocol.SessionSummary {
	return protocol.SessionSummary{
		ID:         s.ID.String(),
		Chat:       s.Chat,
		Target:     s.Target,
		Method:     string(s.Method),
		State:      string(s.State),
		StartedAt:  s.StartedAt.UnixMilli(),
		Cancelling: s.Cancelling,
	}
}
