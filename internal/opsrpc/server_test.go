package opsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pairgate/pairgate/internal/config"
	"github.com/pairgate/pairgate/internal/pairing"
	"github.com/pairgate/pairgate/pkg/protocol"
)

// startTestServer binds an ops server on an ephemeral port and returns it with
// a cleanup registered.
func startTestServer(t *testing.T, token string) *Server {
	t.Helper()

	orc := pairing.NewOrchestrator(
		pairing.Config{SessionsDir: t.TempDir()},
		pairing.NewStore(),
		nil, nil, nil,
	)
	srv := NewServer(config.OpsConfig{Host: "127.0.0.1", Port: 0, Token: token}, orc, nil, "test")
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})
	return srv
}

func dialTestServer(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendRequest(t *testing.T, conn *websocket.Conn, id, method string, params interface{}) {
	t.Helper()

	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = data
	}
	req := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     id,
		Method: method,
		Params: raw,
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write request: %v", err)
	}
}

func readResponse(t *testing.T, conn *websocket.Conn) protocol.ResponseFrame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read response: %v", err)
		}
		frameType, err := protocol.ParseFrameType(data)
		if err != nil {
			t.Fatalf("parse frame type: %v", err)
		}
		if frameType == protocol.FrameTypeEvent {
			continue
		}
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		return resp
	}
}

func connectClient(t *testing.T, conn *websocket.Conn, token string) {
	t.Helper()

	sendRequest(t, conn, "c1", protocol.MethodConnect, map[string]string{"token": token})
	resp := readResponse(t, conn)
	if !resp.OK {
		t.Fatalf("connect failed: %+v", resp.Error)
	}
}

func TestConnectRejectsBadToken(t *testing.T) {
	srv := startTestServer(t, "secret")
	conn := dialTestServer(t, srv)

	sendRequest(t, conn, "c1", protocol.MethodConnect, map[string]string{"token": "wrong"})
	resp := readResponse(t, conn)
	if resp.OK {
		t.Fatal("connect with wrong token should fail")
	}
	if resp.Error == nil || resp.Error.Code != protocol.ErrUnauthorized {
		t.Errorf("expected %s, got %+v", protocol.ErrUnauthorized, resp.Error)
	}

	// Still unauthenticated, so anything but connect is refused.
	sendRequest(t, conn, "r1", protocol.MethodHealth, nil)
	resp = readResponse(t, conn)
	if resp.OK || resp.Error == nil || resp.Error.Code != protocol.ErrUnauthorized {
		t.Errorf("expected unauthorized before connect, got %+v", resp)
	}
}

func TestFirstRequestMustBeConnect(t *testing.T) {
	srv := startTestServer(t, "")
	conn := dialTestServer(t, srv)

	sendRequest(t, conn, "r1", protocol.MethodStatus, nil)
	resp := readResponse(t, conn)
	if resp.OK || resp.Error == nil || resp.Error.Code != protocol.ErrUnauthorized {
		t.Errorf("expected unauthorized, got %+v", resp)
	}
}

func TestConnectHealthStatus(t *testing.T) {
	srv := startTestServer(t, "secret")
	conn := dialTestServer(t, srv)
	connectClient(t, conn, "secret")

	sendRequest(t, conn, "h1", protocol.MethodHealth, nil)
	resp := readResponse(t, conn)
	if !resp.OK {
		t.Fatalf("health failed: %+v", resp.Error)
	}

	sendRequest(t, conn, "s1", protocol.MethodStatus, nil)
	resp = readResponse(t, conn)
	if !resp.OK {
		t.Fatalf("status failed: %+v", resp.Error)
	}
	payload, ok := resp.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected status payload: %T", resp.Payload)
	}
	if payload["sessions"] != float64(0) {
		t.Errorf("expected 0 sessions, got %v", payload["sessions"])
	}
	if payload["clients"] != float64(1) {
		t.Errorf("expected 1 client, got %v", payload["clients"])
	}
}

func TestEmptyTokenAllowsConnect(t *testing.T) {
	srv := startTestServer(t, "")
	conn := dialTestServer(t, srv)
	connectClient(t, conn, "")
}

func TestUnknownMethod(t *testing.T) {
	srv := startTestServer(t, "")
	conn := dialTestServer(t, srv)
	connectClient(t, conn, "")

	sendRequest(t, conn, "u1", "no.such.method", nil)
	resp := readResponse(t, conn)
	if resp.OK || resp.Error == nil || resp.Error.Code != protocol.ErrInvalidRequest {
		t.Errorf("expected invalid request, got %+v", resp)
	}
}

func TestSessionsListEmpty(t *testing.T) {
	srv := startTestServer(t, "")
	conn := dialTestServer(t, srv)
	connectClient(t, conn, "")

	sendRequest(t, conn, "l1", protocol.MethodSessionsList, nil)
	resp := readResponse(t, conn)
	if !resp.OK {
		t.Fatalf("sessions.list failed: %+v", resp.Error)
	}
}

func TestSessionsCancelUnknownChat(t *testing.T) {
	srv := startTestServer(t, "")
	conn := dialTestServer(t, srv)
	connectClient(t, conn, "")

	sendRequest(t, conn, "x1", protocol.MethodSessionsCancel, map[string]string{"chat": "telegram:404"})
	resp := readResponse(t, conn)
	if resp.OK || resp.Error == nil || resp.Error.Code != protocol.ErrNotFound {
		t.Errorf("expected not found, got %+v", resp)
	}

	// Missing chat param
	sendRequest(t, conn, "x2", protocol.MethodSessionsCancel, nil)
	resp = readResponse(t, conn)
	if resp.OK || resp.Error == nil || resp.Error.Code != protocol.ErrInvalidRequest {
		t.Errorf("expected invalid request, got %+v", resp)
	}
}

func TestSinkBroadcastsToConnectedClients(t *testing.T) {
	srv := startTestServer(t, "")
	conn := dialTestServer(t, srv)
	connectClient(t, conn, "")

	sink := srv.Sink()
	sink(pairing.SinkStarted, pairing.Summary{
		ID:        uuid.Must(uuid.NewV7()),
		Chat:      "telegram:42",
		Method:    pairing.MethodCode,
		State:     pairing.StateInitiating,
		StartedAt: time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var evt protocol.EventFrame
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.Event != protocol.EventPairingStarted {
		t.Errorf("expected %s, got %s", protocol.EventPairingStarted, evt.Event)
	}
	if evt.Seq != 1 {
		t.Errorf("expected seq 1, got %d", evt.Seq)
	}
	payload, ok := evt.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected event payload: %T", evt.Payload)
	}
	if payload["chat"] != "telegram:42" {
		t.Errorf("expected chat in payload, got %v", payload["chat"])
	}
}

func TestSessionErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{pairing.ErrNoActiveSession, protocol.ErrNotFound},
		{pairing.ErrNotResumable, protocol.ErrFailedPrecondition},
		{pairing.ErrBusy, protocol.ErrFailedPrecondition},
		{errors.New("boom"), protocol.ErrInternal},
	}
	for _, tc := range tests {
		if got := sessionErrorCode(tc.err); got != tc.want {
			t.Errorf("sessionErrorCode(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestSummaryToWire(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	started := time.Now()
	wire := summaryToWire(pairing.Summary{
		ID:         id,
		Chat:       "discord:7",
		Target:     "4917012345678",
		Method:     pairing.MethodCode,
		State:      pairing.StateConnecting,
		StartedAt:  started,
		Cancelling: true,
	})

	if wire.ID != id.String() {
		t.Errorf("ID = %s, want %s", wire.ID, id)
	}
	if wire.Chat != "discord:7" || wire.Target != "4917012345678" {
		t.Errorf("unexpected chat/target: %+v", wire)
	}
	if wire.Method != "code" || wire.State != "connecting" {
		t.Errorf("unexpected method/state: %+v", wire)
	}
	if wire.StartedAt != started.UnixMilli() {
		t.Errorf("StartedAt = %d, want %d", wire.StartedAt, started.UnixMilli())
	}
	if !wire.Cancelling {
		t.Error("expected cancelling flag")
	}
}
