package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairgate/pairgate/internal/config"
	"github.com/pairgate/pairgate/pkg/protocol"
)

// opsRPC connects to the running bot's ops endpoint, authenticates, sends one
// RPC call and returns the response.
func opsRPC(method string, params json.RawMessage) (*protocol.ResponseFrame, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnvOverrides()

	if !cfg.Ops.Enabled {
		return nil, fmt.Errorf("ops endpoint is disabled in config")
	}

	host := cfg.Ops.Host
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, cfg.Ops.Port), Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s (is pairgate running?): %w", u.String(), err)
	}
	defer conn.Close()

	connectParams, _ := json.Marshal(map[string]string{"token": cfg.Ops.Token})
	connectReq := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-connect",
		Method: protocol.MethodConnect,
		Params: connectParams,
	}
	if err := conn.WriteJSON(connectReq); err != nil {
		return nil, fmt.Errorf("send connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	connectResp, err := readOpsResponse(conn, "cli-connect")
	if err != nil {
		return nil, err
	}
	if !connectResp.OK {
		msg := "unknown error"
		if connectResp.Error != nil {
			msg = connectResp.Error.Message
		}
		return nil, fmt.Errorf("connect failed: %s", msg)
	}

	rpcReq := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-rpc",
		Method: method,
		Params: params,
	}
	if err := conn.WriteJSON(rpcReq); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return readOpsResponse(conn, "cli-rpc")
}

// readOpsResponse reads frames until the response matching id arrives. The
// server pushes session events to every authenticated client; those are
// skipped here.
func readOpsResponse(conn *websocket.Conn, id string) (*protocol.ResponseFrame, error) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if frameType, _ := protocol.ParseFrameType(msg); frameType == protocol.FrameTypeEvent {
			continue
		}

		var resp protocol.ResponseFrame
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if resp.ID == id {
			return &resp, nil
		}
	}
}
