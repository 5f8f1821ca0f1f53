// Package wa adapts whatsmeow to the pairing orchestrator's connection
// contract. Each Open builds an isolated device store inside the session
// directory, so one chat's pairing never sees another's credentials, and the
// whole session can be erased by removing that directory.
package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	_ "modernc.org/sqlite"

	"github.com/pairgate/pairgate/internal/pairing"
)

const (
	// credentialFile matches the name the orchestrator reads after
	// registration.
	credentialFile = "creds.db"

	// connectTimeout bounds how long a connection may take to reach
	// readiness before it is reported as a transient close.
	connectTimeout = 60 * time.Second

	// eventBuffer absorbs bursts from whatsmeow's handler goroutine while
	// the session loop is busy sending a notification.
	eventBuffer = 32

	// pairDisplayName is shown in the account's linked-devices list.
	pairDisplayName = "Chrome (Linux)"
)

var errConnectTimeout = errors.New("connection did not become ready in time")

// Connector opens whatsmeow-backed pairing connections.
type Connector struct{}

// NewConnector creates the production connector.
func NewConnector() *Connector {
	return &Connector{}
}

// Open builds the device store under sessionPath, connects, and returns a
// handle streaming connection events. The credential database is kept in
// rollback-journal mode so the single file is a complete snapshot when the
// orchestrator reads it.
func (c *Connector) Open(ctx context.Context, sessionPath string) (pairing.Handle, error) {
	dsn := credentialDSN(filepath.Join(sessionPath, credentialFile))
	container, err := sqlstore.New(ctx, "sqlite", dsn, newLogger("wa.store"))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, newLogger("wa.client"))

	h := &handle{
		client:    client,
		container: container,
		events:    make(chan pairing.Event, eventBuffer),
	}
	client.AddEventHandler(h.onEvent)

	// The QR channel must be requested before Connect on an unregistered
	// device. Its first code doubles as the readiness signal: codes only
	// flow once the handshake reached the pairing stage.
	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			h.teardown()
			return nil, fmt.Errorf("request qr channel: %w", err)
		}
		go h.qrLoop(qrChan)
	}

	h.emit(pairing.Event{Kind: pairing.EventConnecting})

	// Armed before Connect so the handler goroutine never observes a half
	// initialized handle.
	h.connectTimer = time.AfterFunc(connectTimeout, h.onConnectTimeout)

	if err := client.Connect(); err != nil {
		h.connectTimer.Stop()
		h.teardown()
		return nil, fmt.Errorf("connect: %w", err)
	}
	return h, nil
}

// credentialDSN builds the sqlite DSN for a credential file. Rollback
// journal mode keeps everything in one file; WAL would leave sidecar files
// the uploaded snapshot could not include.
func credentialDSN(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(DELETE)" +
		"&_pragma=busy_timeout(10000)"
}

// handle is one live connection. Its event channel closes when the handle
// is closed.
type handle struct {
	client    *whatsmeow.Client
	container *sqlstore.Container

	events       chan pairing.Event
	connectTimer *time.Timer

	mu     sync.Mutex
	closed bool
	ready  bool // readiness was signalled at least once

	closeOnce sync.Once
}

// Events streams connection events to the session loop.
func (h *handle) Events() <-chan pairing.Event {
	return h.events
}

// Registered reports whether the device store holds a linked account.
func (h *handle) Registered() bool {
	return h.client.Store.ID != nil
}

// RequestPairingCode asks the server for a phone-pairing code.
func (h *handle) RequestPairingCode(ctx context.Context, target string) (string, error) {
	code, err := h.client.PairPhone(ctx, target, true, whatsmeow.PairClientChrome, pairDisplayName)
	if err != nil {
		return "", fmt.Errorf("pair phone: %w", err)
	}
	return code, nil
}

// Logout unlinks the device from the account.
func (h *handle) Logout(ctx context.Context) error {
	return h.client.Logout(ctx)
}

// Close stops event delivery, disconnects, and releases the store. Safe to
// call more than once.
func (h *handle) Close() {
	h.closeOnce.Do(func() {
		if h.connectTimer != nil {
			h.connectTimer.Stop()
		}

		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		close(h.events)

		h.teardown()
	})
}

func (h *handle) teardown() {
	h.client.RemoveEventHandlers()
	h.client.Disconnect()
	if err := h.container.Close(); err != nil {
		slog.Warn("device store close failed", "error", err)
	}
}

// emit delivers an event unless the handle is closed. Delivery is
// non-blocking: with the consumer gone the buffer absorbs what it can and
// the rest is dropped.
func (h *handle) emit(evt pairing.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.events <- evt:
	default:
		slog.Warn("wa event dropped, buffer full", "kind", evt.Kind)
	}
}

// signalReady emits the open event and disarms the connect timeout. Repeat
// calls emit again: every re-established connection must produce an open so
// the session loop can re-evaluate.
func (h *handle) signalReady() {
	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()
	if h.connectTimer != nil {
		h.connectTimer.Stop()
	}
	h.emit(pairing.Event{Kind: pairing.EventOpen})
}

func (h *handle) onConnectTimeout() {
	h.mu.Lock()
	ready := h.ready
	h.mu.Unlock()
	if ready {
		return
	}
	slog.Warn("wa connection timed out before readiness")
	h.emit(pairing.Event{
		Kind:   pairing.EventClose,
		Reason: pairing.ReasonUnknown,
		Err:    errConnectTimeout,
	})
	h.client.Disconnect()
}

// onEvent maps whatsmeow events onto the orchestrator's event model.
func (h *handle) onEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Connected:
		h.signalReady()

	case *events.Disconnected:
		// whatsmeow reconnects on its own after unexpected drops; the
		// orchestrator only needs to know the connection is gone for now.
		h.emit(pairing.Event{Kind: pairing.EventClose, Reason: pairing.ReasonUnknown})

	case *events.LoggedOut:
		h.emit(pairing.Event{
			Kind:   pairing.EventClose,
			Reason: pairing.ReasonLoggedOut,
			Err:    fmt.Errorf("logged out (%s)", evt.Reason),
		})

	case *events.StreamReplaced:
		h.emit(pairing.Event{
			Kind:   pairing.EventClose,
			Reason: pairing.ReasonBadSession,
			Err:    errors.New("stream replaced by another client"),
		})

	case *events.TemporaryBan:
		h.emit(pairing.Event{
			Kind:   pairing.EventClose,
			Reason: pairing.ReasonUnauthorized,
			Err:    fmt.Errorf("temporary ban: code %d, expires in %v", evt.Code, evt.Expire),
		})

	case *events.ClientOutdated:
		h.emit(pairing.Event{
			Kind:   pairing.EventClose,
			Reason: pairing.ReasonUnauthorized,
			Err:    errors.New("client version rejected"),
		})

	case *events.ConnectFailure:
		h.emit(pairing.Event{
			Kind:   pairing.EventClose,
			Reason: failureReason(evt.Reason),
			Err:    fmt.Errorf("connect failure: %s", evt.Message),
		})

	case *events.KeepAliveTimeout:
		// Not a close: the socket is still up and whatsmeow keeps probing.
		slog.Debug("wa keepalive timeout", "error_count", evt.ErrorCount)
	}
}

// failureReason classifies a connect failure for the orchestrator.
func failureReason(r events.ConnectFailureReason) pairing.CloseReason {
	switch {
	case r.IsLoggedOut():
		return pairing.ReasonLoggedOut
	case r == events.ConnectFailureTempBanned || r == events.ConnectFailureClientOutdated:
		return pairing.ReasonUnauthorized
	default:
		return pairing.ReasonUnknown
	}
}

// qrLoop bridges the QR channel. The first code marks readiness; every code
// is forwarded as an artifact. Terminal items become close events, except
// success, which the Connected event already covers.
func (h *handle) qrLoop(qrChan <-chan whatsmeow.QRChannelItem) {
	first := true
	for item := range qrChan {
		switch item.Event {
		case "code":
			if first {
				h.signalReady()
				first = false
			}
			h.emit(pairing.Event{Kind: pairing.EventArtifact, Artifact: item.Code})

		case "success":
			// Registration done; Connected follows with the open event.

		case "timeout":
			h.emit(pairing.Event{
				Kind:   pairing.EventClose,
				Reason: pairing.ReasonUnknown,
				Err:    errors.New("pairing window timed out"),
			})

		case "err-client-outdated":
			h.emit(pairing.Event{
				Kind:   pairing.EventClose,
				Reason: pairing.ReasonUnauthorized,
				Err:    errors.New("client version rejected"),
			})

		default:
			h.emit(pairing.Event{
				Kind:   pairing.EventClose,
				Reason: pairing.ReasonUnknown,
				Err:    fmt.Errorf("pairing aborted: %s", item.Event),
			})
		}
	}
}
