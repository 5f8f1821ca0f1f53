package wa

import (
	"strings"
	"testing"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/pairgate/pairgate/internal/pairing"
)

func TestCredentialDSN(t *testing.T) {
	dsn := credentialDSN("/tmp/sess/creds.db")
	if !strings.HasPrefix(dsn, "file:/tmp/sess/creds.db?") {
		t.Errorf("dsn = %q", dsn)
	}
	// Rollback journal keeps the credential file self-contained.
	if !strings.Contains(dsn, "journal_mode(DELETE)") {
		t.Errorf("dsn should force journal_mode DELETE, got %q", dsn)
	}
	if !strings.Contains(dsn, "foreign_keys(1)") {
		t.Errorf("dsn should enable foreign keys, got %q", dsn)
	}
}

func TestFailureReason(t *testing.T) {
	tests := []struct {
		name   string
		reason events.ConnectFailureReason
		want   pairing.CloseReason
	}{
		{"logged out", events.ConnectFailureLoggedOut, pairing.ReasonLoggedOut},
		{"temp banned", events.ConnectFailureTempBanned, pairing.ReasonUnauthorized},
		{"client outdated", events.ConnectFailureClientOutdated, pairing.ReasonUnauthorized},
		{"generic", events.ConnectFailureGeneric, pairing.ReasonUnknown},
		{"service unavailable", events.ConnectFailureServiceUnavailable, pairing.ReasonUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := failureReason(tc.reason); got != tc.want {
				t.Errorf("failureReason(%v) = %v, want %v", tc.reason, got, tc.want)
			}
		})
	}
}

func TestHandle_EmitAfterCloseIsNoop(t *testing.T) {
	h := &handle{events: make(chan pairing.Event, 4)}

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	close(h.events)

	// Must not panic on the closed channel.
	h.emit(pairing.Event{Kind: pairing.EventOpen})

	for range h.events {
		t.Fatal("no events should have been delivered")
	}
}

func TestHandle_EmitDropsWhenFull(t *testing.T) {
	h := &handle{events: make(chan pairing.Event, 1)}

	h.emit(pairing.Event{Kind: pairing.EventConnecting})
	h.emit(pairing.Event{Kind: pairing.EventOpen}) // buffer full, dropped

	select {
	case evt := <-h.events:
		if evt.Kind != pairing.EventConnecting {
			t.Errorf("kind = %v, want connecting", evt.Kind)
		}
	default:
		t.Fatal("expected one buffered event")
	}

	select {
	case evt := <-h.events:
		t.Errorf("unexpected second event %v", evt.Kind)
	default:
	}
}

func TestHandle_OnEventMapsCloses(t *testing.T) {
	tests := []struct {
		name       string
		raw        interface{}
		wantReason pairing.CloseReason
		permanent  bool
	}{
		{"logged out", &events.LoggedOut{Reason: events.ConnectFailureLoggedOut}, pairing.ReasonLoggedOut, true},
		{"stream replaced", &events.StreamReplaced{}, pairing.ReasonBadSession, true},
		{"client outdated", &events.ClientOutdated{}, pairing.ReasonUnauthorized, true},
		{"disconnected", &events.Disconnected{}, pairing.ReasonUnknown, false},
		{"connect failure 503", &events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable}, pairing.ReasonUnknown, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := &handle{events: make(chan pairing.Event, 4)}
			h.onEvent(tc.raw)

			select {
			case evt := <-h.events:
				if evt.Kind != pairing.EventClose {
					t.Fatalf("kind = %v, want close", evt.Kind)
				}
				if evt.Reason != tc.wantReason {
					t.Errorf("reason = %v, want %v", evt.Reason, tc.wantReason)
				}
				if evt.Reason.Permanent() != tc.permanent {
					t.Errorf("permanent = %v, want %v", evt.Reason.Permanent(), tc.permanent)
				}
			default:
				t.Fatal("expected a close event")
			}
		})
	}
}

func TestHandle_KeepAliveTimeoutIsNotAClose(t *testing.T) {
	h := &handle{events: make(chan pairing.Event, 4)}
	h.onEvent(&events.KeepAliveTimeout{ErrorCount: 1})

	select {
	case evt := <-h.events:
		t.Errorf("keepalive timeout should not emit, got %v", evt.Kind)
	default:
	}
}

func TestQRLoop_FirstCodeSignalsReadiness(t *testing.T) {
	h := &handle{events: make(chan pairing.Event, 8)}
	items := make(chan whatsmeow.QRChannelItem, 2)
	items <- whatsmeow.QRChannelItem{Event: "code", Code: "2@abc"}
	items <- whatsmeow.QRChannelItem{Event: "code", Code: "2@def"}
	close(items)

	h.qrLoop(items)

	got := drain(h.events)
	want := []pairing.EventKind{pairing.EventOpen, pairing.EventArtifact, pairing.EventArtifact}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Kind != want[i] {
			t.Errorf("event %d kind = %v, want %v", i, got[i].Kind, want[i])
		}
	}
	if got[1].Artifact != "2@abc" || got[2].Artifact != "2@def" {
		t.Errorf("artifacts = %q, %q", got[1].Artifact, got[2].Artifact)
	}
}

func TestQRLoop_TimeoutBecomesTransientClose(t *testing.T) {
	h := &handle{events: make(chan pairing.Event, 8)}
	items := make(chan whatsmeow.QRChannelItem, 1)
	items <- whatsmeow.QRChannelItem{Event: "timeout"}
	close(items)

	h.qrLoop(items)

	got := drain(h.events)
	if len(got) != 1 || got[0].Kind != pairing.EventClose {
		t.Fatalf("got %v, want one close event", got)
	}
	if got[0].Reason.Permanent() {
		t.Error("qr timeout should be transient")
	}
}

func TestQRLoop_SuccessEmitsNothing(t *testing.T) {
	h := &handle{events: make(chan pairing.Event, 8)}
	items := make(chan whatsmeow.QRChannelItem, 1)
	items <- whatsmeow.QRChannelItem{Event: "success"}
	close(items)

	h.qrLoop(items)

	if got := drain(h.events); len(got) != 0 {
		t.Errorf("got %v, want no events", got)
	}
}

func drain(ch chan pairing.Event) []pairing.Event {
	var out []pairing.Event
	for {
		select {
		case evt := <-ch:
			out = append(out, evt)
		default:
			return out
		}
	}
}
