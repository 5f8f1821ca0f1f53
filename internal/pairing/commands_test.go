package pairing

import (
	"context"
	"strings"
	"testing"
)

func TestCommands_Start(t *testing.T) {
	f := newFixture(t, Config{})
	cmds := &Commands{Orc: f.orc}
	f.conn.enqueue(newFakeHandle())

	reply, ok := cmds.Start(context.Background(), "telegram:1", "", MethodQR)
	if !ok || !strings.Contains(reply, "Setting up") {
		t.Fatalf("start reply = (%q, %v)", reply, ok)
	}

	reply, ok = cmds.Start(context.Background(), "telegram:1", "", MethodQR)
	if ok || !strings.Contains(reply, "/cancel") {
		t.Errorf("duplicate start reply = (%q, %v), want rejection hinting /cancel", reply, ok)
	}

	reply, ok = cmds.Start(context.Background(), "discord:2", "not-a-number", MethodCode)
	if ok || !strings.Contains(reply, "phone number") {
		t.Errorf("invalid target reply = (%q, %v)", reply, ok)
	}
}

func TestCommands_CancelAndResume(t *testing.T) {
	f := newFixture(t, Config{})
	cmds := &Commands{Orc: f.orc}

	reply, ok := cmds.Cancel(context.Background(), "telegram:1")
	if ok || !strings.Contains(reply, "no pairing to cancel") {
		t.Errorf("cancel without session = (%q, %v)", reply, ok)
	}

	reply, ok = cmds.Resume(context.Background(), "telegram:1")
	if ok || !strings.Contains(reply, "no pairing to resume") {
		t.Errorf("resume without session = (%q, %v)", reply, ok)
	}

	f.conn.enqueue(newFakeHandle())
	if _, ok := cmds.Start(context.Background(), "telegram:1", "", MethodQR); !ok {
		t.Fatal("start rejected")
	}

	reply, ok = cmds.Resume(context.Background(), "telegram:1")
	if ok || !strings.Contains(reply, "still running") {
		t.Errorf("resume while live = (%q, %v)", reply, ok)
	}

	// Success path relays the confirmation through the notifier instead.
	reply, ok = cmds.Cancel(context.Background(), "telegram:1")
	if !ok || reply != "" {
		t.Errorf("cancel reply = (%q, %v), want empty success", reply, ok)
	}
	if f.notify.textCount("Pairing cancelled") != 1 {
		t.Error("orchestrator confirmation missing")
	}
}

func TestCommands_Status(t *testing.T) {
	f := newFixture(t, Config{})
	cmds := &Commands{Orc: f.orc}

	reply, ok := cmds.Status("telegram:1")
	if ok || !strings.Contains(reply, "/pair") {
		t.Errorf("status without session = (%q, %v)", reply, ok)
	}

	h := newFakeHandle()
	f.conn.enqueue(h)
	if _, ok := cmds.Start(context.Background(), "telegram:1", "", MethodQR); !ok {
		t.Fatal("start rejected")
	}

	reply, ok = cmds.Status("telegram:1")
	if !ok || !strings.Contains(reply, string(MethodQR)) {
		t.Errorf("status = (%q, %v)", reply, ok)
	}

	h.push(Event{Kind: EventClose, Reason: ReasonUnknown})
	sess, _ := f.store.Get("telegram:1")
	waitFor(t, "retrying state", func() bool { return sess.State() == StateRetrying })

	reply, ok = cmds.Status("telegram:1")
	if !ok || !strings.Contains(reply, "/resume") {
		t.Errorf("retrying status = (%q, %v), want /resume hint", reply, ok)
	}
}
