package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Commands adapts orchestrator operations into user-facing replies. Channels
// parse their own command syntax, call these, and relay the returned text
// verbatim. An empty reply means the orchestrator already said (or will say)
// everything through the Notifier.
type Commands struct {
	Orc *Orchestrator
}

// Start launches a session and phrases the outcome. The returned bool
// reports whether the operation was accepted.
func (c *Commands) Start(ctx context.Context, chat, target string, method Method) (string, bool) {
	err := c.Orc.StartPairing(ctx, chat, target, method)
	switch {
	case err == nil:
		return "Setting up your pairing session...", true
	case errors.Is(err, ErrAlreadyActive):
		return "A pairing is already in progress for this chat. Send /cancel to stop it first.", false
	case errors.Is(err, ErrInvalidTarget):
		return "That doesn't look like a phone number. Use the international format, e.g. /pair 254712345678.", false
	case errors.Is(err, ErrBusy):
		return "Too many pairings are running right now. Try again in a minute.", false
	default:
		return fmt.Sprintf("Could not start pairing: %v", err), false
	}
}

// Cancel stops the chat's session. On success the orchestrator reports the
// confirmation itself, so the reply stays empty.
func (c *Commands) Cancel(ctx context.Context, chat string) (string, bool) {
	err := c.Orc.Cancel(ctx, chat)
	switch {
	case err == nil:
		return "", true
	case errors.Is(err, ErrNoActiveSession):
		return "There is no pairing to cancel in this chat.", false
	default:
		return fmt.Sprintf("Could not cancel: %v", err), false
	}
}

// Resume reopens a dropped connection for the chat's session.
func (c *Commands) Resume(ctx context.Context, chat string) (string, bool) {
	err := c.Orc.Resume(ctx, chat)
	switch {
	case err == nil:
		return "Reconnecting...", true
	case errors.Is(err, ErrNoActiveSession):
		return "There is no pairing to resume in this chat. Send /pair <number> or /qr to begin.", false
	case errors.Is(err, ErrNotResumable):
		return "Your pairing is still running — nothing to resume.", false
	default:
		return fmt.Sprintf("Could not resume: %v", err), false
	}
}

// Status describes the chat's session in one line.
func (c *Commands) Status(chat string) (string, bool) {
	sum, ok := c.Orc.Session(chat)
	if !ok {
		return "No pairing in progress. Send /pair <number> or /qr to begin.", false
	}

	age := time.Since(sum.StartedAt).Round(time.Second)
	switch {
	case sum.Cancelling:
		return "Your pairing is being cancelled.", true
	case sum.State == StateRetrying:
		return fmt.Sprintf("Pairing via %s, connection dropped (running %s). Send /resume to reconnect or /cancel to stop.", sum.Method, age), true
	case sum.State == StateAwaitingInput:
		return fmt.Sprintf("Pairing via %s, waiting for you to finish on your device (running %s).", sum.Method, age), true
	default:
		return fmt.Sprintf("Pairing via %s, currently %s (running %s).", sum.Method, sum.State, age), true
	}
}
