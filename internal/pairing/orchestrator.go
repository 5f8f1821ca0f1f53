// Package pairing drives WhatsApp-style device-pairing sessions for chat
// conversations.
//
// One session links one external account per chat:
//  1. The user asks for a pairing code (/pair <number>) or a QR scan (/qr)
//  2. The orchestrator opens a handshake connection and relays artifacts
//     (numeric code or QR image) to the chat
//  3. Once the device registers, the credential file is published to blob
//     storage and the user receives a compact session identifier
//  4. The connection is logged out and every trace of the session (store
//     entry, credential directory) is removed
//
// Sessions are fully independent across chats; within one chat, connection
// events are consumed by a single goroutine in delivery order. The
// orchestrator never reconnects on its own after a transient drop: the
// connection library retries internally, and Resume is the manual path.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pairgate/pairgate/internal/qr"
	"github.com/pairgate/pairgate/internal/tracing"
)

const (
	// SessionIDPrefix precedes the storage path component in the final
	// session identifier handed to the user.
	SessionIDPrefix = "PAIRGATE~"

	// CredentialFileName is the credential file inside a session directory.
	// The connection adapter writes it; the upload sub-flow reads it.
	CredentialFileName = "creds.db"

	// artifactDebounce suppresses an identical pairing artifact re-sent
	// within this window. The same window bounds how long an issued artifact
	// is treated as current when a connection re-opens unregistered.
	artifactDebounce = 30 * time.Second

	// defaultSettleDelay is the wait between registration and the credential
	// read, giving the adapter time to flush the file.
	defaultSettleDelay = 3 * time.Second

	// sendTimeout bounds a single notification send. Handshake calls are
	// bounded by the adapter, not here.
	sendTimeout = 15 * time.Second
)

// Lifecycle event names passed to a Sink.
const (
	SinkStarted   = "started"
	SinkArtifact  = "artifact"
	SinkRetry     = "retry"
	SinkCompleted = "completed"
	SinkFailed    = "failed"
	SinkCancelled = "cancelled"
)

// Sink receives session lifecycle notifications for operational surfaces.
// Implementations must not block.
type Sink func(event string, s Summary)

// Config tunes an Orchestrator.
type Config struct {
	// SessionsDir receives one subdirectory per session.
	SessionsDir string
	// SettleDelay overrides the wait before the credential read. Zero keeps
	// the default.
	SettleDelay time.Duration
	// MaxActive caps concurrent sessions across all chats. Zero means no cap.
	MaxActive int
}

// Orchestrator owns every pairing session and the rules that move them
// between states.
type Orchestrator struct {
	cfg     Config
	store   *Store
	conn    Connector
	notify  Notifier
	publish Publisher

	sink  Sink
	spans *tracing.Collector

	wg sync.WaitGroup
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithSink attaches a lifecycle event sink.
func WithSink(sink Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithTracing attaches a span collector.
func WithTracing(c *tracing.Collector) Option {
	return func(o *Orchestrator) { o.spans = c }
}

// NewOrchestrator wires an orchestrator with its collaborators. The store
// must be dedicated to this orchestrator.
func NewOrchestrator(cfg Config, store *Store, conn Connector, notify Notifier, publish Publisher, opts ...Option) *Orchestrator {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	o := &Orchestrator{
		cfg:     cfg,
		store:   store,
		conn:    conn,
		notify:  notify,
		publish: publish,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartPairing begins a fresh session for chat. For MethodCode, target must
// be a phone number and is normalized before any connection is opened. The
// initial artifact reaches the user through the Notifier once the connection
// reports readiness.
//
// The returned error is one of the sentinels in errors.go or a wrapped setup
// failure; callers turn it into the user-facing reply.
func (o *Orchestrator) StartPairing(ctx context.Context, chat, target string, method Method) error {
	switch method {
	case MethodCode:
		normalized, err := NormalizeTarget(target)
		if err != nil {
			return err
		}
		target = normalized
	case MethodQR:
		target = ""
	default:
		return fmt.Errorf("unknown pairing method %q", method)
	}

	if o.cfg.MaxActive > 0 && o.store.Len() >= o.cfg.MaxActive {
		return ErrBusy
	}

	sess := newSession(chat, target, method, o.cfg.SessionsDir)
	if existing, ok := o.store.Claim(sess); !ok {
		return fmt.Errorf("%w (state %s)", ErrAlreadyActive, existing.State())
	}

	slog.Info("pairing session starting", "chat", chat, "method", method, "session", sess.ID)
	o.emit(SinkStarted, sess)

	return o.attach(ctx, sess)
}

// Resume reopens the connection for a session parked after a transient drop,
// reusing its credential directory. Resume never fires automatically; it is
// the explicit recovery path next to the adapter's internal reconnect.
func (o *Orchestrator) Resume(ctx context.Context, chat string) error {
	sess, ok := o.store.Get(chat)
	if !ok || sess.Cancelling() {
		return ErrNoActiveSession
	}
	if sess.State() != StateRetrying {
		return fmt.Errorf("%w (state %s)", ErrNotResumable, sess.State())
	}

	if old := sess.takeHandle(); old != nil {
		old.Close()
	}
	slog.Info("resuming pairing session", "chat", chat, "session", sess.ID)
	return o.attach(ctx, sess)
}

// Cancel stops the chat's session. The first call wins: it sets the cancel
// flag, tears the session down and reports exactly one confirmation. The
// teardown waits for any in-flight upload to resolve first; a cancel that
// lands while one is already past Publish lets that attempt finish.
func (o *Orchestrator) Cancel(ctx context.Context, chat string) error {
	sess, ok := o.store.Get(chat)
	if !ok || sess.Cancelling() {
		return ErrNoActiveSession
	}
	if !sess.markCancelling() {
		// Lost the race with another Cancel; that caller confirms.
		return ErrNoActiveSession
	}

	slog.Info("cancelling pairing session", "chat", chat, "state", sess.State())

	sess.flowMu.Lock()
	o.cleanup(ctx, sess, true)
	sess.flowMu.Unlock()

	sess.setState(StateCancelled)
	o.sendText(sess, msgCancelled())
	o.emit(SinkCancelled, sess)
	return nil
}

// Sessions snapshots every active session, oldest first.
func (o *Orchestrator) Sessions() []Summary {
	var out []Summary
	o.store.Range(func(s *Session) bool {
		out = append(out, s.Summary())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Session returns the snapshot for one chat.
func (o *Orchestrator) Session(chat string) (Summary, bool) {
	sess, ok := o.store.Get(chat)
	if !ok {
		return Summary{}, false
	}
	return sess.Summary(), true
}

// Shutdown cancels every active session and waits for their event loops,
// bounded by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	var chats []string
	o.store.Range(func(s *Session) bool {
		chats = append(chats, s.Chat)
		return true
	})
	for _, chat := range chats {
		if err := o.Cancel(ctx, chat); err != nil && !errors.Is(err, ErrNoActiveSession) {
			slog.Warn("shutdown cancel failed", "chat", chat, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("shutdown timed out waiting for session loops")
	}
}

// attach creates the session directory, opens a connection and hands the
// event stream to a dedicated goroutine. Any failure here is a setup error:
// the session is torn down and the chat is free to start over.
func (o *Orchestrator) attach(ctx context.Context, sess *Session) error {
	if err := os.MkdirAll(sess.Dir, 0o700); err != nil {
		o.store.Remove(sess)
		sess.setState(StateFailed)
		o.emit(SinkFailed, sess)
		return fmt.Errorf("create session dir: %w", err)
	}

	sess.setState(StateConnecting)
	opened := time.Now()
	handle, err := o.conn.Open(ctx, sess.Dir)
	if err != nil {
		o.removeArtifacts(sess)
		o.store.Remove(sess)
		sess.setState(StateFailed)
		o.emit(SinkFailed, sess)
		return fmt.Errorf("open connection: %w", err)
	}
	o.span(sess, "pairing.connect", "connect", opened, "ok", "")
	sess.setHandle(handle)

	o.wg.Add(1)
	go o.runSession(sess, handle)
	return nil
}

// runSession consumes the handle's event stream until a terminal transition
// or until the stream closes. It is the only goroutine acting on events for
// its session; Cancel synchronizes through the cancel flag and flowMu.
func (o *Orchestrator) runSession(sess *Session, h Handle) {
	defer o.wg.Done()

	for evt := range h.Events() {
		if sess.Cancelling() {
			// Cancel owns the teardown; the close event is just the signal
			// that the connection is gone and this loop can stop.
			if evt.Kind == EventClose {
				return
			}
			continue
		}

		switch evt.Kind {
		case EventConnecting:
			o.handleConnecting(sess)
		case EventArtifact:
			o.handleArtifact(sess, h, evt.Artifact)
		case EventOpen:
			if o.handleOpen(sess, h) {
				return
			}
		case EventClose:
			if o.handleClose(sess, evt) {
				return
			}
		}
	}
}

func (o *Orchestrator) handleConnecting(sess *Session) {
	sess.setState(StateConnecting)
	// Deliberately not debounced: a reconnecting adapter should be visible.
	o.sendText(sess, msgConnecting())
}

// handleArtifact relays a QR payload as an image. Identical payloads inside
// the debounce window collapse into a single notification.
func (o *Orchestrator) handleArtifact(sess *Session, h Handle, payload string) {
	if sess.Method != MethodQR || payload == "" || h.Registered() {
		return
	}
	sess.setState(StateAwaitingInput)

	now := time.Now()
	if !sess.allowNotice(noticeQR, payload, now) {
		slog.Debug("qr artifact debounced", "chat", sess.Chat)
		return
	}

	png, err := qr.Render(payload)
	if err != nil {
		slog.Warn("qr render failed", "chat", sess.Chat, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := o.notify.SendImage(ctx, sess.Chat, png, msgQRCaption()); err != nil {
		slog.Warn("qr send failed", "chat", sess.Chat, "error", err)
		return
	}
	sess.recordNotice(noticeQR, payload, now)
	o.span(sess, "pairing.artifact", "artifact", now, "ok", "")
	o.emit(SinkArtifact, sess)
}

// handleOpen applies the open-event decision table. Returns true when the
// session reached a terminal state and the loop should stop.
func (o *Orchestrator) handleOpen(sess *Session, h Handle) bool {
	last, hasLast := sess.lastNotice()

	if h.Registered() {
		if hasLast && last.kind == noticeSessionID {
			// Stale reconnect of a session whose ID was already delivered.
			slog.Info("stale reconnect after completion", "chat", sess.Chat)
			o.cleanup(context.Background(), sess, false)
			sess.setState(StateCompleted)
			return true
		}
		sess.setState(StateRegistered)
		o.finalize(sess)
		return true
	}

	if hasLast && last.kind.artifact() {
		// Reconnected while an artifact is outstanding. Past the debounce
		// window the artifact has almost certainly expired on the remote end.
		if time.Since(last.sentAt) > artifactDebounce {
			sess.clearNotice()
			o.sendText(sess, msgArtifactExpired())
		} else {
			o.sendText(sess, msgArtifactStillValid())
		}
		sess.setState(StateAwaitingInput)
		return false
	}

	// Fresh readiness. Code sessions ask for their code now; QR sessions
	// receive artifact events on their own.
	if sess.Method == MethodCode {
		return o.issueCode(sess, h)
	}
	sess.setState(StateAwaitingInput)
	return false
}

// issueCode requests a pairing code and relays it. A request failure is a
// setup error: the session fails permanently and the user starts over.
func (o *Orchestrator) issueCode(sess *Session, h Handle) bool {
	code, err := h.RequestPairingCode(context.Background(), sess.Target)
	if err != nil {
		slog.Error("pairing code request failed", "chat", sess.Chat, "error", err)
		o.sendText(sess, msgCodeRequestFailed(err))
		o.cleanup(context.Background(), sess, false)
		sess.setState(StateFailed)
		o.emit(SinkFailed, sess)
		return true
	}

	now := time.Now()
	if sess.allowNotice(noticeCode, code, now) {
		o.sendText(sess, msgCodeIssued(code))
		sess.recordNotice(noticeCode, code, now)
		o.span(sess, "pairing.artifact", "artifact", now, "ok", "")
		o.emit(SinkArtifact, sess)
	}
	sess.setState(StateAwaitingInput)
	slog.Info("pairing code issued", "chat", sess.Chat, "target", sess.Target)
	return false
}

// handleClose classifies a dropped connection. Returns true when the loop
// should stop.
func (o *Orchestrator) handleClose(sess *Session, evt Event) bool {
	if evt.Reason.Permanent() {
		slog.Info("pairing connection closed permanently",
			"chat", sess.Chat, "reason", evt.Reason, "error", evt.Err)
		o.sendText(sess, msgPermanentClose(evt.Reason))
		o.cleanup(context.Background(), sess, false)
		sess.setState(StateFailed)
		o.emit(SinkFailed, sess)
		return true
	}

	slog.Info("pairing connection dropped, holding session",
		"chat", sess.Chat, "reason", evt.Reason, "error", evt.Err)
	sess.setState(StateRetrying)
	o.sendText(sess, msgTransientClose())
	o.emit(SinkRetry, sess)
	// The adapter reconnects on its own; keep consuming the stream.
	return false
}

// finalize runs the upload sub-flow: settle, read the credential file,
// publish it, deliver the session identifier. It runs at most once per
// session, and cleanup follows unconditionally whatever the outcome.
func (o *Orchestrator) finalize(sess *Session) {
	sess.flowMu.Lock()
	defer sess.flowMu.Unlock()

	defer o.cleanup(context.Background(), sess, true)

	time.Sleep(o.cfg.SettleDelay)

	if sess.Cancelling() {
		// Cancelled during the settle window, before Publish was invoked.
		return
	}

	sess.setState(StateUploading)
	started := time.Now()

	blob, err := os.ReadFile(filepath.Join(sess.Dir, CredentialFileName))
	if err != nil {
		slog.Error("credential file unreadable", "chat", sess.Chat, "dir", sess.Dir, "error", err)
		o.sendText(sess, msgCredentialsMissing())
		sess.setState(StateFailed)
		o.span(sess, "pairing.upload", "upload", started, "error", ErrCredentialsMissing.Error())
		o.emit(SinkFailed, sess)
		return
	}

	// Runs to completion even if a cancel lands now.
	ref, err := o.publish.Publish(context.Background(), blob)
	if err != nil {
		slog.Error("credential publish failed", "chat", sess.Chat, "error", err)
		o.sendText(sess, msgPublishFailed(err))
		sess.setState(StateFailed)
		o.span(sess, "pairing.upload", "upload", started, "error", err.Error())
		o.emit(SinkFailed, sess)
		return
	}

	id := SessionIDPrefix + refPathComponent(ref)
	o.sendText(sess, msgSessionReady(id))
	sess.recordNotice(noticeSessionID, id, time.Now())
	sess.setState(StateCompleted)
	o.span(sess, "pairing.upload", "upload", started, "ok", "")
	o.emit(SinkCompleted, sess)
	slog.Info("pairing completed", "chat", sess.Chat, "session", sess.ID)
}

// cleanup releases everything a session owns: best-effort logout, the
// connection handle, the credential directory and the store entry. Safe to
// call more than once. Adapter errors are warnings; cleanup always completes.
func (o *Orchestrator) cleanup(ctx context.Context, sess *Session, logout bool) {
	if h := sess.takeHandle(); h != nil {
		if logout {
			if err := h.Logout(ctx); err != nil {
				slog.Warn("logout failed", "chat", sess.Chat, "error", err)
			}
		}
		h.Close()
	}
	o.removeArtifacts(sess)
	o.store.Remove(sess)
}

func (o *Orchestrator) removeArtifacts(sess *Session) {
	if err := os.RemoveAll(sess.Dir); err != nil {
		slog.Warn("session dir removal failed", "chat", sess.Chat, "dir", sess.Dir, "error", err)
	}
}

func (o *Orchestrator) sendText(sess *Session, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := o.notify.SendText(ctx, sess.Chat, text); err != nil {
		slog.Warn("notify failed", "chat", sess.Chat, "error", err)
	}
}

// emit fans a lifecycle event out to the sink and, for terminal events, to
// the span collector as the session's root span.
func (o *Orchestrator) emit(event string, sess *Session) {
	if o.sink != nil {
		o.sink(event, sess.Summary())
	}
	if o.spans == nil {
		return
	}
	switch event {
	case SinkCompleted, SinkFailed, SinkCancelled:
		status := "ok"
		if event == SinkFailed {
			status = "error"
		}
		o.spans.EmitSpan(tracing.Span{
			ID:      sess.ID,
			TraceID: sess.ID,
			Name:    "pairing.session",
			Kind:    "session",
			Start:   sess.StartedAt,
			End:     time.Now(),
			Status:  status,
			Attrs: map[string]string{
				"chat":    sess.Chat,
				"method":  string(sess.Method),
				"outcome": event,
			},
		})
	}
}

// span records one timed child span of the session's trace.
func (o *Orchestrator) span(sess *Session, name, kind string, start time.Time, status, errMsg string) {
	if o.spans == nil {
		return
	}
	o.spans.EmitSpan(tracing.Span{
		TraceID: sess.ID,
		Name:    name,
		Kind:    kind,
		Start:   start,
		End:     time.Now(),
		Status:  status,
		Error:   errMsg,
		Attrs:   map[string]string{"chat": sess.Chat},
	})
}

// refPathComponent extracts the last path segment of a storage reference,
// the compact piece embedded in the session identifier.
func refPathComponent(ref string) string {
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(strings.TrimSuffix(ref, "/"))
}
