package pairing

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Method selects how the user completes the link on their device.
type Method string

const (
	// MethodCode sends a numeric pairing code for the user to type.
	MethodCode Method = "code"
	// MethodQR shows a QR image for the user to scan.
	MethodQR Method = "qr"
)

// ParseMethod maps user input onto a Method.
func ParseMethod(s string) (Method, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "code", "phone", "number":
		return MethodCode, true
	case "qr", "scan":
		return MethodQR, true
	}
	return "", false
}

// State is the orchestrator-visible phase of a session.
type State string

const (
	StateInitiating    State = "initiating"
	StateConnecting    State = "connecting"
	StateAwaitingInput State = "awaiting_input"
	StateRegistered    State = "registered"
	StateUploading     State = "uploading"
	StateRetrying      State = "retrying"
	StateCompleted     State = "completed"
	StateCancelled     State = "cancelled"
	StateFailed        State = "failed"
)

// Terminal reports whether the session reached a final outcome.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// noticeKind tags the last piece of pairing information sent to the user.
type noticeKind string

const (
	noticeQR        noticeKind = "qr"
	noticeCode      noticeKind = "code"
	noticeSessionID noticeKind = "session_id"
)

func (n noticeKind) artifact() bool { return n == noticeQR || n == noticeCode }

// notice records what was last surfaced to the user and when. It drives the
// artifact debounce and the reconnect decisions in handleOpen.
type notice struct {
	kind   noticeKind
	value  string
	sentAt time.Time
}

// Session tracks one pairing attempt for one chat.
//
// Exported fields are immutable after creation. Everything else is guarded by
// mu and only touched through the methods below; the cancel flag is atomic so
// the event loop can poll it without taking the lock.
type Session struct {
	ID        uuid.UUID // also names the credential directory and the trace
	Chat      string    // chat reference ("channel:id"), unique key
	Target    string    // normalized phone number, empty for MethodQR
	Method    Method
	Dir       string // exclusive credential directory, removed on terminal exit
	StartedAt time.Time

	mu     sync.Mutex
	state  State
	last   *notice
	handle Handle

	cancelling atomic.Bool

	// flowMu serializes the upload sub-flow against cancellation cleanup:
	// whoever holds it may touch the credential directory.
	flowMu sync.Mutex
}

func newSession(chat, target string, method Method, sessionsDir string) *Session {
	id := uuid.Must(uuid.NewV7())
	return &Session{
		ID:        id,
		Chat:      chat,
		Target:    target,
		Method:    method,
		Dir:       filepath.Join(sessionsDir, id.String()),
		StartedAt: time.Now(),
		state:     StateInitiating,
	}
}

// State returns the current phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Cancelling reports whether Cancel has claimed this session.
func (s *Session) Cancelling() bool { return s.cancelling.Load() }

// markCancelling flips the cancel flag. Only the first caller gets true and
// the flag never reverts.
func (s *Session) markCancelling() bool { return s.cancelling.CompareAndSwap(false, true) }

func (s *Session) setHandle(h Handle) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

// takeHandle returns the handle and clears it, transferring close/logout
// responsibility to the caller. Subsequent calls return nil.
func (s *Session) takeHandle() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	s.handle = nil
	return h
}

// allowNotice reports whether a notification of this kind/value may be sent
// now. An identical artifact inside artifactDebounce of its original send is
// suppressed; the stored sentAt is not refreshed by suppressed attempts.
func (s *Session) allowNotice(kind noticeKind, value string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && s.last.kind == kind && s.last.value == value &&
		now.Sub(s.last.sentAt) < artifactDebounce {
		return false
	}
	return true
}

// recordNotice remembers the last notification surfaced to the user.
func (s *Session) recordNotice(kind noticeKind, value string, now time.Time) {
	s.mu.Lock()
	s.last = &notice{kind: kind, value: value, sentAt: now}
	s.mu.Unlock()
}

// lastNotice returns a copy of the most recent notice.
func (s *Session) lastNotice() (notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return notice{}, false
	}
	return *s.last, true
}

// clearNotice forgets the last notice, so the next artifact goes out fresh.
func (s *Session) clearNotice() {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}

// Summary is a point-in-time snapshot of a session for operational surfaces.
type Summary struct {
	ID         uuid.UUID `json:"id"`
	Chat       string    `json:"chat"`
	Target     string    `json:"target,omitempty"`
	Method     Method    `json:"method"`
	State      State     `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	Cancelling bool      `json:"cancelling,omitempty"`
}

// Summary snapshots the session.
func (s *Session) Summary() Summary {
	return Summary{
		ID:         s.ID,
		Chat:       s.Chat,
		Target:     s.Target,
		Method:     s.Method,
		State:      s.State(),
		StartedAt:  s.StartedAt,
		Cancelling: s.Cancelling(),
	}
}
