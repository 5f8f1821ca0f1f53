package pairing

// EventKind identifies a connection-state transition reported by a Handle.
type EventKind string

// Connection event kinds, in the order a typical handshake emits them.
const (
	EventConnecting EventKind = "connecting"
	EventOpen       EventKind = "open"
	EventArtifact   EventKind = "artifact"
	EventClose      EventKind = "close"
)

// CloseReason classifies why a connection ended.
type CloseReason string

const (
	ReasonLoggedOut    CloseReason = "logged-out"
	ReasonBadSession   CloseReason = "bad-session"
	ReasonUnauthorized CloseReason = "unauthorized"
	ReasonUnknown      CloseReason = "unknown"
)

// Permanent reports whether the link can never complete without starting
// over. Everything outside the three known-fatal reasons counts as transient.
func (r CloseReason) Permanent() bool {
	switch r {
	case ReasonLoggedOut, ReasonBadSession, ReasonUnauthorized:
		return true
	}
	return false
}

// Event is one item in a Handle's connection-state stream.
type Event struct {
	Kind     EventKind
	Artifact string      // EventArtifact: QR payload to render and show
	Reason   CloseReason // EventClose
	Err      error       // EventClose: optional detail from the adapter
}
