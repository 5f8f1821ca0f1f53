package protocol

// WebSocket event names pushed from server to client.
const (
	EventPairingStarted   = "pairing.started"
	EventPairingArtifact  = "pairing.artifact"
	EventPairingRetry     = "pairing.retry"
	EventPairingCompleted = "pairing.completed"
	EventPairingFailed    = "pairing.failed"
	EventPairingCancelled = "pairing.cancelled"
	EventShutdown         = "shutdown"
)

// SessionSummary is the wire shape of one tracked pairing session, returned by
// sessions.list and embedded in pairing.* event payloads. ID doubles as the
// trace ID when telemetry export is enabled.
type SessionSummary struct {
	ID         string `json:"id"`
	Chat       string `json:"chat"`
	Target     string `json:"target,omitempty"`
	Method     string `json:"method"`
	State      string `json:"state"`
	StartedAt  int64  `json:"startedAt"` // unix millis
	Cancelling bool   `json:"cancelling,omitempty"`
}
