package pairing

import "context"

// Connector opens handshake connections. Implementations wrap the concrete
// linking library; the orchestrator only ever sees this interface.
type Connector interface {
	// Open establishes a connection whose credential material lives under
	// sessionPath. The returned handle is exclusively owned by the caller.
	// Connection establishment is bounded by the implementation, not here.
	Open(ctx context.Context, sessionPath string) (Handle, error)
}

// Handle is one live handshake connection.
type Handle interface {
	// RequestPairingCode asks the remote end for a numeric linking code the
	// user types into their device.
	RequestPairingCode(ctx context.Context, target string) (string, error)

	// Events returns the connection-state stream. Events arrive in order and
	// the channel closes once the handle is closed.
	Events() <-chan Event

	// Registered reports whether the handle holds registered credentials.
	Registered() bool

	// Logout unlinks the device on the remote end. Best effort.
	Logout(ctx context.Context) error

	// Close tears down the connection and closes the event stream.
	Close()
}

// Notifier carries progress messages and images to the user's chat.
type Notifier interface {
	SendText(ctx context.Context, chat, text string) error
	SendImage(ctx context.Context, chat string, image []byte, caption string) error
}

// Publisher persists a credential blob and returns a retrievable reference.
// The reference's last path component becomes part of the session identifier.
type Publisher interface {
	Publish(ctx context.Context, blob []byte) (string, error)
}
