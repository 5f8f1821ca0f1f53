package pairing

import "errors"

var (
	// ErrAlreadyActive is returned by StartPairing when the chat already has a
	// session that is not being cancelled.
	ErrAlreadyActive = errors.New("a pairing session is already active for this chat")

	// ErrInvalidTarget is returned when the phone number fails validation,
	// before any connection is opened.
	ErrInvalidTarget = errors.New("target must be a phone number in international format")

	// ErrNoActiveSession is returned by Cancel and Resume when the chat has
	// nothing running.
	ErrNoActiveSession = errors.New("no active pairing session for this chat")

	// ErrNotResumable is returned by Resume when the session is not parked on
	// a dropped connection.
	ErrNotResumable = errors.New("session is not waiting on a dropped connection")

	// ErrBusy is returned when MaxActive sessions are already in flight.
	ErrBusy = errors.New("too many pairing sessions in flight, try again later")

	// ErrCredentialsMissing means the credential file was gone when the upload
	// sub-flow tried to read it. Forces a permanent failure exit.
	ErrCredentialsMissing = errors.New("credential file missing from session directory")
)
