package channels

import "errors"

var (
	// ErrBadChatRef is returned for a chat reference that is not "channel:chat_id".
	ErrBadChatRef = errors.New("malformed chat reference")

	// ErrUnknownChannel is returned when a chat reference names a channel that is not registered.
	ErrUnknownChannel = errors.New("unknown channel")
)
