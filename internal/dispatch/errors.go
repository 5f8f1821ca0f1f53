package dispatch

import "errors"

var (
	// ErrQueueFull is returned when a command is rejected because the chat queue is full (drop=new policy).
	ErrQueueFull = errors.New("chat queue is full")

	// ErrQueueDropped is returned when a queued command is evicted to make room (drop=old policy).
	ErrQueueDropped = errors.New("command dropped from queue")

	// ErrLaneStopped is returned when a command is submitted to a stopped lane.
	ErrLaneStopped = errors.New("lane is stopped")
)
