// Package channels defines the chat front-end abstraction. A Channel is one
// messaging platform (Telegram, Discord) that delivers inbound commands and
// carries outbound notifications. The Router addresses outbound messages by
// chat reference, a "channel:chat_id" pair that stays stable for the life of
// a pairing session.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// NotAuthorizedText is the refusal sent when a chat outside a channel's
// allow list issues a command. Non-command traffic from such chats is
// dropped without a reply.
const NotAuthorizedText = "This bot is private. Your chat is not on its allow list."

// Message is one inbound chat message, normalized across platforms.
type Message struct {
	Channel   string // originating channel name, e.g. "telegram"
	ChatID    string // platform chat identifier
	MessageID string // platform message identifier, used for duplicate suppression
	Sender    string // sender display name, best effort
	Text      string
}

// ChatRef returns the message's chat reference.
func (m Message) ChatRef() string {
	return ChatRef(m.Channel, m.ChatID)
}

// DedupeKey identifies this delivery for duplicate suppression.
func (m Message) DedupeKey() string {
	return m.Channel + ":" + m.ChatID + ":" + m.MessageID
}

// Handler consumes inbound messages. Called from the channel's poll loop;
// implementations must not block for long.
type Handler func(ctx context.Context, msg Message)

// Channel is one chat platform front end.
type Channel interface {
	// Name identifies the platform ("telegram", "discord").
	Name() string

	// Start connects to the platform and begins delivering inbound
	// messages to h until ctx is cancelled or Stop is called.
	Start(ctx context.Context, h Handler) error

	// Stop disconnects. Safe to call more than once.
	Stop()

	// SendText delivers a plain text message to a chat.
	SendText(ctx context.Context, chatID, text string) error

	// SendImage delivers a PNG image with a caption to a chat.
	SendImage(ctx context.Context, chatID string, image []byte, caption string) error
}

// ChatRef builds a chat reference from a channel name and chat ID.
func ChatRef(channel, chatID string) string {
	return channel + ":" + chatID
}

// SplitChatRef splits a chat reference into channel name and chat ID.
func SplitChatRef(ref string) (channel, chatID string, err error) {
	channel, chatID, ok := strings.Cut(ref, ":")
	if !ok || channel == "" || chatID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrBadChatRef, ref)
	}
	return channel, chatID, nil
}

// Registry holds the enabled channels by name.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Channel)}
}

// Add registers a channel. A second channel with the same name replaces the
// first.
func (r *Registry) Add(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[ch.Name()]; !exists {
		r.order = append(r.order, ch.Name())
	}
	r.byName[ch.Name()] = ch
}

// Get returns the named channel.
func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byName[name]
	return ch, ok
}

// Names returns the registered channel names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// StartAll starts every registered channel with the same handler. If one
// fails to start, the already started ones are stopped and the error is
// returned.
func (r *Registry) StartAll(ctx context.Context, h Handler) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var started []Channel
	for _, name := range r.order {
		ch := r.byName[name]
		if err := ch.Start(ctx, h); err != nil {
			for _, s := range started {
				s.Stop()
			}
			return fmt.Errorf("start channel %s: %w", name, err)
		}
		slog.Info("channel started", "channel", name)
		started = append(started, ch)
	}
	return nil
}

// StopAll stops every registered channel.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		r.byName[name].Stop()
		slog.Info("channel stopped", "channel", name)
	}
}
