package channels

import (
	"context"
	"fmt"
)

// Router delivers outbound notifications to whichever channel a chat
// reference names. It satisfies the orchestrator's Notifier dependency, so
// pairing progress reaches Telegram and Discord chats through one path.
type Router struct {
	reg     *Registry
	limiter *SendLimiter // nil disables pacing
}

// NewRouter creates a router over the registry. limiter may be nil.
func NewRouter(reg *Registry, limiter *SendLimiter) *Router {
	return &Router{reg: reg, limiter: limiter}
}

// SendText delivers text to the chat named by ref.
func (r *Router) SendText(ctx context.Context, ref, text string) error {
	ch, chatID, err := r.resolve(ref)
	if err != nil {
		return err
	}
	if err := r.limiter.Wait(ctx, ref); err != nil {
		return err
	}
	return ch.SendText(ctx, chatID, text)
}

// SendImage delivers a PNG with caption to the chat named by ref.
func (r *Router) SendImage(ctx context.Context, ref string, image []byte, caption string) error {
	ch, chatID, err := r.resolve(ref)
	if err != nil {
		return err
	}
	if err := r.limiter.Wait(ctx, ref); err != nil {
		return err
	}
	return ch.SendImage(ctx, chatID, image, caption)
}

func (r *Router) resolve(ref string) (Channel, string, error) {
	channel, chatID, err := SplitChatRef(ref)
	if err != nil {
		return nil, "", err
	}
	ch, ok := r.reg.Get(channel)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return ch, chatID, nil
}
