// Package telegram is the Telegram front end. It long-polls the Bot API for
// messages and delivers pairing notifications, including QR images, back to
// chats.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/pairgate/pairgate/internal/channels"
	"github.com/pairgate/pairgate/internal/config"
)

const (
	// maxMessageLen is the safe limit for Telegram messages. The hard limit
	// is 4096; 4000 leaves headroom for entity expansion.
	maxMessageLen = 4000

	// captionMaxLen is the Telegram limit for media captions.
	captionMaxLen = 1024
)

// Channel connects to the Telegram Bot API.
type Channel struct {
	cfg config.TelegramConfig

	mu     sync.Mutex
	allow  []string
	bot    *telego.Bot
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the Telegram channel. The connection is established by Start.
func New(cfg config.TelegramConfig) *Channel {
	return &Channel{cfg: cfg, allow: cfg.AllowFrom}
}

// Name identifies the channel in chat references.
func (c *Channel) Name() string { return "telegram" }

// Start validates the token, registers the command menu and begins long
// polling. Inbound messages from admitted chats go to h.
func (c *Channel) Start(ctx context.Context, h channels.Handler) error {
	bot, err := telego.NewBot(c.cfg.Token, telego.WithDiscardLogger())
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}

	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	if err := syncMenuCommands(ctx, bot); err != nil {
		slog.Warn("telegram menu sync failed", "error", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram long polling: %w", err)
	}

	done := make(chan struct{})

	c.mu.Lock()
	c.bot = bot
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	slog.Info("telegram connected", "bot", "@"+me.Username)

	go func() {
		defer close(done)
		c.pollLoop(pollCtx, updates, h)
	}()
	return nil
}

func (c *Channel) pollLoop(ctx context.Context, updates <-chan telego.Update, h channels.Handler) {
	for upd := range updates {
		msg := upd.Message
		if msg == nil || msg.Text == "" {
			continue
		}

		chatID := strconv.FormatInt(msg.Chat.ID, 10)
		if !c.admitted(chatID) {
			slog.Debug("telegram chat not in allow list", "chat_id", chatID)
			if strings.HasPrefix(msg.Text, "/") {
				c.SendText(ctx, chatID, channels.NotAuthorizedText)
			}
			continue
		}

		h(ctx, channels.Message{
			Channel:   c.Name(),
			ChatID:    chatID,
			MessageID: strconv.Itoa(msg.MessageID),
			Sender:    senderName(msg.From),
			Text:      msg.Text,
		})
	}
}

// admitted applies the allow list. An empty list admits every chat.
func (c *Channel) admitted(chatID string) bool {
	c.mu.Lock()
	allow := c.allow
	c.mu.Unlock()

	if len(allow) == 0 {
		return true
	}
	for _, allowed := range allow {
		if allowed == chatID {
			return true
		}
	}
	return false
}

// UpdateAllowFrom swaps the allow list, used by config hot reload.
func (c *Channel) UpdateAllowFrom(allow []string) {
	c.mu.Lock()
	c.allow = append([]string(nil), allow...)
	c.mu.Unlock()
	slog.Info("telegram allow list updated", "entries", len(allow))
}

// Stop ends long polling and waits for the poll loop to drain.
func (c *Channel) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// SendText delivers text to a chat, truncated to the platform limit.
func (c *Channel) SendText(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	_, err = c.telegoBot().SendMessage(ctx, tu.Message(tu.ID(id), text))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SendImage delivers a PNG with a caption to a chat.
func (c *Channel) SendImage(ctx context.Context, chatID string, image []byte, caption string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if len(caption) > captionMaxLen {
		caption = caption[:captionMaxLen]
	}
	params := tu.Photo(tu.ID(id), tu.FileFromBytes(image, "pairing.png")).WithCaption(caption)
	_, err = c.telegoBot().SendPhoto(ctx, params)
	if err != nil {
		return fmt.Errorf("telegram send photo: %w", err)
	}
	return nil
}

func (c *Channel) telegoBot() *telego.Bot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bot
}

// parseChatID converts the string chat ID back to Telegram's int64 form.
func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return id, nil
}

// senderName formats a Telegram user's display name.
func senderName(user *telego.User) string {
	if user == nil {
		return "unknown"
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	return name
}

// syncMenuCommands registers the bot command menu via setMyCommands.
func syncMenuCommands(ctx context.Context, bot *telego.Bot) error {
	if err := bot.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}
	return bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: menuCommands(),
	})
}

// menuCommands returns the bot menu shown by Telegram clients.
func menuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "pair", Description: "Pair a phone number with a code"},
		{Command: "qr", Description: "Pair by scanning a QR image"},
		{Command: "status", Description: "Show the session in progress"},
		{Command: "resume", Description: "Reconnect a dropped session"},
		{Command: "cancel", Description: "Cancel the session in progress"},
		{Command: "help", Description: "Show available commands"},
	}
}
