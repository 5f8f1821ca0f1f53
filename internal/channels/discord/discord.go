// Package discord is the Discord front end. It receives commands over the
// gateway websocket and sends pairing notifications to text channels and DMs.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/pairgate/pairgate/internal/channels"
	"github.com/pairgate/pairgate/internal/config"
)

// Channel connects to the Discord gateway.
type Channel struct {
	cfg config.DiscordConfig

	mu      sync.Mutex
	allow   []string
	session *discordgo.Session
	remove  func()
}

// New creates the Discord channel. The connection is established by Start.
func New(cfg config.DiscordConfig) *Channel {
	return &Channel{cfg: cfg, allow: cfg.AllowFrom}
}

// Name identifies the channel in chat references.
func (c *Channel) Name() string { return "discord" }

// Start opens the gateway session and begins delivering messages from
// admitted channels to h.
func (c *Channel) Start(ctx context.Context, h channels.Handler) error {
	session, err := discordgo.New("Bot " + c.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord session init: %w", err)
	}

	// Message content is a privileged intent; without it command text
	// arrives empty.
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	remove := session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(ctx, s, m, h)
	})

	if err := session.Open(); err != nil {
		remove()
		return fmt.Errorf("discord gateway open: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.remove = remove
	c.mu.Unlock()

	slog.Info("discord connected", "bot", session.State.User.Username)
	return nil
}

func (c *Channel) handleMessage(ctx context.Context, s *discordgo.Session, m *discordgo.MessageCreate, h channels.Handler) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}
	if m.Content == "" {
		return
	}
	if !c.admitted(m.ChannelID) {
		slog.Debug("discord channel not in allow list", "channel_id", m.ChannelID)
		if strings.HasPrefix(m.Content, "/") {
			c.SendText(ctx, m.ChannelID, channels.NotAuthorizedText)
		}
		return
	}

	h(ctx, channels.Message{
		Channel:   c.Name(),
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		Sender:    m.Author.Username,
		Text:      m.Content,
	})
}

// admitted applies the allow list. An empty list admits every channel.
func (c *Channel) admitted(channelID string) bool {
	c.mu.Lock()
	allow := c.allow
	c.mu.Unlock()

	if len(allow) == 0 {
		return true
	}
	for _, allowed := range allow {
		if allowed == channelID {
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
	slog.Info("discord allow list updated", "entries", len(allow))
}

// Stop closes the gateway session.
func (c *Channel) Stop() {
	c.mu.Lock()
	session, remove := c.session, c.remove
	c.session = nil
	c.remove = nil
	c.mu.Unlock()

	if remove != nil {
		remove()
	}
	if session != nil {
		if err := session.Close(); err != nil {
			slog.Warn("discord close failed", "error", err)
		}
	}
}

// SendText delivers text to a channel.
func (c *Channel) SendText(ctx context.Context, chatID, text string) error {
	session := c.discordSession()
	if session == nil {
		return fmt.Errorf("discord session not started")
	}
	_, err := session.ChannelMessageSend(chatID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// SendImage delivers a PNG with a caption to a channel.
func (c *Channel) SendImage(ctx context.Context, chatID string, image []byte, caption string) error {
	session := c.discordSession()
	if session == nil {
		return fmt.Errorf("discord session not started")
	}
	_, err := session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content: caption,
		Files: []*discordgo.File{{
			Name:        "pairing.png",
			ContentType: "image/png",
			Reader:      bytes.NewReader(image),
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord send image: %w", err)
	}
	return nil
}

func (c *Channel) discordSession() *discordgo.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
