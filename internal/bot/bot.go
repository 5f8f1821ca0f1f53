// Package bot connects the chat channels to the pairing orchestrator. It
// owns the command surface: inbound messages are deduplicated, parsed, and
// executed on per-chat queues so commands from one chat apply in order.
package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pairgate/pairgate/internal/channels"
	"github.com/pairgate/pairgate/internal/dispatch"
	"github.com/pairgate/pairgate/internal/pairing"
)

// Bot routes chat commands to the orchestrator and replies through the
// channel router.
type Bot struct {
	commands *pairing.Commands
	router   *channels.Router
	disp     *dispatch.Dispatcher
	dedupe   *dispatch.Deduper
}

// New assembles the bot from its collaborators.
func New(commands *pairing.Commands, router *channels.Router, disp *dispatch.Dispatcher, dedupe *dispatch.Deduper) *Bot {
	return &Bot{
		commands: commands,
		router:   router,
		disp:     disp,
		dedupe:   dedupe,
	}
}

// HandleMessage is the channels.Handler. Non-command chatter is ignored;
// commands are queued per chat and executed in arrival order.
func (b *Bot) HandleMessage(ctx context.Context, msg channels.Message) {
	if b.dedupe.Seen(msg.DedupeKey()) {
		slog.Debug("duplicate delivery suppressed", "chat", msg.ChatRef(), "message_id", msg.MessageID)
		return
	}

	cmd, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	chat := msg.ChatRef()
	outcome := b.disp.Submit(ctx, chat, func(ctx context.Context) {
		b.execute(ctx, chat, cmd)
	})

	go func() {
		if err := <-outcome; err != nil {
			slog.Warn("command not executed", "chat", chat, "command", cmd.name, "error", err)
		}
	}()
}

// execute runs one parsed command and sends its reply, if any.
func (b *Bot) execute(ctx context.Context, chat string, cmd command) {
	var reply string
	switch cmd.name {
	case "/start":
		reply = greeting()
	case "/help":
		reply = commandList()
	case "/pair":
		if len(cmd.args) == 0 {
			reply = "Usage: /pair <phone number>\nExample: /pair +49 170 1234567"
			break
		}
		reply, _ = b.commands.Start(ctx, chat, strings.Join(cmd.args, " "), pairing.MethodCode)
	case "/qr":
		reply, _ = b.commands.Start(ctx, chat, "", pairing.MethodQR)
	case "/cancel":
		reply, _ = b.commands.Cancel(ctx, chat)
	case "/resume":
		reply, _ = b.commands.Resume(ctx, chat)
	case "/status":
		reply, _ = b.commands.Status(chat)
	default:
		reply = "Unknown command. Send /help for the list."
	}

	if reply == "" {
		return
	}
	if err := b.router.SendText(ctx, chat, reply); err != nil {
		slog.Warn("reply send failed", "chat", chat, "error", err)
	}
}

// command is one parsed chat command.
type command struct {
	name string // lowercased, with leading slash, bot mention stripped
	args []string
}

// parseCommand extracts a command from message text. Returns ok=false for
// anything that does not start with a slash.
func parseCommand(text string) (command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return command{}, false
	}

	// Strip the @botname suffix Telegram appends in groups.
	name := strings.SplitN(fields[0], "@", 2)[0]
	return command{
		name: strings.ToLower(name),
		args: fields[1:],
	}, true
}

func greeting() string {
	return "Hi! I link WhatsApp accounts to this service.\n\n" + commandList()
}

func commandList() string {
	return "Available commands:\n" +
		"/pair <number> — Pair a phone number with a code\n" +
		"/qr — Pair by scanning a QR image\n" +
		"/status — Show the session in progress\n" +
		"/resume — Reconnect a dropped session\n" +
		"/cancel — Cancel the session in progress\n" +
		"/help — Show this message"
}
