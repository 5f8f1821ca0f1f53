package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/mymmrac/telego"
)

// channelVerifyError is the result of a channel credential probe.
type channelVerifyError struct {
	fatal   bool // true = the platform rejected the credentials
	message string
}

func (e *channelVerifyError) Error() string { return e.message }

// verifyTelegramToken checks a bot token with a getMe call and returns the
// bot's username. A rejected token is fatal; network trouble is a warning,
// the daemon retries at startup anyway.
func verifyTelegramToken(token string) (string, *channelVerifyError) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return "", &channelVerifyError{fatal: true, message: fmt.Sprintf("token rejected: %v", err)}
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "401") {
			return "", &channelVerifyError{fatal: true, message: "Telegram returned 401, the token is invalid"}
		}
		return "", &channelVerifyError{message: fmt.Sprintf("could not reach Telegram: %v", err)}
	}
	return me.Username, nil
}

// verifyDiscordToken checks a bot token against the identity endpoint and
// returns the bot's username. No gateway connection is opened.
func verifyDiscordToken(token string) (string, *channelVerifyError) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return "", &channelVerifyError{fatal: true, message: fmt.Sprintf("token rejected: %v", err)}
	}
	me, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil &&
			(restErr.Response.StatusCode == 401 || restErr.Response.StatusCode == 403) {
			return "", &channelVerifyError{fatal: true, message: fmt.Sprintf("Discord returned %d, the token is invalid", restErr.Response.StatusCode)}
		}
		return "", &channelVerifyError{message: fmt.Sprintf("could not reach Discord: %v", err)}
	}
	return me.Username, nil
}
