// Package telegram implements the messaging gateway on top of the
// Telegram Bot API: direct messages that can be updated and deleted
// later, plus a fire-and-forget reminder mode. Handles are opaque
// strings: the chat id and the message id.
package telegram

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/noralunch/nora/pkg/logger"
)

// Gateway represents a Telegram bot instance
type Gateway struct {
	api    *tgbotapi.BotAPI
	logger *logger.Logger

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// CommandHandler is a function that handles a Telegram command
type CommandHandler func(message *tgbotapi.Message)

// HandlerFunc is a function that handles any other Telegram update
type HandlerFunc func(update tgbotapi.Update)

// New creates a new Telegram gateway
func New(token string) (*Gateway, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Telegram bot")
	}

	g := &Gateway{
		api:    api,
		logger: logger.New("telegram"),
		sleep:  time.Sleep,
	}

	g.logger.Info("Telegram bot created: @%s", api.Self.UserName)
	return g, nil
}

// Start starts the bot and listens for updates
func (g *Gateway) Start(commandHandlers map[string]CommandHandler, defaultHandler HandlerFunc) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := g.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message != nil && update.Message.IsCommand() {
			command := update.Message.Command()
			if handler, ok := commandHandlers[command]; ok {
				g.logger.Info("Handling command: %s from user %s", command, update.Message.From.UserName)
				handler(update.Message)
				continue
			}
		}

		if defaultHandler != nil {
			defaultHandler(update)
		}
	}

	return nil
}

// Send delivers text to a recipient as a direct message. When
// existingHandle is set the message it identifies is updated in place
// instead. On success it returns the channel and message handles to
// store for later updates.
//
// A rate-limited call is retried exactly once after sleeping for the
// server-specified backoff; a second rate limit is a permanent failure
// and returns empty handles.
func (g *Gateway) Send(recipient, text, existingHandle string) (string, string, error) {
	channel, handle, err := g.send(recipient, text, existingHandle)
	if err == nil {
		return channel, handle, nil
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
		delay := time.Duration(tgErr.RetryAfter) * time.Second
		g.logger.Info("Send was rate-limited, waiting %v", delay)
		g.sleep(delay)
		channel, handle, err = g.send(recipient, text, existingHandle)
		if err == nil {
			return channel, handle, nil
		}
	}

	g.logger.Error("Send to %s failed: %v", recipient, err)
	return "", "", err
}

func (g *Gateway) send(recipient, text, existingHandle string) (string, string, error) {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return "", "", errors.Wrapf(err, "bad recipient %q", recipient)
	}

	var c tgbotapi.Chattable
	if existingHandle != "" {
		messageID, err := strconv.Atoi(existingHandle)
		if err != nil {
			return "", "", errors.Wrapf(err, "bad message handle %q", existingHandle)
		}
		c = tgbotapi.NewEditMessageText(chatID, messageID, text)
	} else {
		c = tgbotapi.NewMessage(chatID, text)
	}

	msg, err := g.api.Send(c)
	if err != nil {
		return "", "", err
	}

	return strconv.FormatInt(msg.Chat.ID, 10), strconv.Itoa(msg.MessageID), nil
}

// Delete removes a previously sent message. Failures are logged, not
// returned.
func (g *Gateway) Delete(channel, handle string) bool {
	chatID, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		g.logger.Error("Delete: bad channel %q: %v", channel, err)
		return false
	}
	messageID, err := strconv.Atoi(handle)
	if err != nil {
		g.logger.Error("Delete: bad message handle %q: %v", handle, err)
		return false
	}

	if _, err := g.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		g.logger.Error("Delete of message %s in %s failed: %v", handle, channel, err)
		return false
	}
	return true
}

// SendScheduledReminder sends a fire-and-forget reminder to a user.
// No handle is kept, so the message can never be updated later.
func (g *Gateway) SendScheduledReminder(userID, text string) bool {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		g.logger.Error("SendScheduledReminder: bad user id %q: %v", userID, err)
		return false
	}

	if _, err := g.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		g.logger.Error("SendScheduledReminder to %s failed: %v", userID, err)
		return false
	}
	return true
}

// Reply sends a plain message to a chat, used by the interactive
// handlers in cmd.
func (g *Gateway) Reply(chatID int64, text string) {
	if _, err := g.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		g.logger.Error("Reply to %d failed: %v", chatID, err)
	}
}
