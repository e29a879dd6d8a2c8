// Package telegram connects the bridge to Telegram via the Bot API using
// long polling. Text messages become queued requests; replies go back to
// the originating chat, chunked to Telegram's message cap.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/bridge-echo/internal/dispatch"
	rest "github.com/nextlevelbuilder/bridge-echo/internal/discord"
	"github.com/nextlevelbuilder/bridge-echo/internal/queue"
)

// maxMessageLen is Telegram's message size cap.
const maxMessageLen = 4096

// Bot listens for Telegram messages and feeds them through the
// dispatcher.
type Bot struct {
	bot        *telego.Bot
	dispatcher *dispatch.Dispatcher

	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling goroutine exits
}

// NewBot creates a Telegram ingress from a bot token.
func NewBot(token string, d *dispatch.Dispatcher) (*Bot, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{bot: bot, dispatcher: d}, nil
}

// Start begins long polling for Telegram updates.
func (b *Bot) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	// Stop() cancels this context to cleanly shut down long polling.
	pollCtx, cancel := context.WithCancel(ctx)
	b.pollCancel = cancel
	b.pollDone = make(chan struct{})

	updates, err := b.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram bot connected", "username", b.bot.Username())

	go func() {
		defer close(b.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					b.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the bot by cancelling the long polling context and
// waiting for the polling goroutine to exit, so Telegram releases the
// getUpdates lock before a new instance starts.
func (b *Bot) Stop() error {
	slog.Info("stopping telegram bot")

	if b.pollCancel != nil {
		b.pollCancel()
	}
	if b.pollDone != nil {
		select {
		case <-b.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}

	return nil
}

// handleMessage queues one text message. Service messages and media-only
// updates carry no text and are skipped.
func (b *Bot) handleMessage(ctx context.Context, message *telego.Message) {
	user := message.From
	if user == nil {
		return
	}
	text := strings.TrimSpace(message.Text)
	if text == "" {
		return
	}

	sender := senderID(user)
	slog.Debug("telegram message received",
		"chat_id", message.Chat.ID,
		"sender", sender,
		"len", len(text),
	)

	reply := b.dispatcher.Submit(ctx, dispatch.Inbound{
		Message: text,
		Channel: "telegram",
		Sender:  sender,
	})
	go b.deliverReply(ctx, message.Chat.ID, sender, reply)
}

func (b *Bot) deliverReply(ctx context.Context, chatID int64, sender string, reply *queue.Reply) {
	text, err := reply.Wait(ctx)
	if err != nil {
		slog.Warn("telegram request dropped", "sender", sender, "error", err)
		return
	}
	b.send(ctx, chatID, text)
}

// send posts text back, split at Telegram's message cap.
func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	for _, chunk := range rest.ChunkText(text, maxMessageLen) {
		if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			slog.Warn("telegram reply chunk failed",
				"chat_id", chatID,
				"error", err,
			)
		}
	}
}

// senderID identifies a user as "id" or "id|username"; numeric IDs are
// stable while usernames can change or be absent.
func senderID(user *telego.User) string {
	id := fmt.Sprintf("%d", user.ID)
	if user.Username != "" {
		return id + "|" + user.Username
	}
	return id
}
