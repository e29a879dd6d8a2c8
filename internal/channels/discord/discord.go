// Package discord connects the bridge to Discord via the Bot API using
// gateway events. Every message a user sends becomes one queued request;
// the reply is posted back to the same channel, chunked to Discord's
// message cap.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/bridge-echo/internal/dispatch"
	rest "github.com/nextlevelbuilder/bridge-echo/internal/discord"
	"github.com/nextlevelbuilder/bridge-echo/internal/queue"
)

// messageSender is the slice of the discordgo session used for replies.
type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot listens for Discord messages and feeds them through the dispatcher.
type Bot struct {
	session    *discordgo.Session
	dispatcher *dispatch.Dispatcher
	botUserID  string // populated on start

	// ctx bounds reply waits so shutdown releases handler goroutines.
	ctx context.Context
}

// NewBot creates a Discord ingress from a bot token.
func NewBot(token string, d *dispatch.Dispatcher) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Bot{session: session, dispatcher: d}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (b *Bot) Start(ctx context.Context) error {
	slog.Info("starting discord bot")

	b.ctx = ctx
	b.session.AddHandler(b.handleMessage)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := b.session.User("@me")
	if err != nil {
		b.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	b.botUserID = user.ID

	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (b *Bot) Stop() error {
	slog.Info("stopping discord bot")
	return b.session.Close()
}

// handleMessage filters gateway events down to human messages and queues
// them. Enqueueing is synchronous; only the reply wait runs in its own
// goroutine, so the event handler never blocks on the worker.
func (b *Bot) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == b.botUserID || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	slog.Debug("discord message received",
		"sender", m.Author.Username,
		"channel_id", m.ChannelID,
		"len", len(content),
	)

	reply := b.dispatcher.Submit(b.ctx, dispatch.Inbound{
		Message: content,
		Channel: "discord",
		Sender:  m.Author.Username,
		Metadata: queue.Metadata{
			DiscordChannelID: m.ChannelID,
		},
	})
	go b.deliverReply(m.ChannelID, m.Author.Username, reply)
}

func (b *Bot) deliverReply(channelID, sender string, reply *queue.Reply) {
	text, err := reply.Wait(b.ctx)
	if err != nil {
		slog.Warn("discord request dropped", "sender", sender, "error", err)
		return
	}
	b.respond(b.session, channelID, text)
}

// respond posts text back, split at Discord's message cap.
func (b *Bot) respond(s messageSender, channelID, text string) {
	for _, chunk := range rest.ChunkText(text, rest.MaxMessageLen) {
		if _, err := s.ChannelMessageSend(channelID, chunk); err != nil {
			slog.Warn("discord reply chunk failed",
				"channel_id", channelID,
				"error", err,
			)
		}
	}
}
