package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"calbot/internal/logging"
)

const discordMessageLimit = 2000

type discordSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// Discord serves the assistant in Discord channels and DMs.
type Discord struct {
	session   *discordgo.Session
	sender    discordSender
	chatter   Chatter
	channelID string // empty accepts every channel
	botID     string
	logger    *slog.Logger
	ctx       context.Context
}

// NewDiscord creates a bot session for token. Call Run to connect.
func NewDiscord(token, channelID string, chatter Chatter, logger *slog.Logger) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	// Handlers run on the event goroutine, one message at a time.
	session.SyncEvents = true
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	d := newDiscord(session, chatter, channelID, logger)
	d.session = session
	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		d.handleMessage(d.ctx, m)
	})
	return d, nil
}

func newDiscord(sender discordSender, chatter Chatter, channelID string, logger *slog.Logger) *Discord {
	return &Discord{
		sender:    sender,
		chatter:   chatter,
		channelID: channelID,
		logger:    logging.WithComponent(logger, "transport").With(logging.Transport("discord")),
		ctx:       context.Background(),
	}
}

func (d *Discord) Name() string {
	return "discord"
}

// Run connects to the gateway and blocks until ctx is cancelled.
func (d *Discord) Run(ctx context.Context) error {
	d.ctx = ctx
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	d.botID = d.session.State.User.ID
	d.logger.Info("Connected to Discord", "account", d.session.State.User.Username)

	<-ctx.Done()
	return d.session.Close()
}

func (d *Discord) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == d.botID {
		return
	}
	if d.channelID != "" && m.ChannelID != d.channelID {
		return
	}

	if err := d.sender.ChannelTyping(m.ChannelID); err != nil {
		d.logger.Debug("Failed to send typing indicator", logging.Err(err))
	}

	reply, ok := respond(ctx, d.chatter, m.Content)
	if !ok {
		return
	}
	for _, chunk := range splitMessage(reply, discordMessageLimit) {
		if _, err := d.sender.ChannelMessageSend(m.ChannelID, chunk); err != nil {
			d.logger.Error("Failed to send reply", "channel_id", m.ChannelID, logging.Err(err))
			return
		}
	}
}
