package transport

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"calbot/internal/logging"
)

const telegramMessageLimit = 4096

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Telegram serves the assistant over a Telegram bot using long polling.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	sender  telegramSender
	chatter Chatter
	chatID  int64 // 0 accepts every chat
	logger  *slog.Logger
}

// NewTelegram connects to the Bot API with token. A non-zero chatID restricts the bot to that chat.
func NewTelegram(token string, chatID int64, chatter Chatter, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	t := newTelegram(bot, chatter, chatID, logger)
	t.bot = bot
	t.logger.Info("Authorized on Telegram", "account", bot.Self.UserName)
	return t, nil
}

func newTelegram(sender telegramSender, chatter Chatter, chatID int64, logger *slog.Logger) *Telegram {
	return &Telegram{
		sender:  sender,
		chatter: chatter,
		chatID:  chatID,
		logger:  logging.WithComponent(logger, "transport").With(logging.Transport("telegram")),
	}
}

func (t *Telegram) Name() string {
	return "telegram"
}

// Run polls for updates until ctx is cancelled. Updates are handled one at a time.
func (t *Telegram) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info("Starting Telegram calendar bot")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return
	}
	chatID := msg.Chat.ID
	if t.chatID != 0 && chatID != t.chatID {
		t.logger.Warn("Ignoring message from unauthorized chat", "chat_id", chatID)
		return
	}

	if _, err := t.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		t.logger.Debug("Failed to send typing action", logging.Err(err))
	}

	reply, ok := respond(ctx, t.chatter, msg.Text)
	if !ok {
		return
	}
	for _, chunk := range splitMessage(reply, telegramMessageLimit) {
		out := tgbotapi.NewMessage(chatID, chunk)
		out.ReplyToMessageID = msg.MessageID
		if _, err := t.sender.Send(out); err != nil {
			t.logger.Error("Failed to send reply", "chat_id", chatID, logging.Err(err))
			return
		}
	}
}
