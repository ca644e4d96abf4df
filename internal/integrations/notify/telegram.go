package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/happiestt-talha/pentutor-api/internal/outbox"
)

// TelegramChannel posts administrator notices to a Telegram chat.
type TelegramChannel struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// NewTelegramChannel authorizes the bot token and targets chatID. An empty
// endpoint uses the public Bot API.
func NewTelegramChannel(token string, chatID int64, endpoint string, logger *slog.Logger) (*TelegramChannel, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telegram")
	logger.Info("telegram bot authorized", "account", api.Self.UserName, "chat_id", chatID)
	return &TelegramChannel{api: api, chatID: chatID, logger: logger}, nil
}

// Announce sends the notice as one Markdown message.
func (c *TelegramChannel) Announce(ctx context.Context, notice outbox.AdminNoticePayload) error {
	msg := tgbotapi.NewMessage(c.chatID, formatNotice(notice))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	sent, err := c.api.Send(msg)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	c.logger.DebugContext(ctx, "admin notice posted", "category", notice.Category, "message_id", sent.MessageID)
	return nil
}

func formatNotice(notice outbox.AdminNoticePayload) string {
	title := tgbotapi.EscapeText(tgbotapi.ModeMarkdown, notice.Title)
	body := tgbotapi.EscapeText(tgbotapi.ModeMarkdown, notice.Message)
	category := tgbotapi.EscapeText(tgbotapi.ModeMarkdown, notice.Category)
	return fmt.Sprintf("*%s*\n%s\n#%s", title, body, category)
}
