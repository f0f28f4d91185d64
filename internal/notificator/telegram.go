package notificator

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgModels "github.com/go-telegram/bot/models"

	"github.com/core-coin/doorbell/internal/models"
	"github.com/core-coin/doorbell/pkg/logger"
)

// TelegramAlerter posts operator alerts to a single Telegram chat.
type TelegramAlerter struct {
	logger *logger.Logger
	bot    *bot.Bot
	chatID string
}

var _ models.Alerter = (*TelegramAlerter)(nil)

// NewTelegramAlerter creates the bot client without contacting Telegram.
// Extra options are appended, e.g. bot.WithServerURL in tests.
func NewTelegramAlerter(logger *logger.Logger, token, chatID string, extra ...bot.Option) (*TelegramAlerter, error) {
	alerter := &TelegramAlerter{
		logger: logger,
		chatID: chatID,
	}
	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithDefaultHandler(alerter.handler),
	}
	opts = append(opts, extra...)

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	alerter.bot = b
	return alerter, nil
}

// Start polls for updates until ctx is done so operators can ask the bot for
// their chat ID.
func (t *TelegramAlerter) Start(ctx context.Context) {
	t.bot.Start(ctx)
}

func (t *TelegramAlerter) Alert(ctx context.Context, message string) error {
	_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   message,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}
	return nil
}

func (t *TelegramAlerter) handler(ctx context.Context, b *bot.Bot, update *tgModels.Update) {
	if update.Message == nil {
		return
	}
	t.logger.Debug("Telegram update", "chat", update.Message.Chat.ID, "text", update.Message.Text)
	if update.Message.Text != "/start" {
		return
	}
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   fmt.Sprintf("Doorbell alerts can be delivered here. Set TELEGRAM_ALERT_CHAT_ID=%d", update.Message.Chat.ID),
	})
	if err != nil {
		t.logger.Error("Failed to answer /start", "error", err)
	}
}
