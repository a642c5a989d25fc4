package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rahul/whatsmap/internal/agent"
)

// telegramMessageLimit is Telegram's maximum message length.
const telegramMessageLimit = 4096

type TelegramGateway struct {
	Bot       *tgbotapi.BotAPI
	Submitter agent.Submitter
	logger    *zap.Logger
}

func NewTelegramGateway(token string, submitter agent.Submitter, logger *zap.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	logger.Info("telegram authorized", zap.String("account", bot.Self.UserName))

	return &TelegramGateway{
		Bot:       bot,
		Submitter: submitter,
		logger:    logger,
	}, nil
}

func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}

			tg.logger.Info("message received",
				zap.String("gateway", "telegram"),
				zap.String("from", update.Message.From.UserName),
			)

			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			resp := tg.Submitter.Submit(ctx, chatID, update.Message.Text)

			if err := tg.Send(chatID, Render(resp)); err != nil {
				tg.logger.Warn("telegram send failed", zap.String("chat_id", chatID), zap.Error(err))
			}
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, chunk := range chunkText(text, telegramMessageLimit) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
