package notify

import (
	"context"
	"fmt"
	"log"

	"nearprop/chat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of the Bot API the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram forwards inbound messages to a Telegram chat.
type Telegram struct {
	Bot    Sender
	ChatID int64
	// Format receives the counterpart name and the message text.
	Format string
}

// NewTelegram authorizes a bot token.
func NewTelegram(token string, chatID int64, format string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization failed: %w", err)
	}
	bot.Debug = false
	log.Printf("INFO: Telegram notifications via @%s", bot.Self.UserName)
	return &Telegram{Bot: bot, ChatID: chatID, Format: format}, nil
}

func (t *Telegram) Notify(_ context.Context, room models.ChatRoom, msg models.Message) error {
	format := t.Format
	if format == "" {
		format = "%s: %s"
	}
	text := fmt.Sprintf(format, counterpart(room), msg.Content)
	if room.DistrictLabel != "" {
		text += "\n📍 " + room.DistrictLabel
	}

	if _, err := t.Bot.Send(tgbotapi.NewMessage(t.ChatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
