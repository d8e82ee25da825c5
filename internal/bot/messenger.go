package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramMessenger adapts the Telegram client to stream.Messenger.
type telegramMessenger struct {
	api BotAPI
}

func (m *telegramMessenger) SendText(_ context.Context, chatID int64, text string) (int, error) {
	sent, err := m.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (m *telegramMessenger) SendPhoto(_ context.Context, chatID int64, photoURL string) error {
	_, err := m.api.Send(tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL)))
	return err
}

func (m *telegramMessenger) EditText(_ context.Context, chatID int64, messageID int, text string) error {
	_, err := m.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	return err
}
