package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers trade notifications to a Telegram chat.
type Notifier interface {
	SendMessage(text string) error
	NotifySignal(symbol, verdict string, quantity int64, confidence float64) error
	NotifyRejection(symbol, reason string) error
}

type client struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewClient creates a new Telegram notifier client.
func NewClient(botToken string, chatID int64) (Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &client{
		bot:    bot,
		chatID: chatID,
	}, nil
}

// SendMessage sends a raw message to the configured chat.
func (c *client) SendMessage(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	_, err := c.bot.Send(msg)
	return err
}

// NotifySignal announces an accepted trade signal.
func (c *client) NotifySignal(symbol, verdict string, quantity int64, confidence float64) error {
	return c.SendMessage(fmt.Sprintf("Signal accepted: %s %s x%d (confidence %.1f%%)", verdict, symbol, quantity, confidence))
}

// NotifyRejection announces a risk-rejected recommendation.
func (c *client) NotifyRejection(symbol, reason string) error {
	return c.SendMessage(fmt.Sprintf("Signal rejected for %s: %s", symbol, reason))
}

// NopNotifier discards notifications. Used when Telegram is not configured.
type NopNotifier struct{}

func (NopNotifier) SendMessage(string) error { return nil }

func (NopNotifier) NotifySignal(string, string, int64, float64) error { return nil }

func (NopNotifier) NotifyRejection(string, string) error { return nil }
