// Package telegram binds the conversational engine to the Telegram Bot API:
// an outbound gateway for sending and editing messages and a long-polling
// loop that converts Telegram updates into engine events.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/scholarpost/paperbot/internal/bot"
)

// Compile-time interface verification.
var _ bot.Gateway = (*Gateway)(nil)

// Gateway sends outbound operations through the Telegram Bot API.
type Gateway struct {
	api    *tgbotapi.BotAPI
	logger zerolog.Logger
}

// NewGateway wraps an authorized Bot API client.
func NewGateway(api *tgbotapi.BotAPI, logger zerolog.Logger) *Gateway {
	return &Gateway{
		api:    api,
		logger: logger.With().Str("component", "telegram").Logger(),
	}
}

// SendText delivers a text message with an optional keyboard.
func (g *Gateway) SendText(_ context.Context, chatID int64, text string, keyboard *bot.Keyboard) (int64, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = replyMarkup(keyboard)

	sent, err := g.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}
	return int64(sent.MessageID), nil
}

// EditText rewrites a previously sent message in place.
func (g *Gateway) EditText(_ context.Context, chatID, messageID int64, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, int(messageID), text)
	if _, err := g.api.Send(edit); err != nil {
		return fmt.Errorf("edit text: %w", err)
	}
	return nil
}

// DeleteMessage removes a previously sent message.
func (g *Gateway) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	del := tgbotapi.NewDeleteMessage(chatID, int(messageID))
	if _, err := g.api.Request(del); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// SendDocument delivers a document by URL. Telegram fetches the file
// server-side, which keeps the bot out of the transfer path.
func (g *Gateway) SendDocument(_ context.Context, chatID int64, url, filename, caption string) (int64, error) {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileURL(url))
	doc.Caption = caption

	sent, err := g.api.Send(doc)
	if err != nil {
		return 0, fmt.Errorf("send document %s: %w", filename, err)
	}
	return int64(sent.MessageID), nil
}

// replyMarkup converts the engine's keyboard model to Telegram markup.
func replyMarkup(kb *bot.Keyboard) interface{} {
	if kb == nil {
		return nil
	}
	if kb.Remove {
		return tgbotapi.NewRemoveKeyboard(false)
	}

	if kb.Inline {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
			}
			rows = append(rows, buttons)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Label))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	markup.OneTimeKeyboard = false
	return markup
}
