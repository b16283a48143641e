package notify

import (
	"context"
	"fmt"
	"html"
	"os"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Environment variables the Telegram notifier reads.
const (
	EnvBotToken = "TELEGRAM_BOT_TOKEN"
	EnvChatID   = "TELEGRAM_CHAT_ID"
)

// MaxMessageLength bounds one Telegram send; longer texts are chunked.
const MaxMessageLength = 3500

// Telegram delivers notifications to a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram builds a notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// NewTelegramFromEnv builds a Telegram notifier from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID, or a Nop when either is unset.
func NewTelegramFromEnv() (Notifier, error) {
	token := os.Getenv(EnvBotToken)
	chat := os.Getenv(EnvChatID)
	if token == "" || chat == "" {
		return Nop{}, nil
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("notify: parse %s: %w", EnvChatID, err)
	}
	return NewTelegram(token, chatID)
}

// Send delivers text as HTML, splitting into numbered chunks when it
// exceeds MaxMessageLength. Interpolated values must be escaped with
// EscapeText by the caller; literal tags pass through.
func (t *Telegram) Send(ctx context.Context, text string) error {
	chunks := chunkMessage(text, MaxMessageLength)
	total := len(chunks)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if total > 1 {
			chunk = fmt.Sprintf("(%d/%d) %s", i+1, total, chunk)
		}
		msg := tgbotapi.NewMessage(t.chatID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("notify: telegram send: %w", err)
		}
	}
	return nil
}

// EscapeText escapes a value for interpolation into an HTML message.
func EscapeText(s string) string {
	return html.EscapeString(s)
}

func chunkMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
