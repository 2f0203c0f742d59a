package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/school-progress/internal/models"
)

// Telegram sends plain text messages through a bot to users that linked a chat.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram wraps an authorised bot; nil gives an unconfigured channel.
func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{bot: bot}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Deliver(ctx context.Context, to models.Contact, msg Message) error {
	if t.bot == nil {
		return ErrNotConfigured
	}
	if to.TelegramChatID == nil {
		return ErrNoAddress
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	if msg.ActionURL != "" {
		text += "\n\n" + msg.ActionURL
	}
	m := tgbotapi.NewMessage(*to.TelegramChatID, text)
	m.DisableWebPagePreview = true
	_, err := t.bot.Send(m)
	if err != nil && !isSystemErr(err) {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return err
}

// isSystemErr: 5xx, 429 and timeouts are ours to look at. Anything else
// (blocked bot, unknown chat) is the recipient's and comes back as ErrRejected.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "502") ||
		strings.Contains(s, "503") || strings.Contains(s, "timeout")
}
