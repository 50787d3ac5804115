package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/jpalmerr/stockpulse/internal/alert"
)

const defaultTelegramTimeout = 8 * time.Second

// TelegramConfig describes the bot used for chat alerts.
type TelegramConfig struct {
	Token  string
	ChatID int64

	// APIURL overrides the Bot API endpoint, mainly for tests.
	APIURL string
}

// TelegramNotifier posts restock alerts to a Telegram chat.
//
// The bot runs offline: it only sends and never polls for updates.
type TelegramNotifier struct {
	bot  *tele.Bot
	chat *tele.Chat
}

// NewTelegramNotifier creates a [TelegramNotifier].
func NewTelegramNotifier(cfg TelegramConfig) (*TelegramNotifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}

	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: defaultTelegramTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, chat: &tele.Chat{ID: cfg.ChatID}}, nil
}

// Name implements [alert.Notifier].
func (n *TelegramNotifier) Name() string { return "telegram" }

// Notify implements [alert.Notifier]. The Bot API call is bounded by the
// client timeout rather than ctx.
func (n *TelegramNotifier) Notify(_ context.Context, a alert.Alert) error {
	_, err := n.bot.Send(n.chat, chatText(a))
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

func chatText(a alert.Alert) string {
	var b strings.Builder
	b.WriteString(a.Subject())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Previously: %s\n", a.Previous.Label())
	b.WriteString(a.URL)
	return b.String()
}
