package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "dailyremind/pkg/logx"
)

// TelegramConfig configures the optional Telegram delivery sink.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// TelegramSink delivers fired reminders as Telegram messages. It is
// send-only; user actions still arrive through the app surface.
type TelegramSink struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

func NewTelegramSink(cfg TelegramConfig, log logx.Logger) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram sink: token required")
	}
	if cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram sink: chat_id required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	// No poller: this bot only sends.
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram sink: %w", err)
	}
	return &TelegramSink{bot: bot, chatID: cfg.ChatID, log: log}, nil
}

func (s *TelegramSink) Deliver(ctx context.Context, req Request) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	text := "🔔 " + req.Title
	if req.Body != "" {
		text += "\n" + req.Body
	}
	_, err := s.bot.Send(tele.ChatID(s.chatID), text, &tele.SendOptions{
		DisableNotification: !req.Sound,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	s.log.Debug("telegram delivery sent",
		logx.String("id", req.ID),
		logx.Time("fired", time.Now()))
	return nil
}
