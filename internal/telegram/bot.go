// Package telegram connects the chat navigation and the postback relay to
// the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/radiusdt/ppbot/internal/bot"
	"github.com/radiusdt/ppbot/internal/metrics"
	"go.uber.org/zap"
)

// Handler processes decoded chat updates.
type Handler interface {
	Handle(ctx context.Context, u bot.Update) error
}

// Options configures a Bot.
type Options struct {
	Token string
	// APIEndpoint overrides tgbotapi.APIEndpoint, mainly for tests.
	APIEndpoint string
	// NotifyChatID receives relayed postbacks.
	NotifyChatID int64
	// AllowedChats limits who may use the menus. Empty allows everyone.
	AllowedChats []int64
	PollTimeout  int
	Debug        bool
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Bot is a long-polling Telegram client. It renders bot views and
// delivers postback notifications.
type Bot struct {
	api          *tgbotapi.BotAPI
	notifyChatID int64
	allowed      map[int64]bool
	pollTimeout  int
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// New authenticates against the Bot API.
func New(opts Options) (*Bot, error) {
	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, &http.Client{Timeout: 90 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	api.Debug = opts.Debug

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Bot{
		api:          api,
		notifyChatID: opts.NotifyChatID,
		pollTimeout:  opts.PollTimeout,
		logger:       logger,
		metrics:      opts.Metrics,
	}
	if len(opts.AllowedChats) > 0 {
		b.allowed = make(map[int64]bool, len(opts.AllowedChats))
		for _, id := range opts.AllowedChats {
			b.allowed[id] = true
		}
	}

	logger.Info("connected to Telegram", zap.String("username", api.Self.UserName))
	return b, nil
}

// Run polls for updates until ctx is cancelled. Updates of one chat are
// handled one at a time in arrival order; different chats run in parallel.
func (b *Bot) Run(ctx context.Context, h Handler) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(cfg)

	queues := newChatQueues(func(u bot.Update) {
		b.dispatch(ctx, h, u)
	})
	defer queues.wait()
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			u, ok := convertUpdate(upd)
			if !ok {
				continue
			}
			queues.push(u)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, h Handler, u bot.Update) {
	if u.Callback != nil {
		if _, err := b.api.Request(tgbotapi.NewCallback(u.Callback.ID, "")); err != nil {
			b.logger.Warn("failed to answer callback", zap.Int64("chat_id", u.ChatID), zap.Error(err))
		}
	}

	if b.allowed != nil && !b.allowed[u.ChatID] {
		b.metrics.RecordEvent("denied")
		b.logger.Warn("update from chat not allowed", zap.Int64("chat_id", u.ChatID))
		return
	}

	if err := h.Handle(ctx, u); err != nil {
		b.logger.Error("failed to handle update",
			zap.Int64("chat_id", u.ChatID),
			zap.Error(err),
		)
	}
}

// convertUpdate extracts the parts of a Telegram update the navigation
// understands.
func convertUpdate(upd tgbotapi.Update) (bot.Update, bool) {
	if cq := upd.CallbackQuery; cq != nil {
		if cq.Message == nil || cq.Message.Chat == nil {
			return bot.Update{}, false
		}
		chatID := cq.Message.Chat.ID
		return bot.Update{
			ChatID: chatID,
			Callback: &bot.Callback{
				ID:      cq.ID,
				Data:    cq.Data,
				Message: bot.MessageRef{ChatID: chatID, MessageID: cq.Message.MessageID},
			},
		}, true
	}

	if msg := upd.Message; msg != nil && msg.Chat != nil && msg.Text != "" {
		return bot.Update{ChatID: msg.Chat.ID, Text: msg.Text}, true
	}
	return bot.Update{}, false
}

// Send posts v as a new message.
func (b *Bot) Send(ctx context.Context, chatID int64, v bot.View) (bot.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return bot.MessageRef{}, err
	}

	msg := tgbotapi.NewMessage(chatID, v.Text)
	if len(v.Keyboard) > 0 {
		msg.ReplyMarkup = keyboard(v.Keyboard)
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		return bot.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return bot.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit replaces the text and keyboard of ref. An identical edit is not an
// error.
func (b *Bot) Edit(ctx context.Context, ref bot.MessageRef, v bot.View) (bot.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return ref, err
	}

	edit := tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, v.Text, keyboard(v.Keyboard))
	if _, err := b.api.Send(edit); err != nil && !notModified(err) {
		return ref, fmt.Errorf("edit message %d: %w", ref.MessageID, err)
	}
	return ref, nil
}

// Notify sends a Markdown text to the notification chat.
func (b *Bot) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(b.notifyChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("notify chat %d: %w", b.notifyChatID, err)
	}
	return nil
}

func keyboard(rows [][]bot.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Action.Encode()))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func notModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
