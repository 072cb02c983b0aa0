package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"pitlog/internal/conversation"
)

// Handler processes one inbound message to completion.
type Handler interface {
	Handle(ctx context.Context, msg conversation.Message)
}

type Bot struct {
	api     *tgbotapi.BotAPI
	handler Handler
	log     *zap.Logger
}

func New(api *tgbotapi.BotAPI, handler Handler, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{api: api, handler: handler, log: log}
}

// Start long-polls for updates and hands them to the handler one at a time.
// It returns when ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.log.Info("bot started", zap.String("username", b.api.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			b.log.Info("bot stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg, ok := toMessage(update)
	if !ok {
		return
	}
	b.log.Info("incoming message",
		zap.Int64("user_id", msg.UserID),
		zap.String("username", msg.Username),
		zap.String("command", msg.Command))
	b.handler.Handle(ctx, msg)
}

// toMessage keeps text messages from users; everything else is ignored.
func toMessage(update tgbotapi.Update) (conversation.Message, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil || m.Text == "" {
		return conversation.Message{}, false
	}
	out := conversation.Message{
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		MessageID: m.MessageID,
		Username:  m.From.UserName,
		Text:      m.Text,
	}
	if m.IsCommand() {
		out.Command = m.Command()
	}
	return out, true
}
