package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pitlog/internal/conversation"
)

type GatewayOptions struct {
	// Attempts is the total number of tries per call, at least one.
	Attempts   int
	RetryDelay time.Duration
	// RatePerSec throttles outgoing calls; zero disables throttling.
	RatePerSec float64
}

// Gateway sends and deletes chat messages with a fixed retry policy.
// Only transient failures are retried: network errors, 429 and 5xx answers.
type Gateway struct {
	s        sender
	limiter  *rate.Limiter
	attempts int
	delay    time.Duration
	log      *zap.Logger
}

func NewGateway(api *tgbotapi.BotAPI, opts GatewayOptions, log *zap.Logger) *Gateway {
	return newGateway(botAPISender{api: api}, opts, log)
}

func newGateway(s sender, opts GatewayOptions, log *zap.Logger) *Gateway {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		s:        s,
		limiter:  rate.NewLimiter(limit, 1),
		attempts: opts.Attempts,
		delay:    opts.RetryDelay,
		log:      log,
	}
}

func (g *Gateway) Send(ctx context.Context, chatID int64, text string, kb *conversation.Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if kb != nil {
		msg.ReplyMarkup = replyKeyboard(kb)
	}
	var sent tgbotapi.Message
	err := g.do(ctx, "send", chatID, func() error {
		var err error
		sent, err = g.s.Send(msg)
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (g *Gateway) Delete(ctx context.Context, chatID int64, messageID int) error {
	return g.do(ctx, "delete", chatID, func() error {
		_, err := g.s.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
		return err
	})
}

func (g *Gateway) do(ctx context.Context, op string, chatID int64, call func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.delay), uint64(g.attempts-1)),
		ctx,
	)
	tries := 0
	err := backoff.Retry(func() error {
		tries++
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := call()
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		g.log.Warn("telegram call failed",
			zap.String("op", op),
			zap.Int64("chat_id", chatID),
			zap.Int("attempts", tries),
			zap.Error(err))
	}
	return err
}

func transient(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// replyKeyboard renders choices as a resized reply keyboard.
func replyKeyboard(kb *conversation.Keyboard) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, labels := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for _, l := range labels {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(l))
		}
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	m := tgbotapi.NewReplyKeyboard(rows...)
	m.OneTimeKeyboard = !kb.Persistent
	return m
}
