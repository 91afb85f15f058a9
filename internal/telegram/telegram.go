package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/deusflow/hotpush/internal/pipeline"
	"github.com/deusflow/hotpush/internal/retry"
)

// Notifier sends digests to a Telegram chat or channel.
type Notifier struct {
	token    string
	chatID   string
	endpoint string
	client   *http.Client
	retry    retry.Config
	logger   *slog.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithEndpoint replaces the Bot API endpoint format, "<base>/bot%s/%s".
func WithEndpoint(format string) Option {
	return func(n *Notifier) { n.endpoint = format }
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// New builds a notifier. chatID is a numeric id or an @channel name. The bot
// connects on the first Notify.
func New(token, chatID string, rc retry.Config, logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		token:    token,
		chatID:   chatID,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		retry:    rc,
		logger:   logger.With("component", "telegram"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends the digest as one or more messages. It fails if any part
// could not be delivered.
func (n *Notifier) Notify(ctx context.Context, d pipeline.Delivery) error {
	bot, err := n.api(ctx)
	if err != nil {
		return err
	}

	parts := FormatDigest(d)
	for i, text := range parts {
		err := retry.Do(ctx, n.retry, func(ctx context.Context) error {
			return n.sendMessageOnce(bot, text)
		})
		if err != nil {
			return fmt.Errorf("sending part %d/%d: %w", i+1, len(parts), err)
		}
		n.logger.Info("message sent to Telegram", "part", i+1, "parts", len(parts), "bytes", len(text))
	}
	return nil
}

func (n *Notifier) api(ctx context.Context) (*tgbotapi.BotAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.bot != nil {
		return n.bot, nil
	}

	var bot *tgbotapi.BotAPI
	err := retry.Do(ctx, n.retry, func(context.Context) error {
		var err error
		bot, err = tgbotapi.NewBotAPIWithClient(n.token, n.endpoint, n.client)
		return classify(err)
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to Telegram: %w", err)
	}
	n.logger.Debug("authorized on Telegram", "bot", bot.Self.UserName)
	n.bot = bot
	return bot, nil
}

func (n *Notifier) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(n.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(n.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}

// sendMessageOnce does one try to send message
func (n *Notifier) sendMessageOnce(bot *tgbotapi.BotAPI, text string) error {
	_, err := bot.Send(n.message(text))
	return classify(err)
}

// classify marks client errors other than 429 as not worth retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	err = fmt.Errorf("telegram API error %d: %w", apiErr.Code, err)
	if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
