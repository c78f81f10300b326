package telegram

import (
	"context"
	"fmt"
	"strings"

	"go-telegram-relay-bot/internal/config"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"go.uber.org/zap"
)

// RegisterWebhook points the Bot API at our public endpoint. Telegram will
// attach the secret token to every delivery; the webhook server rejects
// requests where the token does not match before any update processing.
// Registration is retried because it runs once at startup, outside the
// no-retry rule of the message path.
func RegisterWebhook(ctx context.Context, bot *gotgbot.Bot, cfg config.WebhookConfig, retry *RetryHandler, logger *zap.Logger) error {
	url := strings.TrimSuffix(cfg.PublicURL, "/") + cfg.URLPath

	err := retry.Retry(ctx, func() error {
		_, err := bot.SetWebhook(url, &gotgbot.SetWebhookOpts{
			SecretToken: cfg.Secret,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	logger.Info("Webhook registered", zap.String("url", url))
	return nil
}

// UnregisterWebhook removes the webhook so a polling instance can take
// over, or simply to stop deliveries on shutdown.
func UnregisterWebhook(bot *gotgbot.Bot, logger *zap.Logger) error {
	if _, err := bot.DeleteWebhook(nil); err != nil {
		return fmt.Errorf("failed to unregister webhook: %w", err)
	}
	logger.Info("Webhook unregistered")
	return nil
}
