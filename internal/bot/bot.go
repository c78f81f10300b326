package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go-telegram-relay-bot/internal/config"
	"go-telegram-relay-bot/internal/service/relay"
	"go-telegram-relay-bot/internal/telegram"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RelayBot owns the update pipeline: it receives updates (long polling or
// webhook, per config), hands every message to the relay service and keeps
// running until stopped.
type RelayBot struct {
	client   *telegram.Client
	updater  *ext.Updater
	service  *relay.Service
	config   *config.Config
	logger   *zap.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

func New(client *telegram.Client, service *relay.Service, cfg *config.Config, logger *zap.Logger) *RelayBot {
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Processor: ext.BaseProcessor{},
	})
	updater := ext.NewUpdater(dispatcher, nil)

	return &RelayBot{
		client:  client,
		updater: updater,
		service: service,
		config:  cfg,
		logger:  logger,
		stop:    make(chan struct{}),
	}
}

func (rb *RelayBot) Start(ctx context.Context) error {
	dp, ok := rb.updater.Dispatcher.(*ext.Dispatcher)
	if !ok {
		return fmt.Errorf("dispatcher is not *ext.Dispatcher")
	}

	handler := &relayUpdateHandler{
		service: rb.service,
		logger:  rb.logger,
		ctx:     ctx,
	}
	dp.AddHandlerToGroup(handler, 0)

	bot := rb.client.Bot()

	switch rb.config.Bot.Mode {
	case config.ModeWebhook:
		err := rb.updater.StartWebhook(bot, rb.config.Webhook.URLPath, ext.WebhookOpts{
			ListenAddr:  rb.config.Webhook.ListenAddr,
			SecretToken: rb.config.Webhook.Secret,
		})
		if err != nil {
			return fmt.Errorf("failed to start webhook server: %w", err)
		}
		rb.logger.Info("Relay bot serving webhook",
			zap.String("listen_addr", rb.config.Webhook.ListenAddr),
			zap.String("url_path", rb.config.Webhook.URLPath))
	default:
		err := rb.updater.StartPolling(bot, &ext.PollingOpts{
			DropPendingUpdates: true,
		})
		if err != nil {
			return fmt.Errorf("failed to start polling: %w", err)
		}
		rb.logger.Info("Relay bot polling for updates",
			zap.String("username", bot.User.Username))
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rb.stop:
		return nil
	}
}

func (rb *RelayBot) Stop() {
	rb.stopOnce.Do(func() {
		close(rb.stop)
		rb.updater.Stop()
		rb.logger.Info("Relay bot stopped")
	})
}

type relayUpdateHandler struct {
	service *relay.Service
	logger  *zap.Logger
	ctx     context.Context
}

func (h *relayUpdateHandler) CheckUpdate(b *gotgbot.Bot, ctx *ext.Context) bool {
	return ctx.Update.Message != nil
}

func (h *relayUpdateHandler) HandleUpdate(b *gotgbot.Bot, ctx *ext.Context) error {
	message := ctx.Update.Message
	traceID := uuid.New()

	logger := h.logger.With(zap.String("trace_id", traceID.String()))
	logger.Debug("Update received",
		zap.Int64("update_id", ctx.Update.UpdateId),
		zap.Int64("message_id", message.MessageId),
		zap.Int64("chat_id", message.Chat.Id),
		zap.Bool("is_reply", message.ReplyToMessage != nil),
		zap.Bool("is_command", strings.HasPrefix(message.Text, "/")))

	err := h.service.HandleMessage(h.ctx, message)
	if err != nil {
		logger.Error("Message handling failed",
			zap.Int64("message_id", message.MessageId),
			zap.Error(err))
		return err
	}

	logger.Debug("Message handled",
		zap.Int64("message_id", message.MessageId))
	return nil
}

func (h *relayUpdateHandler) Name() string {
	return "relay_bot_handler"
}
