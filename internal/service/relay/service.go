package relay

import (
	"context"
	"fmt"
	"strings"

	"go-telegram-relay-bot/internal/config"
	"go-telegram-relay-bot/internal/registry"
	"go-telegram-relay-bot/internal/relaymap"
	"go-telegram-relay-bot/internal/service"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"go.uber.org/zap"
)

// Messenger is the outbound Telegram surface the relay consumes. A failed
// call is logged and the update counts as handled; nothing here retries.
type Messenger interface {
	SendMessage(chatID int64, text string, opts *gotgbot.SendMessageOpts) (int64, error)
	ForwardMessage(toChatID, fromChatID, messageID int64) (int64, error)
	CopyMessage(toChatID, fromChatID, messageID int64) (int64, error)
	DeleteMessage(chatID, messageID int64) error
}

type FraudChecker interface {
	IsKnownFraud(ctx context.Context, chatID int64) bool
}

type Throttler interface {
	ShouldNotify(ctx context.Context, chatID int64) (bool, error)
}

type RateLimiter interface {
	AllowGuestMessage(ctx context.Context, guestChatID int64) bool
}

type TextFetcher interface {
	FetchTextOrFallback(ctx context.Context, url, fallback string) string
}

// FailureAlerter raises debounced operator alerts when the store keeps
// failing. A nil alerter disables reporting; the failures still log.
type FailureAlerter interface {
	Alert(ctx context.Context, alertType service.AlertType, err error, details string)
}

// Service is the per-update orchestrator: greeting, operator command
// dispatch, or the guest relay flow. It holds no per-message state; every
// update is handled independently and all cross-update state lives in the
// store behind the registry and the mapper.
type Service struct {
	operatorID  int64
	messenger   Messenger
	registry    *registry.Registry
	mapper      *relaymap.Mapper
	fraud       FraudChecker
	throttler   Throttler
	rateLimiter RateLimiter
	fetcher     TextFetcher
	alerter     FailureAlerter
	config      *config.Config
	logger      *zap.Logger
}

func NewService(
	messenger Messenger,
	reg *registry.Registry,
	mapper *relaymap.Mapper,
	fraud FraudChecker,
	throttler Throttler,
	rateLimiter RateLimiter,
	fetcher TextFetcher,
	alerter FailureAlerter,
	cfg *config.Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		operatorID:  cfg.Bot.OperatorID,
		messenger:   messenger,
		registry:    reg,
		mapper:      mapper,
		fraud:       fraud,
		throttler:   throttler,
		rateLimiter: rateLimiter,
		fetcher:     fetcher,
		alerter:     alerter,
		config:      cfg,
		logger:      logger,
	}
}

func (s *Service) alertStoreFailure(ctx context.Context, err error, details string) {
	if s.alerter != nil {
		s.alerter.Alert(ctx, service.AlertTypeStore, err, details)
	}
}

// HandleMessage processes one inbound message to completion. It never
// returns an error for collaborator failures on the message path; those
// are logged and the update is considered handled so the inbound boundary
// can always acknowledge.
func (s *Service) HandleMessage(ctx context.Context, msg *gotgbot.Message) error {
	if msg == nil {
		return nil
	}

	if strings.TrimSpace(msg.Text) == "/start" {
		return s.handleStart(ctx, msg)
	}

	if msg.Chat.Id == s.operatorID {
		return s.handleOperator(ctx, msg)
	}

	return s.handleGuest(ctx, msg)
}

func (s *Service) handleStart(ctx context.Context, msg *gotgbot.Message) error {
	greeting := s.fetcher.FetchTextOrFallback(ctx, s.config.Greeting.URL, s.config.Greeting.FallbackText)
	if _, err := s.messenger.SendMessage(msg.Chat.Id, greeting, nil); err != nil {
		s.logger.Warn("Failed to send greeting",
			zap.Int64("chat_id", msg.Chat.Id),
			zap.Error(err))
	}
	return nil
}

func (s *Service) handleGuest(ctx context.Context, msg *gotgbot.Message) error {
	chatID := msg.Chat.Id

	blocked, err := s.registry.IsBlocked(ctx, chatID)
	if err != nil {
		// Fail open: an unreadable flag behaves like an absent one.
		s.logger.Warn("Failed to read block flag",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		s.alertStoreFailure(ctx, err, "guest registry")
	}
	if blocked {
		s.logger.Debug("Dropping message from blocked guest",
			zap.Int64("chat_id", chatID))
		if _, err := s.messenger.SendMessage(chatID, "You are blocked.", nil); err != nil {
			s.logger.Warn("Failed to send block notice",
				zap.Int64("chat_id", chatID),
				zap.Error(err))
		}
		return nil
	}

	if !s.rateLimiter.AllowGuestMessage(ctx, chatID) {
		s.logger.Warn("Guest over rate limit, not forwarding",
			zap.Int64("chat_id", chatID))
		if _, err := s.messenger.SendMessage(chatID, "You are sending messages too quickly. Please slow down.", nil); err != nil {
			s.logger.Warn("Failed to send rate limit notice",
				zap.Int64("chat_id", chatID),
				zap.Error(err))
		}
		return nil
	}

	username := ""
	if msg.From != nil {
		username = msg.From.Username
	}
	if err := s.registry.RecordInbound(ctx, chatID, msg.Text, username, msg.MessageId); err != nil {
		// The relay still works without the bookkeeping.
		s.logger.Warn("Failed to record inbound message",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		s.alertStoreFailure(ctx, err, "guest registry")
	}

	forwardedID, err := s.messenger.ForwardMessage(s.operatorID, chatID, msg.MessageId)
	if err != nil {
		s.logger.Error("Failed to forward guest message",
			zap.Int64("chat_id", chatID),
			zap.Int64("message_id", msg.MessageId),
			zap.Error(err))
		return nil
	}

	// The mapping is written only after a successful forward so that
	// every stored mapping points at a message the operator can see.
	if err := s.mapper.Record(ctx, forwardedID, chatID); err != nil {
		s.logger.Warn("Failed to record relay mapping",
			zap.Int64("forwarded_message_id", forwardedID),
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		s.alertStoreFailure(ctx, err, "relay mapper")
	}

	s.notifyOperator(ctx, chatID)
	return nil
}

// notifyOperator decides whether this guest activity warrants an operator
// alert. Fraud is checked first and bypasses the throttle entirely; it
// neither consumes nor resets the window.
func (s *Service) notifyOperator(ctx context.Context, chatID int64) {
	if s.fraud.IsKnownFraud(ctx, chatID) {
		text := fmt.Sprintf("Fraud warning: guest %d is on the denylist.", chatID)
		if _, err := s.messenger.SendMessage(s.operatorID, text, nil); err != nil {
			s.logger.Warn("Failed to send fraud alert", zap.Error(err))
		}
		return
	}

	if !s.config.Notify.Enabled {
		return
	}

	shouldNotify, err := s.throttler.ShouldNotify(ctx, chatID)
	if err != nil {
		s.logger.Warn("Throttle check failed, skipping notification",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return
	}
	if !shouldNotify {
		return
	}

	text := s.fetcher.FetchTextOrFallback(ctx, s.config.Notify.TemplateURL, s.config.Notify.FallbackText)
	if _, err := s.messenger.SendMessage(s.operatorID, text, nil); err != nil {
		s.logger.Warn("Failed to send activity notification", zap.Error(err))
	}
}
