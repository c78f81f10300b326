package telegram

import (
	"fmt"

	"go-telegram-relay-bot/internal/config"
	"go-telegram-relay-bot/internal/utils"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"go.uber.org/zap"
)

// Client wraps the Bot API behind the send/forward/copy/delete surface the
// relay consumes. Failures come back as wrapped errors; the relay logs
// them and moves on, it never crashes on a refused API call.
type Client struct {
	bot    *gotgbot.Bot
	logger *zap.Logger
}

func NewClient(cfg *config.Config, logger *zap.Logger) (*Client, error) {
	var botOpts *gotgbot.BotOpts

	if cfg.Proxy.Enabled {
		httpClient, err := utils.CreateHTTPClientWithProxy(&cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client with proxy: %w", err)
		}

		botClient := &gotgbot.BaseBotClient{
			Client:             *httpClient,
			UseTestEnvironment: false,
			DefaultRequestOpts: nil,
		}

		botOpts = &gotgbot.BotOpts{
			BotClient: botClient,
		}

		logger.Info("Proxy enabled for bot client",
			zap.String("proxy_url", cfg.Proxy.URL))
	}

	b, err := gotgbot.NewBot(cfg.Bot.Token, botOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Client{bot: b, logger: logger}, nil
}

func (c *Client) Bot() *gotgbot.Bot {
	return c.bot
}

func (c *Client) SendMessage(chatID int64, text string, opts *gotgbot.SendMessageOpts) (int64, error) {
	msg, err := c.bot.SendMessage(chatID, text, opts)
	if err != nil {
		return 0, fmt.Errorf("sendMessage to %d: %w", chatID, err)
	}
	return msg.MessageId, nil
}

// ForwardMessage forwards a message keeping the original sender header and
// returns the id the forwarded copy got in the destination chat.
func (c *Client) ForwardMessage(toChatID, fromChatID, messageID int64) (int64, error) {
	msg, err := c.bot.ForwardMessage(toChatID, fromChatID, messageID, nil)
	if err != nil {
		return 0, fmt.Errorf("forwardMessage %d from %d: %w", messageID, fromChatID, err)
	}
	return msg.MessageId, nil
}

// CopyMessage re-sends a message without the forwarded-from header, which
// keeps the operator anonymous when replying to guests.
func (c *Client) CopyMessage(toChatID, fromChatID, messageID int64) (int64, error) {
	res, err := c.bot.CopyMessage(toChatID, fromChatID, messageID, nil)
	if err != nil {
		return 0, fmt.Errorf("copyMessage %d to %d: %w", messageID, toChatID, err)
	}
	return res.MessageId, nil
}

func (c *Client) DeleteMessage(chatID, messageID int64) error {
	if _, err := c.bot.DeleteMessage(chatID, messageID, nil); err != nil {
		return fmt.Errorf("deleteMessage %d in %d: %w", messageID, chatID, err)
	}
	return nil
}
